// Package mcphost implements the client side of the Model Context Protocol
// (MCP) for hosts that run servers as child processes, following the official
// specification from https://spec.modelcontextprotocol.io/specification/.
//
// The package owns a server's entire lifetime: it spawns the executable,
// speaks newline-delimited JSON-RPC 2.0 over the child's standard streams,
// performs the initialize handshake, exchanges tool and resource requests in
// strict lockstep, and tears the process down in stages when the session
// ends. It is suitable for embedding MCP servers in AI assistants, agent
// runtimes, and command line tools.
package mcphost
