// A small host that launches an MCP server as a child process and walks
// through the client API: handshake, tool listing and calls, resources, and
// a ping before shutting down.
//
// Run it against the example server:
//
//	go build -o /tmp/mcp-example-server ./example/server
//	go run ./example/host /tmp/mcp-example-server
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"

	mcphost "github.com/MegaGrindStone/go-mcp-host"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <server-command> [args...]", os.Args[0])
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cmd := mcphost.NewCommand(os.Args[1], os.Args[2:], nil,
		mcphost.WithCommandStderr(os.Stderr))

	cli := mcphost.NewClient(mcphost.Info{Name: "example-host", Version: "0.1.0"}, cmd)
	defer cli.Close()

	if err := cli.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	info := cli.ServerInfo()
	fmt.Printf("Connected to %s %s (protocol %s, pid %d)\n",
		info.Name, info.Version, cli.ProtocolVersion(), cmd.PID())
	if instructions := cli.Instructions(); instructions != "" {
		fmt.Printf("Instructions: %s\n", instructions)
	}

	tools, err := cli.ListTools(ctx, mcphost.ListToolsParams{})
	if err != nil {
		log.Fatalf("Failed to list tools: %v", err)
	}
	fmt.Println("\nTools:")
	for _, tool := range tools.Tools {
		fmt.Printf("  %s: %s\n", tool.Name, tool.Description)
	}

	echoArgs, _ := json.Marshal(map[string]string{"message": "hello from the host"})
	callEcho, err := cli.CallTool(ctx, mcphost.CallToolParams{Name: "echo", Arguments: echoArgs})
	if err != nil {
		log.Fatalf("Failed to call echo: %v", err)
	}
	fmt.Printf("\necho: %s\n", contentText(callEcho))

	addArgs, _ := json.Marshal(map[string]float64{"a": 2, "b": 3})
	callAdd, err := cli.CallTool(ctx, mcphost.CallToolParams{Name: "add", Arguments: addArgs})
	if err != nil {
		log.Fatalf("Failed to call add: %v", err)
	}
	fmt.Printf("add: %s\n", contentText(callAdd))

	resources, err := cli.ListResources(ctx, mcphost.ListResourcesParams{})
	if err != nil {
		log.Fatalf("Failed to list resources: %v", err)
	}
	fmt.Println("\nResources:")
	for _, res := range resources.Resources {
		fmt.Printf("  %s (%s)\n", res.URI, res.MimeType)
	}

	for _, res := range resources.Resources {
		contents, err := cli.ReadResource(ctx, mcphost.ReadResourceParams{URI: res.URI})
		if err != nil {
			log.Fatalf("Failed to read %s: %v", res.URI, err)
		}
		for _, c := range contents.Contents {
			fmt.Printf("\n%s:\n%s\n", c.URI, c.Text)
		}
	}

	if err := cli.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping: %v", err)
	}
	fmt.Println("\nServer is healthy, shutting down.")
}

func contentText(res mcphost.CallToolResult) string {
	for _, c := range res.Content {
		if c.Type == mcphost.ContentTypeText {
			return c.Text
		}
	}
	return ""
}
