// A minimal scripted MCP server speaking the line protocol over its standard
// streams. It exposes two tools (echo, add) and one resource
// (config://server-info), which is just enough surface for the host example
// and for trying the client against a real child process.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	mcphost "github.com/MegaGrindStone/go-mcp-host"
)

const serverInfoURI = "config://server-info"

func main() {
	// Stdout carries the protocol; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	stdio := mcphost.NewStdIO(os.Stdin, os.Stdout)
	if err := stdio.Start(context.Background()); err != nil {
		logger.Error("failed to start stdio", "err", err)
		os.Exit(1)
	}
	defer stdio.Close()

	if err := serve(stdio, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func serve(t mcphost.Transport, logger *slog.Logger) error {
	ctx := context.Background()

	for {
		frame, err := t.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		msg, err := mcphost.DecodeMessage(frame)
		if err != nil {
			logger.Warn("skipping malformed frame", "err", err)
			continue
		}
		if msg.ID == 0 {
			logger.Info("notification received", "method", msg.Method)
			continue
		}

		out, err := mcphost.EncodeMessage(handle(msg))
		if err != nil {
			return err
		}
		if err := t.WriteFrame(ctx, out); err != nil {
			return err
		}
	}
}

func handle(msg mcphost.JSONRPCMessage) mcphost.JSONRPCMessage {
	switch msg.Method {
	case "initialize":
		return result(msg.ID, map[string]any{
			"protocolVersion": mcphost.DefaultProtocolVersion,
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
			"serverInfo":   mcphost.Info{Name: "example-server", Version: "1.0.0"},
			"instructions": "Call echo or add, or read config://server-info.",
		})
	case "ping":
		return result(msg.ID, map[string]any{})
	case mcphost.MethodToolsList:
		return result(msg.ID, mcphost.ListToolsResult{Tools: tools()})
	case mcphost.MethodToolsCall:
		return callTool(msg)
	case mcphost.MethodResourcesList:
		return result(msg.ID, mcphost.ListResourcesResult{
			Resources: []mcphost.Resource{{
				URI:      serverInfoURI,
				Name:     "Server Info",
				MimeType: "application/json",
			}},
		})
	case mcphost.MethodResourcesRead:
		return readResource(msg)
	default:
		return rpcError(msg.ID, -32601, fmt.Sprintf("method not found: %s", msg.Method))
	}
}

func tools() []mcphost.Tool {
	return []mcphost.Tool{
		{
			Name:        "echo",
			Description: "Echo a message back to the caller.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"message": {"type": "string"}},
				"required": ["message"]
			}`),
		},
		{
			Name:        "add",
			Description: "Add two numbers together.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"a": {"type": "number"}, "b": {"type": "number"}},
				"required": ["a", "b"]
			}`),
		},
	}
}

func callTool(msg mcphost.JSONRPCMessage) mcphost.JSONRPCMessage {
	var params mcphost.CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return rpcError(msg.ID, -32602, "invalid params")
	}

	switch params.Name {
	case "echo":
		var args struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return rpcError(msg.ID, -32602, "invalid arguments")
		}
		return textResult(msg.ID, "Echo: "+args.Message)
	case "add":
		var args struct {
			A float64 `json:"a"`
			B float64 `json:"b"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return rpcError(msg.ID, -32602, "invalid arguments")
		}
		return textResult(msg.ID, strconv.FormatFloat(args.A+args.B, 'f', -1, 64))
	default:
		return result(msg.ID, mcphost.CallToolResult{
			Content: []mcphost.Content{{
				Type: mcphost.ContentTypeText,
				Text: "unknown tool: " + params.Name,
			}},
			IsError: true,
		})
	}
}

func readResource(msg mcphost.JSONRPCMessage) mcphost.JSONRPCMessage {
	var params mcphost.ReadResourceParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return rpcError(msg.ID, -32602, "invalid params")
	}
	if params.URI != serverInfoURI {
		return rpcError(msg.ID, -32002, "resource not found: "+params.URI)
	}

	info, _ := json.MarshalIndent(map[string]string{
		"name":     "example-server",
		"version":  "1.0.0",
		"protocol": "MCP",
	}, "", "  ")

	return result(msg.ID, mcphost.ReadResourceResult{
		Contents: []mcphost.ResourceContents{{
			URI:      serverInfoURI,
			MimeType: "application/json",
			Text:     string(info),
		}},
	})
}

func result(id mcphost.RequestID, v any) mcphost.JSONRPCMessage {
	data, _ := json.Marshal(v)
	return mcphost.JSONRPCMessage{
		JSONRPC: mcphost.JSONRPCVersion,
		ID:      id,
		Result:  data,
	}
}

func textResult(id mcphost.RequestID, text string) mcphost.JSONRPCMessage {
	return result(id, mcphost.CallToolResult{
		Content: []mcphost.Content{{Type: mcphost.ContentTypeText, Text: text}},
	})
}

func rpcError(id mcphost.RequestID, code int, message string) mcphost.JSONRPCMessage {
	return mcphost.JSONRPCMessage{
		JSONRPC: mcphost.JSONRPCVersion,
		ID:      id,
		Error:   &mcphost.JSONRPCError{Code: code, Message: message},
	}
}
