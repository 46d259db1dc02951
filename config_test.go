package mcphost_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcphost "github.com/MegaGrindStone/go-mcp-host"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfigJSON(t *testing.T) {
	t.Setenv("MCP_TEST_TOKEN", "sekrit")

	path := writeConfigFile(t, "config.json", `{
	  "mcpServers": {
	    "everything": {
	      "command": "npx",
	      "args": ["-y", "@modelcontextprotocol/server-everything"],
	      "env": {
	        "API_KEY": "${MCP_TEST_TOKEN}"
	      }
	    },
	    "parked": {
	      "command": "some-server",
	      "disabled": true
	    }
	  }
	}`)

	config, err := mcphost.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	sc, err := config.Server("everything")
	if err != nil {
		t.Fatalf("Server() error = %v", err)
	}
	if sc.Command != "npx" {
		t.Errorf("expected command npx, got %q", sc.Command)
	}
	if len(sc.Args) != 2 || sc.Args[1] != "@modelcontextprotocol/server-everything" {
		t.Errorf("unexpected args: %v", sc.Args)
	}

	// Environment keys must keep their case, and values are expanded
	// against the host environment.
	if got := sc.Env["API_KEY"]; got != "sekrit" {
		t.Errorf(`expected env API_KEY to expand to "sekrit", got %q`, got)
	}

	if _, err := config.Server("parked"); !errors.Is(err, mcphost.ErrServerDisabled) {
		t.Errorf("expected ErrServerDisabled, got %v", err)
	}
	if _, err := config.Server("missing"); !errors.Is(err, mcphost.ErrServerNotConfigured) {
		t.Errorf("expected ErrServerNotConfigured, got %v", err)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	t.Setenv("MCP_TEST_TOKEN", "sekrit")

	path := writeConfigFile(t, "config.yaml", `
mcpServers:
  myServer:
    command: npx
    args:
      - "-y"
      - "@modelcontextprotocol/server-everything"
    env:
      API_KEY: "${MCP_TEST_TOKEN}"
`)

	config, err := mcphost.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	// The YAML decoder must keep map keys exactly as written: the server is
	// addressable only under its mixed-case name, and environment variable
	// names survive untouched.
	sc, err := config.Server("myServer")
	if err != nil {
		t.Fatalf("Server() error = %v", err)
	}
	if sc.Command != "npx" {
		t.Errorf("expected command npx, got %q", sc.Command)
	}
	if len(sc.Args) != 2 {
		t.Errorf("unexpected args: %v", sc.Args)
	}
	if got := sc.Env["API_KEY"]; got != "sekrit" {
		t.Errorf(`expected env API_KEY to expand to "sekrit", got %q`, got)
	}

	if _, err := config.Server("myserver"); !errors.Is(err, mcphost.ErrServerNotConfigured) {
		t.Errorf("a lower-cased lookup must not resolve, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := mcphost.LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected an error loading a missing JSON config")
	}
	if _, err := mcphost.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error loading a missing YAML config")
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{"mcpServers": `)

	if _, err := mcphost.LoadConfig(path); err == nil {
		t.Error("expected an error parsing a truncated config")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	if got := mcphost.DefaultConfigPath(); !strings.HasSuffix(got, ".mcp-config.json") {
		t.Errorf("unexpected default config path: %q", got)
	}
}

func TestServerConfigNewCommand(t *testing.T) {
	sc := mcphost.ServerConfig{
		Command: "cat",
		Args:    []string{"-u"},
		Env:     map[string]string{"LOG_LEVEL": "debug"},
	}

	cmd := sc.NewCommand()
	if cmd == nil {
		t.Fatal("NewCommand() returned nil")
	}
	if cmd.ID() == "" {
		t.Error("expected a non-empty transport id")
	}
	if cmd.PID() != 0 {
		t.Errorf("expected pid 0 before Start, got %d", cmd.PID())
	}
}
