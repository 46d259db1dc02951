package mcphost

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "github.com/goccy/go-yaml"
)

var (
	// ErrServerNotConfigured indicates the named server has no entry in the
	// configuration file.
	ErrServerNotConfigured = errors.New("server not configured")

	// ErrServerDisabled indicates the named server is present but marked
	// disabled.
	ErrServerDisabled = errors.New("server disabled")
)

// Config represents the conventional mcpServers configuration file shared by
// MCP host applications. Each entry describes how to launch one server as a
// child process.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers" yaml:"mcpServers"`
}

// ServerConfig describes a single server: the executable to launch, its
// arguments, and extra environment entries. Values in Env may reference the
// host environment with ${VAR} syntax; they are expanded when the server is
// looked up.
type ServerConfig struct {
	Command     string            `json:"command" yaml:"command"`
	Args        []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Disabled    bool              `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	AutoApprove []string          `json:"autoApprove,omitempty" yaml:"autoApprove,omitempty"`
}

// LoadConfig reads an mcpServers configuration file. JSON and YAML files are
// supported, chosen by extension. Both decoders keep map keys exactly as
// written: server names and environment variable names are case-sensitive.
func LoadConfig(path string) (*Config, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return loadJSONConfig(path)
	}
	return loadYAMLConfig(path)
}

func loadJSONConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := jsonAPI.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

func loadYAMLConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// DefaultConfigPath returns the conventional location of the configuration
// file in the user's home directory, or a path relative to the working
// directory when the home directory cannot be resolved.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".mcp-config.json"
	}
	return filepath.Join(homeDir, ".mcp-config.json")
}

// Server returns the configuration for the named server with its environment
// values expanded against the host environment.
func (c *Config) Server(name string) (ServerConfig, error) {
	sc, ok := c.MCPServers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("%w: %s", ErrServerNotConfigured, name)
	}
	if sc.Disabled {
		return ServerConfig{}, fmt.Errorf("%w: %s", ErrServerDisabled, name)
	}

	if len(sc.Env) > 0 {
		env := make(map[string]string, len(sc.Env))
		for k, v := range sc.Env {
			env[k] = os.ExpandEnv(v)
		}
		sc.Env = env
	}

	return sc, nil
}

// NewCommand builds the process transport described by this entry.
func (sc ServerConfig) NewCommand(options ...CommandOption) *Command {
	return NewCommand(sc.Command, sc.Args, sc.Env, options...)
}
