package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes the MCP server to talk to and how the client identifies
// itself.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
}

// ServerConfig defines the subprocess hosting the MCP server.
type ServerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
}

// ClientConfig is the identity sent during the initialize handshake.
type ClientConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			Name:    "mcpcli",
			Version: version,
		},
	}
}

// loadConfig reads a YAML config file and expands environment variables.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := defaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Server.Command == "" {
		return nil, fmt.Errorf("config: server.command is required")
	}

	return cfg, nil
}
