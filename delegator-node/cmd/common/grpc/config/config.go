// Package config implements gRPC server configuration options.
package config

import "fmt"

// Config is the gRPC server configuration structure.
type Config struct {
	// Path of the local UNIX socket. Relative paths are resolved against
	// the data directory.
	SocketPath string `yaml:"socket_path"`
	// Address is the TCP listen address, used only when Port is set.
	Address string `yaml:"address,omitempty"`
	// Port is the TCP listen port. Zero disables the TCP listener.
	Port uint16 `yaml:"port,omitempty"`
}

// Validate validates the configuration settings.
func (c *Config) Validate() error {
	if c.SocketPath == "" && c.Port == 0 {
		return fmt.Errorf("either socket_path or port must be set")
	}
	return nil
}

// DefaultConfig returns the default configuration settings.
func DefaultConfig() Config {
	return Config{
		SocketPath: "internal.sock",
		Address:    "127.0.0.1",
		Port:       0,
	}
}
