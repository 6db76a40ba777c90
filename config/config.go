// Package config implements global configuration options.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/a8m/envsubst"
	"gopkg.in/yaml.v3"

	delegator "github.com/delegation-marketplace/stx-delegator/delegator/config"
	"github.com/delegation-marketplace/stx-delegator/delegator/state"
	common "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/config"
	grpc "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/grpc/config"
	metrics "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/metrics/config"
)

// GlobalConfig holds the global configuration options.
var GlobalConfig Config

// Config is the top-level configuration structure.
type Config struct {
	Common    common.Config    `yaml:"common"`
	Delegator delegator.Config `yaml:"delegator"`
	GRPC      grpc.Config      `yaml:"grpc,omitempty"`
	Metrics   metrics.Config   `yaml:"metrics,omitempty"`
}

// Validate validates the configuration settings.
func (c *Config) Validate() error {
	var err error

	if err = c.Common.Validate(); err != nil {
		return fmt.Errorf("common: %w", err)
	}
	if err = c.Delegator.Validate(); err != nil {
		return fmt.Errorf("delegator: %w", err)
	}
	if c.Delegator.Backend == state.BackendBadger && c.Common.DataDir == "" {
		return fmt.Errorf("delegator: %s backend requires common.data_dir", state.BackendBadger)
	}
	if err = c.GRPC.Validate(); err != nil {
		return fmt.Errorf("grpc: %w", err)
	}
	if err = c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	return nil
}

// DefaultConfig returns the default configuration settings.
func DefaultConfig() Config {
	return Config{
		Common:    common.DefaultConfig(),
		Delegator: delegator.DefaultConfig(),
		GRPC:      grpc.DefaultConfig(),
		Metrics:   metrics.DefaultConfig(),
	}
}

// Parse parses a configuration document, substituting environment
// variables, on top of the default configuration. Unknown fields are an
// error. The result is not validated.
func Parse(raw []byte) (*Config, error) {
	raw, err := envsubst.Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err = dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, err
	}
	return &cfg, nil
}

// InitConfig initializes the global configuration from the given file.
func InitConfig(cfgFile string) error {
	raw, err := os.ReadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("unable to read config file '%s': %w", cfgFile, err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to load config file '%s': %w", cfgFile, err)
	}
	GlobalConfig = *cfg

	// Validate config file.
	return GlobalConfig.Validate()
}

func init() {
	GlobalConfig = DefaultConfig()
}
