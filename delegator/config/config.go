// Package config implements the delegation gateway configuration options.
package config

import (
	"fmt"

	"github.com/delegation-marketplace/stx-delegator/delegator"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
	"github.com/delegation-marketplace/stx-delegator/delegator/state"
)

// Config is the delegation gateway configuration structure.
type Config struct {
	// Owner is the deployment owner principal.
	Owner string `yaml:"owner"`
	// MarketplaceContract is the initial marketplace contract. Defaults to
	// <owner>.delegation-marketplace.
	MarketplaceContract string `yaml:"marketplace_contract,omitempty"`
	// Principal is the gateway's own contract principal. Defaults to
	// <owner>.stx-delegator.
	Principal string `yaml:"principal,omitempty"`
	// Backend is the state backend (memory, badger).
	Backend string `yaml:"backend"`
	// EventHistory is the number of recent events kept.
	EventHistory int `yaml:"event_history"`
}

// OwnerPrincipal returns the configured owner.
func (c *Config) OwnerPrincipal() api.Principal {
	return api.Principal(c.Owner)
}

// MarketplacePrincipal returns the configured marketplace contract or its
// default.
func (c *Config) MarketplacePrincipal() api.Principal {
	if c.MarketplaceContract != "" {
		return api.Principal(c.MarketplaceContract)
	}
	return c.OwnerPrincipal().ContractPrincipal(api.DefaultMarketplaceName)
}

// GatewayPrincipal returns the configured gateway principal or its
// default.
func (c *Config) GatewayPrincipal() api.Principal {
	if c.Principal != "" {
		return api.Principal(c.Principal)
	}
	return c.OwnerPrincipal().ContractPrincipal(api.DefaultGatewayName)
}

// Validate validates the configuration settings.
func (c *Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("missing owner")
	}
	switch c.Backend {
	case state.BackendMemory, state.BackendBadger:
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	if c.EventHistory <= 0 {
		return fmt.Errorf("event_history must be positive")
	}
	return nil
}

// DefaultConfig returns the default configuration settings.
func DefaultConfig() Config {
	return Config{
		Backend:      state.BackendBadger,
		EventHistory: delegator.DefaultEventHistorySize,
	}
}
