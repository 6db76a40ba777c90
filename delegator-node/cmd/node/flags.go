package node

import (
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/delegation-marketplace/stx-delegator/config"
)

const (
	// CfgDelegatorOwner overrides the deployment owner principal.
	CfgDelegatorOwner = "delegator.owner"
	// CfgDelegatorMarketplace overrides the initial marketplace contract.
	CfgDelegatorMarketplace = "delegator.marketplace_contract"
	// CfgDelegatorBackend overrides the state backend.
	CfgDelegatorBackend = "delegator.backend"

	// CfgGRPCPort overrides the external gRPC port.
	CfgGRPCPort = "grpc.port"

	// CfgMetricsMode overrides the metrics mode.
	CfgMetricsMode = "metrics.mode"
	// CfgMetricsAddr overrides the metrics address.
	CfgMetricsAddr = "metrics.address"
)

// Flags has the configuration flags.
var Flags = flag.NewFlagSet("", flag.ContinueOnError)

func applyFlagOverrides(cfg *config.Config) {
	if viper.IsSet(CfgDelegatorOwner) {
		cfg.Delegator.Owner = viper.GetString(CfgDelegatorOwner)
	}
	if viper.IsSet(CfgDelegatorMarketplace) {
		cfg.Delegator.MarketplaceContract = viper.GetString(CfgDelegatorMarketplace)
	}
	if viper.IsSet(CfgDelegatorBackend) {
		cfg.Delegator.Backend = viper.GetString(CfgDelegatorBackend)
	}
	if viper.IsSet(CfgGRPCPort) {
		cfg.GRPC.Port = uint16(viper.GetUint(CfgGRPCPort))
	}
	if viper.IsSet(CfgMetricsMode) {
		cfg.Metrics.Mode = viper.GetString(CfgMetricsMode)
	}
	if viper.IsSet(CfgMetricsAddr) {
		cfg.Metrics.Address = viper.GetString(CfgMetricsAddr)
	}
}

func init() {
	Flags.String(CfgDelegatorOwner, "", "deployment owner principal")
	Flags.String(CfgDelegatorMarketplace, "", "initial marketplace contract principal")
	Flags.String(CfgDelegatorBackend, "", "state backend (memory, badger)")
	Flags.Uint16(CfgGRPCPort, 0, "external gRPC TCP port")
	Flags.String(CfgMetricsMode, "", "metrics mode (none, pull, push)")
	Flags.String(CfgMetricsAddr, "", "metrics pull listen address or push gateway address")

	_ = viper.BindPFlags(Flags)
}
