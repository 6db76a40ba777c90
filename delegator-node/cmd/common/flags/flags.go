// Package flags implements common flags used across multiple commands.
package flags

import (
	"encoding/hex"
	"fmt"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/delegation-marketplace/stx-delegator/delegator/api"
)

const (
	// CfgCaller is the flag used to specify the immediate caller of a
	// gateway call.
	CfgCaller = "caller"
	// CfgSender is the flag used to specify the transaction origin of a
	// gateway call.
	CfgSender = "sender"

	// CfgPoxVersion is the flag used to specify the PoX address version.
	CfgPoxVersion = "pox.version"
	// CfgPoxHashBytes is the flag used to specify the hex encoded PoX
	// address hash.
	CfgPoxHashBytes = "pox.hashbytes"

	cfgVerbose = "verbose"
)

var (
	// CallFlags has the call context flags.
	CallFlags = flag.NewFlagSet("", flag.ContinueOnError)

	// PoxAddressFlags has the PoX address flags.
	PoxAddressFlags = flag.NewFlagSet("", flag.ContinueOnError)

	// VerboseFlags has the verbose flag.
	VerboseFlags = flag.NewFlagSet("", flag.ContinueOnError)
)

// CallContext returns the call context given by the call context flags.
func CallContext() (api.CallContext, error) {
	call := api.CallContext{
		Caller: api.Principal(viper.GetString(CfgCaller)),
		Sender: api.Principal(viper.GetString(CfgSender)),
	}
	if !call.Caller.IsValid() {
		return call, fmt.Errorf("missing --%s", CfgCaller)
	}
	return call, nil
}

// PoxAddress returns the PoX address given by the PoX address flags.
//
// The address is not validated.
func PoxAddress() (api.PoxAddress, error) {
	version := viper.GetUint(CfgPoxVersion)
	if version > 0xff {
		return api.PoxAddress{}, fmt.Errorf("--%s out of range: %d", CfgPoxVersion, version)
	}
	hashBytes, err := hex.DecodeString(viper.GetString(CfgPoxHashBytes))
	if err != nil {
		return api.PoxAddress{}, fmt.Errorf("malformed --%s: %w", CfgPoxHashBytes, err)
	}
	return api.PoxAddress{
		Version:   uint8(version),
		HashBytes: hashBytes,
	}, nil
}

// Verbose returns true iff the verbose flag is set.
func Verbose() bool {
	return viper.GetBool(cfgVerbose)
}

func init() {
	CallFlags.String(CfgCaller, "", "principal of the immediate caller (contract-caller)")
	CallFlags.String(CfgSender, "", "principal of the transaction origin (tx-sender), defaults to the caller")
	_ = viper.BindPFlags(CallFlags)

	PoxAddressFlags.Uint(CfgPoxVersion, uint(api.PoxAddressVersion), "PoX address version byte")
	PoxAddressFlags.BytesHex(CfgPoxHashBytes, nil, "hex encoded PoX address hash")
	_ = viper.BindPFlags(PoxAddressFlags)

	VerboseFlags.BoolP(cfgVerbose, "v", false, "verbose output")
	_ = viper.BindPFlags(VerboseFlags)
}
