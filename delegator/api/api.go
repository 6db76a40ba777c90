// Package api implements the STX delegation gateway API.
package api

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/delegation-marketplace/stx-delegator/common/errors"
	"github.com/delegation-marketplace/stx-delegator/common/pubsub"
)

// ModuleName is a unique module name for the delegator module.
const ModuleName = "delegator"

const (
	// PoxAddressVersion is the only accepted PoX address version byte.
	PoxAddressVersion uint8 = 0x01
	// PoxAddressHashSize is the required PoX address hash length in bytes.
	PoxAddressHashSize = 20

	// DefaultMarketplaceName is the contract name of the marketplace
	// contract used when none is configured.
	DefaultMarketplaceName = "delegation-marketplace"
	// DefaultGatewayName is the contract name of the gateway itself used
	// when none is configured.
	DefaultGatewayName = "stx-delegator"
)

var (
	// ErrInvalidArgument is the error returned on malformed arguments.
	ErrInvalidArgument = errors.New(ModuleName, 1, "delegator: invalid argument")

	// ErrOwnerOnly is the error returned when a caller other than the
	// deployment owner attempts an owner-only operation.
	ErrOwnerOnly = errors.New(ModuleName, 100, "delegator: owner only")

	// ErrUnauthorized is the error returned when a caller other than the
	// marketplace contract attempts a delegation operation.
	ErrUnauthorized = errors.New(ModuleName, 101, "delegator: unauthorized")

	// ErrInvalidPoxAddress is the error returned when a PoX reward address
	// is malformed.
	ErrInvalidPoxAddress = errors.New(ModuleName, 102, "delegator: invalid PoX address")

	// ErrDelegationFailed is the error returned by the stake-locking
	// mechanism when it refuses a delegation or revocation.
	ErrDelegationFailed = errors.New(ModuleName, 103, "delegator: delegation failed")
)

// Principal is an opaque Stacks identity, either a standard principal
// (e.g. ST1PQ...) or a contract principal (e.g. ST1PQ....marketplace).
type Principal string

// IsValid returns true iff the principal is non-empty.
func (p Principal) IsValid() bool {
	return p != ""
}

// String returns a string representation of the principal.
func (p Principal) String() string {
	return string(p)
}

// ContractPrincipal returns the contract principal of the named contract
// deployed by p.
func (p Principal) ContractPrincipal(name string) Principal {
	return Principal(fmt.Sprintf("%s.%s", p, name))
}

// PoxAddress is a PoX reward address.
type PoxAddress struct {
	// Version is the address version byte.
	Version uint8 `json:"version"`
	// HashBytes is the address hash.
	HashBytes []byte `json:"hashbytes"`
}

// IsValid returns true iff the address has the accepted version and hash
// length.
func (a PoxAddress) IsValid() bool {
	return a.Version == PoxAddressVersion && len(a.HashBytes) == PoxAddressHashSize
}

// String returns a string representation of the address.
func (a PoxAddress) String() string {
	return fmt.Sprintf("0x%02x:%s", a.Version, hex.EncodeToString(a.HashBytes))
}

// Clone returns a copy of the address that shares no memory with it.
func (a PoxAddress) Clone() PoxAddress {
	return PoxAddress{
		Version:   a.Version,
		HashBytes: append([]byte(nil), a.HashBytes...),
	}
}

// IsValidPoxAddress returns true iff addr is a structurally valid PoX
// reward address.
func IsValidPoxAddress(addr PoxAddress) bool {
	return addr.IsValid()
}

// CallContext is the execution context of a gateway call.
type CallContext struct {
	// Caller is the immediate invoker of the gateway.
	Caller Principal `json:"caller"`
	// Sender is the origin of the transaction. When empty the caller is
	// the origin.
	Sender Principal `json:"sender,omitempty"`
}

// Origin returns the principal the call originates from.
func (c CallContext) Origin() Principal {
	if c.Sender.IsValid() {
		return c.Sender
	}
	return c.Caller
}

// SetMarketplaceContractRequest is a SetMarketplaceContract request.
type SetMarketplaceContractRequest struct {
	Call     CallContext `json:"call"`
	Contract Principal   `json:"contract"`
}

// DelegateToPoxRequest is a DelegateToPox request.
type DelegateToPoxRequest struct {
	Call CallContext `json:"call"`

	// Amount is the amount of uSTX to delegate.
	Amount          uint64     `json:"amount"`
	PoxAddress      PoxAddress `json:"pox_address"`
	StartBurnHeight uint64     `json:"start_burn_height"`
	// LockPeriod is the number of reward cycles to lock for.
	LockPeriod uint64 `json:"lock_period"`
}

// RevokeDelegationRequest is a RevokeDelegation request.
type RevokeDelegationRequest struct {
	Call CallContext `json:"call"`

	// Amount is the amount of uSTX to revoke.
	Amount uint64 `json:"amount"`
}

// State is the gateway state.
type State struct {
	// Owner is the deployment owner. It never changes.
	Owner Principal `json:"owner"`
	// MarketplaceContract is the only principal allowed to delegate and
	// revoke through the gateway.
	MarketplaceContract Principal `json:"marketplace_contract"`
}

// Backend is a delegation gateway implementation.
type Backend interface {
	// Owner returns the deployment owner.
	Owner(ctx context.Context) (Principal, error)

	// MarketplaceContract returns the currently authorized marketplace
	// contract.
	MarketplaceContract(ctx context.Context) (Principal, error)

	// SetMarketplaceContract replaces the authorized marketplace contract
	// and returns the new value. Only the owner may call it.
	SetMarketplaceContract(ctx context.Context, req *SetMarketplaceContractRequest) (Principal, error)

	// DelegateToPox delegates STX through the stake-locking mechanism.
	// Only the marketplace contract may call it.
	DelegateToPox(ctx context.Context, req *DelegateToPoxRequest) error

	// RevokeDelegation revokes delegated STX through the stake-locking
	// mechanism. Only the marketplace contract may call it.
	RevokeDelegation(ctx context.Context, req *RevokeDelegationRequest) error

	// GetEvents returns the most recent gateway events, oldest first.
	GetEvents(ctx context.Context) ([]*Event, error)

	// WatchEvents returns a channel that produces a stream of gateway
	// events.
	WatchEvents(ctx context.Context) (<-chan *Event, pubsub.ClosableSubscription, error)

	// Cleanup cleans up the backend.
	Cleanup()
}

// Event is a gateway event.
type Event struct {
	// Sequence is the monotonically increasing event sequence number.
	Sequence uint64 `json:"sequence"`

	MarketplaceContractChanged *MarketplaceContractChangedEvent `json:"marketplace_contract_changed,omitempty"`
	Delegated                  *DelegatedEvent                  `json:"delegated,omitempty"`
	Revoked                    *RevokedEvent                    `json:"revoked,omitempty"`
}

// Kind returns a short name of the event type.
func (e *Event) Kind() string {
	switch {
	case e.MarketplaceContractChanged != nil:
		return "marketplace_contract_changed"
	case e.Delegated != nil:
		return "delegated"
	case e.Revoked != nil:
		return "revoked"
	default:
		return "unknown"
	}
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	ev := &Event{Sequence: e.Sequence}
	if e.MarketplaceContractChanged != nil {
		changed := *e.MarketplaceContractChanged
		ev.MarketplaceContractChanged = &changed
	}
	if e.Delegated != nil {
		delegated := *e.Delegated
		delegated.PoxAddress = e.Delegated.PoxAddress.Clone()
		ev.Delegated = &delegated
	}
	if e.Revoked != nil {
		revoked := *e.Revoked
		ev.Revoked = &revoked
	}
	return ev
}

// MarketplaceContractChangedEvent is the event emitted when the
// marketplace contract is replaced.
type MarketplaceContractChangedEvent struct {
	Previous Principal `json:"previous"`
	Current  Principal `json:"current"`
}

// DelegatedEvent is the event emitted after a successful delegation.
type DelegatedEvent struct {
	Caller          Principal  `json:"caller"`
	Amount          uint64     `json:"amount"`
	PoxAddress      PoxAddress `json:"pox_address"`
	StartBurnHeight uint64     `json:"start_burn_height"`
	LockPeriod      uint64     `json:"lock_period"`
}

// RevokedEvent is the event emitted after a successful revocation.
type RevokedEvent struct {
	Caller Principal `json:"caller"`
	Amount uint64    `json:"amount"`
}
