// Package state implements the delegation gateway state storage backends.
package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/common/persistent"
	"github.com/delegation-marketplace/stx-delegator/common/version"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
)

const (
	// BackendMemory is the name of the in-memory backend.
	BackendMemory = "memory"
	// BackendBadger is the name of the BadgerDB backed backend.
	BackendBadger = "badger"

	serviceStoreName = "delegator"
)

var stateKey = []byte("state")

// Store is a gateway state store.
type Store interface {
	// State returns a copy of the current gateway state.
	State(ctx context.Context) (*api.State, error)

	// SetMarketplaceContract replaces the marketplace contract.
	SetMarketplaceContract(ctx context.Context, contract api.Principal) error

	// Close releases the store's resources.
	Close()
}

func validateInitial(initial *api.State) error {
	if !initial.Owner.IsValid() {
		return fmt.Errorf("state: missing owner")
	}
	if !initial.MarketplaceContract.IsValid() {
		return fmt.Errorf("state: missing marketplace contract")
	}
	return nil
}

type memoryStore struct {
	sync.RWMutex

	state api.State
}

func (s *memoryStore) State(ctx context.Context) (*api.State, error) {
	s.RLock()
	defer s.RUnlock()

	st := s.state
	return &st, nil
}

func (s *memoryStore) SetMarketplaceContract(ctx context.Context, contract api.Principal) error {
	s.Lock()
	defer s.Unlock()

	s.state.MarketplaceContract = contract
	return nil
}

func (s *memoryStore) Close() {
}

// NewMemoryStore creates a new in-memory state store.
func NewMemoryStore(initial *api.State) (Store, error) {
	if err := validateInitial(initial); err != nil {
		return nil, err
	}
	return &memoryStore{state: *initial}, nil
}

type storedState struct {
	Version uint64    `json:"version"`
	State   api.State `json:"state"`
}

type badgerStore struct {
	sync.Mutex

	logger *logging.Logger

	store *persistent.ServiceStore
	state api.State
}

func (s *badgerStore) State(ctx context.Context) (*api.State, error) {
	s.Lock()
	defer s.Unlock()

	st := s.state
	return &st, nil
}

func (s *badgerStore) SetMarketplaceContract(ctx context.Context, contract api.Principal) error {
	s.Lock()
	defer s.Unlock()

	st := s.state
	st.MarketplaceContract = contract
	if err := s.putLocked(&st); err != nil {
		return err
	}
	s.state = st
	return nil
}

func (s *badgerStore) putLocked(st *api.State) error {
	err := s.store.PutCBOR(stateKey, &storedState{
		Version: version.GatewayProtocol.ToU64(),
		State:   *st,
	})
	if err != nil {
		return fmt.Errorf("state: failed to persist state: %w", err)
	}
	return nil
}

func (s *badgerStore) Close() {
}

// NewBadgerStore creates a new state store persisted in the given common
// store.
//
// On first use the store is initialized from initial. Afterwards the
// persisted owner must match the initial owner and the persisted
// marketplace contract takes precedence over the initial one.
func NewBadgerStore(commonStore *persistent.CommonStore, initial *api.State) (Store, error) {
	if err := validateInitial(initial); err != nil {
		return nil, err
	}

	svcStore, err := commonStore.GetServiceStore(serviceStoreName)
	if err != nil {
		return nil, err
	}

	s := &badgerStore{
		logger: logging.GetLogger("delegator/state"),
		store:  svcStore,
	}

	var stored storedState
	switch err = svcStore.GetCBOR(stateKey, &stored); err {
	case nil:
		storedVersion := version.FromU64(stored.Version)
		if storedVersion.MajorMinor() != version.GatewayProtocol.MajorMinor() {
			return nil, fmt.Errorf("state: incompatible state version %s (expected %s)",
				storedVersion, version.GatewayProtocol,
			)
		}
		if stored.State.Owner != initial.Owner {
			return nil, fmt.Errorf("state: owner mismatch (stored: %s, configured: %s)",
				stored.State.Owner, initial.Owner,
			)
		}
		s.state = stored.State
		if s.state.MarketplaceContract != initial.MarketplaceContract {
			s.logger.Info("using persisted marketplace contract",
				"marketplace_contract", s.state.MarketplaceContract,
				"configured", initial.MarketplaceContract,
			)
		}
	case persistent.ErrNotFound:
		s.state = *initial
		if err = s.putLocked(&s.state); err != nil {
			return nil, err
		}
		s.logger.Info("initialized gateway state",
			"owner", s.state.Owner,
			"marketplace_contract", s.state.MarketplaceContract,
		)
	default:
		return nil, fmt.Errorf("state: failed to load state: %w", err)
	}

	return s, nil
}
