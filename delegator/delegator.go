// Package delegator implements the STX delegation gateway.
//
// The gateway guards two operations of an external stake-locking
// mechanism. Delegating and revoking is only permitted to the configured
// marketplace contract, and only the deployment owner may replace that
// contract.
package delegator

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/delegation-marketplace/stx-delegator/common/errors"
	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/common/pubsub"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
	"github.com/delegation-marketplace/stx-delegator/delegator/pox"
	"github.com/delegation-marketplace/stx-delegator/delegator/state"
)

// DefaultEventHistorySize is the number of recent events kept by default.
const DefaultEventHistorySize = 128

const (
	resultOK    = "ok"
	resultError = "error"
)

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delegator_calls_total",
			Help: "Number of gateway calls by method and result.",
		},
		[]string{"method", "result"},
	)
	marketplaceChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delegator_marketplace_changes_total",
			Help: "Number of marketplace contract replacements.",
		},
	)

	gatewayCollectors = []prometheus.Collector{
		callsTotal,
		marketplaceChangesTotal,
	}

	metricsOnce sync.Once

	errorNames = map[error]string{
		api.ErrInvalidArgument:   "invalid_argument",
		api.ErrOwnerOnly:         "owner_only",
		api.ErrUnauthorized:      "unauthorized",
		api.ErrInvalidPoxAddress: "invalid_pox_address",
		api.ErrDelegationFailed:  "delegation_failed",
	}

	_ api.Backend = (*Gateway)(nil)
)

func resultLabel(err error) string {
	if err == nil {
		return resultOK
	}
	for e, name := range errorNames {
		if errors.Is(err, e) {
			return name
		}
	}
	return resultError
}

// Config is the gateway configuration.
type Config struct {
	// Principal is the gateway's own contract principal. It is the
	// delegator the stake-locking mechanism sees.
	Principal api.Principal

	// EventHistorySize is the number of recent events kept for GetEvents.
	EventHistorySize int
}

// Gateway is the delegation gateway.
type Gateway struct {
	sync.Mutex

	logger *logging.Logger

	cfg    Config
	store  state.Store
	locker pox.Locker

	notifier *pubsub.Broker
	history  *deque.Deque[*api.Event]
	lastSeq  uint64
}

func (g *Gateway) observe(method string, err error) {
	callsTotal.With(prometheus.Labels{
		"method": method,
		"result": resultLabel(err),
	}).Inc()
}

func (g *Gateway) emitLocked(ev *api.Event) {
	g.lastSeq++
	ev.Sequence = g.lastSeq

	if g.history.Len() >= g.cfg.EventHistorySize {
		g.history.PopFront()
	}
	g.history.PushBack(ev)
	g.notifier.Broadcast(ev.Clone())
}

// Owner implements api.Backend.
func (g *Gateway) Owner(ctx context.Context) (api.Principal, error) {
	st, err := g.store.State(ctx)
	if err != nil {
		return "", err
	}
	return st.Owner, nil
}

// MarketplaceContract implements api.Backend.
func (g *Gateway) MarketplaceContract(ctx context.Context) (api.Principal, error) {
	st, err := g.store.State(ctx)
	if err != nil {
		return "", err
	}
	return st.MarketplaceContract, nil
}

// SetMarketplaceContract implements api.Backend.
func (g *Gateway) SetMarketplaceContract(ctx context.Context, req *api.SetMarketplaceContractRequest) (contract api.Principal, err error) {
	defer func() { g.observe("SetMarketplaceContract", err) }()

	g.Lock()
	defer g.Unlock()

	st, err := g.store.State(ctx)
	if err != nil {
		return "", err
	}

	if origin := req.Call.Origin(); origin != st.Owner {
		g.logger.Debug("set marketplace contract: caller is not the owner",
			"origin", origin,
		)
		return "", api.ErrOwnerOnly
	}
	if !req.Contract.IsValid() {
		return "", errors.WithContext(api.ErrInvalidArgument, "empty marketplace contract")
	}

	if err = g.store.SetMarketplaceContract(ctx, req.Contract); err != nil {
		return "", fmt.Errorf("delegator: failed to store marketplace contract: %w", err)
	}
	marketplaceChangesTotal.Inc()

	g.logger.Info("marketplace contract changed",
		"previous", st.MarketplaceContract,
		"current", req.Contract,
	)
	g.emitLocked(&api.Event{
		MarketplaceContractChanged: &api.MarketplaceContractChangedEvent{
			Previous: st.MarketplaceContract,
			Current:  req.Contract,
		},
	})

	return req.Contract, nil
}

// authorizeMarketplaceLocked checks that the immediate caller is the
// marketplace contract.
func (g *Gateway) authorizeMarketplaceLocked(ctx context.Context, method string, call api.CallContext) error {
	st, err := g.store.State(ctx)
	if err != nil {
		return err
	}
	if call.Caller != st.MarketplaceContract {
		g.logger.Debug(method+": caller is not the marketplace contract",
			"caller", call.Caller,
		)
		return api.ErrUnauthorized
	}
	return nil
}

// DelegateToPox implements api.Backend.
func (g *Gateway) DelegateToPox(ctx context.Context, req *api.DelegateToPoxRequest) (err error) {
	defer func() { g.observe("DelegateToPox", err) }()

	g.Lock()
	defer g.Unlock()

	if err = g.authorizeMarketplaceLocked(ctx, "delegate to pox", req.Call); err != nil {
		return err
	}
	if !req.PoxAddress.IsValid() {
		g.logger.Debug("delegate to pox: invalid PoX address",
			"pox_address", req.PoxAddress,
		)
		return api.ErrInvalidPoxAddress
	}

	if err = g.locker.DelegateStx(ctx, &pox.DelegateStx{
		Delegator:       g.cfg.Principal,
		Amount:          req.Amount,
		PoxAddress:      req.PoxAddress,
		StartBurnHeight: req.StartBurnHeight,
		LockPeriod:      req.LockPeriod,
	}); err != nil {
		g.logger.Debug("delegate to pox: stake-locking refused",
			"err", err,
		)
		return err
	}

	g.logger.Info("delegated to pox",
		"amount", req.Amount,
		"pox_address", req.PoxAddress,
		"start_burn_height", req.StartBurnHeight,
		"lock_period", req.LockPeriod,
	)
	g.emitLocked(&api.Event{
		Delegated: &api.DelegatedEvent{
			Caller:          req.Call.Caller,
			Amount:          req.Amount,
			PoxAddress:      req.PoxAddress.Clone(),
			StartBurnHeight: req.StartBurnHeight,
			LockPeriod:      req.LockPeriod,
		},
	})

	return nil
}

// RevokeDelegation implements api.Backend.
func (g *Gateway) RevokeDelegation(ctx context.Context, req *api.RevokeDelegationRequest) (err error) {
	defer func() { g.observe("RevokeDelegation", err) }()

	g.Lock()
	defer g.Unlock()

	if err = g.authorizeMarketplaceLocked(ctx, "revoke delegation", req.Call); err != nil {
		return err
	}

	if err = g.locker.RevokeDelegateStx(ctx, &pox.RevokeDelegateStx{
		Delegator: g.cfg.Principal,
		Amount:    req.Amount,
	}); err != nil {
		g.logger.Debug("revoke delegation: stake-locking refused",
			"err", err,
		)
		return err
	}

	g.logger.Info("revoked delegation",
		"amount", req.Amount,
	)
	g.emitLocked(&api.Event{
		Revoked: &api.RevokedEvent{
			Caller: req.Call.Caller,
			Amount: req.Amount,
		},
	})

	return nil
}

// GetEvents implements api.Backend.
func (g *Gateway) GetEvents(ctx context.Context) ([]*api.Event, error) {
	g.Lock()
	defer g.Unlock()

	events := make([]*api.Event, 0, g.history.Len())
	for i := 0; i < g.history.Len(); i++ {
		events = append(events, g.history.At(i).Clone())
	}
	return events, nil
}

// WatchEvents implements api.Backend.
func (g *Gateway) WatchEvents(ctx context.Context) (<-chan *api.Event, pubsub.ClosableSubscription, error) {
	typedCh := make(chan *api.Event)
	sub := g.notifier.Subscribe()
	sub.Unwrap(typedCh)

	return typedCh, sub, nil
}

// Cleanup implements api.Backend.
func (g *Gateway) Cleanup() {
	g.store.Close()
}

// New creates a new delegation gateway.
func New(cfg Config, store state.Store, locker pox.Locker) (*Gateway, error) {
	if !cfg.Principal.IsValid() {
		return nil, fmt.Errorf("delegator: missing gateway principal")
	}
	if cfg.EventHistorySize <= 0 {
		cfg.EventHistorySize = DefaultEventHistorySize
	}

	metricsOnce.Do(func() {
		prometheus.MustRegister(gatewayCollectors...)
	})

	return &Gateway{
		logger:   logging.GetLogger("delegator"),
		cfg:      cfg,
		store:    store,
		locker:   locker,
		notifier: pubsub.NewBroker(false),
		history:  deque.New[*api.Event](0, cfg.EventHistorySize),
	}, nil
}
