// Package pox defines the stake-locking mechanism the delegation gateway
// forwards to, and provides an in-memory ledger implementation of it.
package pox

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/delegation-marketplace/stx-delegator/common/errors"
	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/delegator/api"
)

const (
	// MinLockPeriod is the minimum number of reward cycles a delegation
	// can lock for.
	MinLockPeriod = 1
	// MaxLockPeriod is the maximum number of reward cycles a delegation
	// can lock for.
	MaxLockPeriod = 12

	// RewardCycleLength is the number of burn blocks in a reward cycle.
	RewardCycleLength = 2100

	btreeDegree = 16
)

// ErrNoDelegation is the error returned when a principal has no active
// delegation.
var ErrNoDelegation = errors.New(api.ModuleName+"/pox", 1, "pox: no active delegation")

// DelegateStx is a request to lock delegated STX.
type DelegateStx struct {
	// Delegator is the principal whose STX are delegated.
	Delegator api.Principal `json:"delegator"`

	Amount          uint64         `json:"amount"`
	PoxAddress      api.PoxAddress `json:"pox_address"`
	StartBurnHeight uint64         `json:"start_burn_height"`
	LockPeriod      uint64         `json:"lock_period"`
}

// RevokeDelegateStx is a request to revoke delegated STX.
type RevokeDelegateStx struct {
	Delegator api.Principal `json:"delegator"`
	Amount    uint64        `json:"amount"`
}

// Delegation is an active delegation.
type Delegation struct {
	Delegator       api.Principal  `json:"delegator"`
	Amount          uint64         `json:"amount"`
	PoxAddress      api.PoxAddress `json:"pox_address"`
	StartBurnHeight uint64         `json:"start_burn_height"`
	LockPeriod      uint64         `json:"lock_period"`
}

// UnlockBurnHeight returns the burn height at which the delegation
// unlocks given the reward cycle length in burn blocks.
func (d *Delegation) UnlockBurnHeight(cycleLength uint64) uint64 {
	return d.StartBurnHeight + d.LockPeriod*cycleLength
}

// Locker is the stake-locking mechanism.
//
// Refusals are reported as api.ErrDelegationFailed.
type Locker interface {
	// DelegateStx delegates STX to a PoX reward address.
	DelegateStx(ctx context.Context, req *DelegateStx) error

	// RevokeDelegateStx revokes previously delegated STX.
	RevokeDelegateStx(ctx context.Context, req *RevokeDelegateStx) error
}

// Ledger is an in-memory Locker that keeps PoX delegation bookkeeping.
type Ledger struct {
	sync.RWMutex

	logger *logging.Logger

	delegations *btree.BTree
}

type delegationItem struct {
	*Delegation
}

func (i delegationItem) Less(other btree.Item) bool {
	return i.Delegator < other.(delegationItem).Delegator
}

func keyItem(p api.Principal) delegationItem {
	return delegationItem{&Delegation{Delegator: p}}
}

// DelegateStx implements Locker.
func (l *Ledger) DelegateStx(ctx context.Context, req *DelegateStx) error {
	l.Lock()
	defer l.Unlock()

	switch {
	case !req.Delegator.IsValid():
		return errors.WithContext(api.ErrDelegationFailed, "missing delegator")
	case req.Amount == 0:
		return errors.WithContext(api.ErrDelegationFailed, "zero amount")
	case req.LockPeriod < MinLockPeriod || req.LockPeriod > MaxLockPeriod:
		return errors.WithContext(api.ErrDelegationFailed,
			fmt.Sprintf("lock period %d outside %d..%d", req.LockPeriod, MinLockPeriod, MaxLockPeriod),
		)
	}
	if l.delegations.Has(keyItem(req.Delegator)) {
		return errors.WithContext(api.ErrDelegationFailed, "already delegating")
	}

	d := &Delegation{
		Delegator:       req.Delegator,
		Amount:          req.Amount,
		PoxAddress:      req.PoxAddress.Clone(),
		StartBurnHeight: req.StartBurnHeight,
		LockPeriod:      req.LockPeriod,
	}
	l.delegations.ReplaceOrInsert(delegationItem{d})

	l.logger.Debug("delegated",
		"delegator", req.Delegator,
		"amount", req.Amount,
		"pox_address", req.PoxAddress,
		"unlock_burn_height", d.UnlockBurnHeight(RewardCycleLength),
	)

	return nil
}

// RevokeDelegateStx implements Locker.
func (l *Ledger) RevokeDelegateStx(ctx context.Context, req *RevokeDelegateStx) error {
	l.Lock()
	defer l.Unlock()

	item := l.delegations.Get(keyItem(req.Delegator))
	if item == nil {
		return errors.WithContext(api.ErrDelegationFailed, "no active delegation")
	}
	d := item.(delegationItem).Delegation
	if req.Amount > d.Amount {
		return errors.WithContext(api.ErrDelegationFailed,
			fmt.Sprintf("revoking %d exceeds delegated %d", req.Amount, d.Amount),
		)
	}

	d.Amount -= req.Amount
	if d.Amount == 0 {
		l.delegations.Delete(item)
	}

	l.logger.Debug("revoked",
		"delegator", req.Delegator,
		"amount", req.Amount,
		"remaining", d.Amount,
	)

	return nil
}

// Delegation returns the active delegation of the given principal.
func (l *Ledger) Delegation(ctx context.Context, delegator api.Principal) (*Delegation, error) {
	l.RLock()
	defer l.RUnlock()

	item := l.delegations.Get(keyItem(delegator))
	if item == nil {
		return nil, ErrNoDelegation
	}
	d := *item.(delegationItem).Delegation
	d.PoxAddress = d.PoxAddress.Clone()
	return &d, nil
}

// Delegations returns all active delegations ordered by delegator.
func (l *Ledger) Delegations(ctx context.Context) ([]*Delegation, error) {
	l.RLock()
	defer l.RUnlock()

	result := make([]*Delegation, 0, l.delegations.Len())
	l.delegations.Ascend(func(i btree.Item) bool {
		d := *i.(delegationItem).Delegation
		d.PoxAddress = d.PoxAddress.Clone()
		result = append(result, &d)
		return true
	})
	return result, nil
}

// NewLedger creates a new empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		logger:      logging.GetLogger("delegator/pox"),
		delegations: btree.New(btreeDegree),
	}
}
