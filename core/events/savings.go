package events

import (
	"math/big"

	"stashbox/core/types"
	"stashbox/crypto"
)

const (
	TypeSavingsJarCreated       = "savings.jar_created"
	TypeSavingsDeposited        = "savings.deposited"
	TypeSavingsWithdrawn        = "savings.withdrawn"
	TypeSavingsYieldClaimed     = "savings.yield_claimed"
	TypeSavingsEmergencyExit    = "savings.emergency_exit"
	TypeSavingsRebalanced       = "savings.rebalanced"
	TypeSavingsYieldDistributed = "savings.yield_distributed"
)

// SavingsJarCreated is emitted when an owner opens a new jar.
type SavingsJarCreated struct {
	Owner        crypto.Address
	ID           uint64
	Name         string
	TargetAmount *big.Int
}

func (SavingsJarCreated) EventType() string { return TypeSavingsJarCreated }

func (e SavingsJarCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsJarCreated,
		Attributes: map[string]string{
			"owner":  formatAddress(e.Owner),
			"id":     uintToString(e.ID),
			"name":   e.Name,
			"target": formatAmount(e.TargetAmount),
		},
	}
}

// SavingsDeposited is emitted once per successful deposit.
type SavingsDeposited struct {
	Owner        crypto.Address
	ID           uint64
	Amount       *big.Int
	SharesMinted *big.Int
}

func (SavingsDeposited) EventType() string { return TypeSavingsDeposited }

func (e SavingsDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsDeposited,
		Attributes: map[string]string{
			"owner":  formatAddress(e.Owner),
			"id":     uintToString(e.ID),
			"amount": formatAmount(e.Amount),
			"shares": formatAmount(e.SharesMinted),
		},
	}
}

// SavingsWithdrawn is emitted once per successful principal withdrawal.
type SavingsWithdrawn struct {
	Owner        crypto.Address
	ID           uint64
	Amount       *big.Int
	SharesBurned *big.Int
	YieldKept    *big.Int
}

func (SavingsWithdrawn) EventType() string { return TypeSavingsWithdrawn }

func (e SavingsWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsWithdrawn,
		Attributes: map[string]string{
			"owner":     formatAddress(e.Owner),
			"id":        uintToString(e.ID),
			"amount":    formatAmount(e.Amount),
			"shares":    formatAmount(e.SharesBurned),
			"yieldKept": formatAmount(e.YieldKept),
		},
	}
}

// SavingsYieldClaimed is emitted when accrued yield is paid out to the owner.
type SavingsYieldClaimed struct {
	Owner  crypto.Address
	ID     uint64
	Amount *big.Int
}

func (SavingsYieldClaimed) EventType() string { return TypeSavingsYieldClaimed }

func (e SavingsYieldClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsYieldClaimed,
		Attributes: map[string]string{
			"owner":  formatAddress(e.Owner),
			"id":     uintToString(e.ID),
			"amount": formatAmount(e.Amount),
		},
	}
}

// SavingsEmergencyExit is emitted when a jar is fully drained and deactivated.
type SavingsEmergencyExit struct {
	Owner     crypto.Address
	ID        uint64
	Principal *big.Int
	Yield     *big.Int
}

func (SavingsEmergencyExit) EventType() string { return TypeSavingsEmergencyExit }

func (e SavingsEmergencyExit) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsEmergencyExit,
		Attributes: map[string]string{
			"owner":     formatAddress(e.Owner),
			"id":        uintToString(e.ID),
			"principal": formatAmount(e.Principal),
			"yield":     formatAmount(e.Yield),
		},
	}
}

// SavingsRebalanced is emitted when the admin moves the venue position range.
type SavingsRebalanced struct {
	LowerBound int32
	UpperBound int32
	Liquidity  *big.Int
}

func (SavingsRebalanced) EventType() string { return TypeSavingsRebalanced }

func (e SavingsRebalanced) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsRebalanced,
		Attributes: map[string]string{
			"lowerBound": intToString(int64(e.LowerBound)),
			"upperBound": intToString(int64(e.UpperBound)),
			"liquidity":  formatAmount(e.Liquidity),
		},
	}
}

// SavingsYieldDistributed is emitted whenever collected venue fees are folded
// into the per-share accumulator.
type SavingsYieldDistributed struct {
	Amount           *big.Int
	AccYieldPerShare *big.Int
}

func (SavingsYieldDistributed) EventType() string { return TypeSavingsYieldDistributed }

func (e SavingsYieldDistributed) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsYieldDistributed,
		Attributes: map[string]string{
			"amount":           formatAmount(e.Amount),
			"accYieldPerShare": formatAmount(e.AccYieldPerShare),
		},
	}
}
