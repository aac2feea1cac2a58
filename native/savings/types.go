package savings

import (
	"math/big"

	"stashbox/crypto"
)

// Pool captures the global accounting state shared by every jar. Amounts are
// wei-scale big integers to match on-chain precision.
type Pool struct {
	// TotalShares is the sum of shares over all active jars.
	TotalShares *big.Int
	// TotalPrincipal is the sum of net deposited principal over all active
	// jars, excluding yield.
	TotalPrincipal *big.Int
	// AccYieldPerShare is the cumulative yield-per-share accumulator, scaled
	// by 1e18. It never decreases.
	AccYieldPerShare *big.Int
	// TotalYieldCollected is the cumulative yield ever pulled from the venue,
	// whether claimed or not.
	TotalYieldCollected *big.Int
	// UndistributedYield holds yield collected while no shares existed. It is
	// folded into the accumulator on the next distribution instead of being
	// lost.
	UndistributedYield *big.Int
	// Admin is the only identity permitted to rebalance the venue position.
	Admin crypto.Address
}

// Normalize replaces nil pointers with zero values.
func (p *Pool) Normalize() *Pool {
	if p == nil {
		return nil
	}
	if p.TotalShares == nil {
		p.TotalShares = big.NewInt(0)
	}
	if p.TotalPrincipal == nil {
		p.TotalPrincipal = big.NewInt(0)
	}
	if p.AccYieldPerShare == nil {
		p.AccYieldPerShare = big.NewInt(0)
	}
	if p.TotalYieldCollected == nil {
		p.TotalYieldCollected = big.NewInt(0)
	}
	if p.UndistributedYield == nil {
		p.UndistributedYield = big.NewInt(0)
	}
	return p
}

// Clone returns a deep copy to avoid callers mutating shared pointers.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := &Pool{Admin: p.Admin.Clone()}
	if p.TotalShares != nil {
		clone.TotalShares = new(big.Int).Set(p.TotalShares)
	}
	if p.TotalPrincipal != nil {
		clone.TotalPrincipal = new(big.Int).Set(p.TotalPrincipal)
	}
	if p.AccYieldPerShare != nil {
		clone.AccYieldPerShare = new(big.Int).Set(p.AccYieldPerShare)
	}
	if p.TotalYieldCollected != nil {
		clone.TotalYieldCollected = new(big.Int).Set(p.TotalYieldCollected)
	}
	if p.UndistributedYield != nil {
		clone.UndistributedYield = new(big.Int).Set(p.UndistributedYield)
	}
	return clone.Normalize()
}

// Jar is one owner's sub-account against the shared pool. Jars are never
// deleted; an emergency exit deactivates the jar and zeroes every numeric
// field so historical IDs stay unique.
type Jar struct {
	// Owner and ID form the jar identity. IDs are assigned from a per-owner
	// monotone counter and never reused.
	Owner crypto.Address
	ID    uint64
	// Name and TargetAmount are display metadata with no accounting effect.
	Name         string
	TargetAmount *big.Int
	// Shares is this jar's proportional claim on the pool.
	Shares *big.Int
	// PrincipalDeposited is cumulative net principal: deposits minus
	// withdrawals, excluding yield.
	PrincipalDeposited *big.Int
	// YieldDebt snapshots shares * AccYieldPerShare / scale at the last
	// interaction and is used to compute newly earned yield since then.
	YieldDebt *big.Int
	// PendingYieldSnapshot preserves earned yield across share-count changes
	// so a debt reset cannot discard it.
	PendingYieldSnapshot *big.Int
	// Active flips to false only on emergency exit.
	Active bool
}

// Normalize replaces nil pointers with zero values.
func (j *Jar) Normalize() *Jar {
	if j == nil {
		return nil
	}
	if j.TargetAmount == nil {
		j.TargetAmount = big.NewInt(0)
	}
	if j.Shares == nil {
		j.Shares = big.NewInt(0)
	}
	if j.PrincipalDeposited == nil {
		j.PrincipalDeposited = big.NewInt(0)
	}
	if j.YieldDebt == nil {
		j.YieldDebt = big.NewInt(0)
	}
	if j.PendingYieldSnapshot == nil {
		j.PendingYieldSnapshot = big.NewInt(0)
	}
	return j
}

// Clone returns a deep copy to avoid callers mutating shared pointers.
func (j *Jar) Clone() *Jar {
	if j == nil {
		return nil
	}
	clone := &Jar{
		Owner:  j.Owner.Clone(),
		ID:     j.ID,
		Name:   j.Name,
		Active: j.Active,
	}
	if j.TargetAmount != nil {
		clone.TargetAmount = new(big.Int).Set(j.TargetAmount)
	}
	if j.Shares != nil {
		clone.Shares = new(big.Int).Set(j.Shares)
	}
	if j.PrincipalDeposited != nil {
		clone.PrincipalDeposited = new(big.Int).Set(j.PrincipalDeposited)
	}
	if j.YieldDebt != nil {
		clone.YieldDebt = new(big.Int).Set(j.YieldDebt)
	}
	if j.PendingYieldSnapshot != nil {
		clone.PendingYieldSnapshot = new(big.Int).Set(j.PendingYieldSnapshot)
	}
	return clone.Normalize()
}

// CallContext carries the authenticated caller identity into an operation. It
// is the capability checked against a jar's owner (or the pool admin) before
// any mutation.
type CallContext struct {
	Caller crypto.Address
}
