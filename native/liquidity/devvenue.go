package liquidity

import (
	"errors"
	"fmt"
	"math/big"

	"stashbox/crypto"
)

var (
	errVenueLocked        = errors.New("liquidity venue: manager is locked")
	errVenueUnlocked      = errors.New("liquidity venue: already unlocked")
	errVenueNoHandler     = errors.New("liquidity venue: unlock handler not configured")
	errVenueLiquidity     = errors.New("liquidity venue: position liquidity insufficient")
	errVenueNothingOwed   = errors.New("liquidity venue: no negative delta to sync")
	errVenueNoSync        = errors.New("liquidity venue: settle without sync")
	errVenueTakeExceeds   = errors.New("liquidity venue: take exceeds amount owed")
	ErrUnresolvedDelta    = errors.New("liquidity venue: unresolved delta at end of unlock")
	errVenueTakeNegative  = errors.New("liquidity venue: take amount must be positive")
	errVenueTakeRecipient = errors.New("liquidity venue: take recipient not configured")
)

// UnlockHandler is the callback surface a venue re-enters during Unlock.
type UnlockHandler interface {
	HandleUnlock(caller crypto.Address, payload []byte) ([]byte, error)
}

type rangeKey struct {
	lower int32
	upper int32
}

// DevVenue is an in-process liquidity venue used by stashd's dev mode and the
// integration tests. It enforces the unlock discipline of a real flash
// accounting venue: position modifications are only legal inside an unlock,
// every signed delta must be resolved before Unlock returns, and fee accrual
// is injected through AccrueFees to simulate yield events.
type DevVenue struct {
	addr    crypto.Address
	handler UnlockHandler

	unlocked    bool
	positions   map[rangeKey]*big.Int
	accruedFees *big.Int

	outstanding map[Asset]*big.Int
	synced      map[Asset]bool
}

// NewDevVenue creates a venue bound to its account address. The unlock handler
// is wired afterwards because the settler and venue reference each other.
func NewDevVenue(addr crypto.Address) *DevVenue {
	return &DevVenue{
		addr:        addr.Clone(),
		positions:   make(map[rangeKey]*big.Int),
		accruedFees: big.NewInt(0),
		outstanding: make(map[Asset]*big.Int),
		synced:      make(map[Asset]bool),
	}
}

// SetUnlockHandler wires the callback target invoked during Unlock.
func (v *DevVenue) SetUnlockHandler(handler UnlockHandler) { v.handler = handler }

// Address returns the venue's account address.
func (v *DevVenue) Address() crypto.Address { return v.addr.Clone() }

// AccrueFees simulates swap fees earned by the deployed position. The amount
// is owed to the position owner and surfaces as a positive delta on the next
// position modification.
func (v *DevVenue) AccrueFees(amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	v.accruedFees = new(big.Int).Add(v.accruedFees, amount)
}

// Liquidity reports the liquidity the venue tracks for a range.
func (v *DevVenue) Liquidity(lower, upper int32) *big.Int {
	liq, ok := v.positions[rangeKey{lower: lower, upper: upper}]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(liq)
}

// Unlock grants a temporary execution context and synchronously re-enters the
// configured handler. It fails when any delta produced inside the context is
// left unresolved.
func (v *DevVenue) Unlock(payload []byte) ([]byte, error) {
	if v.handler == nil {
		return nil, errVenueNoHandler
	}
	if v.unlocked {
		return nil, errVenueUnlocked
	}
	v.unlocked = true
	defer func() {
		v.unlocked = false
		v.outstanding = make(map[Asset]*big.Int)
		v.synced = make(map[Asset]bool)
	}()

	result, err := v.handler.HandleUnlock(v.addr, payload)
	if err != nil {
		return nil, err
	}
	for asset, delta := range v.outstanding {
		if delta != nil && delta.Sign() != 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrUnresolvedDelta, asset, delta)
		}
	}
	return result, nil
}

// ModifyPosition applies a liquidity change and reports the resulting signed
// obligations. Accrued fees are flushed into the deposit-asset delta of the
// first modification inside the unlock.
func (v *DevVenue) ModifyPosition(params ModifyParams) (Delta, error) {
	if !v.unlocked {
		return Delta{}, errVenueLocked
	}
	key := rangeKey{lower: params.LowerBound, upper: params.UpperBound}
	liq, ok := v.positions[key]
	if !ok {
		liq = big.NewInt(0)
	}

	change := params.LiquidityDelta
	if change == nil {
		change = big.NewInt(0)
	}
	depositDelta := new(big.Int)
	switch {
	case change.Sign() > 0:
		// Caller owes the venue the tokens backing the new liquidity.
		depositDelta.Neg(change)
	case change.Sign() < 0:
		removed := new(big.Int).Neg(change)
		if liq.Cmp(removed) < 0 {
			return Delta{}, errVenueLiquidity
		}
		depositDelta.Set(removed)
	}
	if v.accruedFees.Sign() > 0 {
		depositDelta.Add(depositDelta, v.accruedFees)
		v.accruedFees = big.NewInt(0)
	}

	v.positions[key] = new(big.Int).Add(liq, change)

	v.addOutstanding(AssetDeposit, depositDelta)
	return Delta{Deposit: new(big.Int).Set(depositDelta), Quote: big.NewInt(0)}, nil
}

func (v *DevVenue) addOutstanding(asset Asset, delta *big.Int) {
	if delta == nil || delta.Sign() == 0 {
		return
	}
	prev, ok := v.outstanding[asset]
	if !ok {
		prev = big.NewInt(0)
	}
	v.outstanding[asset] = new(big.Int).Add(prev, delta)
}

// Sync registers the caller's intent to pay an owed (negative) delta.
func (v *DevVenue) Sync(asset Asset) error {
	if !v.unlocked {
		return errVenueLocked
	}
	owed, ok := v.outstanding[asset]
	if !ok || owed.Sign() >= 0 {
		return errVenueNothingOwed
	}
	v.synced[asset] = true
	return nil
}

// Settle finalizes the payment for the most recently synced asset and returns
// the settled amount.
func (v *DevVenue) Settle() (*big.Int, error) {
	if !v.unlocked {
		return nil, errVenueLocked
	}
	for asset, wasSynced := range v.synced {
		if !wasSynced {
			continue
		}
		owed := v.outstanding[asset]
		if owed == nil || owed.Sign() >= 0 {
			continue
		}
		settled := new(big.Int).Neg(owed)
		v.outstanding[asset] = big.NewInt(0)
		v.synced[asset] = false
		return settled, nil
	}
	return nil, errVenueNoSync
}

// Take emits amount of an owed (positive) delta to the recipient.
func (v *DevVenue) Take(asset Asset, recipient crypto.Address, amount *big.Int) error {
	if !v.unlocked {
		return errVenueLocked
	}
	if amount == nil || amount.Sign() <= 0 {
		return errVenueTakeNegative
	}
	if recipient.IsZero() {
		return errVenueTakeRecipient
	}
	owed, ok := v.outstanding[asset]
	if !ok || owed.Sign() <= 0 || owed.Cmp(amount) < 0 {
		return errVenueTakeExceeds
	}
	v.outstanding[asset] = new(big.Int).Sub(owed, amount)
	return nil
}
