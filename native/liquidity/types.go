package liquidity

import (
	"math/big"

	"stashbox/crypto"
)

// Asset identifies one side of the venue's trading pair. The pool deposits and
// withdraws AssetDeposit only; AssetQuote exists because the venue reports a
// signed obligation for both sides of the pair.
type Asset uint8

const (
	AssetDeposit Asset = iota
	AssetQuote
)

func (a Asset) String() string {
	switch a {
	case AssetDeposit:
		return "deposit"
	case AssetQuote:
		return "quote"
	}
	return "unknown"
}

// Delta carries the venue's signed net obligation per asset after a position
// modification. A negative value means this system owes the venue tokens; a
// positive value means the venue owes this system. The convention is fixed by
// the venue and is the opposite of naive balance-sheet intuition.
type Delta struct {
	Deposit *big.Int
	Quote   *big.Int
}

// Normalize replaces nil components with zero values.
func (d *Delta) Normalize() {
	if d.Deposit == nil {
		d.Deposit = big.NewInt(0)
	}
	if d.Quote == nil {
		d.Quote = big.NewInt(0)
	}
}

// Position describes the venue-side liquidity range currently deployed by the
// pool. Liquidity is denominated in deposit-asset units.
type Position struct {
	LowerBound int32    `json:"lowerBound"`
	UpperBound int32    `json:"upperBound"`
	Liquidity  *big.Int `json:"liquidity"`
}

// Normalize replaces a nil liquidity pointer with zero.
func (p *Position) Normalize() *Position {
	if p == nil {
		return &Position{Liquidity: big.NewInt(0)}
	}
	if p.Liquidity == nil {
		p.Liquidity = big.NewInt(0)
	}
	return p
}

// Clone returns a deep copy so callers cannot mutate shared pointers.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Liquidity != nil {
		clone.Liquidity = new(big.Int).Set(p.Liquidity)
	}
	return &clone
}

// ModifyParams instructs the venue to change the liquidity deployed at a
// range. LiquidityDelta is signed: positive adds liquidity, negative removes
// it, zero only sweeps accrued fees.
type ModifyParams struct {
	LowerBound     int32
	UpperBound     int32
	LiquidityDelta *big.Int
}

// Venue is the external two-sided liquidity system the pool deploys capital
// into. Any liquidity-modifying call must happen inside an Unlock execution
// context; the venue synchronously re-enters the settler through its unlock
// callback before Unlock returns.
type Venue interface {
	Unlock(payload []byte) ([]byte, error)
	ModifyPosition(params ModifyParams) (Delta, error)
	Sync(asset Asset) error
	Settle() (*big.Int, error)
	Take(asset Asset, recipient crypto.Address, amount *big.Int) error
}

// TokenLedger moves fungible balances between accounts. Implementations stage
// transfers inside the surrounding operation so a failed settlement rolls the
// whole operation back.
type TokenLedger interface {
	Transfer(asset Asset, from, to crypto.Address, amount *big.Int) error
}
