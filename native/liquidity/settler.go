package liquidity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"stashbox/crypto"
)

var (
	errNilVenue           = errors.New("liquidity settler: venue not configured")
	errZeroVenueAddress   = errors.New("liquidity settler: venue address not configured")
	errZeroModuleAddress  = errors.New("liquidity settler: module address not configured")
	errInvalidAmount      = errors.New("liquidity settler: amount must be positive")
	errInvalidBounds      = errors.New("liquidity settler: lower bound must be below upper bound")
	ErrExceedsLiquidity   = errors.New("liquidity settler: removal exceeds tracked liquidity")
	ErrNotVenue           = errors.New("liquidity settler: unlock callback caller is not the venue")
	ErrNoUnlockInFlight   = errors.New("liquidity settler: unlock callback without an unlock in flight")
	ErrNestedUnlock       = errors.New("liquidity settler: nested unlock rejected")
	errPayloadMismatch    = errors.New("liquidity settler: unlock payload does not match the request in flight")
	errMalformedResult    = errors.New("liquidity settler: malformed unlock result")
	errUnknownAction      = errors.New("liquidity settler: unknown unlock action")
	errTransferredNothing = errors.New("liquidity settler: venue settled zero against an owed delta")
)

const (
	actionAdd uint8 = iota + 1
	actionRemove
	actionCollect
	actionRebalance
)

type unlockRequest struct {
	Action   uint8    `json:"action"`
	Amount   *big.Int `json:"amount,omitempty"`
	NewLower int32    `json:"newLower,omitempty"`
	NewUpper int32    `json:"newUpper,omitempty"`
}

type unlockResult struct {
	Collected *big.Int `json:"collected,omitempty"`
}

// opContext carries the ledger and position of the operation currently holding
// the unlock. It exists only between Unlock being issued and returning.
type opContext struct {
	ledger   TokenLedger
	position *Position
	request  unlockRequest
	payload  []byte
}

// Settler drives the flash-accounting handshake with the venue. It owns no
// ledger state of its own: callers pass the staged token ledger and position
// for the current operation, so an aborted operation discards every settlement
// side effect along with the ledger mutation that initiated it.
type Settler struct {
	venue      Venue
	venueAddr  crypto.Address
	moduleAddr crypto.Address

	current  *opContext
	entered  bool
	handling bool
}

// NewSettler wires the settler to the venue and the two account identities it
// settles between. All three dependencies are required.
func NewSettler(venue Venue, venueAddr, moduleAddr crypto.Address) (*Settler, error) {
	if venue == nil {
		return nil, errNilVenue
	}
	if venueAddr.IsZero() {
		return nil, errZeroVenueAddress
	}
	if moduleAddr.IsZero() {
		return nil, errZeroModuleAddress
	}
	return &Settler{
		venue:      venue,
		venueAddr:  venueAddr.Clone(),
		moduleAddr: moduleAddr.Clone(),
	}, nil
}

// AddLiquidity deploys amount deposit-asset units at the position's current
// range. The position liquidity counter is only advanced after the venue
// confirms the whole handshake.
func (s *Settler) AddLiquidity(ledger TokenLedger, pos *Position, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	pos = pos.Normalize()
	_, err := s.runUnlock(ledger, pos, unlockRequest{Action: actionAdd, Amount: new(big.Int).Set(amount)})
	if err != nil {
		return err
	}
	pos.Liquidity = new(big.Int).Add(pos.Liquidity, amount)
	return nil
}

// RemoveLiquidity withdraws amount deposit-asset units from the position's
// current range back into the module account.
func (s *Settler) RemoveLiquidity(ledger TokenLedger, pos *Position, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	pos = pos.Normalize()
	if pos.Liquidity.Cmp(amount) < 0 {
		return ErrExceedsLiquidity
	}
	_, err := s.runUnlock(ledger, pos, unlockRequest{Action: actionRemove, Amount: new(big.Int).Set(amount)})
	if err != nil {
		return err
	}
	pos.Liquidity = new(big.Int).Sub(pos.Liquidity, amount)
	return nil
}

// Collect sweeps accrued fees from the position without changing its
// liquidity and returns the deposit-asset amount received.
func (s *Settler) Collect(ledger TokenLedger, pos *Position) (*big.Int, error) {
	pos = pos.Normalize()
	res, err := s.runUnlock(ledger, pos, unlockRequest{Action: actionCollect})
	if err != nil {
		return nil, err
	}
	if res.Collected == nil {
		return big.NewInt(0), nil
	}
	return res.Collected, nil
}

// Rebalance withdraws the full position at its current range and redeploys the
// same liquidity at [newLower, newUpper). Both modifications happen inside a
// single unlock so the move is atomic at the venue.
func (s *Settler) Rebalance(ledger TokenLedger, pos *Position, newLower, newUpper int32) error {
	if newLower >= newUpper {
		return errInvalidBounds
	}
	pos = pos.Normalize()
	if pos.Liquidity.Sign() == 0 {
		pos.LowerBound = newLower
		pos.UpperBound = newUpper
		return nil
	}
	_, err := s.runUnlock(ledger, pos, unlockRequest{Action: actionRebalance, NewLower: newLower, NewUpper: newUpper})
	if err != nil {
		return err
	}
	pos.LowerBound = newLower
	pos.UpperBound = newUpper
	return nil
}

func (s *Settler) runUnlock(ledger TokenLedger, pos *Position, req unlockRequest) (*unlockResult, error) {
	if s == nil || s.venue == nil {
		return nil, errNilVenue
	}
	if s.current != nil {
		return nil, ErrNestedUnlock
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("liquidity settler: encode unlock payload: %w", err)
	}
	s.current = &opContext{ledger: ledger, position: pos, request: req, payload: payload}
	defer func() {
		s.current = nil
		s.entered = false
	}()

	raw, err := s.venue.Unlock(payload)
	if err != nil {
		return nil, err
	}
	res := &unlockResult{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, res); err != nil {
			return nil, errMalformedResult
		}
	}
	return res, nil
}

// HandleUnlock is the single callback entry point the venue re-enters while
// executing Unlock. It is accepted only from the venue's own address, only
// while an unlock issued by this settler is in flight, and only with the exact
// payload that unlock carried; any other nested entry is rejected. The action
// executed is always the request stored when the unlock was initiated, so a
// venue cannot substitute a different one.
func (s *Settler) HandleUnlock(caller crypto.Address, payload []byte) ([]byte, error) {
	if s == nil {
		return nil, errNilVenue
	}
	if !caller.Equal(s.venueAddr) {
		return nil, ErrNotVenue
	}
	if s.current == nil {
		return nil, ErrNoUnlockInFlight
	}
	if s.entered {
		return nil, ErrNestedUnlock
	}
	s.entered = true

	ctx := s.current
	if !bytes.Equal(payload, ctx.payload) {
		return nil, errPayloadMismatch
	}
	req := ctx.request

	switch req.Action {
	case actionAdd:
		if req.Amount == nil || req.Amount.Sign() <= 0 {
			return nil, errInvalidAmount
		}
		if _, err := s.modifyAndResolve(ctx, ctx.position.LowerBound, ctx.position.UpperBound, req.Amount); err != nil {
			return nil, err
		}
		return nil, nil
	case actionRemove:
		if req.Amount == nil || req.Amount.Sign() <= 0 {
			return nil, errInvalidAmount
		}
		if ctx.position.Liquidity.Cmp(req.Amount) < 0 {
			return nil, ErrExceedsLiquidity
		}
		removal := new(big.Int).Neg(req.Amount)
		if _, err := s.modifyAndResolve(ctx, ctx.position.LowerBound, ctx.position.UpperBound, removal); err != nil {
			return nil, err
		}
		return nil, nil
	case actionCollect:
		received, err := s.modifyAndResolve(ctx, ctx.position.LowerBound, ctx.position.UpperBound, big.NewInt(0))
		if err != nil {
			return nil, err
		}
		return json.Marshal(unlockResult{Collected: received})
	case actionRebalance:
		liquidity := new(big.Int).Set(ctx.position.Liquidity)
		removal := new(big.Int).Neg(liquidity)
		if _, err := s.modifyAndResolve(ctx, ctx.position.LowerBound, ctx.position.UpperBound, removal); err != nil {
			return nil, err
		}
		if _, err := s.modifyAndResolve(ctx, req.NewLower, req.NewUpper, liquidity); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nil, errUnknownAction
}

func (s *Settler) modifyAndResolve(ctx *opContext, lower, upper int32, liquidityDelta *big.Int) (*big.Int, error) {
	delta, err := s.venue.ModifyPosition(ModifyParams{
		LowerBound:     lower,
		UpperBound:     upper,
		LiquidityDelta: liquidityDelta,
	})
	if err != nil {
		return nil, err
	}
	delta.Normalize()

	received, err := s.resolveDelta(ctx.ledger, AssetDeposit, delta.Deposit)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolveDelta(ctx.ledger, AssetQuote, delta.Quote); err != nil {
		return nil, err
	}
	return received, nil
}

// resolveDelta settles one signed venue obligation. The sign convention is
// fixed by the venue: negative means this system owes the venue, positive
// means the venue owes this system. Keep every piece of sign handling in this
// one function.
func (s *Settler) resolveDelta(ledger TokenLedger, asset Asset, delta *big.Int) (*big.Int, error) {
	if delta == nil || delta.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if delta.Sign() < 0 {
		owed := new(big.Int).Neg(delta)
		if err := s.venue.Sync(asset); err != nil {
			return nil, err
		}
		if err := ledger.Transfer(asset, s.moduleAddr, s.venueAddr, owed); err != nil {
			return nil, err
		}
		settled, err := s.venue.Settle()
		if err != nil {
			return nil, err
		}
		if settled == nil || settled.Sign() == 0 {
			return nil, errTransferredNothing
		}
		return big.NewInt(0), nil
	}
	amount := new(big.Int).Set(delta)
	if err := s.venue.Take(asset, s.moduleAddr, amount); err != nil {
		return nil, err
	}
	if err := ledger.Transfer(asset, s.venueAddr, s.moduleAddr, amount); err != nil {
		return nil, err
	}
	return amount, nil
}
