package liquidity

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"stashbox/crypto"
)

func testAddr(b byte) crypto.Address {
	var raw [crypto.AddressLength]byte
	raw[crypto.AddressLength-1] = b
	return crypto.MustNewAddress(crypto.STBPrefix, raw)
}

// mapLedger is an in-memory token ledger for settlement tests.
type mapLedger struct {
	balances map[string]map[Asset]*big.Int
}

func newMapLedger() *mapLedger {
	return &mapLedger{balances: make(map[string]map[Asset]*big.Int)}
}

func (l *mapLedger) balance(addr crypto.Address, asset Asset) *big.Int {
	acct, ok := l.balances[addr.String()]
	if !ok {
		return big.NewInt(0)
	}
	bal, ok := acct[asset]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

func (l *mapLedger) credit(addr crypto.Address, asset Asset, amount *big.Int) {
	acct, ok := l.balances[addr.String()]
	if !ok {
		acct = make(map[Asset]*big.Int)
		l.balances[addr.String()] = acct
	}
	prev, ok := acct[asset]
	if !ok {
		prev = big.NewInt(0)
	}
	acct[asset] = new(big.Int).Add(prev, amount)
}

func (l *mapLedger) Transfer(asset Asset, from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("mapLedger: negative transfer")
	}
	if l.balance(from, asset).Cmp(amount) < 0 {
		return errors.New("mapLedger: insufficient balance")
	}
	l.credit(from, asset, new(big.Int).Neg(amount))
	l.credit(to, asset, amount)
	return nil
}

type fixture struct {
	venue   *DevVenue
	settler *Settler
	ledger  *mapLedger
	module  crypto.Address
	vaddr   crypto.Address
	pos     *Position
}

func newFixture(t *testing.T, moduleFunds int64) *fixture {
	t.Helper()
	module := testAddr(1)
	vaddr := testAddr(2)
	venue := NewDevVenue(vaddr)
	settler, err := NewSettler(venue, vaddr, module)
	if err != nil {
		t.Fatalf("new settler: %v", err)
	}
	venue.SetUnlockHandler(settler)
	ledger := newMapLedger()
	if moduleFunds > 0 {
		ledger.credit(module, AssetDeposit, big.NewInt(moduleFunds))
	}
	pos := (&Position{LowerBound: -600, UpperBound: 600}).Normalize()
	return &fixture{venue: venue, settler: settler, ledger: ledger, module: module, vaddr: vaddr, pos: pos}
}

func TestAddLiquidityMovesFundsToVenue(t *testing.T) {
	fx := newFixture(t, 1000)

	if err := fx.settler.AddLiquidity(fx.ledger, fx.pos, big.NewInt(400)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if fx.pos.Liquidity.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("position liquidity = %s, want 400", fx.pos.Liquidity)
	}
	if got := fx.venue.Liquidity(-600, 600); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("venue liquidity = %s, want 400", got)
	}
	if got := fx.ledger.balance(fx.module, AssetDeposit); got.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("module balance = %s, want 600", got)
	}
	if got := fx.ledger.balance(fx.vaddr, AssetDeposit); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("venue balance = %s, want 400", got)
	}
}

func TestRemoveLiquidityReturnsFunds(t *testing.T) {
	fx := newFixture(t, 1000)
	if err := fx.settler.AddLiquidity(fx.ledger, fx.pos, big.NewInt(400)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	if err := fx.settler.RemoveLiquidity(fx.ledger, fx.pos, big.NewInt(150)); err != nil {
		t.Fatalf("remove liquidity: %v", err)
	}
	if fx.pos.Liquidity.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("position liquidity = %s, want 250", fx.pos.Liquidity)
	}
	if got := fx.venue.Liquidity(-600, 600); got.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("venue liquidity = %s, want 250", got)
	}
	if got := fx.ledger.balance(fx.module, AssetDeposit); got.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("module balance = %s, want 750", got)
	}
}

func TestRemoveLiquidityExceedsTracked(t *testing.T) {
	fx := newFixture(t, 1000)
	if err := fx.settler.AddLiquidity(fx.ledger, fx.pos, big.NewInt(100)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	err := fx.settler.RemoveLiquidity(fx.ledger, fx.pos, big.NewInt(200))
	if !errors.Is(err, ErrExceedsLiquidity) {
		t.Fatalf("expected ErrExceedsLiquidity, got %v", err)
	}
	if fx.pos.Liquidity.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("position liquidity changed after failed removal: %s", fx.pos.Liquidity)
	}
}

func TestCollectSweepsAccruedFees(t *testing.T) {
	fx := newFixture(t, 1000)
	if err := fx.settler.AddLiquidity(fx.ledger, fx.pos, big.NewInt(500)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	// Venue holds 500; fees later paid out of that pot.
	fx.venue.AccrueFees(big.NewInt(35))

	collected, err := fx.settler.Collect(fx.ledger, fx.pos)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collected.Cmp(big.NewInt(35)) != 0 {
		t.Fatalf("collected = %s, want 35", collected)
	}
	if got := fx.ledger.balance(fx.module, AssetDeposit); got.Cmp(big.NewInt(535)) != 0 {
		t.Fatalf("module balance = %s, want 535", got)
	}
	if fx.pos.Liquidity.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("collect must not change liquidity, got %s", fx.pos.Liquidity)
	}
}

func TestCollectWithoutFeesIsNoop(t *testing.T) {
	fx := newFixture(t, 1000)
	if err := fx.settler.AddLiquidity(fx.ledger, fx.pos, big.NewInt(500)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	collected, err := fx.settler.Collect(fx.ledger, fx.pos)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collected.Sign() != 0 {
		t.Fatalf("collected = %s, want 0", collected)
	}
}

func TestAddLiquidityNetsAccruedFees(t *testing.T) {
	fx := newFixture(t, 1000)
	if err := fx.settler.AddLiquidity(fx.ledger, fx.pos, big.NewInt(500)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	fx.venue.AccrueFees(big.NewInt(30))

	// The venue nets the 30 of fees against the 200 owed for the new
	// liquidity, so only 170 moves out of the module account.
	if err := fx.settler.AddLiquidity(fx.ledger, fx.pos, big.NewInt(200)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if got := fx.ledger.balance(fx.module, AssetDeposit); got.Cmp(big.NewInt(330)) != 0 {
		t.Fatalf("module balance = %s, want 330", got)
	}
	if fx.pos.Liquidity.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("position liquidity = %s, want 700", fx.pos.Liquidity)
	}
}

func TestRebalanceMovesRangeAtomically(t *testing.T) {
	fx := newFixture(t, 1000)
	if err := fx.settler.AddLiquidity(fx.ledger, fx.pos, big.NewInt(500)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	if err := fx.settler.Rebalance(fx.ledger, fx.pos, -1200, 1200); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if fx.pos.LowerBound != -1200 || fx.pos.UpperBound != 1200 {
		t.Fatalf("bounds = %d..%d, want -1200..1200", fx.pos.LowerBound, fx.pos.UpperBound)
	}
	if fx.pos.Liquidity.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("rebalance must preserve liquidity, got %s", fx.pos.Liquidity)
	}
	if got := fx.venue.Liquidity(-600, 600); got.Sign() != 0 {
		t.Fatalf("old range still holds %s", got)
	}
	if got := fx.venue.Liquidity(-1200, 1200); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("new range holds %s, want 500", got)
	}
	// Withdraw and redeploy cancel out.
	if got := fx.ledger.balance(fx.module, AssetDeposit); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("module balance = %s, want 500", got)
	}
}

func TestRebalanceEmptyPositionOnlyMovesBounds(t *testing.T) {
	fx := newFixture(t, 0)
	if err := fx.settler.Rebalance(fx.ledger, fx.pos, -60, 60); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if fx.pos.LowerBound != -60 || fx.pos.UpperBound != 60 {
		t.Fatalf("bounds = %d..%d, want -60..60", fx.pos.LowerBound, fx.pos.UpperBound)
	}
}

func TestRebalanceRejectsInvertedBounds(t *testing.T) {
	fx := newFixture(t, 0)
	if err := fx.settler.Rebalance(fx.ledger, fx.pos, 60, 60); err == nil {
		t.Fatal("expected bounds error")
	}
}

func TestAddLiquidityInsufficientModuleBalance(t *testing.T) {
	fx := newFixture(t, 100)
	err := fx.settler.AddLiquidity(fx.ledger, fx.pos, big.NewInt(400))
	if err == nil {
		t.Fatal("expected transfer failure")
	}
	if fx.pos.Liquidity.Sign() != 0 {
		t.Fatalf("position liquidity advanced on failed add: %s", fx.pos.Liquidity)
	}
}

func TestHandleUnlockRejectsNonVenueCaller(t *testing.T) {
	fx := newFixture(t, 0)
	_, err := fx.settler.HandleUnlock(testAddr(9), []byte(`{"action":3}`))
	if !errors.Is(err, ErrNotVenue) {
		t.Fatalf("expected ErrNotVenue, got %v", err)
	}
}

func TestHandleUnlockWithoutUnlockInFlight(t *testing.T) {
	fx := newFixture(t, 0)
	_, err := fx.settler.HandleUnlock(fx.vaddr, []byte(`{"action":3}`))
	if !errors.Is(err, ErrNoUnlockInFlight) {
		t.Fatalf("expected ErrNoUnlockInFlight, got %v", err)
	}
}

// reentrantHandler forwards the first callback and then re-enters the settler
// a second time, which must be rejected.
type reentrantHandler struct {
	settler *Settler
	vaddr   crypto.Address
	second  error
}

func (h *reentrantHandler) HandleUnlock(caller crypto.Address, payload []byte) ([]byte, error) {
	res, err := h.settler.HandleUnlock(caller, payload)
	if err != nil {
		return nil, err
	}
	_, h.second = h.settler.HandleUnlock(h.vaddr, payload)
	return res, nil
}

func TestNestedUnlockRejected(t *testing.T) {
	fx := newFixture(t, 1000)
	handler := &reentrantHandler{settler: fx.settler, vaddr: fx.vaddr}
	fx.venue.SetUnlockHandler(handler)

	if err := fx.settler.AddLiquidity(fx.ledger, fx.pos, big.NewInt(100)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if !errors.Is(handler.second, ErrNestedUnlock) {
		t.Fatalf("expected ErrNestedUnlock on re-entry, got %v", handler.second)
	}
}

// idleHandler modifies the position without resolving the resulting delta.
type idleHandler struct {
	venue *DevVenue
}

func (h *idleHandler) HandleUnlock(crypto.Address, []byte) ([]byte, error) {
	_, err := h.venue.ModifyPosition(ModifyParams{LowerBound: -10, UpperBound: 10, LiquidityDelta: big.NewInt(50)})
	return nil, err
}

func TestUnlockFailsOnUnresolvedDelta(t *testing.T) {
	fx := newFixture(t, 1000)
	fx.venue.SetUnlockHandler(&idleHandler{venue: fx.venue})

	_, err := fx.venue.Unlock([]byte(`{}`))
	if !errors.Is(err, ErrUnresolvedDelta) {
		t.Fatalf("expected ErrUnresolvedDelta, got %v", err)
	}
}

func TestModifyPositionOutsideUnlock(t *testing.T) {
	fx := newFixture(t, 0)
	if _, err := fx.venue.ModifyPosition(ModifyParams{LiquidityDelta: big.NewInt(1)}); err == nil {
		t.Fatal("expected locked venue error")
	}
}

// substitutingVenue re-enters the handler with a payload of its own choosing
// instead of the one the settler handed to Unlock.
type substitutingVenue struct {
	addr    crypto.Address
	handler UnlockHandler
	payload []byte
}

func (v *substitutingVenue) Unlock(_ []byte) ([]byte, error) {
	return v.handler.HandleUnlock(v.addr, v.payload)
}

func (v *substitutingVenue) ModifyPosition(ModifyParams) (Delta, error) {
	return Delta{Deposit: big.NewInt(0), Quote: big.NewInt(0)}, nil
}

func (v *substitutingVenue) Sync(Asset) error          { return nil }
func (v *substitutingVenue) Settle() (*big.Int, error) { return big.NewInt(0), nil }
func (v *substitutingVenue) Take(Asset, crypto.Address, *big.Int) error {
	return nil
}

func TestHandleUnlockRejectsSubstitutedPayload(t *testing.T) {
	module := testAddr(1)
	vaddr := testAddr(2)
	swapped, err := json.Marshal(unlockRequest{Action: actionRemove, Amount: big.NewInt(400)})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	venue := &substitutingVenue{addr: vaddr, payload: swapped}
	settler, err := NewSettler(venue, vaddr, module)
	if err != nil {
		t.Fatalf("new settler: %v", err)
	}
	venue.handler = settler

	ledger := newMapLedger()
	ledger.credit(module, AssetDeposit, big.NewInt(1000))
	pos := (&Position{LowerBound: -600, UpperBound: 600}).Normalize()

	err = settler.AddLiquidity(ledger, pos, big.NewInt(400))
	if !errors.Is(err, errPayloadMismatch) {
		t.Fatalf("got %v, want errPayloadMismatch", err)
	}
	if pos.Liquidity.Sign() != 0 {
		t.Fatalf("position liquidity = %s, want 0 after rejected unlock", pos.Liquidity)
	}
	if got := ledger.balance(module, AssetDeposit); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("module balance = %s, want untouched 1000", got)
	}
}
