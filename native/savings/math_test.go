package savings

import (
	"math/big"
	"testing"
)

func TestMulDivFloors(t *testing.T) {
	got := mulDiv(big.NewInt(10), big.NewInt(3), big.NewInt(4))
	if got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("mulDiv(10,3,4) = %s, want 7", got)
	}
}

func TestMulDivZeroDenominator(t *testing.T) {
	if got := mulDiv(big.NewInt(10), big.NewInt(3), big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("mulDiv with zero denominator = %s, want 0", got)
	}
	if got := mulDiv(nil, big.NewInt(3), big.NewInt(4)); got.Sign() != 0 {
		t.Fatalf("mulDiv with nil operand = %s, want 0", got)
	}
}

func TestAccruedYieldScaling(t *testing.T) {
	// 100 shares at 0.5 deposit units per share.
	acc := new(big.Int).Div(scale, big.NewInt(2))
	got := accruedYield(big.NewInt(100), acc)
	if got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("accruedYield = %s, want 50", got)
	}
}

func TestPendingYieldClampsNegativeAccrual(t *testing.T) {
	jar := (&Jar{
		Shares:               big.NewInt(100),
		YieldDebt:            big.NewInt(60),
		PendingYieldSnapshot: big.NewInt(7),
	}).Normalize()
	pool := (&Pool{AccYieldPerShare: new(big.Int).Div(scale, big.NewInt(2))}).Normalize()

	// Accrued is 50, debt 60: the negative difference clamps to zero and the
	// snapshot survives untouched.
	got := pendingYield(jar, pool)
	if got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("pendingYield = %s, want 7", got)
	}
}

func TestPendingYieldAddsSnapshot(t *testing.T) {
	jar := (&Jar{
		Shares:               big.NewInt(200),
		YieldDebt:            big.NewInt(30),
		PendingYieldSnapshot: big.NewInt(5),
	}).Normalize()
	pool := (&Pool{AccYieldPerShare: new(big.Int).Div(scale, big.NewInt(2))}).Normalize()

	// Accrued 100 minus debt 30 plus snapshot 5.
	got := pendingYield(jar, pool)
	if got.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("pendingYield = %s, want 75", got)
	}
}
