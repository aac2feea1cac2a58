package savings

import "math/big"

// scale is the fixed-point factor applied to the yield-per-share accumulator.
var scale = mustBigInt("1000000000000000000") // 1e18

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// mulDiv computes a * b / den with floor division. A nil or zero denominator
// yields zero rather than panicking; callers guard the cases where that would
// hide a bug.
func mulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, den)
}

// accruedYield converts a share balance into cumulative yield units using the
// scaled accumulator: shares * accYieldPerShare / scale.
func accruedYield(shares, accYieldPerShare *big.Int) *big.Int {
	return mulDiv(shares, accYieldPerShare, scale)
}

// pendingYield is the canonical claimable-yield read: the preserved snapshot
// plus anything earned beyond the jar's recorded debt. Rounding can push the
// debt a hair above the accrual, so the difference clamps at zero.
func pendingYield(jar *Jar, pool *Pool) *big.Int {
	earned := accruedYield(jar.Shares, pool.AccYieldPerShare)
	earned.Sub(earned, jar.YieldDebt)
	if earned.Sign() < 0 {
		earned.SetInt64(0)
	}
	return earned.Add(earned, jar.PendingYieldSnapshot)
}
