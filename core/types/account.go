package types

import "math/big"

// Account holds the fungible balances tracked for a single address. Balance is
// denominated in the pool's deposit asset; QuoteBalance in the venue's counter
// asset. Amounts are wei-scale big integers to match on-chain precision.
type Account struct {
	Nonce        uint64   `json:"nonce"`
	Balance      *big.Int `json:"balance"`
	QuoteBalance *big.Int `json:"quoteBalance"`
}

// Normalize replaces nil balance pointers with zero values so callers can
// mutate the account without nil checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0), QuoteBalance: big.NewInt(0)}
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	if a.QuoteBalance == nil {
		a.QuoteBalance = big.NewInt(0)
	}
	return a
}
