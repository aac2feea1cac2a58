package savings

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	coretypes "stashbox/core/types"
	"stashbox/crypto"
	"stashbox/native/liquidity"
	"stashbox/native/savings"
	"stashbox/storage"
)

type storedPool struct {
	TotalShares         *big.Int
	TotalPrincipal      *big.Int
	AccYieldPerShare    *big.Int
	TotalYieldCollected *big.Int
	UndistributedYield  *big.Int
	Admin               []byte
}

type storedJar struct {
	Owner                []byte
	ID                   uint64
	Name                 string
	TargetAmount         *big.Int
	Shares               *big.Int
	PrincipalDeposited   *big.Int
	YieldDebt            *big.Int
	PendingYieldSnapshot *big.Int
	Active               bool
}

type storedPosition struct {
	LowerBound uint64
	UpperBound uint64
	Liquidity  *big.Int
}

type storedAccount struct {
	Nonce        uint64
	Balance      *big.Int
	QuoteBalance *big.Int
}

// Tx stages every read and write of one ledger operation. Commit flushes the
// dirty entries in a single storage batch; dropping the Tx discards them.
type Tx struct {
	db storage.Database

	pool       *savings.Pool
	poolLoaded bool
	poolDirty  bool

	position       *liquidity.Position
	positionLoaded bool
	positionDirty  bool

	jars       map[string]*savings.Jar
	dirtyJars  map[string]struct{}
	counts     map[string]uint64
	dirtyCount map[string]struct{}
	accounts   map[string]*coretypes.Account
	dirtyAccs  map[string]struct{}
}

func newTx(db storage.Database) *Tx {
	return &Tx{
		db:         db,
		jars:       make(map[string]*savings.Jar),
		dirtyJars:  make(map[string]struct{}),
		counts:     make(map[string]uint64),
		dirtyCount: make(map[string]struct{}),
		accounts:   make(map[string]*coretypes.Account),
		dirtyAccs:  make(map[string]struct{}),
	}
}

func (t *Tx) load(key []byte, out interface{}) (bool, error) {
	raw, err := t.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tx) Pool() (*savings.Pool, error) {
	if t.poolLoaded {
		return t.pool, nil
	}
	var stored storedPool
	ok, err := t.load(poolKey, &stored)
	if err != nil {
		return nil, err
	}
	t.poolLoaded = true
	if !ok {
		t.pool = nil
		return nil, nil
	}
	pool := &savings.Pool{
		TotalShares:         stored.TotalShares,
		TotalPrincipal:      stored.TotalPrincipal,
		AccYieldPerShare:    stored.AccYieldPerShare,
		TotalYieldCollected: stored.TotalYieldCollected,
		UndistributedYield:  stored.UndistributedYield,
	}
	if len(stored.Admin) == crypto.AddressLength {
		pool.Admin = crypto.NewAddress(crypto.STBPrefix, stored.Admin)
	}
	t.pool = pool.Normalize()
	return t.pool, nil
}

func (t *Tx) SetPool(pool *savings.Pool) error {
	t.pool = pool
	t.poolLoaded = true
	t.poolDirty = true
	return nil
}

func (t *Tx) Position() (*liquidity.Position, error) {
	if t.positionLoaded {
		return t.position, nil
	}
	var stored storedPosition
	ok, err := t.load(positionKey, &stored)
	if err != nil {
		return nil, err
	}
	t.positionLoaded = true
	if !ok {
		t.position = nil
		return nil, nil
	}
	t.position = (&liquidity.Position{
		LowerBound: int32(uint32(stored.LowerBound)),
		UpperBound: int32(uint32(stored.UpperBound)),
		Liquidity:  stored.Liquidity,
	}).Normalize()
	return t.position, nil
}

func (t *Tx) SetPosition(pos *liquidity.Position) error {
	t.position = pos
	t.positionLoaded = true
	t.positionDirty = true
	return nil
}

func (t *Tx) Jar(owner crypto.Address, id uint64) (*savings.Jar, error) {
	key := string(jarKey(owner, id))
	if jar, ok := t.jars[key]; ok {
		return jar, nil
	}
	var stored storedJar
	ok, err := t.load([]byte(key), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		t.jars[key] = nil
		return nil, nil
	}
	jar := (&savings.Jar{
		ID:                   stored.ID,
		Name:                 stored.Name,
		TargetAmount:         stored.TargetAmount,
		Shares:               stored.Shares,
		PrincipalDeposited:   stored.PrincipalDeposited,
		YieldDebt:            stored.YieldDebt,
		PendingYieldSnapshot: stored.PendingYieldSnapshot,
		Active:               stored.Active,
	}).Normalize()
	if len(stored.Owner) == crypto.AddressLength {
		jar.Owner = crypto.NewAddress(crypto.STBPrefix, stored.Owner)
	}
	t.jars[key] = jar
	return jar, nil
}

func (t *Tx) SetJar(jar *savings.Jar) error {
	if jar == nil {
		return nil
	}
	key := string(jarKey(jar.Owner, jar.ID))
	t.jars[key] = jar
	t.dirtyJars[key] = struct{}{}
	return nil
}

func (t *Tx) JarCount(owner crypto.Address) (uint64, error) {
	key := string(jarCountKey(owner))
	if count, ok := t.counts[key]; ok {
		return count, nil
	}
	var count uint64
	ok, err := t.load([]byte(key), &count)
	if err != nil {
		return 0, err
	}
	if !ok {
		count = 0
	}
	t.counts[key] = count
	return count, nil
}

func (t *Tx) SetJarCount(owner crypto.Address, count uint64) error {
	key := string(jarCountKey(owner))
	t.counts[key] = count
	t.dirtyCount[key] = struct{}{}
	return nil
}

func (t *Tx) Account(addr crypto.Address) (*coretypes.Account, error) {
	key := string(accountKey(addr))
	if acc, ok := t.accounts[key]; ok {
		return acc, nil
	}
	var stored storedAccount
	ok, err := t.load([]byte(key), &stored)
	if err != nil {
		return nil, err
	}
	var acc *coretypes.Account
	if ok {
		acc = &coretypes.Account{
			Nonce:        stored.Nonce,
			Balance:      stored.Balance,
			QuoteBalance: stored.QuoteBalance,
		}
	}
	acc = acc.Normalize()
	t.accounts[key] = acc
	return acc, nil
}

func (t *Tx) SetAccount(addr crypto.Address, acc *coretypes.Account) error {
	key := string(accountKey(addr))
	t.accounts[key] = acc.Normalize()
	t.dirtyAccs[key] = struct{}{}
	return nil
}

// Commit encodes every dirty entry and applies them in one atomic batch.
func (t *Tx) Commit() error {
	var ops []storage.BatchOp
	if t.poolDirty && t.pool != nil {
		pool := t.pool.Normalize()
		raw, err := rlp.EncodeToBytes(&storedPool{
			TotalShares:         pool.TotalShares,
			TotalPrincipal:      pool.TotalPrincipal,
			AccYieldPerShare:    pool.AccYieldPerShare,
			TotalYieldCollected: pool.TotalYieldCollected,
			UndistributedYield:  pool.UndistributedYield,
			Admin:               pool.Admin.Bytes(),
		})
		if err != nil {
			return err
		}
		ops = append(ops, storage.BatchOp{Key: poolKey, Value: raw})
	}
	if t.positionDirty && t.position != nil {
		pos := t.position.Normalize()
		raw, err := rlp.EncodeToBytes(&storedPosition{
			LowerBound: uint64(uint32(pos.LowerBound)),
			UpperBound: uint64(uint32(pos.UpperBound)),
			Liquidity:  pos.Liquidity,
		})
		if err != nil {
			return err
		}
		ops = append(ops, storage.BatchOp{Key: positionKey, Value: raw})
	}
	for key := range t.dirtyJars {
		jar := t.jars[key]
		if jar == nil {
			continue
		}
		jar.Normalize()
		raw, err := rlp.EncodeToBytes(&storedJar{
			Owner:                jar.Owner.Bytes(),
			ID:                   jar.ID,
			Name:                 jar.Name,
			TargetAmount:         jar.TargetAmount,
			Shares:               jar.Shares,
			PrincipalDeposited:   jar.PrincipalDeposited,
			YieldDebt:            jar.YieldDebt,
			PendingYieldSnapshot: jar.PendingYieldSnapshot,
			Active:               jar.Active,
		})
		if err != nil {
			return err
		}
		ops = append(ops, storage.BatchOp{Key: []byte(key), Value: raw})
	}
	for key := range t.dirtyCount {
		raw, err := rlp.EncodeToBytes(t.counts[key])
		if err != nil {
			return err
		}
		ops = append(ops, storage.BatchOp{Key: []byte(key), Value: raw})
	}
	for key := range t.dirtyAccs {
		acc := t.accounts[key].Normalize()
		raw, err := rlp.EncodeToBytes(&storedAccount{
			Nonce:        acc.Nonce,
			Balance:      acc.Balance,
			QuoteBalance: acc.QuoteBalance,
		})
		if err != nil {
			return err
		}
		ops = append(ops, storage.BatchOp{Key: []byte(key), Value: raw})
	}
	if len(ops) == 0 {
		return nil
	}
	return t.db.WriteBatch(ops)
}
