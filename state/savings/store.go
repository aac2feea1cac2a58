package savings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	coretypes "stashbox/core/types"
	"stashbox/crypto"
	"stashbox/native/liquidity"
	"stashbox/native/savings"
	"stashbox/storage"
)

var errNilDatabase = errors.New("savings store: database not configured")

var (
	poolKey        = []byte("savings/pool")
	positionKey    = []byte("savings/position")
	jarPrefix      = []byte("savings/jar/")
	jarCountPrefix = []byte("savings/jarcount/")
	accountPrefix  = []byte("savings/account/")
)

// Store persists the savings ledger in a key-value database. Every engine
// operation runs against a Tx whose writes land in one atomic batch.
type Store struct {
	db storage.Database
}

// NewStore wraps the database for ledger persistence.
func NewStore(db storage.Database) (*Store, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	return &Store{db: db}, nil
}

// Begin opens a staged transaction over the store.
func (s *Store) Begin() (savings.OpState, error) {
	if s == nil || s.db == nil {
		return nil, errNilDatabase
	}
	return newTx(s.db), nil
}

// EnsureGenesis writes the initial pool, position and dev account allocations
// when no pool exists yet. It is a no-op on an already-initialised database.
func (s *Store) EnsureGenesis(admin crypto.Address, lower, upper int32, allocs map[string]*big.Int) error {
	if s == nil || s.db == nil {
		return errNilDatabase
	}
	if _, err := s.db.Get(poolKey); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if lower >= upper {
		return fmt.Errorf("savings store: genesis bounds %d..%d invalid", lower, upper)
	}

	tx := newTx(s.db)
	pool := (&savings.Pool{Admin: admin.Clone()}).Normalize()
	if err := tx.SetPool(pool); err != nil {
		return err
	}
	pos := (&liquidity.Position{LowerBound: lower, UpperBound: upper}).Normalize()
	if err := tx.SetPosition(pos); err != nil {
		return err
	}
	for encoded, balance := range allocs {
		addr, err := crypto.DecodeAddress(encoded)
		if err != nil {
			return fmt.Errorf("savings store: genesis allocation %q: %w", encoded, err)
		}
		acc := (&coretypes.Account{Balance: new(big.Int).Set(balance)}).Normalize()
		if err := tx.SetAccount(addr, acc); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func jarKey(owner crypto.Address, id uint64) []byte {
	key := append(append([]byte(nil), jarPrefix...), owner.Bytes()...)
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], id)
	return append(key, idBytes[:]...)
}

func jarCountKey(owner crypto.Address) []byte {
	return append(append([]byte(nil), jarCountPrefix...), owner.Bytes()...)
}

func accountKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), accountPrefix...), addr.Bytes()...)
}
