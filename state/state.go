// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/kv"
)

// Error is the error caused by state access failure.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

// balanceKey addresses the base-asset balance of an account.
type balanceKey hub.Address

// storageKey addresses one structured storage entry of an account.
type storageKey struct {
	addr hub.Address
	key  hub.Bytes32
}

// State manages the local ledger: base-asset balances plus per-address
// structured storage. All mutations are journaled; a checkpoint taken before
// an operation can roll every write since back, which is what makes vault
// entry points all-or-nothing.
type State struct {
	store kv.GetPutter
	jn    *journal
}

// New creates a state object backed by the given store.
func New(store kv.GetPutter) *State {
	s := &State{store: store}
	s.jn = newJournal(s.load)
	s.jn.push() // base level holding committed-but-unstaged writes
	return s
}

func (s *State) load(key any) (any, bool, error) {
	switch k := key.(type) {
	case balanceKey:
		raw, err := s.store.Get(encodeBalanceKey(hub.Address(k)))
		if err != nil {
			if s.store.IsNotFound(err) {
				return &big.Int{}, true, nil
			}
			return nil, false, &Error{err}
		}
		var bal big.Int
		if err := rlp.DecodeBytes(raw, &bal); err != nil {
			return nil, false, &Error{err}
		}
		return &bal, true, nil
	case storageKey:
		raw, err := s.store.Get(encodeStorageKey(k.addr, k.key))
		if err != nil {
			if s.store.IsNotFound(err) {
				return rlp.RawValue(nil), true, nil
			}
			return nil, false, &Error{err}
		}
		return rlp.RawValue(raw), true, nil
	}
	panic(fmt.Errorf("unexpected key type %+v", key))
}

func encodeBalanceKey(addr hub.Address) []byte {
	return append([]byte("b"), addr.Bytes()...)
}

func encodeStorageKey(addr hub.Address, key hub.Bytes32) []byte {
	return append(append([]byte("s"), addr.Bytes()...), key.Bytes()...)
}

// NewCheckpoint makes a checkpoint of current state.
// It returns the checkpoint to be passed to RevertTo.
func (s *State) NewCheckpoint() int {
	return s.jn.push()
}

// RevertTo reverts the state to the given checkpoint.
// It panics if the checkpoint is out of range.
func (s *State) RevertTo(checkpoint int) {
	if checkpoint < 1 || checkpoint > s.jn.depth() {
		panic("state: checkpoint out of range")
	}
	s.jn.popTo(checkpoint)
}

// GetBalance returns the base-asset balance of the given address.
func (s *State) GetBalance(addr hub.Address) (*big.Int, error) {
	v, _, err := s.jn.get(balanceKey(addr))
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

// SetBalance sets the base-asset balance of the given address.
func (s *State) SetBalance(addr hub.Address, balance *big.Int) {
	s.jn.put(balanceKey(addr), new(big.Int).Set(balance))
}

// AddBalance adds amount to the balance of the given address.
func (s *State) AddBalance(addr hub.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	bal, err := s.GetBalance(addr)
	if err != nil {
		return err
	}
	s.SetBalance(addr, new(big.Int).Add(bal, amount))
	return nil
}

// SubBalance subtracts amount from the balance of the given address.
// Returns false without mutation if the balance is insufficient.
func (s *State) SubBalance(addr hub.Address, amount *big.Int) (bool, error) {
	if amount.Sign() == 0 {
		return true, nil
	}
	bal, err := s.GetBalance(addr)
	if err != nil {
		return false, err
	}
	if bal.Cmp(amount) < 0 {
		return false, nil
	}
	s.SetBalance(addr, new(big.Int).Sub(bal, amount))
	return true, nil
}

// GetRawStorage returns raw storage value for the given address and key.
func (s *State) GetRawStorage(addr hub.Address, key hub.Bytes32) (rlp.RawValue, error) {
	v, _, err := s.jn.get(storageKey{addr, key})
	if err != nil {
		return nil, err
	}
	return v.(rlp.RawValue), nil
}

// SetRawStorage sets raw storage value for the given address and key.
// An empty value deletes the entry on commit.
func (s *State) SetRawStorage(addr hub.Address, key hub.Bytes32, raw rlp.RawValue) {
	s.jn.put(storageKey{addr, key}, raw)
}

// DecodeStorage decodes the storage value for the given address and key with
// the provided decoder. The decoder sees a zero-length slice for an absent entry.
func (s *State) DecodeStorage(addr hub.Address, key hub.Bytes32, decode func(raw []byte) error) error {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return err
	}
	if err := decode(raw); err != nil {
		return &Error{err}
	}
	return nil
}

// EncodeStorage encodes the storage value for the given address and key with
// the provided encoder. Encoding to nil clears the entry.
func (s *State) EncodeStorage(addr hub.Address, key hub.Bytes32, encode func() ([]byte, error)) error {
	raw, err := encode()
	if err != nil {
		return &Error{err}
	}
	s.SetRawStorage(addr, key, raw)
	return nil
}

// Commit writes every journaled mutation into the backing store in one batch
// and resets the journal to a single clean level.
func (s *State) Commit() error {
	batch := s.store.NewBatch()
	err := s.jn.iterate(func(key, value any) error {
		switch k := key.(type) {
		case balanceKey:
			bal := value.(*big.Int)
			if bal.Sign() == 0 {
				return batch.Delete(encodeBalanceKey(hub.Address(k)))
			}
			raw, err := rlp.EncodeToBytes(bal)
			if err != nil {
				return err
			}
			return batch.Put(encodeBalanceKey(hub.Address(k)), raw)
		case storageKey:
			raw := value.(rlp.RawValue)
			if len(raw) == 0 {
				return batch.Delete(encodeStorageKey(k.addr, k.key))
			}
			return batch.Put(encodeStorageKey(k.addr, k.key), raw)
		}
		panic(fmt.Errorf("unexpected key type %+v", key))
	})
	if err != nil {
		return &Error{err}
	}
	if err := batch.Write(); err != nil {
		return &Error{err}
	}

	s.jn = newJournal(s.load)
	s.jn.push()
	return nil
}
