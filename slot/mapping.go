// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package slot

import (
	"encoding/binary"
	"reflect"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/stakehub/stakehub/hub"
)

// Key is anything usable as a mapping key.
type Key interface {
	Bytes() []byte
}

// Uint64Key adapts an integer id into a mapping key.
type Uint64Key uint64

func (k Uint64Key) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k))
	return b[:]
}

// Mapping is a key/value storage abstraction similar to a mapping in a smart
// contract. Values are RLP encoded at positions derived from the base slot.
type Mapping[K Key, V any] struct {
	context *Context
	basePos hub.Bytes32
}

func NewMapping[K Key, V any](context *Context, pos hub.Bytes32) *Mapping[K, V] {
	return &Mapping[K, V]{context: context, basePos: pos}
}

// Get returns the value stored under key. An absent entry decodes to the
// zero value (a fresh instance for pointer types).
func (m *Mapping[K, V]) Get(key K) (value V, err error) {
	position := hub.Blake2b(key.Bytes(), m.basePos.Bytes())
	err = m.context.state.DecodeStorage(m.context.address, position, func(raw []byte) error {
		if reflect.ValueOf(value).Kind() == reflect.Ptr {
			value = reflect.New(reflect.TypeOf(value).Elem()).Interface().(V)
		}
		if len(raw) == 0 {
			return nil
		}
		return rlp.DecodeBytes(raw, &value)
	})
	return
}

// Set stores the value under key.
func (m *Mapping[K, V]) Set(key K, value V) error {
	position := hub.Blake2b(key.Bytes(), m.basePos.Bytes())
	return m.context.state.EncodeStorage(m.context.address, position, func() ([]byte, error) {
		return rlp.EncodeToBytes(value)
	})
}
