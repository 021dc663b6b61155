// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package slot

import (
	"reflect"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/stakehub/stakehub/hub"
)

// Value wraps storage and retrieval of one RLP-encodable value at a named slot.
type Value[T any] struct {
	context *Context
	pos     hub.Bytes32
}

func NewValue[T any](context *Context, pos hub.Bytes32) *Value[T] {
	return &Value[T]{context: context, pos: pos}
}

// Get returns the stored value, or the zero value for an absent entry.
func (v *Value[T]) Get() (value T, err error) {
	err = v.context.state.DecodeStorage(v.context.address, v.pos, func(raw []byte) error {
		if reflect.ValueOf(value).Kind() == reflect.Ptr {
			value = reflect.New(reflect.TypeOf(value).Elem()).Interface().(T)
		}
		if len(raw) == 0 {
			return nil
		}
		return rlp.DecodeBytes(raw, &value)
	})
	return
}

func (v *Value[T]) Set(value T) error {
	return v.context.state.EncodeStorage(v.context.address, v.pos, func() ([]byte, error) {
		return rlp.EncodeToBytes(value)
	})
}
