// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package slot

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stakehub/stakehub/hub"
)

// Uint256 wraps storage and retrieval of one unsigned big integer, similar to
// an uint256 variable in a smart contract.
type Uint256 struct {
	context *Context
	pos     hub.Bytes32
}

func NewUint256(context *Context, pos hub.Bytes32) *Uint256 {
	return &Uint256{context: context, pos: pos}
}

func (u *Uint256) Get() (*big.Int, error) {
	value := new(big.Int)
	err := u.context.state.DecodeStorage(u.context.address, u.pos, func(raw []byte) error {
		if len(raw) == 0 {
			return nil
		}
		value.SetBytes(raw)
		return nil
	})
	return value, err
}

func (u *Uint256) Set(value *big.Int) error {
	if value.Sign() < 0 {
		return errors.New("uint256 slot: negative value")
	}
	return u.context.state.EncodeStorage(u.context.address, u.pos, func() ([]byte, error) {
		return value.Bytes(), nil
	})
}

func (u *Uint256) Add(value *big.Int) error {
	stored, err := u.Get()
	if err != nil {
		return err
	}
	return u.Set(stored.Add(stored, value))
}

// Sub subtracts value from the stored amount. Underflow is an error, never a
// silent wrap.
func (u *Uint256) Sub(value *big.Int) error {
	stored, err := u.Get()
	if err != nil {
		return err
	}
	if stored.Cmp(value) < 0 {
		return errors.New("uint256 slot: subtraction underflow")
	}
	return u.Set(stored.Sub(stored, value))
}
