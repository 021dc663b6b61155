// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package remote

import (
	"math"
	"math/big"

	"github.com/pkg/errors"
)

// The remote layer accounts in 8 decimal places held in uint64, while the
// local ledger uses 18 decimal wei. unitScale converts between the two.
const (
	LocalDecimals  = 18
	RemoteDecimals = 8
)

var (
	unitScale    = new(big.Int).Exp(big.NewInt(10), big.NewInt(LocalDecimals-RemoteDecimals), nil)
	maxRemoteBig = new(big.Int).SetUint64(math.MaxUint64)

	// ErrAmountOverflow is returned when a local amount does not fit the
	// remote integer width. Narrowing must fail, never truncate.
	ErrAmountOverflow = errors.New("amount exceeds remote integer width")
)

// ToRemoteAmount narrows a local wei amount into remote units.
// Sub-remote-decimal dust is floored; a quotient beyond uint64 is an error.
func ToRemoteAmount(amount *big.Int) (uint64, error) {
	if amount.Sign() < 0 {
		return 0, errors.New("negative amount")
	}
	q := new(big.Int).Quo(amount, unitScale)
	if q.Cmp(maxRemoteBig) > 0 {
		return 0, ErrAmountOverflow
	}
	return q.Uint64(), nil
}

// FromRemoteAmount widens a remote unit amount into local wei.
func FromRemoteAmount(amount uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(amount), unitScale)
}
