// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package rate implements the exchange-rate engine: pure fixed-point math
// over total vault balance and claim-token supply.
package rate

import (
	"math/big"

	"github.com/stakehub/stakehub/hub"
)

// Rate returns the exchange rate scaled by hub.RateScale.
// A zero supply prices at the identity rate; a zero balance under nonzero
// supply means full impairment. Precision is lost only once, at the final
// division.
func Rate(totalBalance, supply *big.Int) *big.Int {
	if supply.Sign() == 0 {
		return new(big.Int).Set(hub.RateScale)
	}
	if totalBalance.Sign() == 0 {
		return new(big.Int)
	}
	r := new(big.Int).Mul(totalBalance, hub.RateScale)
	return r.Quo(r, supply)
}

// ToClaim converts a base-asset amount into claim tokens at the given rate,
// rounding toward zero. A zero rate converts to zero instead of dividing by it.
func ToClaim(amount, rate *big.Int) *big.Int {
	if rate.Sign() == 0 {
		return new(big.Int)
	}
	c := new(big.Int).Mul(amount, hub.RateScale)
	return c.Quo(c, rate)
}

// ToBase converts a claim-token amount into base asset at the given rate,
// rounding toward zero. Floor rounding on both directions guarantees a round
// trip can never create value.
func ToBase(amount, rate *big.Int) *big.Int {
	b := new(big.Int).Mul(amount, rate)
	return b.Quo(b, hub.RateScale)
}
