// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hub

import "math/big"

// Fixed-point scale of the exchange rate: a rate of 1e18 means one claim
// token redeems exactly one base unit.
var RateScale = big.NewInt(1e18)

const (
	// BatchUnassigned is the batch index sentinel of a withdraw request
	// that has not been consumed by a settlement batch yet.
	BatchUnassigned = ^uint32(0)

	// DefaultBatchCooldown is the minimum interval between settlement
	// batches, in seconds.
	DefaultBatchCooldown = 24 * 60 * 60

	// DefaultClaimDelay is the delay between batch finalization and the
	// earliest claim, in seconds. Stands in for the remote unstaking queue.
	DefaultClaimDelay = 7 * 24 * 60 * 60
)
