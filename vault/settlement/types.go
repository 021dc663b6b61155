// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settlement

import (
	"math/big"

	"github.com/stakehub/stakehub/hub"
)

// Request is one user's redemption intent.
//
// Lifecycle: Queued -> {Cancelled | Assigned -> Claimed}. A cancelled request
// keeps its id as a stable reference; the zeroed amount IS the cancelled
// marker. The settlement engine exclusively owns the transition into
// Assigned; only the owner triggers Claimed.
type Request struct {
	Owner    hub.Address
	Amount   *big.Int // escrowed claim tokens, zeroed on cancellation
	QueuedAt uint64

	// BatchIndex is hub.BatchUnassigned until a settlement batch consumes
	// the request, then immutable.
	BatchIndex uint32

	CancelledAt uint64
	ClaimedAt   uint64
}

// Assigned reports whether a settlement batch has consumed the request.
func (r *Request) Assigned() bool {
	return r.BatchIndex != hub.BatchUnassigned
}

// Cancelled reports whether the owner withdrew the request before assignment.
func (r *Request) Cancelled() bool {
	return r.CancelledAt != 0
}

// Claimed reports whether the payout has been issued.
func (r *Request) Claimed() bool {
	return r.ClaimedAt != 0
}

// Batch is one settlement round. Processed and SnapshotRate are immutable
// once persisted; only the slash fields may be set later, exactly once.
// Its pricing is authoritative for every request assigned to it.
type Batch struct {
	Processed    *big.Int // claim tokens burned into this batch
	SnapshotRate *big.Int // exchange rate every request was priced at
	SlashedRate  *big.Int // retroactive payout rate, meaningful iff Slashed
	Slashed      bool
	FinalizedAt  uint64
}

// PayoutRate returns the rate claims against this batch pay at.
func (b *Batch) PayoutRate() *big.Int {
	if b.Slashed {
		return b.SlashedRate
	}
	return b.SnapshotRate
}
