// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package remote

import (
	"github.com/stakehub/stakehub/hub"
)

// DelegatorSummary is the staking-account snapshot of one remote account.
// Amounts are in remote units (see amount.go).
type DelegatorSummary struct {
	Delegated         uint64
	Undelegated       uint64
	PendingWithdrawal uint64
}

// Delegation is one validator's slice of an account's delegated stake.
type Delegation struct {
	Validator   hub.Address
	Amount      uint64
	LockedUntil uint64
}

// Reader reads remote-layer state. Every read reflects the remote layer as of
// the PREVIOUS settlement point, not the current local block: a transfer
// executed this block is invisible until the next one. Callers must treat the
// data as eventually consistent with that known staleness bound, never as
// linearizable with local writes.
type Reader interface {
	// AsOfBlock is the local block height the snapshot corresponds to.
	AsOfBlock() uint32

	// SpotBalance returns the spot balance of the account for the asset.
	// A missing account reads as zero, not as an error.
	SpotBalance(account hub.Address, asset uint32) (uint64, error)

	// DelegatorSummary returns the staking-account balances of the account.
	// A missing account reads as all-zero.
	DelegatorSummary(account hub.Address) (DelegatorSummary, error)

	// AccountExists reports whether the account exists on the remote layer.
	// Transfers to a non-existent remote account silently vanish, so payout
	// paths must check this first.
	AccountExists(account hub.Address) (bool, error)

	// ValidatorDelegations returns the per-validator delegations of the
	// account, including remote-enforced lock timestamps.
	ValidatorDelegations(account hub.Address) ([]Delegation, error)
}
