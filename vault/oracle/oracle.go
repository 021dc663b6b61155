// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package oracle

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/remote"
	"github.com/stakehub/stakehub/slot"
	"github.com/stakehub/stakehub/vault/reserve"
)

// Oracle aggregates the three balance sources into one total-balance figure:
// local custody balance, remote spot balance and remote staking balance,
// minus the reserved-for-withdrawal accumulator.
//
// The remote components are snapshots as of the previous remote settlement
// point, not the current local block. That staleness is structural: a
// cross-layer transfer made this block is invisible here until the next one,
// which is why balance-dependent operations sit behind the freshness gate.
type Oracle struct {
	sctx          *slot.Context
	reader        remote.Reader
	reserve       *reserve.Service
	remoteAccount hub.Address
	asset         uint32
}

func New(sctx *slot.Context, reader remote.Reader, rsv *reserve.Service, remoteAccount hub.Address, asset uint32) *Oracle {
	return &Oracle{
		sctx:          sctx,
		reader:        reader,
		reserve:       rsv,
		remoteAccount: remoteAccount,
		asset:         asset,
	}
}

// AsOfBlock returns the local block height the remote components of
// TotalBalance correspond to.
func (o *Oracle) AsOfBlock() uint32 {
	return o.reader.AsOfBlock()
}

// TotalBalance returns the liability-adjusted total vault balance.
// Pure read; a missing remote account contributes zero rather than failing.
// Floors at zero if the reserve momentarily exceeds the raw aggregate.
func (o *Oracle) TotalBalance() (*big.Int, error) {
	local, err := o.sctx.State().GetBalance(o.sctx.Address())
	if err != nil {
		return nil, errors.Wrap(err, "failed to get custody balance")
	}

	spot, err := o.reader.SpotBalance(o.remoteAccount, o.asset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read remote spot balance")
	}

	summary, err := o.reader.DelegatorSummary(o.remoteAccount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read remote staking balance")
	}
	// widen each component before summing; the uint64 sum can wrap
	staked := remote.FromRemoteAmount(summary.Delegated)
	staked.Add(staked, remote.FromRemoteAmount(summary.Undelegated))
	staked.Add(staked, remote.FromRemoteAmount(summary.PendingWithdrawal))

	reserved, err := o.reserve.Get()
	if err != nil {
		return nil, err
	}

	total := new(big.Int).Set(local)
	total.Add(total, remote.FromRemoteAmount(spot))
	total.Add(total, staked)
	total.Sub(total, reserved)
	if total.Sign() < 0 {
		total.SetInt64(0)
	}
	return total, nil
}

// AccountExists reports whether the account exists on the remote layer.
// Exposed because remote transfers to a non-existent account silently vanish;
// payout paths must consult this before sending.
func (o *Oracle) AccountExists(account hub.Address) (bool, error) {
	return o.reader.AccountExists(account)
}

// RemoteSpotBalance returns the vault's own claimable remote spot balance,
// widened to local units.
func (o *Oracle) RemoteSpotBalance() (*big.Int, error) {
	spot, err := o.reader.SpotBalance(o.remoteAccount, o.asset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read remote spot balance")
	}
	return remote.FromRemoteAmount(spot), nil
}
