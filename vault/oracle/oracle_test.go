// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package oracle

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/kv"
	"github.com/stakehub/stakehub/remote"
	"github.com/stakehub/stakehub/slot"
	"github.com/stakehub/stakehub/state"
	"github.com/stakehub/stakehub/vault/reserve"
)

var (
	vaultAddr = hub.BytesToAddress([]byte("vault"))
	remoteAcc = hub.BytesToAddress([]byte("vault-remote"))
)

// stubReader serves fixed snapshots, for driving the aggregation directly.
type stubReader struct {
	spot    uint64
	summary remote.DelegatorSummary
}

func (r *stubReader) AsOfBlock() uint32 { return 0 }

func (r *stubReader) SpotBalance(hub.Address, uint32) (uint64, error) {
	return r.spot, nil
}

func (r *stubReader) DelegatorSummary(hub.Address) (remote.DelegatorSummary, error) {
	return r.summary, nil
}

func (r *stubReader) AccountExists(hub.Address) (bool, error) { return true, nil }

func (r *stubReader) ValidatorDelegations(hub.Address) ([]remote.Delegation, error) {
	return nil, nil
}

func newTestOracle(t *testing.T, reader remote.Reader) (*Oracle, *state.State) {
	db, err := kv.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := state.New(db)
	sctx := slot.NewContext(vaultAddr, st)
	return New(sctx, reader, reserve.New(sctx), remoteAcc, 0), st
}

func TestTotalBalanceAggregates(t *testing.T) {
	orc, st := newTestOracle(t, &stubReader{
		spot: 10_0000_0000,
		summary: remote.DelegatorSummary{
			Delegated:         20_0000_0000,
			Undelegated:       3_0000_0000,
			PendingWithdrawal: 2_0000_0000,
		},
	})
	st.SetBalance(vaultAddr, new(big.Int).Mul(big.NewInt(5), hub.RateScale))

	total, err := orc.TotalBalance()
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(big.NewInt(40), hub.RateScale), total)
}

func TestTotalBalanceStakingSumExceedsRemoteWidth(t *testing.T) {
	// each component fits uint64 but their sum does not; the aggregate must
	// carry the full value, not a wrapped one
	orc, _ := newTestOracle(t, &stubReader{
		summary: remote.DelegatorSummary{
			Delegated:         math.MaxUint64,
			Undelegated:       math.MaxUint64,
			PendingWithdrawal: 1,
		},
	})

	total, err := orc.TotalBalance()
	require.NoError(t, err)

	want := new(big.Int).SetUint64(math.MaxUint64)
	want.Mul(want, big.NewInt(2))
	want.Add(want, big.NewInt(1))
	want.Mul(want, new(big.Int).Exp(big.NewInt(10), big.NewInt(remote.LocalDecimals-remote.RemoteDecimals), nil))
	assert.Equal(t, want, total)
}
