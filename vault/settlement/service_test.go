// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/kv"
	"github.com/stakehub/stakehub/remote"
	"github.com/stakehub/stakehub/slot"
	"github.com/stakehub/stakehub/state"
	"github.com/stakehub/stakehub/vault/delegation"
	"github.com/stakehub/stakehub/vault/oracle"
	"github.com/stakehub/stakehub/vault/reserve"
	"github.com/stakehub/stakehub/vault/token"
	"github.com/stakehub/stakehub/vault/transfer"
)

var (
	vaultAddr = hub.BytesToAddress([]byte("vault"))
	remoteAcc = hub.BytesToAddress([]byte("vault-remote"))
	validator = hub.BytesToAddress([]byte("validator"))
)

func newTestService(t *testing.T) (*Service, *slot.Context) {
	db, err := kv.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := state.New(db)
	sctx := slot.NewContext(vaultAddr, st)
	sim := remote.NewSim(remoteAcc)

	rsv := reserve.New(sctx)
	tok := token.New(sctx)
	orc := oracle.New(sctx, sim, rsv, remoteAcc, 0)
	dlg := delegation.New(sctx, sim, sim, remoteAcc)
	trf := transfer.New(sctx, sim, dlg, remoteAcc, 0)
	require.NoError(t, trf.SetDefaultValidator(validator))

	return New(sctx, tok, orc, rsv, trf, dlg, sim, remoteAcc, 0), sctx
}

func TestProcessRefusesIndexAliasingUnassignedSentinel(t *testing.T) {
	svc, sctx := newTestService(t)

	// a counter at 2^32-1 would mint a batch whose index reads as "not yet
	// assigned" on every request in it
	counter := slot.NewValue[uint64](sctx, slotBatchCounter)
	require.NoError(t, counter.Set(uint64(hub.BatchUnassigned)))

	_, err := svc.Process(1, 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch index overflow")
}
