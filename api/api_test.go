// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/kv"
	"github.com/stakehub/stakehub/remote"
	"github.com/stakehub/stakehub/state"
	"github.com/stakehub/stakehub/vault"
)

var (
	vaultAddr = hub.BytesToAddress([]byte("vault"))
	remoteAcc = hub.BytesToAddress([]byte("vault-remote"))
	validator = hub.BytesToAddress([]byte("validator"))
	owner     = hub.BytesToAddress([]byte("owner"))
	alice     = hub.BytesToAddress([]byte("alice"))
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), hub.RateScale)
}

func newTestServer(t *testing.T) (*httptest.Server, *vault.Vault) {
	db, err := kv.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := state.New(db)
	sim := remote.NewSim(remoteAcc)
	v := vault.New(st, sim, sim, vault.Config{
		VaultAddress:  vaultAddr,
		RemoteAccount: remoteAcc,
		Asset:         0,
	})
	require.NoError(t, v.Initialize(vault.InitParams{
		Owner:               owner,
		DefaultValidator:    validator,
		Capacity:            new(big.Int),
		MinimumDeposit:      eth(1),
		MinimumStakeBalance: new(big.Int),
		DefaultAccountLimit: new(big.Int),
		ClaimDelay:          100,
	}))

	st.SetBalance(alice, eth(1000))
	srv := httptest.NewServer(New(v))
	t.Cleanup(srv.Close)
	return srv, v
}

func getJSON(t *testing.T, url string, into any) int {
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(into))
	}
	return res.StatusCode
}

func TestGetVault(t *testing.T) {
	srv, v := newTestServer(t)
	_, err := v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)

	var body map[string]any
	status := getJSON(t, srv.URL+"/vault", &body)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, eth(100).String(), body["totalBalance"])
	assert.Equal(t, eth(100).String(), body["totalSupply"])
	assert.Equal(t, hub.RateScale.String(), body["exchangeRate"])
	assert.Equal(t, false, body["paused"])
	assert.Equal(t, float64(0), body["batchCount"])
}

func TestGetWithdrawal(t *testing.T) {
	srv, v := newTestServer(t)
	_, err := v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)
	id, err := v.QueueWithdraw(alice, eth(40), 1000)
	require.NoError(t, err)

	var body map[string]any
	status := getJSON(t, srv.URL+"/withdrawals/0", &body)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, float64(id), body["id"])
	assert.Equal(t, alice.String(), body["owner"])
	assert.Equal(t, eth(40).String(), body["amount"])
	assert.Equal(t, false, body["cancelled"])
	_, assigned := body["batchIndex"]
	assert.False(t, assigned, "unassigned requests carry no batch index")
}

func TestGetWithdrawalNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	var body map[string]any
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/withdrawals/99", &body))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/withdrawals/abc", &body))
}

func TestGetBatch(t *testing.T) {
	srv, v := newTestServer(t)
	_, err := v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)
	_, err = v.QueueWithdraw(alice, eth(40), 1000)
	require.NoError(t, err)
	_, err = v.ProcessBatch(2, 2000)
	require.NoError(t, err)

	var body map[string]any
	status := getJSON(t, srv.URL+"/batches/0", &body)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, eth(40).String(), body["processed"])
	assert.Equal(t, hub.RateScale.String(), body["snapshotRate"])
	assert.Equal(t, body["snapshotRate"], body["payoutRate"])
	assert.Equal(t, false, body["slashed"])

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/batches/1", &body))
}

func TestGetAccount(t *testing.T) {
	srv, v := newTestServer(t)
	_, err := v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)

	var body map[string]any
	status := getJSON(t, srv.URL+"/accounts/"+alice.String(), &body)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, eth(100).String(), body["claimBalance"])
	assert.Equal(t, eth(100).String(), body["deposited"])
	_, limited := body["remainingLimit"]
	assert.False(t, limited, "unbounded accounts carry no limit field")

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/accounts/xyz", &body))
}
