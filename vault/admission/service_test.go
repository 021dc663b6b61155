// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package admission

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/kv"
	"github.com/stakehub/stakehub/slot"
	"github.com/stakehub/stakehub/state"
	"github.com/stakehub/stakehub/vault/delegation"
	"github.com/stakehub/stakehub/vault/oracle"
	"github.com/stakehub/stakehub/vault/reserve"
	"github.com/stakehub/stakehub/vault/token"
	"github.com/stakehub/stakehub/vault/transfer"

	"github.com/stakehub/stakehub/remote"
)

var (
	vaultAddr = hub.BytesToAddress([]byte("vault"))
	remoteAcc = hub.BytesToAddress([]byte("vault-remote"))
	validator = hub.BytesToAddress([]byte("validator"))
	alice     = hub.BytesToAddress([]byte("alice"))
)

type harness struct {
	st       *state.State
	sim      *remote.Sim
	tok      *token.Token
	transfer *transfer.Service
	adm      *Service
}

func newHarness(t *testing.T) *harness {
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

	return &harness{
		st:       st,
		sim:      sim,
		tok:      tok,
		transfer: trf,
		adm:      New(sctx, tok, orc, trf),
	}
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), hub.RateScale)
}

func TestDepositMintsAtIdentityRate(t *testing.T) {
	h := newHarness(t)
	h.st.SetBalance(alice, eth(100))

	receipt, err := h.adm.Deposit(alice, eth(60), 1)
	require.NoError(t, err)
	assert.Equal(t, eth(60), receipt.Accepted)
	assert.Equal(t, eth(60), receipt.Minted)
	assert.Equal(t, 0, receipt.Refunded.Sign())

	custody, err := h.st.GetBalance(vaultAddr)
	require.NoError(t, err)
	assert.Equal(t, eth(60), custody)

	callerBal, err := h.st.GetBalance(alice)
	require.NoError(t, err)
	assert.Equal(t, eth(40), callerBal)

	claims, err := h.tok.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, eth(60), claims)
}

func TestDepositPricedBeforeOwnFunds(t *testing.T) {
	h := newHarness(t)
	h.st.SetBalance(alice, eth(200))

	_, err := h.adm.Deposit(alice, eth(100), 1)
	require.NoError(t, err)

	// a reward doubles the backing of the outstanding supply
	require.NoError(t, h.st.AddBalance(vaultAddr, eth(100)))

	receipt, err := h.adm.Deposit(alice, eth(100), 2)
	require.NoError(t, err)
	// at rate 2.0 the second deposit mints half as many claims, so it
	// cannot dilute the first depositor
	assert.Equal(t, eth(50), receipt.Minted)
}

func TestDepositBelowMinimum(t *testing.T) {
	h := newHarness(t)
	h.st.SetBalance(alice, eth(100))
	require.NoError(t, h.adm.SetMinimumDeposit(eth(10)))

	_, err := h.adm.Deposit(alice, eth(9), 1)
	assert.ErrorIs(t, err, ErrBelowMinimum)
}

func TestDepositCapacityPartialAccept(t *testing.T) {
	h := newHarness(t)
	h.st.SetBalance(alice, eth(100))
	require.NoError(t, h.adm.SetCapacity(eth(70)))

	receipt, err := h.adm.Deposit(alice, eth(100), 1)
	require.NoError(t, err)
	assert.Equal(t, eth(70), receipt.Accepted)
	assert.Equal(t, eth(30), receipt.Refunded)

	// the refund landed back in the caller's balance
	bal, err := h.st.GetBalance(alice)
	require.NoError(t, err)
	assert.Equal(t, eth(30), bal)

	_, err = h.adm.Deposit(alice, eth(1), 2)
	assert.ErrorIs(t, err, ErrCapacityReached)
}

func TestDepositAccountLimit(t *testing.T) {
	h := newHarness(t)
	h.st.SetBalance(alice, eth(100))
	require.NoError(t, h.adm.SetDefaultAccountLimit(eth(25)))

	receipt, err := h.adm.Deposit(alice, eth(40), 1)
	require.NoError(t, err)
	assert.Equal(t, eth(25), receipt.Accepted)
	assert.Equal(t, eth(15), receipt.Refunded)

	_, err = h.adm.Deposit(alice, eth(1), 2)
	assert.ErrorIs(t, err, ErrLimitExhausted)

	// whitelist override lifts the ceiling for this account
	require.NoError(t, h.adm.SetAccountLimit(alice, eth(60)))
	receipt, err = h.adm.Deposit(alice, eth(40), 3)
	require.NoError(t, err)
	assert.Equal(t, eth(35), receipt.Accepted, "override minus already-deposited")
}

func TestDepositLimitLoweredBelowDeposited(t *testing.T) {
	h := newHarness(t)
	h.st.SetBalance(alice, eth(100))
	require.NoError(t, h.adm.SetDefaultAccountLimit(eth(50)))

	_, err := h.adm.Deposit(alice, eth(40), 1)
	require.NoError(t, err)

	// ceiling lowered below what the account already put in: the remaining
	// allowance saturates at zero instead of going negative
	require.NoError(t, h.adm.SetDefaultAccountLimit(eth(30)))

	remaining, err := h.adm.RemainingAccountLimit(alice)
	require.NoError(t, err)
	require.NotNil(t, remaining)
	assert.Equal(t, 0, remaining.Sign())

	_, err = h.adm.Deposit(alice, eth(1), 2)
	assert.ErrorIs(t, err, ErrLimitExhausted)

	// a whitelist override below the deposited figure saturates the same way
	require.NoError(t, h.adm.SetAccountLimit(alice, eth(20)))
	remaining, err = h.adm.RemainingAccountLimit(alice)
	require.NoError(t, err)
	require.NotNil(t, remaining)
	assert.Equal(t, 0, remaining.Sign())

	_, err = h.adm.Deposit(alice, eth(1), 3)
	assert.ErrorIs(t, err, ErrLimitExhausted)
}

func TestDepositInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	h.st.SetBalance(alice, eth(5))

	_, err := h.adm.Deposit(alice, eth(10), 1)
	assert.ErrorIs(t, err, ErrInsufficientFund)
}

func TestDepositBlockedByUnobservedTransfer(t *testing.T) {
	h := newHarness(t)
	h.st.SetBalance(alice, eth(100))

	_, err := h.adm.Deposit(alice, eth(50), 3)
	require.NoError(t, err)

	_, err = h.transfer.ToRemote(nil, 3)
	require.NoError(t, err)

	// same block: the moved funds are not yet visible to the oracle
	_, err = h.adm.Deposit(alice, eth(10), 3)
	assert.ErrorIs(t, err, transfer.ErrTransferNotObserved)

	// next block, after the remote snapshot advanced, deposits reopen
	h.sim.CommitBlock()
	_, err = h.adm.Deposit(alice, eth(10), 4)
	assert.NoError(t, err)
}
