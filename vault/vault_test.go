// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vault

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/kv"
	"github.com/stakehub/stakehub/remote"
	"github.com/stakehub/stakehub/state"
	"github.com/stakehub/stakehub/vault/auth"
	"github.com/stakehub/stakehub/vault/delegation"
	"github.com/stakehub/stakehub/vault/settlement"
	"github.com/stakehub/stakehub/vault/transfer"
)

var (
	vaultAddr = hub.BytesToAddress([]byte("vault"))
	remoteAcc = hub.BytesToAddress([]byte("vault-remote"))
	val1      = hub.BytesToAddress([]byte("validator-1"))
	val2      = hub.BytesToAddress([]byte("validator-2"))
	owner     = hub.BytesToAddress([]byte("owner"))
	alice     = hub.BytesToAddress([]byte("alice"))
	bob       = hub.BytesToAddress([]byte("bob"))
	dest      = hub.BytesToAddress([]byte("payout-dest"))
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), hub.RateScale)
}

// rateOf builds a fixed point rate from a percentage, e.g. 110 -> 1.1.
func rateOf(percent int64) *big.Int {
	r := new(big.Int).Mul(big.NewInt(percent), hub.RateScale)
	return r.Div(r, big.NewInt(100))
}

type harness struct {
	v   *Vault
	st  *state.State
	sim *remote.Sim
}

func newTestVault(t *testing.T, modify func(*InitParams)) *harness {
	db, err := kv.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := state.New(db)
	sim := remote.NewSim(remoteAcc)
	v := New(st, sim, sim, Config{
		VaultAddress:  vaultAddr,
		RemoteAccount: remoteAcc,
		Asset:         0,
	})

	params := InitParams{
		Owner:               owner,
		DefaultValidator:    val1,
		Capacity:            new(big.Int),
		MinimumDeposit:      eth(1),
		MinimumStakeBalance: new(big.Int),
		DefaultAccountLimit: new(big.Int),
		BatchCooldown:       0,
		ClaimDelay:          100,
	}
	if modify != nil {
		modify(&params)
	}
	require.NoError(t, v.Initialize(params))

	st.SetBalance(alice, eth(1000))
	st.SetBalance(bob, eth(500))
	return &harness{v: v, st: st, sim: sim}
}

func TestEndToEnd(t *testing.T) {
	h := newTestVault(t, nil)

	// alice deposits at the identity rate
	receipt, err := h.v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)
	assert.Equal(t, eth(100), receipt.Minted)

	// the operator pushes custody funds into the remote stake
	moved, err := h.v.TransferToRemote(owner, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, eth(100), moved)

	// same block: balance-dependent entry points are gated
	_, err = h.v.Deposit(bob, eth(50), 1)
	assert.ErrorIs(t, err, transfer.ErrTransferNotObserved)

	h.sim.CommitBlock()

	// next block the stake shows up remotely and the rate still reads 1.0
	r, err := h.v.ExchangeRate()
	require.NoError(t, err)
	assert.Equal(t, rateOf(100), r)

	receipt, err = h.v.Deposit(bob, eth(50), 2)
	require.NoError(t, err)
	assert.Equal(t, eth(50), receipt.Minted)

	// staking rewards land on the remote spot balance: 165 backing 150
	h.sim.FundSpot(remoteAcc, 0, 15_0000_0000)
	r, err = h.v.ExchangeRate()
	require.NoError(t, err)
	assert.Equal(t, rateOf(110), r)

	// alice queues a partial exit, priced later at settlement time
	id, err := h.v.QueueWithdraw(alice, eth(40), 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	aliceClaims, _ := h.v.ClaimBalanceOf(alice)
	assert.Equal(t, eth(60), aliceClaims, "escrowed claims leave the balance")

	batchIndex, err := h.v.ProcessBatch(3, 2000)
	require.NoError(t, err)

	batch, err := h.v.GetBatch(batchIndex)
	require.NoError(t, err)
	assert.Equal(t, eth(40), batch.Processed)
	assert.Equal(t, rateOf(110), batch.SnapshotRate)

	supply, _ := h.v.TotalSupply()
	assert.Equal(t, eth(110), supply, "settled claims are burned")
	reserved, _ := h.v.Reserved()
	assert.Equal(t, eth(44), reserved)

	// settlement moved funds cross-layer, so block 3 is gated again
	_, err = h.v.Deposit(bob, eth(10), 3)
	assert.ErrorIs(t, err, transfer.ErrTransferNotObserved)

	h.sim.CommitBlock()

	// once observed, the liability-adjusted rate is unchanged by settlement
	r, err = h.v.ExchangeRate()
	require.NoError(t, err)
	assert.Equal(t, rateOf(110), r)

	// claims respect the delay measured from batch finalization
	h.sim.CreateAccount(dest)
	_, err = h.v.ClaimWithdraw(alice, id, dest, 2050)
	assert.ErrorIs(t, err, settlement.ErrClaimDelayActive)

	payout, err := h.v.ClaimWithdraw(alice, id, dest, 2101)
	require.NoError(t, err)
	assert.Equal(t, eth(44), payout, "payout at the batch snapshot rate")

	reserved, _ = h.v.Reserved()
	assert.Equal(t, 0, reserved.Sign())

	_, err = h.v.ClaimWithdraw(alice, id, dest, 2102)
	assert.ErrorIs(t, err, settlement.ErrAlreadyClaimed)

	h.sim.CommitBlock()
	got, err := h.sim.SpotBalance(dest, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(44_0000_0000), got)

	// everyone left is still priced at 1.1
	r, err = h.v.ExchangeRate()
	require.NoError(t, err)
	assert.Equal(t, rateOf(110), r)
}

func TestCancelWithdraw(t *testing.T) {
	h := newTestVault(t, nil)
	_, err := h.v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)

	id0, err := h.v.QueueWithdraw(alice, eth(30), 100)
	require.NoError(t, err)

	// only the owner may cancel
	err = h.v.CancelWithdraw(bob, id0, 101)
	assert.ErrorIs(t, err, settlement.ErrNotRequestOwner)

	require.NoError(t, h.v.CancelWithdraw(alice, id0, 102))
	claims, _ := h.v.ClaimBalanceOf(alice)
	assert.Equal(t, eth(100), claims, "escrow returns on cancellation")

	err = h.v.CancelWithdraw(alice, id0, 103)
	assert.ErrorIs(t, err, settlement.ErrAlreadyCancelled)

	// a cancelled request is skipped by settlement, not settled as zero
	id1, err := h.v.QueueWithdraw(alice, eth(10), 104)
	require.NoError(t, err)

	_, err = h.v.ProcessBatch(2, 200)
	require.NoError(t, err)

	req, err := h.v.GetWithdraw(id1)
	require.NoError(t, err)
	assert.True(t, req.Assigned())
	cursor, _ := h.v.Settlement().NextUnassigned()
	assert.Equal(t, uint64(2), cursor)

	// the cancelled one keeps its id but can never be claimed
	_, err = h.v.ClaimWithdraw(alice, id0, dest, 9999)
	assert.ErrorIs(t, err, settlement.ErrCancelledRequest)

	err = h.v.CancelWithdraw(alice, id1, 105)
	assert.ErrorIs(t, err, settlement.ErrAlreadyAssigned)
}

func TestFIFOBlocking(t *testing.T) {
	h := newTestVault(t, func(p *InitParams) {
		p.MinimumStakeBalance = eth(50)
	})
	_, err := h.v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)

	// the head request exceeds what settlement may release
	id0, err := h.v.QueueWithdraw(alice, eth(80), 100)
	require.NoError(t, err)
	id1, err := h.v.QueueWithdraw(alice, eth(10), 101)
	require.NoError(t, err)

	_, err = h.v.ProcessBatch(2, 200)
	require.NoError(t, err)

	// the smaller request behind the head must not jump the queue
	req0, _ := h.v.GetWithdraw(id0)
	req1, _ := h.v.GetWithdraw(id1)
	assert.False(t, req0.Assigned())
	assert.False(t, req1.Assigned())

	cursor, _ := h.v.Settlement().NextUnassigned()
	assert.Equal(t, uint64(0), cursor)

	// the empty batch is persisted regardless
	batch, err := h.v.GetBatch(0)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Processed.Sign())
}

func TestBatchCooldown(t *testing.T) {
	h := newTestVault(t, func(p *InitParams) {
		p.BatchCooldown = 500
	})
	_, err := h.v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)

	_, err = h.v.ProcessBatch(2, 1000)
	require.NoError(t, err)

	_, err = h.v.ProcessBatch(3, 1499)
	assert.ErrorIs(t, err, settlement.ErrCooldownActive)

	_, err = h.v.ProcessBatch(4, 1500)
	require.NoError(t, err)

	count, _ := h.v.Settlement().BatchCount()
	assert.Equal(t, uint64(2), count)
}

func TestClaimGuards(t *testing.T) {
	h := newTestVault(t, nil)
	_, err := h.v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)

	id, err := h.v.QueueWithdraw(alice, eth(20), 100)
	require.NoError(t, err)

	_, err = h.v.ClaimWithdraw(alice, id, dest, 101)
	assert.ErrorIs(t, err, settlement.ErrNotAssigned)

	_, err = h.v.ClaimWithdraw(alice, 99, dest, 101)
	assert.ErrorIs(t, err, settlement.ErrUnknownWithdraw)

	_, err = h.v.ProcessBatch(2, 1000)
	require.NoError(t, err)

	_, err = h.v.ClaimWithdraw(bob, id, dest, 2000)
	assert.ErrorIs(t, err, settlement.ErrNotRequestOwner)

	// a payout to a non-existent remote account would silently vanish
	_, err = h.v.ClaimWithdraw(alice, id, dest, 2000)
	assert.ErrorIs(t, err, settlement.ErrNoRemoteAccount)

	// the settlement transfer is still in flight: the claim pool can't cover it
	h.sim.CreateAccount(dest)
	_, err = h.v.ClaimWithdraw(alice, id, dest, 2000)
	assert.ErrorIs(t, err, settlement.ErrRemoteLiquidity)

	h.sim.CommitBlock()
	payout, err := h.v.ClaimWithdraw(alice, id, dest, 2000)
	require.NoError(t, err)
	assert.Equal(t, eth(20), payout)
}

func TestSlash(t *testing.T) {
	h := newTestVault(t, nil)
	_, err := h.v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)
	_, err = h.v.TransferToRemote(owner, nil, 1)
	require.NoError(t, err)
	h.sim.CommitBlock()

	id, err := h.v.QueueWithdraw(alice, eth(20), 500)
	require.NoError(t, err)
	_, err = h.v.ProcessBatch(2, 1000)
	require.NoError(t, err)

	reserved, _ := h.v.Reserved()
	assert.Equal(t, eth(20), reserved)

	// only the owner may reprice, and only downward; even a manager is
	// locked out of devaluing queued withdrawals
	err = h.v.ApplySlash(alice, 0, rateOf(50))
	assert.ErrorIs(t, err, auth.ErrNotOwner)
	require.NoError(t, h.v.GrantRole(owner, bob, auth.RoleManager))
	err = h.v.ApplySlash(bob, 0, rateOf(50))
	assert.ErrorIs(t, err, auth.ErrNotOwner)
	err = h.v.ApplySlash(owner, 0, rateOf(100))
	assert.ErrorIs(t, err, settlement.ErrSlashRateNotLower)

	require.NoError(t, h.v.ApplySlash(owner, 0, rateOf(50)))

	// the reserve shrinks by the revaluation delta
	reserved, _ = h.v.Reserved()
	assert.Equal(t, eth(10), reserved)

	batch, err := h.v.GetBatch(0)
	require.NoError(t, err)
	assert.True(t, batch.Slashed)
	assert.Equal(t, rateOf(50), batch.PayoutRate())

	err = h.v.ApplySlash(owner, 0, rateOf(40))
	assert.ErrorIs(t, err, settlement.ErrBatchSlashed)

	// the claim pays at the slashed rate
	h.sim.CommitBlock()
	h.sim.CreateAccount(dest)
	payout, err := h.v.ClaimWithdraw(alice, id, dest, 2000)
	require.NoError(t, err)
	assert.Equal(t, eth(10), payout)

	reserved, _ = h.v.Reserved()
	assert.Equal(t, 0, reserved.Sign())
}

func TestSettlementShortfallPullsStake(t *testing.T) {
	h := newTestVault(t, nil)
	_, err := h.v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)
	_, err = h.v.TransferToRemote(owner, nil, 1)
	require.NoError(t, err)
	h.sim.CommitBlock()

	_, err = h.v.QueueWithdraw(alice, eth(30), 500)
	require.NoError(t, err)
	_, err = h.v.ProcessBatch(2, 1000)
	require.NoError(t, err)

	h.sim.CommitBlock()
	summary, err := h.sim.DelegatorSummary(remoteAcc)
	require.NoError(t, err)
	assert.Equal(t, uint64(70_0000_0000), summary.Delegated)

	spot, err := h.sim.SpotBalance(remoteAcc, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(30_0000_0000), spot, "the shortfall was pulled back to spot")
}

func TestProcessRevertsAtomically(t *testing.T) {
	h := newTestVault(t, nil)
	_, err := h.v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)
	_, err = h.v.TransferToRemote(owner, nil, 1)
	require.NoError(t, err)
	h.sim.CommitBlock()

	_, err = h.v.QueueWithdraw(alice, eth(30), 500)
	require.NoError(t, err)

	// the shortfall path needs to undelegate, but the stake is locked
	h.sim.SetDelegationLock(val1, 9999)
	_, err = h.v.ProcessBatch(2, 1000)
	require.Error(t, err)

	// nothing of the half-executed batch survives
	count, _ := h.v.Settlement().BatchCount()
	assert.Equal(t, uint64(0), count)
	cursor, _ := h.v.Settlement().NextUnassigned()
	assert.Equal(t, uint64(0), cursor)
	supply, _ := h.v.TotalSupply()
	assert.Equal(t, eth(100), supply)
	reserved, _ := h.v.Reserved()
	assert.Equal(t, 0, reserved.Sign())
	last, _ := h.v.Settlement().LastSettlement()
	assert.Zero(t, last)

	// once the lock expires the same batch settles cleanly
	h.sim.SetDelegationLock(val1, 900)
	_, err = h.v.ProcessBatch(2, 1000)
	require.NoError(t, err)
}

func TestPauseGatesUserOperations(t *testing.T) {
	h := newTestVault(t, nil)
	require.NoError(t, h.v.SetPaused(owner, true))

	_, err := h.v.Deposit(alice, eth(10), 1)
	assert.ErrorIs(t, err, auth.ErrPaused)
	_, err = h.v.QueueWithdraw(alice, eth(1), 100)
	assert.ErrorIs(t, err, auth.ErrPaused)
	_, err = h.v.ProcessBatch(1, 100)
	assert.ErrorIs(t, err, auth.ErrPaused)

	require.NoError(t, h.v.SetPaused(owner, false))
	_, err = h.v.Deposit(alice, eth(10), 1)
	assert.NoError(t, err)
}

func TestRoleGates(t *testing.T) {
	h := newTestVault(t, nil)
	_, err := h.v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)

	_, err = h.v.TransferToRemote(alice, nil, 1)
	assert.ErrorIs(t, err, auth.ErrNotOperator)
	assert.ErrorIs(t, h.v.SetCapacity(alice, eth(1)), auth.ErrNotManager)
	assert.ErrorIs(t, h.v.GrantRole(alice, bob, auth.RoleOperator), auth.ErrNotOwner)
	assert.ErrorIs(t, h.v.SetPaused(alice, true), auth.ErrNotManager)

	// granted roles unlock exactly their tier
	require.NoError(t, h.v.GrantRole(owner, bob, auth.RoleOperator))
	_, err = h.v.TransferToRemote(bob, eth(10), 1)
	assert.NoError(t, err)
	assert.ErrorIs(t, h.v.SetCapacity(bob, eth(1)), auth.ErrNotManager)

	// the withdrawal throttle stays with the owner even for managers
	require.NoError(t, h.v.GrantRole(owner, bob, auth.RoleManager))
	assert.ErrorIs(t, h.v.SetMinimumStakeBalance(bob, eth(1)), auth.ErrNotOwner)
	assert.NoError(t, h.v.SetMinimumStakeBalance(owner, eth(1)))
}

func TestRedelegate(t *testing.T) {
	h := newTestVault(t, nil)
	_, err := h.v.Deposit(alice, eth(100), 1)
	require.NoError(t, err)
	_, err = h.v.TransferToRemote(owner, nil, 1)
	require.NoError(t, err)
	h.sim.CommitBlock()

	require.NoError(t, h.v.Redelegate(owner, val1, val2, 40_0000_0000, 1000))
	h.sim.CommitBlock()

	delegations, err := h.sim.ValidatorDelegations(remoteAcc)
	require.NoError(t, err)
	byValidator := map[hub.Address]uint64{}
	for _, d := range delegations {
		byValidator[d.Validator] = d.Amount
	}
	assert.Equal(t, uint64(60_0000_0000), byValidator[val1])
	assert.Equal(t, uint64(40_0000_0000), byValidator[val2])

	// more than the fresh remote position holds is refused
	err = h.v.Redelegate(owner, val1, val2, 70_0000_0000, 1000)
	assert.ErrorIs(t, err, delegation.ErrInsufficientDelegated)
}
