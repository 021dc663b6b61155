// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settlement

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/log"
	"github.com/stakehub/stakehub/metrics"
	"github.com/stakehub/stakehub/remote"
	"github.com/stakehub/stakehub/reverts"
	"github.com/stakehub/stakehub/slot"
	"github.com/stakehub/stakehub/vault/delegation"
	"github.com/stakehub/stakehub/vault/oracle"
	"github.com/stakehub/stakehub/vault/rate"
	"github.com/stakehub/stakehub/vault/reserve"
	"github.com/stakehub/stakehub/vault/token"
	"github.com/stakehub/stakehub/vault/transfer"
)

var (
	logger = log.WithContext("pkg", "settlement")

	slotRequests       = slot.NameToSlot("withdraw-requests")
	slotRequestCounter = slot.NameToSlot("withdraw-request-counter")
	slotQueueCursor    = slot.NameToSlot("withdraw-queue-cursor")
	slotBatches        = slot.NameToSlot("settlement-batches")
	slotBatchCounter   = slot.NameToSlot("settlement-batch-counter")
	slotLastSettlement = slot.NameToSlot("last-settlement-time")
	slotMinStake       = slot.NameToSlot("minimum-stake-balance")
	slotCooldown       = slot.NameToSlot("batch-cooldown")
	slotClaimDelay     = slot.NameToSlot("claim-delay")

	ErrZeroWithdraw       = reverts.New("zero withdraw amount")
	ErrInsufficientClaim  = reverts.New("insufficient claim token balance")
	ErrUnknownWithdraw    = reverts.New("unknown withdraw request")
	ErrNotRequestOwner    = reverts.New("not the request owner")
	ErrAlreadyAssigned    = reverts.New("request already assigned to a batch")
	ErrAlreadyCancelled   = reverts.New("request already cancelled")
	ErrNotAssigned        = reverts.New("request not assigned to a batch")
	ErrAlreadyClaimed     = reverts.New("request already claimed")
	ErrCancelledRequest   = reverts.New("request was cancelled")
	ErrCooldownActive     = reverts.New("batch cooldown active")
	ErrClaimDelayActive   = reverts.New("claim delay active")
	ErrUnknownBatch       = reverts.New("unknown batch")
	ErrBatchSlashed       = reverts.New("batch already slashed")
	ErrSlashRateNotLower  = reverts.New("slash rate not lower than snapshot rate")
	ErrNoRemoteAccount    = reverts.New("destination account does not exist on remote layer")
	ErrRemoteLiquidity    = reverts.New("insufficient remote liquidity for payout")
)

var (
	metricQueued    = metrics.LazyLoadCounter("withdraw_queued_count")
	metricCancelled = metrics.LazyLoadCounter("withdraw_cancelled_count")
	metricBatches   = metrics.LazyLoadCounterVec("settlement_batch_count", []string{"empty"})
	metricAssigned  = metrics.LazyLoadCounter("withdraw_assigned_count")
	metricClaimed   = metrics.LazyLoadCounter("withdraw_claimed_count")
	metricSlashes   = metrics.LazyLoadCounter("batch_slash_count")
	metricQueueLen  = metrics.LazyLoadGauge("withdraw_queue_unassigned")
)

// Service is the withdrawal queue and batch settlement state machine. It is
// the only component that burns claim tokens and the only one that moves a
// request into a batch.
type Service struct {
	sctx       *slot.Context
	token      *token.Token
	oracle     *oracle.Oracle
	reserve    *reserve.Service
	transfer   *transfer.Service
	delegation *delegation.Service
	bridge     remote.Bridge

	remoteAccount hub.Address
	asset         uint32

	requests       *slot.Mapping[slot.Uint64Key, *Request]
	requestCounter *slot.Counter
	cursor         *slot.Value[uint64]
	batches        *slot.Mapping[slot.Uint64Key, *Batch]
	batchCounter   *slot.Counter
	lastSettlement *slot.Value[uint64]
	minStake       *slot.Uint256
	cooldown       *slot.Value[uint64]
	claimDelay     *slot.Value[uint64]
}

func New(
	sctx *slot.Context,
	tok *token.Token,
	orc *oracle.Oracle,
	rsv *reserve.Service,
	trf *transfer.Service,
	dlg *delegation.Service,
	bridge remote.Bridge,
	remoteAccount hub.Address,
	asset uint32,
) *Service {
	return &Service{
		sctx:       sctx,
		token:      tok,
		oracle:     orc,
		reserve:    rsv,
		transfer:   trf,
		delegation: dlg,
		bridge:     bridge,

		remoteAccount: remoteAccount,
		asset:         asset,

		requests:       slot.NewMapping[slot.Uint64Key, *Request](sctx, slotRequests),
		requestCounter: slot.NewCounter(sctx, slotRequestCounter),
		cursor:         slot.NewValue[uint64](sctx, slotQueueCursor),
		batches:        slot.NewMapping[slot.Uint64Key, *Batch](sctx, slotBatches),
		batchCounter:   slot.NewCounter(sctx, slotBatchCounter),
		lastSettlement: slot.NewValue[uint64](sctx, slotLastSettlement),
		minStake:       slot.NewUint256(sctx, slotMinStake),
		cooldown:       slot.NewValue[uint64](sctx, slotCooldown),
		claimDelay:     slot.NewValue[uint64](sctx, slotClaimDelay),
	}
}

//
// Parameters
//

func (s *Service) MinimumStakeBalance() (*big.Int, error) {
	return s.minStake.Get()
}

func (s *Service) SetMinimumStakeBalance(v *big.Int) error {
	return s.minStake.Set(v)
}

func (s *Service) Cooldown() (uint64, error) {
	return s.cooldown.Get()
}

func (s *Service) SetCooldown(v uint64) error {
	return s.cooldown.Set(v)
}

func (s *Service) ClaimDelay() (uint64, error) {
	return s.claimDelay.Get()
}

func (s *Service) SetClaimDelay(v uint64) error {
	return s.claimDelay.Set(v)
}

//
// Queue operations
//

// Queue escrows amount claim tokens from owner and appends a new request.
// Returns the stable request id.
func (s *Service) Queue(owner hub.Address, amount *big.Int, now uint64) (uint64, error) {
	if amount.Sign() <= 0 {
		return 0, ErrZeroWithdraw
	}
	ok, err := s.token.Transfer(owner, s.sctx.Address(), amount)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrInsufficientClaim
	}

	id, err := s.requestCounter.Next()
	if err != nil {
		return 0, err
	}
	req := &Request{
		Owner:      owner,
		Amount:     new(big.Int).Set(amount),
		QueuedAt:   now,
		BatchIndex: hub.BatchUnassigned,
	}
	if err := s.requests.Set(slot.Uint64Key(id), req); err != nil {
		return 0, errors.Wrap(err, "failed to store withdraw request")
	}

	metricQueued().Add(1)
	logger.Info("queued withdraw", "id", id, "owner", owner, "amount", amount)
	return id, nil
}

// Cancel returns the escrow of a still-unassigned request to its owner and
// zeroes the amount. The id stays valid as an event-history reference.
func (s *Service) Cancel(owner hub.Address, id uint64, now uint64) error {
	req, err := s.getExisting(id)
	if err != nil {
		return err
	}
	if req.Owner != owner {
		return ErrNotRequestOwner
	}
	if req.Assigned() {
		return ErrAlreadyAssigned
	}
	if req.Cancelled() {
		return ErrAlreadyCancelled
	}

	ok, err := s.token.Transfer(s.sctx.Address(), owner, req.Amount)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("escrowed claim tokens missing at cancellation")
	}
	req.Amount = new(big.Int)
	req.CancelledAt = now
	if err := s.requests.Set(slot.Uint64Key(id), req); err != nil {
		return errors.Wrap(err, "failed to store withdraw request")
	}

	metricCancelled().Add(1)
	logger.Info("cancelled withdraw", "id", id, "owner", owner)
	return nil
}

//
// Settlement
//

// Process prices and executes one settlement batch. Callable by anyone, at
// most once per cooldown interval. A batch that assigns zero requests is
// still persisted and still resets the cooldown.
func (s *Service) Process(blockNum uint32, now uint64) (uint32, error) {
	last, err := s.lastSettlement.Get()
	if err != nil {
		return 0, err
	}
	cooldown, err := s.cooldown.Get()
	if err != nil {
		return 0, err
	}
	if last != 0 && now < last+cooldown {
		return 0, ErrCooldownActive
	}
	if err := s.transfer.CheckFreshness(blockNum); err != nil {
		return 0, err
	}

	totalBalance, err := s.oracle.TotalBalance()
	if err != nil {
		return 0, err
	}
	supply, err := s.token.TotalSupply()
	if err != nil {
		return 0, err
	}
	// one snapshot prices the entire batch
	snapshot := rate.Rate(totalBalance, supply)

	minStake, err := s.minStake.Get()
	if err != nil {
		return 0, err
	}
	capacity := new(big.Int).Sub(totalBalance, minStake)
	if capacity.Sign() < 0 {
		capacity.SetInt64(0)
	}

	head, err := s.cursor.Get()
	if err != nil {
		return 0, err
	}
	tail, err := s.requestCounter.Get()
	if err != nil {
		return 0, err
	}

	index, err := s.batchCounter.Next()
	if err != nil {
		return 0, err
	}
	// index 2^32-1 would alias the unassigned sentinel
	if index >= uint64(hub.BatchUnassigned) {
		return 0, errors.New("batch index overflow")
	}
	batchIndex := uint32(index)

	processed := new(big.Int)
	payout := new(big.Int)
	assigned := 0

	// strict FIFO: queue order is the fairness invariant. The walk stops at
	// the first request that doesn't fit; nothing behind it may jump ahead.
	for ; head < tail; head++ {
		req, err := s.getExisting(head)
		if err != nil {
			return 0, err
		}
		if req.Cancelled() {
			continue
		}
		value := rate.ToBase(req.Amount, snapshot)
		if value.Cmp(capacity) > 0 {
			break
		}

		ok, err := s.token.Burn(s.sctx.Address(), req.Amount)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errors.New("escrowed claim tokens missing at settlement")
		}
		req.BatchIndex = batchIndex
		if err := s.requests.Set(slot.Uint64Key(head), req); err != nil {
			return 0, errors.Wrap(err, "failed to store withdraw request")
		}

		processed.Add(processed, req.Amount)
		payout.Add(payout, value)
		capacity.Sub(capacity, value)
		assigned++
	}

	if err := s.cursor.Set(head); err != nil {
		return 0, err
	}

	batch := &Batch{
		Processed:    processed,
		SnapshotRate: snapshot,
		SlashedRate:  new(big.Int),
		FinalizedAt:  now,
	}
	if err := s.batches.Set(slot.Uint64Key(index), batch); err != nil {
		return 0, errors.Wrap(err, "failed to store batch")
	}

	// single floor per batch keeps reserve arithmetic exact under slashing
	batchValue := rate.ToBase(processed, snapshot)
	if err := s.reserve.Add(batchValue); err != nil {
		return 0, err
	}
	if err := s.lastSettlement.Set(now); err != nil {
		return 0, err
	}

	if err := s.finalize(payout, blockNum, now); err != nil {
		return 0, err
	}

	metricBatches().AddWithLabel(1, map[string]string{"empty": boolLabel(assigned == 0)})
	metricAssigned().Add(int64(assigned))
	metricQueueLen().Set(int64(tail - head))
	logger.Info("settled batch",
		"index", batchIndex, "assigned", assigned, "processed", processed, "rate", snapshot)
	return batchIndex, nil
}

// finalize nets fresh custody inflow against the batch payout, never gross:
// the payout portion funds the remote claim pool, a surplus is restaked, a
// shortfall is pulled back out of the stake.
func (s *Service) finalize(payout *big.Int, blockNum uint32, now uint64) error {
	custody, err := s.sctx.State().GetBalance(s.sctx.Address())
	if err != nil {
		return errors.Wrap(err, "failed to get custody balance")
	}

	fromCustody := new(big.Int).Set(payout)
	if fromCustody.Cmp(custody) > 0 {
		fromCustody.Set(custody)
	}
	if narrowed, err := remote.ToRemoteAmount(fromCustody); err != nil {
		return err
	} else if narrowed > 0 {
		if _, err := s.transfer.ToClaimPool(fromCustody, blockNum); err != nil {
			return err
		}
	}

	if custody.Cmp(payout) > 0 {
		surplus := new(big.Int).Sub(custody, payout)
		if narrowed, err := remote.ToRemoteAmount(surplus); err != nil {
			return err
		} else if narrowed > 0 {
			if _, err := s.transfer.ToRemote(surplus, blockNum); err != nil {
				return err
			}
		}
		return nil
	}

	shortfall := new(big.Int).Sub(payout, custody)
	narrowed, err := remote.ToRemoteAmount(shortfall)
	if err != nil {
		return err
	}
	if narrowed == 0 {
		return nil
	}
	validator, err := s.transfer.DefaultValidator()
	if err != nil {
		return err
	}
	if err := s.delegation.SafeUndelegate(validator, narrowed, now); err != nil {
		return err
	}
	if err := s.bridge.Submit(remote.StakeWithdraw{Amount: narrowed}); err != nil {
		return errors.Wrap(err, "failed to submit stake withdraw")
	}
	logger.Info("covering settlement shortfall from stake", "amount", shortfall, "validator", validator)
	return nil
}

// Claim pays out an assigned request to a remote destination account, after
// the claim delay and at the batch's effective rate.
func (s *Service) Claim(owner hub.Address, id uint64, destination hub.Address, now uint64) (*big.Int, error) {
	req, err := s.getExisting(id)
	if err != nil {
		return nil, err
	}
	if req.Owner != owner {
		return nil, ErrNotRequestOwner
	}
	if req.Cancelled() {
		return nil, ErrCancelledRequest
	}
	if !req.Assigned() {
		return nil, ErrNotAssigned
	}
	if req.Claimed() {
		return nil, ErrAlreadyClaimed
	}

	batch, err := s.GetBatch(req.BatchIndex)
	if err != nil {
		return nil, err
	}
	delay, err := s.claimDelay.Get()
	if err != nil {
		return nil, err
	}
	if now <= batch.FinalizedAt+delay {
		return nil, ErrClaimDelayActive
	}

	payout := rate.ToBase(req.Amount, batch.PayoutRate())
	narrowed, err := remote.ToRemoteAmount(payout)
	if err != nil {
		return nil, err
	}

	// pre-checks against the bridge's silent-failure mode: an unknown
	// destination or an underfunded pool would lose the payout without a trace
	exists, err := s.oracle.AccountExists(destination)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNoRemoteAccount
	}
	pool, err := s.oracle.RemoteSpotBalance()
	if err != nil {
		return nil, err
	}
	if pool.Cmp(payout) < 0 {
		return nil, ErrRemoteLiquidity
	}

	if narrowed > 0 {
		if err := s.bridge.Submit(remote.SpotSend{Destination: destination, Asset: s.asset, Amount: narrowed}); err != nil {
			return nil, errors.Wrap(err, "failed to submit payout")
		}
	}
	if err := s.reserve.Sub(payout); err != nil {
		return nil, err
	}

	req.ClaimedAt = now
	if err := s.requests.Set(slot.Uint64Key(id), req); err != nil {
		return nil, errors.Wrap(err, "failed to store withdraw request")
	}

	metricClaimed().Add(1)
	logger.Info("claimed withdraw", "id", id, "owner", owner, "payout", payout, "destination", destination)
	return payout, nil
}

// ApplySlash retroactively lowers a batch's effective payout rate after an
// external slashing event, at most once per batch, and shrinks the reserve by
// the revaluation delta so the oracle stays consistent.
func (s *Service) ApplySlash(batchIndex uint32, newRate *big.Int) error {
	batch, err := s.GetBatch(batchIndex)
	if err != nil {
		return err
	}
	if batch.Slashed {
		return ErrBatchSlashed
	}
	if newRate.Sign() < 0 || newRate.Cmp(batch.SnapshotRate) >= 0 {
		return ErrSlashRateNotLower
	}

	oldValue := rate.ToBase(batch.Processed, batch.SnapshotRate)
	newValue := rate.ToBase(batch.Processed, newRate)
	if err := s.reserve.Sub(new(big.Int).Sub(oldValue, newValue)); err != nil {
		return err
	}

	batch.SlashedRate = new(big.Int).Set(newRate)
	batch.Slashed = true
	if err := s.batches.Set(slot.Uint64Key(batchIndex), batch); err != nil {
		return errors.Wrap(err, "failed to store batch")
	}

	metricSlashes().Add(1)
	logger.Warn("applied slash", "batch", batchIndex, "newRate", newRate)
	return nil
}

//
// Getters
//

// GetWithdraw returns the request with the given id.
func (s *Service) GetWithdraw(id uint64) (*Request, error) {
	return s.getExisting(id)
}

// GetBatch returns the batch with the given index.
func (s *Service) GetBatch(index uint32) (*Batch, error) {
	count, err := s.batchCounter.Get()
	if err != nil {
		return nil, err
	}
	if uint64(index) >= count {
		return nil, ErrUnknownBatch
	}
	batch, err := s.batches.Get(slot.Uint64Key(index))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get batch")
	}
	return batch, nil
}

// BatchCount returns the number of settled batches.
func (s *Service) BatchCount() (uint64, error) {
	return s.batchCounter.Get()
}

// RequestCount returns the number of requests ever queued.
func (s *Service) RequestCount() (uint64, error) {
	return s.requestCounter.Get()
}

// NextUnassigned returns the queue cursor: the id settlement will look at next.
func (s *Service) NextUnassigned() (uint64, error) {
	return s.cursor.Get()
}

// LastSettlement returns the timestamp of the most recent batch, zero if none.
func (s *Service) LastSettlement() (uint64, error) {
	return s.lastSettlement.Get()
}

func (s *Service) getExisting(id uint64) (*Request, error) {
	count, err := s.requestCounter.Get()
	if err != nil {
		return nil, err
	}
	if id >= count {
		return nil, ErrUnknownWithdraw
	}
	req, err := s.requests.Get(slot.Uint64Key(id))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get withdraw request")
	}
	return req, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
