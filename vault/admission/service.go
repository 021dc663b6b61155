// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package admission

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/log"
	"github.com/stakehub/stakehub/metrics"
	"github.com/stakehub/stakehub/reverts"
	"github.com/stakehub/stakehub/slot"
	"github.com/stakehub/stakehub/vault/oracle"
	"github.com/stakehub/stakehub/vault/rate"
	"github.com/stakehub/stakehub/vault/token"
	"github.com/stakehub/stakehub/vault/transfer"
)

var (
	logger = log.WithContext("pkg", "admission")

	slotDeposits       = slot.NameToSlot("account-deposits")
	slotLimitOverrides = slot.NameToSlot("account-limit-overrides")
	slotCapacity       = slot.NameToSlot("vault-capacity")
	slotMinDeposit     = slot.NameToSlot("minimum-deposit")
	slotDefaultLimit   = slot.NameToSlot("default-account-limit")

	ErrBelowMinimum     = reverts.New("deposit below minimum amount")
	ErrCapacityReached  = reverts.New("vault capacity reached")
	ErrLimitExhausted   = reverts.New("per-account deposit limit exhausted")
	ErrInsufficientFund = reverts.New("insufficient balance for deposit")
)

var (
	metricDeposits  = metrics.LazyLoadCounter("deposit_count")
	metricRefunds   = metrics.LazyLoadCounter("deposit_refund_count")
	metricRejected  = metrics.LazyLoadCounterVec("deposit_rejected_count", []string{"reason"})
)

// Receipt reports what one deposit call did.
type Receipt struct {
	Accepted *big.Int // base asset taken into custody
	Minted   *big.Int // claim tokens created for the caller
	Refunded *big.Int // base asset returned to the caller
	Rate     *big.Int // pre-deposit exchange rate used for minting
}

// Service gates deposits: freshness, minimum amount, vault capacity and
// per-account ceilings, pricing accepted value at the pre-deposit rate.
type Service struct {
	sctx     *slot.Context
	token    *token.Token
	oracle   *oracle.Oracle
	transfer *transfer.Service

	deposits       *slot.Mapping[hub.Address, *big.Int]
	limitOverrides *slot.Mapping[hub.Address, *big.Int]
	capacity       *slot.Uint256
	minDeposit     *slot.Uint256
	defaultLimit   *slot.Uint256
}

func New(sctx *slot.Context, tok *token.Token, orc *oracle.Oracle, trf *transfer.Service) *Service {
	return &Service{
		sctx:     sctx,
		token:    tok,
		oracle:   orc,
		transfer: trf,

		deposits:       slot.NewMapping[hub.Address, *big.Int](sctx, slotDeposits),
		limitOverrides: slot.NewMapping[hub.Address, *big.Int](sctx, slotLimitOverrides),
		capacity:       slot.NewUint256(sctx, slotCapacity),
		minDeposit:     slot.NewUint256(sctx, slotMinDeposit),
		defaultLimit:   slot.NewUint256(sctx, slotDefaultLimit),
	}
}

//
// Parameters
//

// Capacity returns the vault capacity; zero means unbounded.
func (s *Service) Capacity() (*big.Int, error) {
	return s.capacity.Get()
}

func (s *Service) SetCapacity(v *big.Int) error {
	return s.capacity.Set(v)
}

func (s *Service) MinimumDeposit() (*big.Int, error) {
	return s.minDeposit.Get()
}

func (s *Service) SetMinimumDeposit(v *big.Int) error {
	return s.minDeposit.Set(v)
}

// DefaultAccountLimit returns the default per-account ceiling; zero means
// unbounded.
func (s *Service) DefaultAccountLimit() (*big.Int, error) {
	return s.defaultLimit.Get()
}

func (s *Service) SetDefaultAccountLimit(v *big.Int) error {
	return s.defaultLimit.Set(v)
}

// SetAccountLimit sets a whitelist override ceiling for one account.
func (s *Service) SetAccountLimit(addr hub.Address, v *big.Int) error {
	if err := s.limitOverrides.Set(addr, v); err != nil {
		return errors.Wrap(err, "failed to set account limit")
	}
	return nil
}

// DepositedBy returns the cumulative amount ever accepted from addr.
func (s *Service) DepositedBy(addr hub.Address) (*big.Int, error) {
	d, err := s.deposits.Get(addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get deposit record")
	}
	return d, nil
}

// RemainingAccountLimit returns how much addr may still deposit, nil for
// unbounded. Saturates at zero when an administrator lowered the ceiling
// below what the account already deposited.
func (s *Service) RemainingAccountLimit(addr hub.Address) (*big.Int, error) {
	limit, err := s.limitOverrides.Get(addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get account limit")
	}
	if limit.Sign() == 0 {
		if limit, err = s.defaultLimit.Get(); err != nil {
			return nil, err
		}
	}
	if limit.Sign() == 0 {
		return nil, nil
	}
	deposited, err := s.DepositedBy(addr)
	if err != nil {
		return nil, err
	}
	remaining := new(big.Int).Sub(limit, deposited)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	return remaining, nil
}

// Deposit admits up to amount from caller, mints claim tokens at the
// pre-deposit rate and refunds the unaccepted remainder in the same call.
func (s *Service) Deposit(caller hub.Address, amount *big.Int, blockNum uint32) (*Receipt, error) {
	// a transfer this block is invisible to the oracle; pricing now would
	// undercount the funds already moved
	if err := s.transfer.CheckFreshness(blockNum); err != nil {
		metricRejected().AddWithLabel(1, map[string]string{"reason": "freshness"})
		return nil, err
	}

	minDeposit, err := s.minDeposit.Get()
	if err != nil {
		return nil, err
	}
	if amount.Cmp(minDeposit) < 0 {
		metricRejected().AddWithLabel(1, map[string]string{"reason": "below_minimum"})
		return nil, ErrBelowMinimum
	}

	totalBalance, err := s.oracle.TotalBalance()
	if err != nil {
		return nil, err
	}
	capacity, err := s.capacity.Get()
	if err != nil {
		return nil, err
	}

	available := (*big.Int)(nil) // nil = unbounded
	if capacity.Sign() != 0 {
		if totalBalance.Cmp(capacity) >= 0 {
			metricRejected().AddWithLabel(1, map[string]string{"reason": "capacity"})
			return nil, ErrCapacityReached
		}
		available = new(big.Int).Sub(capacity, totalBalance)
	}
	remaining, err := s.RemainingAccountLimit(caller)
	if err != nil {
		return nil, err
	}
	if remaining != nil {
		if remaining.Sign() == 0 {
			metricRejected().AddWithLabel(1, map[string]string{"reason": "account_limit"})
			return nil, ErrLimitExhausted
		}
		if available == nil || remaining.Cmp(available) < 0 {
			available = remaining
		}
	}

	accepted := new(big.Int).Set(amount)
	if available != nil && available.Cmp(accepted) < 0 {
		accepted.Set(available)
	}
	refund := new(big.Int).Sub(amount, accepted)

	// the caller's value enters the call up front; custody credit and
	// refund below either both commit or the whole call reverts
	ok, err := s.sctx.State().SubBalance(caller, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientFund
	}

	supply, err := s.token.TotalSupply()
	if err != nil {
		return nil, err
	}
	// pre-deposit rate: the accepted funds must not be part of the balance
	// the mint is priced against
	preRate := rate.Rate(totalBalance, supply)
	minted := rate.ToClaim(accepted, preRate)
	if err := s.token.Mint(caller, minted); err != nil {
		return nil, err
	}

	if err := s.sctx.State().AddBalance(s.sctx.Address(), accepted); err != nil {
		return nil, err
	}
	deposited, err := s.DepositedBy(caller)
	if err != nil {
		return nil, err
	}
	if err := s.deposits.Set(caller, deposited.Add(deposited, accepted)); err != nil {
		return nil, errors.Wrap(err, "failed to set deposit record")
	}

	if refund.Sign() > 0 {
		if err := s.sctx.State().AddBalance(caller, refund); err != nil {
			return nil, err
		}
		metricRefunds().Add(1)
	}

	metricDeposits().Add(1)
	logger.Info("accepted deposit",
		"caller", caller, "accepted", accepted, "minted", minted, "refunded", refund)
	return &Receipt{Accepted: accepted, Minted: minted, Refunded: refund, Rate: preRate}, nil
}
