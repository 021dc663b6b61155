// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transfer

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/log"
	"github.com/stakehub/stakehub/remote"
	"github.com/stakehub/stakehub/reverts"
	"github.com/stakehub/stakehub/slot"
	"github.com/stakehub/stakehub/vault/delegation"
)

var (
	logger = log.WithContext("pkg", "transfer")

	slotLastTransferBlock = slot.NameToSlot("last-cross-layer-transfer-block")
	slotDefaultValidator  = slot.NameToSlot("default-validator")

	ErrNothingToTransfer    = reverts.New("nothing to transfer")
	ErrInsufficientCustody  = reverts.New("transfer exceeds custody balance")
	ErrTransferNotObserved  = reverts.New("cross-layer transfer not yet observed")
	ErrNoDefaultValidator   = reverts.New("default validator not configured")
)

// Service schedules local-to-remote moves and enforces the freshness gate:
// any balance-dependent action is valid only once a full block has elapsed
// since the last cross-layer transfer, because the remote balance read lags
// one block and would otherwise undercount funds already moved.
type Service struct {
	sctx       *slot.Context
	bridge     remote.Bridge
	delegation *delegation.Service

	remoteAccount hub.Address
	asset         uint32

	lastTransferBlock *slot.Value[uint32]
	defaultValidator  *slot.Value[hub.Address]
}

func New(
	sctx *slot.Context,
	bridge remote.Bridge,
	dlg *delegation.Service,
	remoteAccount hub.Address,
	asset uint32,
) *Service {
	return &Service{
		sctx:              sctx,
		bridge:            bridge,
		delegation:        dlg,
		remoteAccount:     remoteAccount,
		asset:             asset,
		lastTransferBlock: slot.NewValue[uint32](sctx, slotLastTransferBlock),
		defaultValidator:  slot.NewValue[hub.Address](sctx, slotDefaultValidator),
	}
}

// LastTransferBlock returns the block of the most recent cross-layer move,
// zero if none has happened yet.
func (s *Service) LastTransferBlock() (uint32, error) {
	return s.lastTransferBlock.Get()
}

// CheckFreshness fails with a named revert if a cross-layer transfer happened
// in the current block, i.e. before the oracle could observe it.
func (s *Service) CheckFreshness(blockNum uint32) error {
	last, err := s.lastTransferBlock.Get()
	if err != nil {
		return err
	}
	if last != 0 && last >= blockNum {
		return ErrTransferNotObserved
	}
	return nil
}

// DefaultValidator returns the validator new stake is delegated to.
func (s *Service) DefaultValidator() (hub.Address, error) {
	return s.defaultValidator.Get()
}

// SetDefaultValidator updates the delegation target for future transfers.
func (s *Service) SetDefaultValidator(validator hub.Address) error {
	return s.defaultValidator.Set(validator)
}

// ToRemote moves amount (nil for everything) from local custody to the remote
// staking account and delegates it: spot send, stake deposit, delegate, three
// fire-and-forget actions in order. Records the execution block so the
// freshness gate holds on the next call, in any component.
func (s *Service) ToRemote(amount *big.Int, blockNum uint32) (*big.Int, error) {
	custody, err := s.sctx.State().GetBalance(s.sctx.Address())
	if err != nil {
		return nil, errors.Wrap(err, "failed to get custody balance")
	}
	if amount == nil {
		amount = custody
	}
	if amount.Sign() <= 0 {
		return nil, ErrNothingToTransfer
	}
	if amount.Cmp(custody) > 0 {
		return nil, ErrInsufficientCustody
	}

	validator, err := s.defaultValidator.Get()
	if err != nil {
		return nil, err
	}
	if validator.IsZero() {
		return nil, ErrNoDefaultValidator
	}

	narrowed, err := remote.ToRemoteAmount(amount)
	if err != nil {
		return nil, err
	}
	if narrowed == 0 {
		return nil, ErrNothingToTransfer
	}

	// debit exactly what the remote side will credit; sub-decimal dust stays local
	moved := remote.FromRemoteAmount(narrowed)
	ok, err := s.sctx.State().SubBalance(s.sctx.Address(), moved)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientCustody
	}

	if err := s.bridge.Submit(remote.SpotSend{Destination: s.remoteAccount, Asset: s.asset, Amount: narrowed}); err != nil {
		return nil, errors.Wrap(err, "failed to submit spot send")
	}
	if err := s.bridge.Submit(remote.StakeDeposit{Amount: narrowed}); err != nil {
		return nil, errors.Wrap(err, "failed to submit stake deposit")
	}
	if err := s.bridge.Submit(remote.Delegate{Validator: validator, Amount: narrowed}); err != nil {
		return nil, errors.Wrap(err, "failed to submit delegate")
	}
	if err := s.delegation.Record(validator, narrowed); err != nil {
		return nil, err
	}

	if err := s.markTransfer(blockNum); err != nil {
		return nil, err
	}

	logger.Info("moved stake cross-layer", "amount", moved, "validator", validator, "block", blockNum)
	return moved, nil
}

// ToClaimPool moves amount from local custody to the vault's remote spot
// account without staking it, funding pending withdrawal claims.
func (s *Service) ToClaimPool(amount *big.Int, blockNum uint32) (*big.Int, error) {
	if amount.Sign() <= 0 {
		return nil, ErrNothingToTransfer
	}
	narrowed, err := remote.ToRemoteAmount(amount)
	if err != nil {
		return nil, err
	}
	if narrowed == 0 {
		return nil, ErrNothingToTransfer
	}
	moved := remote.FromRemoteAmount(narrowed)
	ok, err := s.sctx.State().SubBalance(s.sctx.Address(), moved)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientCustody
	}
	if err := s.bridge.Submit(remote.SpotSend{Destination: s.remoteAccount, Asset: s.asset, Amount: narrowed}); err != nil {
		return nil, errors.Wrap(err, "failed to submit spot send")
	}
	return moved, s.markTransfer(blockNum)
}

func (s *Service) markTransfer(blockNum uint32) error {
	return s.lastTransferBlock.Set(blockNum)
}
