// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package delegation

import (
	"github.com/pkg/errors"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/log"
	"github.com/stakehub/stakehub/remote"
	"github.com/stakehub/stakehub/reverts"
	"github.com/stakehub/stakehub/slot"
)

var (
	logger = log.WithContext("pkg", "delegation")

	slotLedger = slot.NameToSlot("delegation-ledger")

	ErrInsufficientDelegated = reverts.New("insufficient delegated stake")
	ErrStakeLocked           = reverts.New("validator stake still locked")
)

// Service tracks per-validator delegated amounts (in remote units) and guards
// undelegation. Delegation state is externally mutable between transactions,
// so safety checks re-read the remote layer at call time instead of trusting
// the local ledger.
type Service struct {
	ledger *slot.Mapping[hub.Address, uint64]
	reader remote.Reader
	bridge remote.Bridge
	self   hub.Address
}

func New(sctx *slot.Context, reader remote.Reader, bridge remote.Bridge, self hub.Address) *Service {
	return &Service{
		ledger: slot.NewMapping[hub.Address, uint64](sctx, slotLedger),
		reader: reader,
		bridge: bridge,
		self:   self,
	}
}

// Record notes amount as delegated to validator after a delegate action was
// submitted.
func (s *Service) Record(validator hub.Address, amount uint64) error {
	cur, err := s.ledger.Get(validator)
	if err != nil {
		return errors.Wrap(err, "failed to get delegation ledger")
	}
	if err := s.ledger.Set(validator, cur+amount); err != nil {
		return errors.Wrap(err, "failed to set delegation ledger")
	}
	return nil
}

// Delegated returns the locally tracked amount delegated to validator.
// Advisory only; safety decisions use fresh remote reads.
func (s *Service) Delegated(validator hub.Address) (uint64, error) {
	return s.ledger.Get(validator)
}

// SafeUndelegate verifies against a fresh remote read that validator holds at
// least amount of unlocked stake, then submits the undelegate action.
func (s *Service) SafeUndelegate(validator hub.Address, amount uint64, now uint64) error {
	fresh, err := s.reader.ValidatorDelegations(s.self)
	if err != nil {
		return errors.Wrap(err, "failed to read validator delegations")
	}

	var found *remote.Delegation
	for i := range fresh {
		if fresh[i].Validator == validator {
			found = &fresh[i]
			break
		}
	}
	if found == nil || found.Amount < amount {
		return ErrInsufficientDelegated
	}
	if found.LockedUntil > now {
		return ErrStakeLocked
	}

	if err := s.bridge.Submit(remote.Undelegate{Validator: validator, Amount: amount}); err != nil {
		return errors.Wrap(err, "failed to submit undelegate")
	}

	cur, err := s.ledger.Get(validator)
	if err != nil {
		return errors.Wrap(err, "failed to get delegation ledger")
	}
	if cur < amount {
		// remote truth moved ahead of the local ledger; resync instead of underflowing
		logger.Warn("delegation ledger behind remote state", "validator", validator, "local", cur, "amount", amount)
		cur = amount
	}
	if err := s.ledger.Set(validator, cur-amount); err != nil {
		return errors.Wrap(err, "failed to set delegation ledger")
	}
	return nil
}

// Redelegate moves amount from one validator to another, with the same
// safety checks as SafeUndelegate on the source side.
func (s *Service) Redelegate(from, to hub.Address, amount uint64, now uint64) error {
	if err := s.SafeUndelegate(from, amount, now); err != nil {
		return err
	}
	if err := s.bridge.Submit(remote.Delegate{Validator: to, Amount: amount}); err != nil {
		return errors.Wrap(err, "failed to submit delegate")
	}
	return s.Record(to, amount)
}
