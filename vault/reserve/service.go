// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package reserve

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stakehub/stakehub/slot"
)

var slotReserved = slot.NameToSlot("reserved-for-withdrawal")

// Service tracks value already priced into settlement batches but not yet
// physically claimed (total processed minus total claimed, in base units).
// The oracle subtracts it from the raw balance aggregation; omitting it would
// double-count value as both backing the claim-token supply and backing
// pending withdrawals.
type Service struct {
	reserved *slot.Uint256
}

func New(sctx *slot.Context) *Service {
	return &Service{
		reserved: slot.NewUint256(sctx, slotReserved),
	}
}

// Get returns the reserved-for-withdrawal total.
func (s *Service) Get() (*big.Int, error) {
	return s.reserved.Get()
}

// Add increases the reserved total when a batch prices requests.
func (s *Service) Add(amount *big.Int) error {
	if err := s.reserved.Add(amount); err != nil {
		return errors.Wrap(err, "failed to grow withdrawal reserve")
	}
	return nil
}

// Sub decreases the reserved total on claim payout or slash adjustment.
func (s *Service) Sub(amount *big.Int) error {
	if err := s.reserved.Sub(amount); err != nil {
		return errors.Wrap(err, "failed to shrink withdrawal reserve")
	}
	return nil
}
