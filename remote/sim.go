// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package remote

import (
	"sync"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/log"
)

var logger = log.WithContext("pkg", "remote")

// Sim is an in-memory remote layer used by tests and local runs. It applies
// submitted actions only when the local block advances, reproducing the
// one-block observation lag of the real bridge, and it drops spot sends to
// non-existent accounts the way the real remote layer silently does.
type Sim struct {
	mu sync.Mutex

	self     hub.Address // the vault's remote account, scope of all actions
	block    uint32
	accounts map[hub.Address]*simAccount
	pending  []Action
}

type simAccount struct {
	spot              map[uint32]uint64
	delegations       map[hub.Address]*simDelegation
	undelegated       uint64
	pendingWithdrawal uint64
}

type simDelegation struct {
	amount      uint64
	lockedUntil uint64
}

// NewSim creates a simulator scoped to the given vault remote account, which
// is created implicitly.
func NewSim(self hub.Address) *Sim {
	s := &Sim{
		self:     self,
		accounts: make(map[hub.Address]*simAccount),
	}
	s.accounts[self] = newSimAccount()
	return s
}

func newSimAccount() *simAccount {
	return &simAccount{
		spot:        make(map[uint32]uint64),
		delegations: make(map[hub.Address]*simDelegation),
	}
}

var (
	_ Reader = (*Sim)(nil)
	_ Bridge = (*Sim)(nil)
)

// Submit queues an action. It becomes observable after the next CommitBlock.
func (s *Sim) Submit(action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, action)
	return nil
}

// PendingActions returns the number of queued, not yet applied actions.
func (s *Sim) PendingActions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// CommitBlock applies all queued actions and advances the snapshot height.
func (s *Sim) CommitBlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, action := range s.pending {
		s.apply(action)
	}
	s.pending = nil
	s.block++
}

func (s *Sim) apply(action Action) {
	self := s.accounts[s.self]
	switch a := action.(type) {
	case Delegate:
		if self.undelegated < a.Amount {
			logger.Warn("dropped delegate: insufficient undelegated stake", "amount", a.Amount)
			return
		}
		self.undelegated -= a.Amount
		d, ok := self.delegations[a.Validator]
		if !ok {
			d = &simDelegation{}
			self.delegations[a.Validator] = d
		}
		d.amount += a.Amount
	case Undelegate:
		d, ok := self.delegations[a.Validator]
		if !ok || d.amount < a.Amount {
			logger.Warn("dropped undelegate: insufficient delegated stake", "amount", a.Amount)
			return
		}
		d.amount -= a.Amount
		self.undelegated += a.Amount
	case StakeDeposit:
		if self.spot[0] < a.Amount {
			logger.Warn("dropped stake deposit: insufficient spot balance", "amount", a.Amount)
			return
		}
		self.spot[0] -= a.Amount
		self.undelegated += a.Amount
	case StakeWithdraw:
		if self.undelegated < a.Amount {
			logger.Warn("dropped stake withdraw: insufficient undelegated stake", "amount", a.Amount)
			return
		}
		self.undelegated -= a.Amount
		self.spot[0] += a.Amount
	case SpotSend:
		// A spot send addressed to the vault's own remote account is the
		// inbound cross-layer leg: the value was already debited on the
		// local ledger by the caller.
		if a.Destination == s.self {
			self.spot[a.Asset] += a.Amount
			return
		}
		dest, ok := s.accounts[a.Destination]
		if !ok {
			// the real remote layer drops these without a trace
			logger.Warn("dropped spot send to non-existent account", "destination", a.Destination)
			return
		}
		if self.spot[a.Asset] < a.Amount {
			logger.Warn("dropped spot send: insufficient spot balance", "amount", a.Amount)
			return
		}
		self.spot[a.Asset] -= a.Amount
		dest.spot[a.Asset] += a.Amount
	case RegisterAgent:
		if _, ok := s.accounts[a.Agent]; !ok {
			s.accounts[a.Agent] = newSimAccount()
		}
	}
}

// AsOfBlock implements Reader.
func (s *Sim) AsOfBlock() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.block
}

// SpotBalance implements Reader.
func (s *Sim) SpotBalance(account hub.Address, asset uint32) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[account]
	if !ok {
		return 0, nil
	}
	return acc.spot[asset], nil
}

// DelegatorSummary implements Reader.
func (s *Sim) DelegatorSummary(account hub.Address) (DelegatorSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[account]
	if !ok {
		return DelegatorSummary{}, nil
	}
	var delegated uint64
	for _, d := range acc.delegations {
		delegated += d.amount
	}
	return DelegatorSummary{
		Delegated:         delegated,
		Undelegated:       acc.undelegated,
		PendingWithdrawal: acc.pendingWithdrawal,
	}, nil
}

// AccountExists implements Reader.
func (s *Sim) AccountExists(account hub.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[account]
	return ok, nil
}

// ValidatorDelegations implements Reader.
func (s *Sim) ValidatorDelegations(account hub.Address) ([]Delegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[account]
	if !ok {
		return nil, nil
	}
	out := make([]Delegation, 0, len(acc.delegations))
	for validator, d := range acc.delegations {
		out = append(out, Delegation{
			Validator:   validator,
			Amount:      d.amount,
			LockedUntil: d.lockedUntil,
		})
	}
	return out, nil
}

// CreateAccount makes an account exist on the simulated remote layer.
func (s *Sim) CreateAccount(account hub.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account]; !ok {
		s.accounts[account] = newSimAccount()
	}
}

// FundSpot credits an account's spot balance directly, bypassing the lag.
func (s *Sim) FundSpot(account hub.Address, asset uint32, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[account]
	if !ok {
		acc = newSimAccount()
		s.accounts[account] = acc
	}
	acc.spot[asset] += amount
}

// SetDelegationLock sets the remote-enforced lock timestamp of the vault's
// delegation to the given validator.
func (s *Sim) SetDelegationLock(validator hub.Address, lockedUntil uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	self := s.accounts[s.self]
	d, ok := self.delegations[validator]
	if !ok {
		d = &simDelegation{}
		self.delegations[validator] = d
	}
	d.lockedUntil = lockedUntil
}
