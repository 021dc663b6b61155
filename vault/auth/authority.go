// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package auth

import (
	"github.com/pkg/errors"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/reverts"
	"github.com/stakehub/stakehub/slot"
)

// Role is a bit set of granted roles.
type Role uint8

const (
	RoleOwner Role = 1 << iota
	RoleManager
	RoleOperator
)

var (
	slotRoles  = slot.NameToSlot("auth-roles")
	slotPaused = slot.NameToSlot("auth-paused")

	ErrNotOwner    = reverts.New("caller is not owner")
	ErrNotManager  = reverts.New("caller is not manager")
	ErrNotOperator = reverts.New("caller is not operator")
	ErrPaused      = reverts.New("vault is paused")
)

// Authority keeps the role assignments and the pause flag. It is a thin
// policy layer checked at the entry of each operation, decoupled from the
// state-transition logic itself.
type Authority struct {
	roles  *slot.Mapping[hub.Address, Role]
	paused *slot.Value[bool]
}

func New(sctx *slot.Context) *Authority {
	return &Authority{
		roles:  slot.NewMapping[hub.Address, Role](sctx, slotRoles),
		paused: slot.NewValue[bool](sctx, slotPaused),
	}
}

// Grant adds roles to addr. An owner implicitly holds every role.
func (a *Authority) Grant(addr hub.Address, role Role) error {
	current, err := a.roles.Get(addr)
	if err != nil {
		return errors.Wrap(err, "failed to get roles")
	}
	if err := a.roles.Set(addr, current|role); err != nil {
		return errors.Wrap(err, "failed to set roles")
	}
	return nil
}

// Revoke removes roles from addr.
func (a *Authority) Revoke(addr hub.Address, role Role) error {
	current, err := a.roles.Get(addr)
	if err != nil {
		return errors.Wrap(err, "failed to get roles")
	}
	if err := a.roles.Set(addr, current&^role); err != nil {
		return errors.Wrap(err, "failed to set roles")
	}
	return nil
}

func (a *Authority) has(addr hub.Address, role Role) (bool, error) {
	current, err := a.roles.Get(addr)
	if err != nil {
		return false, errors.Wrap(err, "failed to get roles")
	}
	return current&(role|RoleOwner) != 0, nil
}

// IsOwner reports whether addr holds the owner role.
func (a *Authority) IsOwner(addr hub.Address) (bool, error) {
	current, err := a.roles.Get(addr)
	if err != nil {
		return false, errors.Wrap(err, "failed to get roles")
	}
	return current&RoleOwner != 0, nil
}

// IsManager reports whether addr holds the manager (or owner) role.
func (a *Authority) IsManager(addr hub.Address) (bool, error) {
	return a.has(addr, RoleManager)
}

// IsOperator reports whether addr holds the operator (or owner) role.
func (a *Authority) IsOperator(addr hub.Address) (bool, error) {
	return a.has(addr, RoleOperator)
}

// RequireOwner fails with a named revert unless addr is owner.
func (a *Authority) RequireOwner(addr hub.Address) error {
	ok, err := a.IsOwner(addr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOwner
	}
	return nil
}

// RequireManager fails with a named revert unless addr is manager or owner.
func (a *Authority) RequireManager(addr hub.Address) error {
	ok, err := a.IsManager(addr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotManager
	}
	return nil
}

// RequireOperator fails with a named revert unless addr is operator or owner.
func (a *Authority) RequireOperator(addr hub.Address) error {
	ok, err := a.IsOperator(addr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOperator
	}
	return nil
}

// SetPaused flips the pause flag.
func (a *Authority) SetPaused(paused bool) error {
	return a.paused.Set(paused)
}

// Paused returns the pause flag.
func (a *Authority) Paused() (bool, error) {
	return a.paused.Get()
}

// RequireNotPaused fails with a named revert while the vault is paused.
func (a *Authority) RequireNotPaused() error {
	paused, err := a.Paused()
	if err != nil {
		return err
	}
	if paused {
		return ErrPaused
	}
	return nil
}
