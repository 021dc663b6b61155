// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/kv"
	"github.com/stakehub/stakehub/slot"
	"github.com/stakehub/stakehub/state"
)

func newTestAuthority(t *testing.T) *Authority {
	db, err := kv.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(slot.NewContext(hub.BytesToAddress([]byte("vault")), state.New(db)))
}

func TestRoles(t *testing.T) {
	a := newTestAuthority(t)
	owner := hub.BytesToAddress([]byte("owner"))
	op := hub.BytesToAddress([]byte("op"))
	nobody := hub.BytesToAddress([]byte("nobody"))

	require.NoError(t, a.Grant(owner, RoleOwner))
	require.NoError(t, a.Grant(op, RoleOperator))

	// owner implies every role
	assert.NoError(t, a.RequireOwner(owner))
	assert.NoError(t, a.RequireManager(owner))
	assert.NoError(t, a.RequireOperator(owner))

	assert.NoError(t, a.RequireOperator(op))
	assert.ErrorIs(t, a.RequireManager(op), ErrNotManager)
	assert.ErrorIs(t, a.RequireOwner(op), ErrNotOwner)

	assert.ErrorIs(t, a.RequireOperator(nobody), ErrNotOperator)
}

func TestRevoke(t *testing.T) {
	a := newTestAuthority(t)
	addr := hub.BytesToAddress([]byte("x"))

	require.NoError(t, a.Grant(addr, RoleManager|RoleOperator))
	assert.NoError(t, a.RequireManager(addr))

	require.NoError(t, a.Revoke(addr, RoleManager))
	assert.ErrorIs(t, a.RequireManager(addr), ErrNotManager)
	assert.NoError(t, a.RequireOperator(addr), "other roles survive the revoke")
}

func TestPause(t *testing.T) {
	a := newTestAuthority(t)

	assert.NoError(t, a.RequireNotPaused())

	require.NoError(t, a.SetPaused(true))
	assert.ErrorIs(t, a.RequireNotPaused(), ErrPaused)

	require.NoError(t, a.SetPaused(false))
	assert.NoError(t, a.RequireNotPaused())
}
