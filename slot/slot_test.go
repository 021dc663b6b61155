// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package slot

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/kv"
	"github.com/stakehub/stakehub/state"
)

func newTestContext(t *testing.T) *Context {
	db, err := kv.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewContext(hub.BytesToAddress([]byte("vault")), state.New(db))
}

func TestMapping(t *testing.T) {
	ctx := newTestContext(t)
	m := NewMapping[hub.Address, *big.Int](ctx, NameToSlot("m"))

	k1 := hub.BytesToAddress([]byte("k1"))
	k2 := hub.BytesToAddress([]byte("k2"))

	v, err := m.Get(k1)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Sign(), "absent entry decodes to zero value")

	require.NoError(t, m.Set(k1, big.NewInt(123)))
	v, err = m.Get(k1)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(123), v)

	v, err = m.Get(k2)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Sign(), "entries do not collide")
}

func TestMappingStructValue(t *testing.T) {
	type entry struct {
		Owner  hub.Address
		Amount *big.Int
		Flag   bool
	}
	ctx := newTestContext(t)
	m := NewMapping[Uint64Key, *entry](ctx, NameToSlot("entries"))

	want := &entry{
		Owner:  hub.BytesToAddress([]byte("owner")),
		Amount: big.NewInt(999),
		Flag:   true,
	}
	require.NoError(t, m.Set(Uint64Key(7), want))

	got, err := m.Get(Uint64Key(7))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUint256(t *testing.T) {
	ctx := newTestContext(t)
	u := NewUint256(ctx, NameToSlot("u"))

	v, err := u.Get()
	require.NoError(t, err)
	assert.Equal(t, 0, v.Sign())

	require.NoError(t, u.Add(big.NewInt(100)))
	require.NoError(t, u.Sub(big.NewInt(40)))
	v, err = u.Get()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(60), v)

	assert.Error(t, u.Sub(big.NewInt(61)), "underflow must fail")
	assert.Error(t, u.Set(big.NewInt(-1)), "negative value must be rejected")

	v, err = u.Get()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(60), v, "failed ops leave the slot untouched")
}

func TestValue(t *testing.T) {
	ctx := newTestContext(t)

	vu := NewValue[uint32](ctx, NameToSlot("v1"))
	n, err := vu.Get()
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, vu.Set(42))
	n, err = vu.Get()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), n)

	va := NewValue[hub.Address](ctx, NameToSlot("v2"))
	addr := hub.BytesToAddress([]byte("validator"))
	require.NoError(t, va.Set(addr))
	got, err := va.Get()
	require.NoError(t, err)
	assert.Equal(t, addr, got)
}

func TestCounter(t *testing.T) {
	ctx := newTestContext(t)
	c := NewCounter(ctx, NameToSlot("c"))

	for want := uint64(0); want < 3; want++ {
		id, err := c.Next()
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	cur, err := c.Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cur)
}

func TestSlotIsolation(t *testing.T) {
	ctx := newTestContext(t)
	a := NewUint256(ctx, NameToSlot("a"))
	b := NewUint256(ctx, NameToSlot("b"))

	require.NoError(t, a.Set(big.NewInt(1)))
	require.NoError(t, b.Set(big.NewInt(2)))

	va, err := a.Get()
	require.NoError(t, err)
	vb, err := b.Get()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), va)
	assert.Equal(t, big.NewInt(2), vb)
}
