// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package slot

import (
	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/state"
)

// Context binds typed storage primitives to one contract address within the
// world state. Every vault service shares a single context.
type Context struct {
	address hub.Address
	state   *state.State
}

func NewContext(address hub.Address, state *state.State) *Context {
	return &Context{
		address: address,
		state:   state,
	}
}

func (c *Context) Address() hub.Address {
	return c.address
}

func (c *Context) State() *state.State {
	return c.state
}

// NameToSlot derives a storage slot from a human readable name.
func NameToSlot(name string) hub.Bytes32 {
	return hub.BytesToBytes32([]byte(name))
}
