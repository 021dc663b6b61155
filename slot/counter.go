// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package slot

import (
	"math"

	"github.com/pkg/errors"

	"github.com/stakehub/stakehub/hub"
)

// Counter is a monotonically increasing uint64 slot. Handles issued from it
// are stable and never reused.
type Counter struct {
	value *Value[uint64]
}

func NewCounter(context *Context, pos hub.Bytes32) *Counter {
	return &Counter{value: NewValue[uint64](context, pos)}
}

// Get returns the current counter value.
func (c *Counter) Get() (uint64, error) {
	return c.value.Get()
}

// Next returns the current value and advances the counter by one.
func (c *Counter) Next() (uint64, error) {
	cur, err := c.value.Get()
	if err != nil {
		return 0, err
	}
	if cur == math.MaxUint64 {
		return 0, errors.New("counter overflow")
	}
	if err := c.value.Set(cur + 1); err != nil {
		return 0, err
	}
	return cur, nil
}
