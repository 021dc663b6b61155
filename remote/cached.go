// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package remote

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/stakehub/stakehub/hub"
)

// CachedReader memoizes reads per snapshot height. Within one block the stale
// snapshot cannot change, so repeated oracle reads in the same call are free.
// ValidatorDelegations is deliberately NOT cached: undelegation safety checks
// must re-read delegation state at call time.
type CachedReader struct {
	inner Reader
	cache *lru.Cache
}

func NewCachedReader(inner Reader, size int) (*CachedReader, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedReader{inner: inner, cache: cache}, nil
}

var _ Reader = (*CachedReader)(nil)

func (c *CachedReader) AsOfBlock() uint32 {
	return c.inner.AsOfBlock()
}

func (c *CachedReader) SpotBalance(account hub.Address, asset uint32) (uint64, error) {
	key := fmt.Sprintf("spot/%d/%s/%d", c.inner.AsOfBlock(), account, asset)
	if v, ok := c.cache.Get(key); ok {
		return v.(uint64), nil
	}
	v, err := c.inner.SpotBalance(account, asset)
	if err != nil {
		return 0, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func (c *CachedReader) DelegatorSummary(account hub.Address) (DelegatorSummary, error) {
	key := fmt.Sprintf("summary/%d/%s", c.inner.AsOfBlock(), account)
	if v, ok := c.cache.Get(key); ok {
		return v.(DelegatorSummary), nil
	}
	v, err := c.inner.DelegatorSummary(account)
	if err != nil {
		return DelegatorSummary{}, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func (c *CachedReader) AccountExists(account hub.Address) (bool, error) {
	key := fmt.Sprintf("exists/%d/%s", c.inner.AsOfBlock(), account)
	if v, ok := c.cache.Get(key); ok {
		return v.(bool), nil
	}
	v, err := c.inner.AccountExists(account)
	if err != nil {
		return false, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func (c *CachedReader) ValidatorDelegations(account hub.Address) ([]Delegation, error) {
	return c.inner.ValidatorDelegations(account)
}
