// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

// journal is a stack of write layers over a loader. Reads search the layers
// top-down and fall through to the loader; writes land on the top layer.
// Popping layers discards their writes, which implements checkpoint/revert.
type journal struct {
	loader func(key any) (any, bool, error)
	levels []map[any]any
}

func newJournal(loader func(key any) (any, bool, error)) *journal {
	return &journal{loader: loader}
}

// push adds a new write layer and returns its index, usable with popTo.
func (j *journal) push() int {
	j.levels = append(j.levels, make(map[any]any))
	return len(j.levels) - 1
}

// depth returns the number of layers.
func (j *journal) depth() int {
	return len(j.levels)
}

// popTo drops layers until only n remain.
func (j *journal) popTo(n int) {
	j.levels = j.levels[:n]
}

// get returns the journaled value for key, falling through to the loader.
func (j *journal) get(key any) (any, bool, error) {
	for i := len(j.levels) - 1; i >= 0; i-- {
		if v, ok := j.levels[i][key]; ok {
			return v, true, nil
		}
	}
	return j.loader(key)
}

// put records a write on the top layer.
func (j *journal) put(key, value any) {
	j.levels[len(j.levels)-1][key] = value
}

// iterate visits the newest value of every journaled key, in no particular
// order. Values shadowed by higher layers are skipped.
func (j *journal) iterate(fn func(key, value any) error) error {
	seen := make(map[any]struct{})
	for i := len(j.levels) - 1; i >= 0; i-- {
		for k, v := range j.levels[i] {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			if err := fn(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}
