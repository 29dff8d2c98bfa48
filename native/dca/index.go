package dca

import (
	"fmt"
	"strconv"
)

// idIndex is a dense, persisted list of order ids. Removal swaps the removed
// entry with the last one and truncates, so positions are not stable across
// removals; only membership and length are.
type idIndex struct {
	state  engineState
	prefix string
}

func (ix idIndex) lenKey() []byte { return []byte(ix.prefix + "/len") }

func (ix idIndex) atKey(pos uint64) []byte {
	return []byte(ix.prefix + "/at/" + strconv.FormatUint(pos, 10))
}

// posKey stores position+1 so a missing key means "not a member".
func (ix idIndex) posKey(id uint64) []byte {
	return []byte(ix.prefix + "/pos/" + strconv.FormatUint(id, 10))
}

func (ix idIndex) getUint(key []byte) (uint64, bool, error) {
	var v uint64
	ok, err := ix.state.KVGet(key, &v)
	return v, ok, err
}

func (ix idIndex) Len() (uint64, error) {
	n, _, err := ix.getUint(ix.lenKey())
	return n, err
}

func (ix idIndex) At(pos uint64) (uint64, error) {
	id, ok, err := ix.getUint(ix.atKey(pos))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("dca: index %s has no entry at %d", ix.prefix, pos)
	}
	return id, nil
}

func (ix idIndex) Contains(id uint64) (bool, error) {
	_, ok, err := ix.getUint(ix.posKey(id))
	return ok, err
}

func (ix idIndex) Append(id uint64) error {
	if ok, err := ix.Contains(id); err != nil {
		return err
	} else if ok {
		return nil
	}
	n, err := ix.Len()
	if err != nil {
		return err
	}
	if err := ix.state.KVPut(ix.atKey(n), id); err != nil {
		return err
	}
	if err := ix.state.KVPut(ix.posKey(id), n+1); err != nil {
		return err
	}
	return ix.state.KVPut(ix.lenKey(), n+1)
}

func (ix idIndex) Remove(id uint64) error {
	slot, ok, err := ix.getUint(ix.posKey(id))
	if err != nil || !ok {
		return err
	}
	pos := slot - 1
	n, err := ix.Len()
	if err != nil {
		return err
	}
	last := n - 1
	if pos != last {
		moved, err := ix.At(last)
		if err != nil {
			return err
		}
		if err := ix.state.KVPut(ix.atKey(pos), moved); err != nil {
			return err
		}
		if err := ix.state.KVPut(ix.posKey(moved), pos+1); err != nil {
			return err
		}
	}
	if err := ix.state.KVDelete(ix.atKey(last)); err != nil {
		return err
	}
	if err := ix.state.KVDelete(ix.posKey(id)); err != nil {
		return err
	}
	return ix.state.KVPut(ix.lenKey(), last)
}

// IDs returns every member in index order.
func (ix idIndex) IDs() ([]uint64, error) {
	n, err := ix.Len()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, n)
	for pos := uint64(0); pos < n; pos++ {
		id, err := ix.At(pos)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
