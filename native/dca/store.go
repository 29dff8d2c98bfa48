package dca

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

func (e *Engine) settingsKey() []byte { return []byte(e.ns + "/settings") }
func (e *Engine) nextIDKey() []byte   { return []byte(e.ns + "/nextId") }
func (e *Engine) sharesKey() []byte   { return []byte(e.ns + "/totalShares") }

func (e *Engine) orderKey(id uint64) []byte {
	return []byte(e.ns + "/order/" + strconv.FormatUint(id, 10))
}

func (e *Engine) feeKey(token common.Address) []byte {
	return []byte(e.ns + "/fee/" + hexAddr(token))
}

func (e *Engine) blacklistKey(addr common.Address) []byte {
	return []byte(e.ns + "/blacklist/" + hexAddr(addr))
}

func (e *Engine) adapterKey(addr common.Address) []byte {
	return []byte(e.ns + "/adapter/" + hexAddr(addr))
}

func (e *Engine) activeIndex() idIndex {
	return idIndex{state: e.state, prefix: e.ns + "/active"}
}

func (e *Engine) userIndex(user common.Address) idIndex {
	return idIndex{state: e.state, prefix: e.ns + "/user/" + hexAddr(user)}
}

func (e *Engine) loadSettings() (*Settings, error) {
	s := new(Settings)
	if _, err := e.state.KVGet(e.settingsKey(), s); err != nil {
		return nil, err
	}
	s.normalize()
	return s, nil
}

func (e *Engine) saveSettings(s *Settings) error {
	return e.state.KVPut(e.settingsKey(), s)
}

func (e *Engine) loadOrder(id uint64) (*Order, error) {
	o := new(Order)
	ok, err := e.state.KVGet(e.orderKey(id), o)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	o.normalize()
	return o, nil
}

func (e *Engine) saveOrder(o *Order) error {
	return e.state.KVPut(e.orderKey(o.ID), o)
}

func (e *Engine) nextID() (uint64, error) {
	var id uint64
	_, err := e.state.KVGet(e.nextIDKey(), &id)
	return id, err
}

func (e *Engine) flag(key []byte) (bool, error) {
	var set bool
	ok, err := e.state.KVGet(key, &set)
	if err != nil || !ok {
		return false, err
	}
	return set, nil
}

func (e *Engine) setFlag(key []byte, on bool) error {
	if !on {
		return e.state.KVDelete(key)
	}
	return e.state.KVPut(key, true)
}

func (e *Engine) bigValue(key []byte) (*big.Int, error) {
	v := new(big.Int)
	ok, err := e.state.KVGet(key, v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return v, nil
}

func (e *Engine) setBigValue(key []byte, v *big.Int) error {
	if v.Sign() == 0 {
		return e.state.KVDelete(key)
	}
	return e.state.KVPut(key, v)
}

func (e *Engine) feeToClaim(token common.Address) (*big.Int, error) {
	return e.bigValue(e.feeKey(token))
}

func (e *Engine) addFee(token common.Address, fee *big.Int) error {
	if fee.Sign() == 0 {
		return nil
	}
	owed, err := e.feeToClaim(token)
	if err != nil {
		return err
	}
	return e.setBigValue(e.feeKey(token), owed.Add(owed, fee))
}

func (e *Engine) totalShares() (*big.Int, error) { return e.bigValue(e.sharesKey()) }

func (e *Engine) setTotalShares(v *big.Int) error { return e.setBigValue(e.sharesKey(), v) }

func (e *Engine) blacklisted(addrs ...common.Address) (bool, error) {
	for _, addr := range addrs {
		on, err := e.flag(e.blacklistKey(addr))
		if err != nil || on {
			return on, err
		}
	}
	return false, nil
}

// index adds a freshly created order to the active and per-user indices.
func (e *Engine) index(o *Order) error {
	if err := e.activeIndex().Append(o.ID); err != nil {
		return err
	}
	return e.userIndex(o.Owner).Append(o.ID)
}

func (e *Engine) unindex(o *Order) error {
	if err := e.activeIndex().Remove(o.ID); err != nil {
		return err
	}
	return e.userIndex(o.Owner).Remove(o.ID)
}
