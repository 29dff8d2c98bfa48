package dca

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order returns a copy of order id.
func (e *Engine) Order(id uint64) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadOrder(id)
}

// OrdersLength returns how many orders were ever created.
func (e *Engine) OrdersLength() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.nextID()
}

func (e *Engine) ActiveOrdersLength() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.activeIndex().Len()
}

func (e *Engine) ActiveOrdersLengthByUser(user common.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.userIndex(user).Len()
}

// UserOrderIDs returns the ids of user's live orders in index order.
func (e *Engine) UserOrderIDs(user common.Address) ([]uint64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.userIndex(user).IDs()
}

// ActiveOrders returns exactly size orders starting at position start of the
// active index, zero-padded past its end, plus the number of real entries.
func (e *Engine) ActiveOrders(start, size uint64) ([]Order, uint64, error) {
	if err := e.ready(); err != nil {
		return nil, 0, err
	}
	return e.page(e.activeIndex(), start, size)
}

// ActiveOrdersByUser pages through user's live orders like ActiveOrders.
func (e *Engine) ActiveOrdersByUser(user common.Address, start, size uint64) ([]Order, uint64, error) {
	if err := e.ready(); err != nil {
		return nil, 0, err
	}
	return e.page(e.userIndex(user), start, size)
}

func (e *Engine) page(ix idIndex, start, size uint64) ([]Order, uint64, error) {
	if size > MaxPageSize {
		return nil, 0, fmt.Errorf("%w: %d > %d", ErrPageTooLarge, size, MaxPageSize)
	}
	n, err := ix.Len()
	if err != nil {
		return nil, 0, err
	}
	var count uint64
	if start < n {
		count = n - start
		if count > size {
			count = size
		}
	}
	out := make([]Order, size)
	for i := range out {
		out[i].normalize()
	}
	for i := uint64(0); i < count; i++ {
		id, err := ix.At(start + i)
		if err != nil {
			return nil, 0, err
		}
		o, err := e.loadOrder(id)
		if err != nil {
			return nil, 0, err
		}
		out[i] = *o
	}
	return out, count, nil
}

// TotalFee is the fee an order of initAmount traded perTrade at a time pays
// when every tranche settles at par.
func (e *Engine) TotalFee(initAmount, perTrade *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if perTrade == nil || perTrade.Sign() <= 0 || initAmount == nil || initAmount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s / %s", ErrNotMultiple, amount(initAmount), amount(perTrade))
	}
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	trades := new(big.Int).Quo(initAmount, perTrade)
	return trades.Mul(trades, feeOf(perTrade, s.FeeBps)), nil
}

func (e *Engine) FeeToClaim(token common.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.feeToClaim(token)
}

func (e *Engine) TotalShares() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.totalShares()
}

func (e *Engine) currentTranche(id uint64) (tranche, error) {
	if err := e.ready(); err != nil {
		return tranche{}, err
	}
	s, err := e.loadSettings()
	if err != nil {
		return tranche{}, err
	}
	o, err := e.loadOrder(id)
	if err != nil {
		return tranche{}, err
	}
	return e.accounting(s).tranche(o)
}

// Entitlement is the funding order id could spend right now.
func (e *Engine) Entitlement(id uint64) (*big.Int, error) {
	tr, err := e.currentTranche(id)
	if err != nil {
		return nil, err
	}
	return tr.entitlement, nil
}

// TradeBudget is the amount the next execution of order id hands to the
// swap adapter. Callers building adapter call data quote against it.
func (e *Engine) TradeBudget(id uint64) (*big.Int, error) {
	tr, err := e.currentTranche(id)
	if err != nil {
		return nil, err
	}
	return tr.budget, nil
}

// NextTradeTime is the earliest timestamp order id may execute again. Zero
// means it has never traded.
func (e *Engine) NextTradeTime(id uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	s, err := e.loadSettings()
	if err != nil {
		return 0, err
	}
	o, err := e.loadOrder(id)
	if err != nil {
		return 0, err
	}
	return nextTradeTime(s, o), nil
}

// Settings returns the owner-managed parameters.
func (e *Engine) Settings() (*Settings, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadSettings()
}

func (e *Engine) MinDollarAmount() (*big.Int, error) {
	s, err := e.Settings()
	if err != nil {
		return nil, err
	}
	return s.MinDollarAmount, nil
}

func (e *Engine) IsBlacklisted(user common.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.flag(e.blacklistKey(user))
}

func (e *Engine) IsAdapter(adapter common.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.flag(e.adapterKey(adapter))
}
