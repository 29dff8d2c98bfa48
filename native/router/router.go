package router

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "xaumdca/core/errors"
	"xaumdca/native/dca"
)

var (
	ErrNoLedger = fmt.Errorf("router: %w: no ledger for token", coreerrors.ErrNotWhitelisted)
	ErrNotOwner = fmt.Errorf("router: %w: caller is not the owner", coreerrors.ErrUnauthorized)
	ErrMismatch = fmt.Errorf("router: %w: ledger funding token differs", coreerrors.ErrMismatch)
)

// Ledger is the part of an order ledger the router forwards to.
type Ledger interface {
	Address() common.Address
	Dollar() common.Address
	CreateOrder(caller, owner common.Address, initAmount, perTrade *big.Int, interval uint64, receiver common.Address) (uint64, error)
	CloseOrder(caller, owner common.Address, id uint64, receiver common.Address) error
	ActiveOrders(start, size uint64) ([]dca.Order, uint64, error)
	ActiveOrdersByUser(user common.Address, start, size uint64) ([]dca.Order, uint64, error)
	ActiveOrdersLengthByUser(user common.Address) (uint64, error)
	OrdersLength() (uint64, error)
	TotalFee(initAmount, perTrade *big.Int) (*big.Int, error)
	MinDollarAmount() (*big.Int, error)
}

var _ Ledger = (*dca.Engine)(nil)

// Router maps a funding token to the one ledger that serves it and calls the
// ledger as its configured router account. It holds no funds.
type Router struct {
	mu      sync.RWMutex
	self    common.Address
	owner   common.Address
	ledgers map[common.Address]Ledger
}

// New returns a router whose ledger-facing identity is self.
func New(self, owner common.Address) *Router {
	return &Router{self: self, owner: owner, ledgers: make(map[common.Address]Ledger)}
}

// Address returns the account ledgers must accept as their router.
func (r *Router) Address() common.Address { return r.self }

// Register binds dollarToken to ledger. A nil ledger removes the binding.
func (r *Router) Register(caller, dollarToken common.Address, ledger Ledger) error {
	if caller != r.owner {
		return ErrNotOwner
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ledger == nil {
		delete(r.ledgers, dollarToken)
		return nil
	}
	if ledger.Dollar() != dollarToken {
		return fmt.Errorf("%w: %s serves %s", ErrMismatch, ledger.Address().Hex(), ledger.Dollar().Hex())
	}
	r.ledgers[dollarToken] = ledger
	return nil
}

// Ledger returns the ledger serving dollarToken.
func (r *Router) Ledger(dollarToken common.Address) (Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ledger, ok := r.ledgers[dollarToken]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLedger, dollarToken.Hex())
	}
	return ledger, nil
}

// Tokens lists every routed funding token in address order.
func (r *Router) Tokens() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.ledgers))
	for token := range r.ledgers {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func (r *Router) CreateOrder(caller, dollarToken common.Address, initAmount, perTrade *big.Int, interval uint64, receiver common.Address) (uint64, error) {
	ledger, err := r.Ledger(dollarToken)
	if err != nil {
		return 0, err
	}
	return ledger.CreateOrder(r.self, caller, initAmount, perTrade, interval, receiver)
}

func (r *Router) CloseOrder(caller, dollarToken common.Address, id uint64, receiver common.Address) error {
	ledger, err := r.Ledger(dollarToken)
	if err != nil {
		return err
	}
	return ledger.CloseOrder(r.self, caller, id, receiver)
}

func (r *Router) ActiveOrders(dollarToken common.Address, start, size uint64) ([]dca.Order, uint64, error) {
	ledger, err := r.Ledger(dollarToken)
	if err != nil {
		return nil, 0, err
	}
	return ledger.ActiveOrders(start, size)
}

func (r *Router) ActiveOrdersByUser(dollarToken, user common.Address, start, size uint64) ([]dca.Order, uint64, error) {
	ledger, err := r.Ledger(dollarToken)
	if err != nil {
		return nil, 0, err
	}
	return ledger.ActiveOrdersByUser(user, start, size)
}

func (r *Router) ActiveOrdersLengthByUser(dollarToken, user common.Address) (uint64, error) {
	ledger, err := r.Ledger(dollarToken)
	if err != nil {
		return 0, err
	}
	return ledger.ActiveOrdersLengthByUser(user)
}

func (r *Router) OrdersLength(dollarToken common.Address) (uint64, error) {
	ledger, err := r.Ledger(dollarToken)
	if err != nil {
		return 0, err
	}
	return ledger.OrdersLength()
}

func (r *Router) TotalFee(dollarToken common.Address, initAmount, perTrade *big.Int) (*big.Int, error) {
	ledger, err := r.Ledger(dollarToken)
	if err != nil {
		return nil, err
	}
	return ledger.TotalFee(initAmount, perTrade)
}

func (r *Router) MinDollarAmountPerTrade(dollarToken common.Address) (*big.Int, error) {
	ledger, err := r.Ledger(dollarToken)
	if err != nil {
		return nil, err
	}
	return ledger.MinDollarAmount()
}
