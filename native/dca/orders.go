package dca

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (e *Engine) checkRouter(s *Settings, caller common.Address) error {
	if s.Paused {
		return ErrPaused
	}
	if s.Router == (common.Address{}) || caller != s.Router {
		return ErrNotRouter
	}
	return nil
}

func checkInterval(s *Settings, interval uint64) error {
	minInterval := s.MinTradeInterval
	if minInterval == 0 {
		return fmt.Errorf("%w: minimum interval not configured", ErrInvalidInterval)
	}
	if interval < minInterval || interval%minInterval != 0 || interval > s.MaxInterval() {
		return fmt.Errorf("%w: %d not a multiple of %d within [%d, %d]", ErrInvalidInterval, interval, minInterval, minInterval, s.MaxInterval())
	}
	return nil
}

// CreateOrder opens a recurring purchase for owner funded with initAmount of
// the funding token, traded perTrade at a time every interval seconds. Only
// the router may call it. A zero receiver defaults to the owner.
func (e *Engine) CreateOrder(caller, owner common.Address, initAmount, perTrade *big.Int, interval uint64, receiver common.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if receiver == (common.Address{}) {
		receiver = owner
	}
	var id uint64
	err := e.state.Atomic(func() error {
		s, err := e.loadSettings()
		if err != nil {
			return err
		}
		if err := e.checkRouter(s, caller); err != nil {
			return err
		}
		if blocked, err := e.blacklisted(owner, receiver); err != nil {
			return err
		} else if blocked {
			return ErrBlacklisted
		}
		if perTrade == nil || perTrade.Sign() <= 0 || perTrade.Cmp(s.MinDollarAmount) < 0 {
			return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount(perTrade), s.MinDollarAmount)
		}
		if initAmount == nil || initAmount.Sign() <= 0 || new(big.Int).Rem(initAmount, perTrade).Sign() != 0 {
			return fmt.Errorf("%w: %s / %s", ErrNotMultiple, amount(initAmount), perTrade)
		}
		if err := checkInterval(s, interval); err != nil {
			return err
		}
		if err := e.bank.Transfer(e.dollar, owner, e.self, initAmount); err != nil {
			return err
		}
		next, err := e.nextID()
		if err != nil {
			return err
		}
		o := &Order{
			ID:               next,
			Interval:         interval,
			Status:           StatusActive,
			DollarInitAmount: new(big.Int).Set(initAmount),
			DollarPerTrade:   new(big.Int).Set(perTrade),
			Owner:            owner,
			Receiver:         receiver,
		}
		o.normalize()
		if err := e.accounting(s).book(o, initAmount); err != nil {
			return err
		}
		if err := e.saveOrder(o); err != nil {
			return err
		}
		if err := e.state.KVPut(e.nextIDKey(), next+1); err != nil {
			return err
		}
		if err := e.index(o); err != nil {
			return err
		}
		e.emit(newOrderCreatedEvent(o))
		id = next
		return nil
	})
	return id, err
}

func (e *Engine) checkClosable(o *Order) error {
	if o.Status != StatusActive {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidStatus, o.ID, o.Status)
	}
	if o.XaumPending.Sign() > 0 {
		return fmt.Errorf("%w: %s uncollected", ErrPendingXaum, o.XaumPending)
	}
	return nil
}

// CloseOrder cancels an active order on behalf of its owner and refunds the
// remaining funding and any collected XAUm to receiver, which must be the
// order's owner or its configured receiver.
func (e *Engine) CloseOrder(caller, owner common.Address, id uint64, receiver common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		s, err := e.loadSettings()
		if err != nil {
			return err
		}
		if err := e.checkRouter(s, caller); err != nil {
			return err
		}
		if blocked, err := e.blacklisted(owner, receiver); err != nil {
			return err
		} else if blocked {
			return ErrBlacklisted
		}
		o, err := e.loadOrder(id)
		if err != nil {
			return err
		}
		if o.Owner != owner {
			return ErrNotOrderOwner
		}
		if err := e.checkClosable(o); err != nil {
			return err
		}
		if receiver != o.Owner && receiver != o.Receiver {
			return ErrReceiverMismatch
		}
		return e.closeOrder(s, o, receiver, false)
	})
}

// CloseOrderByOperator force-closes the order of a blacklisted owner and pays
// its funding and collected XAUm to the legal account.
func (e *Engine) CloseOrderByOperator(caller common.Address, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		if err := e.onlyOperator(caller); err != nil {
			return err
		}
		s, err := e.loadSettings()
		if err != nil {
			return err
		}
		o, err := e.loadOrder(id)
		if err != nil {
			return err
		}
		if blocked, err := e.blacklisted(o.Owner); err != nil {
			return err
		} else if !blocked {
			return ErrNotInBlacklist
		}
		if err := e.checkClosable(o); err != nil {
			return err
		}
		if s.LegalAccount == (common.Address{}) {
			return fmt.Errorf("%w: legal account not configured", ErrZeroRecipient)
		}
		return e.closeOrder(s, o, s.LegalAccount, true)
	})
}

func (e *Engine) closeOrder(s *Settings, o *Order, to common.Address, forced bool) error {
	refund, err := e.accounting(s).release(o)
	if err != nil {
		return err
	}
	xaum := new(big.Int).Set(o.XaumBalance)
	if err := e.bank.Transfer(e.dollar, e.self, to, refund); err != nil {
		return err
	}
	if err := e.bank.Transfer(e.minter.XAUm(), e.self, to, xaum); err != nil {
		return err
	}
	o.XaumBalance = big.NewInt(0)
	o.Status = StatusCanceled
	if err := e.saveOrder(o); err != nil {
		return err
	}
	if err := e.unindex(o); err != nil {
		return err
	}
	e.emit(newOrderClosedEvent(o, to, xaum, refund, forced))
	return nil
}
