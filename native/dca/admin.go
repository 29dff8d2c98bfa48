package dca

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// updateSettings applies mutate to the stored settings on behalf of the owner
// and records the change under name.
func (e *Engine) updateSettings(caller common.Address, name string, mutate func(s *Settings) (string, error)) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		if err := e.gov.OnlyOwner(caller); err != nil {
			return err
		}
		s, err := e.loadSettings()
		if err != nil {
			return err
		}
		value, err := mutate(s)
		if err != nil {
			return err
		}
		if err := e.saveSettings(s); err != nil {
			return err
		}
		e.emit(newSettingEvent(name, value))
		return nil
	})
}

// SetFeeBps sets the fee taken from every settled trade, in basis points.
func (e *Engine) SetFeeBps(caller common.Address, bps uint64) error {
	return e.updateSettings(caller, "feeBps", func(s *Settings) (string, error) {
		if bps > FeeDenominator {
			return "", fmt.Errorf("%w: %d bps", ErrFeeTooHigh, bps)
		}
		s.FeeBps = bps
		return strconv.FormatUint(bps, 10), nil
	})
}

func (e *Engine) SetRouter(caller, router common.Address) error {
	return e.updateSettings(caller, "router", func(s *Settings) (string, error) {
		s.Router = router
		return hexAddr(router), nil
	})
}

func (e *Engine) SetLegalAccount(caller, account common.Address) error {
	return e.updateSettings(caller, "legalAccount", func(s *Settings) (string, error) {
		if account == (common.Address{}) {
			return "", ErrZeroRecipient
		}
		s.LegalAccount = account
		return hexAddr(account), nil
	})
}

// SetMinDollarPrice sets the lowest settlement-per-funding rate, scaled by
// 1e18, a swap may deliver.
func (e *Engine) SetMinDollarPrice(caller common.Address, price *big.Int) error {
	return e.updateSettings(caller, "minDollarPrice", func(s *Settings) (string, error) {
		s.MinDollarPrice = cloneBig(price)
		if s.MinDollarPrice.Sign() < 0 {
			return "", fmt.Errorf("%w: negative price", ErrSwapPriceTooLow)
		}
		return s.MinDollarPrice.String(), nil
	})
}

func (e *Engine) SetMinDollarAmount(caller common.Address, amt *big.Int) error {
	return e.updateSettings(caller, "minDollarAmount", func(s *Settings) (string, error) {
		s.MinDollarAmount = cloneBig(amt)
		if s.MinDollarAmount.Sign() < 0 {
			return "", fmt.Errorf("%w: negative amount", ErrBelowMinimum)
		}
		return s.MinDollarAmount.String(), nil
	})
}

// SetTradeIntervals sets the interval bounds for new orders. A zero maximum
// falls back to twelve minimum intervals.
func (e *Engine) SetTradeIntervals(caller common.Address, minInterval, maxInterval uint64) error {
	return e.updateSettings(caller, "tradeIntervals", func(s *Settings) (string, error) {
		if err := validateIntervals(minInterval, maxInterval); err != nil {
			return "", err
		}
		s.MinTradeInterval = minInterval
		s.MaxTradeInterval = maxInterval
		return strconv.FormatUint(minInterval, 10) + "-" + strconv.FormatUint(s.MaxInterval(), 10), nil
	})
}

func (e *Engine) SetPaused(caller common.Address, paused bool) error {
	return e.updateSettings(caller, "paused", func(s *Settings) (string, error) {
		s.Paused = paused
		return strconv.FormatBool(paused), nil
	})
}

// SetRebase switches between fixed and share accounting. The switch is only
// allowed while no order is live.
func (e *Engine) SetRebase(caller common.Address, rebase bool) error {
	return e.updateSettings(caller, "rebase", func(s *Settings) (string, error) {
		if s.Rebase == rebase {
			return strconv.FormatBool(rebase), nil
		}
		live, err := e.activeIndex().Len()
		if err != nil {
			return "", err
		}
		if live != 0 {
			return "", fmt.Errorf("%w: %d live orders", ErrAccountingLocked, live)
		}
		s.Rebase = rebase
		return strconv.FormatBool(rebase), nil
	})
}

func (e *Engine) setOwnerFlag(caller common.Address, key []byte, eventType string, addr common.Address, on bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		if err := e.gov.OnlyOwner(caller); err != nil {
			return err
		}
		if err := e.setFlag(key, on); err != nil {
			return err
		}
		e.emit(newFlagEvent(eventType, addr, on))
		return nil
	})
}

// SetAdapter allow-lists or removes a swap adapter address.
func (e *Engine) SetAdapter(caller, adapter common.Address, allowed bool) error {
	return e.setOwnerFlag(caller, e.adapterKey(adapter), EventTypeAdapterUpdated, adapter, allowed)
}

// SetBlacklist blocks or unblocks a user.
func (e *Engine) SetBlacklist(caller, user common.Address, blocked bool) error {
	return e.setOwnerFlag(caller, e.blacklistKey(user), EventTypeBlacklist, user, blocked)
}

// ClaimFee pays the fees accumulated in token to to.
func (e *Engine) ClaimFee(caller, token, to common.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var paid *big.Int
	err := e.state.Atomic(func() error {
		if err := e.gov.OnlyOwner(caller); err != nil {
			return err
		}
		if to == (common.Address{}) {
			return ErrZeroRecipient
		}
		owed, err := e.feeToClaim(token)
		if err != nil {
			return err
		}
		if owed.Sign() == 0 {
			paid = owed
			return nil
		}
		if err := e.bank.Transfer(token, e.self, to, owed); err != nil {
			return err
		}
		if err := e.setBigValue(e.feeKey(token), big.NewInt(0)); err != nil {
			return err
		}
		e.emit(newTransferEvent(EventTypeFeeClaimed, token, to, owed))
		paid = owed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// WithdrawToken lets the owner move any fungible token out of the ledger.
func (e *Engine) WithdrawToken(caller, token, to common.Address, amt *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		if err := e.gov.OnlyOwner(caller); err != nil {
			return err
		}
		if to == (common.Address{}) {
			return ErrZeroRecipient
		}
		if err := e.bank.Transfer(token, e.self, to, amt); err != nil {
			return err
		}
		e.emit(newTransferEvent(EventTypeTokenWithdrawn, token, to, amt))
		return nil
	})
}

// WithdrawNFT lets the owner move a non-fungible token out of the ledger.
func (e *Engine) WithdrawNFT(caller, collection, to common.Address, id *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		if err := e.gov.OnlyOwner(caller); err != nil {
			return err
		}
		if to == (common.Address{}) {
			return ErrZeroRecipient
		}
		if err := e.bank.TransferNFT(collection, e.self, to, id); err != nil {
			return err
		}
		e.emit(newTransferEvent(EventTypeNFTWithdrawn, collection, to, id))
		return nil
	})
}
