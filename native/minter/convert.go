package minter

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "xaumdca/core/errors"
)

type fixedPrice struct {
	Price      uint256.Int
	ValidUntil uint64
}

func (e *Engine) priceKey() []byte { return []byte(e.ns + "/price") }

func (e *Engine) stableKey(token common.Address) []byte {
	return []byte(e.ns + "/stable/" + strings.ToLower(token.Hex()))
}

func (e *Engine) ledgerKey(ledger common.Address) []byte {
	return []byte(e.ns + "/ledger/" + strings.ToLower(ledger.Hex()))
}

func (e *Engine) claimableKey(ledger, beneficiary common.Address) []byte {
	return []byte(e.ns + "/claimable/" + strings.ToLower(ledger.Hex()) + "/" + strings.ToLower(beneficiary.Hex()))
}

func pow10(n uint8) (*uint256.Int, bool) {
	out := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		if _, overflow := out.MulOverflow(out, ten); overflow {
			return nil, true
		}
	}
	return out, false
}

// convertAmount returns floor(amount * 10^(PriceDecimals+toDec) / (price * 10^fromDec)).
func convertAmount(amount *big.Int, price *uint256.Int, fromDec, toDec uint8) (*big.Int, error) {
	x, err := toU256(amount)
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, ErrPriceExpired
	}
	scale, overflow := pow10(PriceDecimals + toDec)
	if overflow {
		return nil, fmt.Errorf("minter: output decimals %d too large", toDec)
	}
	fromScale, overflow := pow10(fromDec)
	if overflow {
		return nil, fmt.Errorf("minter: input decimals %d too large", fromDec)
	}
	denom, overflow := new(uint256.Int).MulOverflow(price, fromScale)
	if overflow {
		return nil, fmt.Errorf("minter: price scale overflows")
	}
	out, overflow := new(uint256.Int).MulDivOverflow(&x, scale, denom)
	if overflow {
		return nil, fmt.Errorf("minter: conversion of %s overflows", amount)
	}
	return out.ToBig(), nil
}

func (e *Engine) loadPrice() (fixedPrice, error) {
	var fp fixedPrice
	if _, err := e.state.KVGet(e.priceKey(), &fp); err != nil {
		return fp, err
	}
	return fp, nil
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

func (e *Engine) claimable(ledger, beneficiary common.Address) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := e.state.KVGet(e.claimableKey(ledger, beneficiary), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (e *Engine) setClaimable(ledger, beneficiary common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return e.state.KVDelete(e.claimableKey(ledger, beneficiary))
	}
	return e.state.KVPut(e.claimableKey(ledger, beneficiary), amount)
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("minter: %w: amount must be positive", coreerrors.ErrInvalidAmount)
	}
	return nil
}

// FixedPrice returns the operator-pushed price and the last second it is
// valid for.
func (e *Engine) FixedPrice() (*big.Int, uint64, error) {
	if err := e.ready(); err != nil {
		return nil, 0, err
	}
	fp, err := e.loadPrice()
	if err != nil {
		return nil, 0, err
	}
	return fp.Price.ToBig(), fp.ValidUntil, nil
}

// expiry is now+period, saturating at the largest timestamp.
func expiry(now, period uint64) uint64 {
	if period > math.MaxUint64-now {
		return math.MaxUint64
	}
	return now + period
}

// SetFixedPrice stores price until now+validPeriod. Only the price operator
// may call it and the price must sit within the governed bounds. An event is
// emitted only when the price itself changes.
func (e *Engine) SetFixedPrice(caller common.Address, price *big.Int, validPeriod uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	value, err := toU256(price)
	if err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		operator, err := e.priceOperator.Current()
		if err != nil {
			return err
		}
		if operator == (common.Address{}) || caller != operator {
			return ErrNotPriceOperator
		}
		minPrice, err := e.minPrice.Current()
		if err != nil {
			return err
		}
		maxPrice, err := e.maxPrice.Current()
		if err != nil {
			return err
		}
		if value.Lt(&minPrice) || value.Gt(&maxPrice) {
			return fmt.Errorf("%w: %s not in [%s, %s]", ErrPriceOutOfRange, value.Dec(), minPrice.Dec(), maxPrice.Dec())
		}
		prev, err := e.loadPrice()
		if err != nil {
			return err
		}
		next := fixedPrice{Price: value, ValidUntil: expiry(e.now(), validPeriod)}
		if err := e.state.KVPut(e.priceKey(), &next); err != nil {
			return err
		}
		if prev.Price != value {
			e.emit(newFixedPriceSetEvent(price, next.ValidUntil))
		}
		return nil
	})
}

// Quote returns how much XAUm fromAmount of fromToken buys at the current
// price without moving any funds.
func (e *Engine) Quote(fromToken common.Address, fromAmount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := requirePositive(fromAmount); err != nil {
		return nil, err
	}
	stable, err := e.flag(e.stableKey(fromToken))
	if err != nil {
		return nil, err
	}
	if !stable {
		return nil, ErrNotStable
	}
	return e.quote(fromToken, fromAmount)
}

func (e *Engine) quote(fromToken common.Address, fromAmount *big.Int) (*big.Int, error) {
	fp, err := e.loadPrice()
	if err != nil {
		return nil, err
	}
	if fp.Price.IsZero() || e.now() > fp.ValidUntil {
		return nil, fmt.Errorf("%w: valid until %d", ErrPriceExpired, fp.ValidUntil)
	}
	fromDec, err := e.bank.Decimals(fromToken)
	if err != nil {
		return nil, err
	}
	toDec, err := e.bank.Decimals(e.xaum)
	if err != nil {
		return nil, err
	}
	out, err := convertAmount(fromAmount, &fp.Price, fromDec, toDec)
	if err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return nil, ErrZeroConversion
	}
	return out, nil
}

// Convert pulls fromAmount of an accepted stable from the calling ledger and
// credits the XAUm it buys to the (ledger, beneficiary) claimable balance.
func (e *Engine) Convert(caller, beneficiary, fromToken common.Address, fromAmount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := requirePositive(fromAmount); err != nil {
		return nil, err
	}
	var toAmount *big.Int
	err := e.state.Atomic(func() error {
		isLedger, err := e.flag(e.ledgerKey(caller))
		if err != nil {
			return err
		}
		if !isLedger {
			return ErrNotLedger
		}
		stable, err := e.flag(e.stableKey(fromToken))
		if err != nil {
			return err
		}
		if !stable {
			return ErrNotStable
		}
		out, err := e.quote(fromToken, fromAmount)
		if err != nil {
			return err
		}
		if err := e.bank.Transfer(fromToken, caller, e.self, fromAmount); err != nil {
			return err
		}
		owed, err := e.claimable(caller, beneficiary)
		if err != nil {
			return err
		}
		if err := e.setClaimable(caller, beneficiary, owed.Add(owed, out)); err != nil {
			return err
		}
		e.emit(newSwapEvent(caller, beneficiary, fromToken, fromAmount, out))
		toAmount = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toAmount, nil
}

// Collect releases amount of the caller's claimable XAUm for beneficiary into
// the caller's custody.
func (e *Engine) Collect(caller, beneficiary common.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		isLedger, err := e.flag(e.ledgerKey(caller))
		if err != nil {
			return err
		}
		if !isLedger {
			return ErrNotLedger
		}
		owed, err := e.claimable(caller, beneficiary)
		if err != nil {
			return err
		}
		if owed.Cmp(amount) < 0 {
			return &InsufficientClaimableError{Beneficiary: beneficiary, Available: owed, Requested: new(big.Int).Set(amount)}
		}
		held, err := e.bank.BalanceOf(e.xaum, e.self)
		if err != nil {
			return err
		}
		if held.Cmp(amount) < 0 {
			return &InsufficientReserveError{Held: held, Requested: new(big.Int).Set(amount)}
		}
		if err := e.bank.Transfer(e.xaum, e.self, caller, amount); err != nil {
			return err
		}
		if err := e.setClaimable(caller, beneficiary, owed.Sub(owed, amount)); err != nil {
			return err
		}
		e.emit(newCollectEvent(caller, beneficiary, amount))
		return nil
	})
}

// WithdrawForRebalance sends amount of token to the fund recipient. Only the
// fund operator may call it.
func (e *Engine) WithdrawForRebalance(caller, token common.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		operator, err := e.fundOperator.Current()
		if err != nil {
			return err
		}
		if operator == (common.Address{}) || caller != operator {
			return ErrNotFundOperator
		}
		recipient, err := e.fundRecipient.Current()
		if err != nil {
			return err
		}
		if recipient == (common.Address{}) {
			return ErrFundRecipientZero
		}
		if err := e.bank.Transfer(token, e.self, recipient, amount); err != nil {
			return err
		}
		e.emit(newWithdrawEvent(EventTypeWithdrawSystemFund, token, recipient, amount))
		return nil
	})
}

// WithdrawToken lets the owner move any fungible token out of the minter.
func (e *Engine) WithdrawToken(caller, token, to common.Address, amount *big.Int) error {
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
		if err := e.bank.Transfer(token, e.self, to, amount); err != nil {
			return err
		}
		e.emit(newWithdrawEvent(EventTypeWithdrawToken, token, to, amount))
		return nil
	})
}

// WithdrawNFT lets the owner move a non-fungible token out of the minter.
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
		e.emit(newWithdrawEvent(EventTypeWithdrawNFT, collection, to, id))
		return nil
	})
}

// SetStable toggles whether token is accepted as conversion input.
func (e *Engine) SetStable(caller, token common.Address, allowed bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		if err := e.gov.OnlyOwner(caller); err != nil {
			return err
		}
		if allowed {
			if _, err := e.bank.Decimals(token); err != nil {
				return err
			}
		}
		if err := e.setFlag(e.stableKey(token), allowed); err != nil {
			return err
		}
		e.emit(newRegistryEvent(EventTypeStableUpdated, "token", token, allowed))
		return nil
	})
}

// SetLedger toggles whether ledger may convert and collect.
func (e *Engine) SetLedger(caller, ledger common.Address, allowed bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		if err := e.gov.OnlyOwner(caller); err != nil {
			return err
		}
		if err := e.setFlag(e.ledgerKey(ledger), allowed); err != nil {
			return err
		}
		e.emit(newRegistryEvent(EventTypeLedgerUpdated, "ledger", ledger, allowed))
		return nil
	})
}

func (e *Engine) IsStable(token common.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.flag(e.stableKey(token))
}

func (e *Engine) IsLedger(ledger common.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.flag(e.ledgerKey(ledger))
}

// Claimable returns the XAUm ledger may still collect for beneficiary.
func (e *Engine) Claimable(ledger, beneficiary common.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.claimable(ledger, beneficiary)
}

// Reserve returns the XAUm held by the minter.
func (e *Engine) Reserve() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.bank.BalanceOf(e.xaum, e.self)
}
