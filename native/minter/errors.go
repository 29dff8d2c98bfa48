package minter

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "xaumdca/core/errors"
)

var (
	errNilState = errors.New("minter engine: state not configured")
	errNilBank  = errors.New("minter engine: bank not configured")

	ErrNotPriceOperator  = fmt.Errorf("minter: %w: caller is not the price operator", coreerrors.ErrUnauthorized)
	ErrNotFundOperator   = fmt.Errorf("minter: %w: caller is not the fund operator", coreerrors.ErrUnauthorized)
	ErrNotLedger         = fmt.Errorf("minter: %w: caller is not a registered ledger", coreerrors.ErrUnauthorized)
	ErrNotStable         = fmt.Errorf("minter: %w: token is not an accepted stable", coreerrors.ErrNotWhitelisted)
	ErrPriceOutOfRange   = fmt.Errorf("minter: %w: price outside configured bounds", coreerrors.ErrOutOfRange)
	ErrInvalidPriceLimit = fmt.Errorf("minter: %w: invalid price limit", coreerrors.ErrOutOfRange)
	ErrPriceExpired      = fmt.Errorf("minter: %w: fixed price expired", coreerrors.ErrExpired)
	ErrZeroConversion    = fmt.Errorf("minter: %w: conversion yields zero", coreerrors.ErrInvalidAmount)
	ErrZeroRecipient     = fmt.Errorf("minter: %w: zero token recipient", coreerrors.ErrInvalidAmount)
	ErrFundRecipientZero = fmt.Errorf("minter: %w: fund recipient not configured", coreerrors.ErrInvalidAmount)
)

// InsufficientClaimableError reports a collection larger than what a ledger
// is owed on behalf of a beneficiary.
type InsufficientClaimableError struct {
	Beneficiary common.Address
	Available   *big.Int
	Requested   *big.Int
}

func (e *InsufficientClaimableError) Error() string {
	return fmt.Sprintf("minter: not enough claimable xaum for %s: available %s, requested %s",
		e.Beneficiary.Hex(), e.Available, e.Requested)
}

func (e *InsufficientClaimableError) Unwrap() error { return coreerrors.ErrInvalidAmount }

// InsufficientReserveError reports a collection larger than the minter's own
// XAUm holdings.
type InsufficientReserveError struct {
	Held      *big.Int
	Requested *big.Int
}

func (e *InsufficientReserveError) Error() string {
	return fmt.Sprintf("minter: not enough system xaum: held %s, requested %s", e.Held, e.Requested)
}

func (e *InsufficientReserveError) Unwrap() error { return coreerrors.ErrInvalidAmount }
