package dca

import (
	"errors"
	"fmt"

	coreerrors "xaumdca/core/errors"
)

var (
	errNilState  = errors.New("dca engine: state not configured")
	errNilBank   = errors.New("dca engine: bank not configured")
	errNilMinter = errors.New("dca engine: minter not configured")

	ErrPaused             = fmt.Errorf("dca: %w", coreerrors.ErrPaused)
	ErrNotRouter          = fmt.Errorf("dca: %w: caller is not the router", coreerrors.ErrUnauthorized)
	ErrNotOperator        = fmt.Errorf("dca: %w: caller is not the operator", coreerrors.ErrUnauthorized)
	ErrNotOrderOwner      = fmt.Errorf("dca: %w: caller is not the order owner", coreerrors.ErrUnauthorized)
	ErrInvalidStatus      = fmt.Errorf("dca: %w", coreerrors.ErrInvalidOrderState)
	ErrOrderNotFound      = fmt.Errorf("dca: %w: order not found", coreerrors.ErrInvalidOrderState)
	ErrPendingXaum        = fmt.Errorf("dca: %w: order has pending xaum", coreerrors.ErrInvalidOrderState)
	ErrAccountingLocked   = fmt.Errorf("dca: %w: accounting mode locked while orders are live", coreerrors.ErrInvalidOrderState)
	ErrBelowMinimum       = fmt.Errorf("dca: %w: per-trade amount below minimum", coreerrors.ErrInvalidAmount)
	ErrNotMultiple        = fmt.Errorf("dca: %w: init amount must be a positive multiple of per-trade amount", coreerrors.ErrInvalidAmount)
	ErrNothingPending     = fmt.Errorf("dca: %w: no pending xaum", coreerrors.ErrInvalidAmount)
	ErrNothingToClaim     = fmt.Errorf("dca: %w: no xaum to claim", coreerrors.ErrInvalidAmount)
	ErrNothingToTrade     = fmt.Errorf("dca: %w: no funding left to trade", coreerrors.ErrInvalidAmount)
	ErrNoSwapInput        = fmt.Errorf("dca: %w: swap consumed no funding", coreerrors.ErrInvalidAmount)
	ErrZeroRecipient      = fmt.Errorf("dca: %w: zero recipient", coreerrors.ErrInvalidAmount)
	ErrInvalidInterval    = fmt.Errorf("dca: %w: trade interval", coreerrors.ErrOutOfRange)
	ErrSwapInputTooLarge  = fmt.Errorf("dca: %w: swap consumed too much funding", coreerrors.ErrOutOfRange)
	ErrSwapOutputTooHigh  = fmt.Errorf("dca: %w: swap output above cap", coreerrors.ErrOutOfRange)
	ErrSwapPriceTooLow    = fmt.Errorf("dca: %w: swap price below floor", coreerrors.ErrOutOfRange)
	ErrFeeTooHigh         = fmt.Errorf("dca: %w: fee above 100%%", coreerrors.ErrOutOfRange)
	ErrPageTooLarge       = fmt.Errorf("dca: %w: page size", coreerrors.ErrOutOfRange)
	ErrAdapterNotAllowed  = fmt.Errorf("dca: %w: swap adapter", coreerrors.ErrNotWhitelisted)
	ErrStableNotAccepted  = fmt.Errorf("dca: %w: settlement token not accepted by minter", coreerrors.ErrNotWhitelisted)
	ErrDollarNotStable    = fmt.Errorf("dca: %w: dollar must be stable token", coreerrors.ErrNotWhitelisted)
	ErrBlacklisted        = fmt.Errorf("dca: %w", coreerrors.ErrBlacklisted)
	ErrNotInBlacklist     = fmt.Errorf("dca: %w: owner is not blacklisted", coreerrors.ErrBlacklisted)
	ErrTooEarly           = fmt.Errorf("dca: %w: trade interval not elapsed", coreerrors.ErrTooEarly)
	ErrSwapReportMismatch = fmt.Errorf("dca: %w: adapter reported output differs from received", coreerrors.ErrMismatch)
	ErrSameSettlement     = fmt.Errorf("dca: %w: settlement token equals funding token", coreerrors.ErrMismatch)
	ErrReceiverMismatch   = fmt.Errorf("dca: %w: receiver must be order owner or receiver", coreerrors.ErrMismatch)
)
