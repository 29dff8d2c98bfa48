package dca

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	modeAdapter = "adapter"
	modeDirect  = "direct"
)

var priceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// withTolerance returns floor(v * SwapTolerance / FeeDenominator).
func withTolerance(v *big.Int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(SwapTolerance))
	return out.Quo(out, big.NewInt(FeeDenominator))
}

func feeOf(v *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(v, new(big.Int).SetUint64(bps))
	return out.Quo(out, big.NewInt(FeeDenominator))
}

// loadTradable returns the order if it is active and its interval has
// elapsed. The first trade is always allowed.
func (e *Engine) loadTradable(s *Settings, id uint64) (*Order, error) {
	o, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusActive {
		return nil, fmt.Errorf("%w: order %d is %s", ErrInvalidStatus, o.ID, o.Status)
	}
	if next := nextTradeTime(s, o); next != 0 && e.now() < next {
		return nil, fmt.Errorf("%w: next trade at %d", ErrTooEarly, next)
	}
	return o, nil
}

func nextTradeTime(s *Settings, o *Order) uint64 {
	if o.LastTradeTime == 0 {
		return 0
	}
	wait := o.Interval
	if s.MinTradeInterval > wait {
		wait = s.MinTradeInterval
	}
	return o.LastTradeTime + wait
}

// settle takes the fee from settled, converts the rest through the minter on
// behalf of the order owner, then books the trade against the order.
func (e *Engine) settle(s *Settings, o *Order, tr tranche, stable *big.Int, stableToken common.Address, spent *big.Int, mode string) (*Trade, error) {
	fee := feeOf(stable, s.FeeBps)
	if err := e.addFee(stableToken, fee); err != nil {
		return nil, err
	}
	net := new(big.Int).Sub(stable, fee)
	out, err := e.minter.Convert(e.self, o.Owner, stableToken, net)
	if err != nil {
		return nil, err
	}
	exhausted, err := e.accounting(s).debit(o, spent, tr)
	if err != nil {
		return nil, err
	}
	o.XaumPending = new(big.Int).Add(o.XaumPending, out)
	o.LastTradeTime = e.now()
	if exhausted {
		o.Status = StatusCompletedWithoutCollect
	}
	if err := e.saveOrder(o); err != nil {
		return nil, err
	}
	trade := &Trade{
		OrderID:   o.ID,
		DollarIn:  new(big.Int).Set(spent),
		StableOut: new(big.Int).Set(stable),
		Fee:       fee,
		XaumOut:   out,
		Completed: exhausted,
	}
	e.emit(newOrderExecutedEvent(o, trade, mode))
	return trade, nil
}

// ExecuteOrder trades one tranche of order id through an allow-listed
// adapter, settling in stable. What the adapter actually moved is read back
// from balances and bounded before the minter converts it.
func (e *Engine) ExecuteOrder(ctx context.Context, caller common.Address, id uint64, adapterAddr, stable common.Address, callData []byte) (*Trade, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var trade *Trade
	err := e.state.Atomic(func() error {
		t, err := e.executeOrder(ctx, caller, id, adapterAddr, stable, callData)
		trade = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

func (e *Engine) executeOrder(ctx context.Context, caller common.Address, id uint64, adapterAddr, stable common.Address, callData []byte) (*Trade, error) {
	if err := e.onlyOperator(caller); err != nil {
		return nil, err
	}
	if stable == e.dollar {
		return nil, ErrSameSettlement
	}
	if ok, err := e.minter.IsStable(stable); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrStableNotAccepted
	}
	allowed, err := e.flag(e.adapterKey(adapterAddr))
	if err != nil {
		return nil, err
	}
	adapter, registered := e.adapters[adapterAddr]
	if !allowed || !registered {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotAllowed, adapterAddr.Hex())
	}
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	o, err := e.loadTradable(s, id)
	if err != nil {
		return nil, err
	}
	tr, err := e.accounting(s).tranche(o)
	if err != nil {
		return nil, err
	}
	if tr.budget.Sign() == 0 {
		return nil, ErrNothingToTrade
	}

	dollarBefore, err := e.bank.BalanceOf(e.dollar, e.self)
	if err != nil {
		return nil, err
	}
	stableBefore, err := e.bank.BalanceOf(stable, e.self)
	if err != nil {
		return nil, err
	}
	reported, err := adapter.Swap(ctx, SwapRequest{
		Payer:     e.self,
		Recipient: e.self,
		TokenIn:   e.dollar,
		TokenOut:  stable,
		AmountIn:  new(big.Int).Set(tr.budget),
		CallData:  callData,
	})
	if err != nil {
		return nil, fmt.Errorf("dca: swap: %w", err)
	}
	dollarAfter, err := e.bank.BalanceOf(e.dollar, e.self)
	if err != nil {
		return nil, err
	}
	stableAfter, err := e.bank.BalanceOf(stable, e.self)
	if err != nil {
		return nil, err
	}
	spent := subFloor(dollarBefore, dollarAfter)
	received := subFloor(stableAfter, stableBefore)
	if err := e.checkSwap(s, tr, stable, spent, received, reported); err != nil {
		return nil, err
	}
	return e.settle(s, o, tr, received, stable, spent, modeAdapter)
}

func (e *Engine) checkSwap(s *Settings, tr tranche, stable common.Address, spent, received, reported *big.Int) error {
	if spent.Sign() == 0 {
		return ErrNoSwapInput
	}
	if spent.Cmp(withTolerance(tr.budget)) > 0 || spent.Cmp(tr.entitlement) > 0 {
		return fmt.Errorf("%w: spent %s of budget %s", ErrSwapInputTooLarge, spent, tr.budget)
	}
	if reported == nil || reported.Cmp(received) != 0 {
		return fmt.Errorf("%w: reported %s, received %s", ErrSwapReportMismatch, amount(reported), received)
	}
	dollarDec, err := e.bank.Decimals(e.dollar)
	if err != nil {
		return err
	}
	stableDec, err := e.bank.Decimals(stable)
	if err != nil {
		return err
	}
	normalized := new(big.Int).Mul(received, pow10(dollarDec))
	normalized.Quo(normalized, pow10(stableDec))
	if normalized.Cmp(withTolerance(spent)) > 0 {
		return fmt.Errorf("%w: %s for %s", ErrSwapOutputTooHigh, normalized, spent)
	}
	floor := new(big.Int).Mul(spent, s.MinDollarPrice)
	if new(big.Int).Mul(normalized, priceScale).Cmp(floor) < 0 {
		return fmt.Errorf("%w: %s for %s", ErrSwapPriceTooLow, normalized, spent)
	}
	return nil
}

// ExecuteOrderDirect trades one tranche by converting the funding token
// itself, which the minter must accept as a stable.
func (e *Engine) ExecuteOrderDirect(caller common.Address, id uint64) (*Trade, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var trade *Trade
	err := e.state.Atomic(func() error {
		t, err := e.executeOrderDirect(caller, id)
		trade = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

func (e *Engine) executeOrderDirect(caller common.Address, id uint64) (*Trade, error) {
	if err := e.onlyOperator(caller); err != nil {
		return nil, err
	}
	if ok, err := e.minter.IsStable(e.dollar); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrDollarNotStable
	}
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	o, err := e.loadTradable(s, id)
	if err != nil {
		return nil, err
	}
	tr, err := e.accounting(s).tranche(o)
	if err != nil {
		return nil, err
	}
	if tr.budget.Sign() == 0 {
		return nil, ErrNothingToTrade
	}
	return e.settle(s, o, tr, tr.budget, e.dollar, tr.budget, modeDirect)
}

// ExecuteOrderAndClaim executes through an adapter, collects the output and
// pays it to the receiver in one step.
func (e *Engine) ExecuteOrderAndClaim(ctx context.Context, caller common.Address, id uint64, adapterAddr, stable common.Address, callData []byte) (*Trade, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var trade *Trade
	err := e.state.Atomic(func() error {
		t, err := e.executeOrder(ctx, caller, id, adapterAddr, stable, callData)
		if err != nil {
			return err
		}
		trade = t
		return e.collectAndClaim(caller, id)
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// ExecuteOrderDirectAndClaim is ExecuteOrderDirect followed by collect and
// claim in one step.
func (e *Engine) ExecuteOrderDirectAndClaim(caller common.Address, id uint64) (*Trade, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var trade *Trade
	err := e.state.Atomic(func() error {
		t, err := e.executeOrderDirect(caller, id)
		if err != nil {
			return err
		}
		trade = t
		return e.collectAndClaim(caller, id)
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

func (e *Engine) collectAndClaim(caller common.Address, id uint64) error {
	if _, err := e.collect(caller, id); err != nil {
		return err
	}
	_, err := e.claim(caller, id)
	return err
}

// CollectXaum moves the order's pending XAUm out of the minter into ledger
// custody and returns the amount.
func (e *Engine) CollectXaum(caller common.Address, id uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var collected *big.Int
	err := e.state.Atomic(func() error {
		amt, err := e.collect(caller, id)
		collected = amt
		return err
	})
	if err != nil {
		return nil, err
	}
	return collected, nil
}

func (e *Engine) collect(caller common.Address, id uint64) (*big.Int, error) {
	if err := e.onlyOperator(caller); err != nil {
		return nil, err
	}
	o, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusActive && o.Status != StatusCompletedWithoutCollect {
		return nil, fmt.Errorf("%w: order %d is %s", ErrInvalidStatus, o.ID, o.Status)
	}
	if o.XaumPending.Sign() == 0 {
		return nil, ErrNothingPending
	}
	pending := new(big.Int).Set(o.XaumPending)
	if err := e.minter.Collect(e.self, o.Owner, pending); err != nil {
		return nil, err
	}
	o.XaumBalance = new(big.Int).Add(o.XaumBalance, pending)
	o.XaumPending = big.NewInt(0)
	if o.Status == StatusCompletedWithoutCollect {
		o.Status = StatusCompletedWithoutClaim
	}
	if err := e.saveOrder(o); err != nil {
		return nil, err
	}
	e.emit(newOrderCollectedEvent(o, pending))
	return pending, nil
}

// ClaimAllXaum pays the order's collected XAUm to its receiver and returns the
// amount. A completed order leaves both indices.
func (e *Engine) ClaimAllXaum(caller common.Address, id uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var claimed *big.Int
	err := e.state.Atomic(func() error {
		amt, err := e.claim(caller, id)
		claimed = amt
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (e *Engine) claim(caller common.Address, id uint64) (*big.Int, error) {
	if err := e.onlyOperator(caller); err != nil {
		return nil, err
	}
	o, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusActive && o.Status != StatusCompletedWithoutClaim {
		return nil, fmt.Errorf("%w: order %d is %s", ErrInvalidStatus, o.ID, o.Status)
	}
	if o.XaumBalance.Sign() == 0 {
		return nil, ErrNothingToClaim
	}
	if blocked, err := e.blacklisted(o.Owner, o.Receiver); err != nil {
		return nil, err
	} else if blocked {
		return nil, ErrBlacklisted
	}
	paid := new(big.Int).Set(o.XaumBalance)
	if err := e.bank.Transfer(e.minter.XAUm(), e.self, o.Receiver, paid); err != nil {
		return nil, err
	}
	o.XaumBalance = big.NewInt(0)
	completed := o.Status == StatusCompletedWithoutClaim
	if completed {
		o.Status = StatusCompleted
		if err := e.unindex(o); err != nil {
			return nil, err
		}
	}
	if err := e.saveOrder(o); err != nil {
		return nil, err
	}
	e.emit(newOrderClaimedEvent(o, paid, completed))
	return paid, nil
}
