package dca

import (
	"math/big"
)

// tranche is what one trade of an order may spend.
type tranche struct {
	// budget is handed to the swap.
	budget *big.Int
	// entitlement is the order's full claim on ledger funding right now.
	entitlement *big.Int
	// live is the ledger's funding balance net of fees, share mode only.
	live  *big.Int
	final bool
}

// accounting books funding for orders. fixedAccounting tracks nominal
// balances; shareAccounting tracks each order's share of a rebasing funding
// balance.
type accounting interface {
	book(o *Order, amount *big.Int) error
	tranche(o *Order) (tranche, error)
	// debit consumes spent funding and reports whether the order is exhausted.
	debit(o *Order, spent *big.Int, tr tranche) (bool, error)
	// release zeroes the order's funding and returns what it was worth.
	release(o *Order) (*big.Int, error)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// subFloor returns max(a-b, 0).
func subFloor(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(a, b)
	if out.Sign() < 0 {
		out.SetUint64(0)
	}
	return out
}

func (e *Engine) accounting(s *Settings) accounting {
	if s.Rebase {
		return shareAccounting{e: e}
	}
	return fixedAccounting{}
}

type fixedAccounting struct{}

func (fixedAccounting) book(o *Order, amount *big.Int) error {
	o.DollarBalance = new(big.Int).Set(amount)
	return nil
}

func (fixedAccounting) tranche(o *Order) (tranche, error) {
	return tranche{
		budget:      minBig(o.DollarPerTrade, o.DollarBalance),
		entitlement: new(big.Int).Set(o.DollarBalance),
		final:       o.DollarBalance.Cmp(o.DollarPerTrade) <= 0,
	}, nil
}

func (fixedAccounting) debit(o *Order, spent *big.Int, _ tranche) (bool, error) {
	o.DollarBalance = subFloor(o.DollarBalance, spent)
	return o.DollarBalance.Sign() == 0, nil
}

func (fixedAccounting) release(o *Order) (*big.Int, error) {
	refund := new(big.Int).Set(o.DollarBalance)
	o.DollarBalance = big.NewInt(0)
	return refund, nil
}

type shareAccounting struct {
	e *Engine
}

// liveBalance is the funding the ledger holds on behalf of orders.
func (a shareAccounting) liveBalance() (*big.Int, error) {
	held, err := a.e.bank.BalanceOf(a.e.dollar, a.e.self)
	if err != nil {
		return nil, err
	}
	fees, err := a.e.feeToClaim(a.e.dollar)
	if err != nil {
		return nil, err
	}
	return subFloor(held, fees), nil
}

func (a shareAccounting) entitlement(o *Order) (*big.Int, *big.Int, error) {
	live, err := a.liveBalance()
	if err != nil {
		return nil, nil, err
	}
	total, err := a.e.totalShares()
	if err != nil {
		return nil, nil, err
	}
	if total.Sign() == 0 {
		return big.NewInt(0), live, nil
	}
	out := new(big.Int).Mul(o.DollarShareBalance, live)
	return out.Quo(out, total), live, nil
}

func (a shareAccounting) book(o *Order, amount *big.Int) error {
	total, err := a.e.totalShares()
	if err != nil {
		return err
	}
	o.DollarBalance = new(big.Int).Set(amount)
	o.DollarShareInitAmount = new(big.Int).Set(amount)
	o.DollarShareBalance = new(big.Int).Set(amount)
	return a.e.setTotalShares(total.Add(total, amount))
}

func (a shareAccounting) tranche(o *Order) (tranche, error) {
	ent, live, err := a.entitlement(o)
	if err != nil {
		return tranche{}, err
	}
	tr := tranche{entitlement: ent, live: live, final: o.DollarBalance.Cmp(o.DollarPerTrade) <= 0}
	if tr.final {
		tr.budget = new(big.Int).Set(ent)
	} else {
		tr.budget = minBig(o.DollarPerTrade, ent)
	}
	return tr, nil
}

func (a shareAccounting) burn(o *Order, shares *big.Int) error {
	total, err := a.e.totalShares()
	if err != nil {
		return err
	}
	o.DollarShareBalance = subFloor(o.DollarShareBalance, shares)
	return a.e.setTotalShares(subFloor(total, shares))
}

func (a shareAccounting) debit(o *Order, spent *big.Int, tr tranche) (bool, error) {
	shares := new(big.Int).Set(o.DollarShareBalance)
	if spent.Cmp(tr.entitlement) < 0 && tr.live.Sign() > 0 {
		total, err := a.e.totalShares()
		if err != nil {
			return false, err
		}
		shares.Mul(spent, total).Quo(shares, tr.live)
		shares = minBig(shares, o.DollarShareBalance)
	}
	if err := a.burn(o, shares); err != nil {
		return false, err
	}
	if o.DollarShareBalance.Sign() == 0 {
		o.DollarBalance = big.NewInt(0)
		return true, nil
	}
	// Shares left over mean funding is still owed to the order, so the
	// balance follows the remaining entitlement once the nominal one runs out.
	balance := subFloor(o.DollarBalance, spent)
	if tr.final || balance.Sign() == 0 {
		balance = subFloor(tr.entitlement, spent)
	}
	if balance.Sign() == 0 {
		if err := a.burn(o, o.DollarShareBalance); err != nil {
			return false, err
		}
		o.DollarBalance = balance
		return true, nil
	}
	o.DollarBalance = balance
	return false, nil
}

func (a shareAccounting) release(o *Order) (*big.Int, error) {
	ent, _, err := a.entitlement(o)
	if err != nil {
		return nil, err
	}
	if err := a.burn(o, o.DollarShareBalance); err != nil {
		return nil, err
	}
	o.DollarBalance = big.NewInt(0)
	return ent, nil
}
