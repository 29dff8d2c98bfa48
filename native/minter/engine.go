package minter

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"xaumdca/core/events"
	"xaumdca/core/types"
	"xaumdca/native/timelock"
)

// PriceDecimals is the fixed-point precision of the XAUm price in USD.
const PriceDecimals = 18

// Bank is the token service the minter settles through.
type Bank interface {
	Transfer(token, from, to common.Address, amount *big.Int) error
	BalanceOf(token, holder common.Address) (*big.Int, error)
	Decimals(token common.Address) (uint8, error)
	TransferNFT(collection, from, to common.Address, id *big.Int) error
}

type engineState interface {
	timelock.Store
	KVDelete(key []byte) error
	Atomic(fn func() error) error
}

// Params seeds the governed values of a fresh minter.
type Params struct {
	Owner         common.Address
	Delay         uint64
	MinPrice      *big.Int
	MaxPrice      *big.Int
	PriceOperator common.Address
	FundOperator  common.Address
	FundRecipient common.Address
	Revoker       common.Address
}

// Engine converts accepted stables into XAUm at an operator-pushed price and
// custodies the output per (ledger, beneficiary) until the ledger collects it.
type Engine struct {
	state   engineState
	bank    Bank
	emitter events.Emitter
	nowFn   func() int64

	self common.Address
	xaum common.Address
	ns   string

	gov           *timelock.Governance
	minPrice      *timelock.Field[uint256.Int]
	maxPrice      *timelock.Field[uint256.Int]
	priceOperator *timelock.Field[common.Address]
	fundOperator  *timelock.Field[common.Address]
	fundRecipient *timelock.Field[common.Address]
}

func formatPrice(v uint256.Int) string { return v.Dec() }

func formatAddr(a common.Address) string { return strings.ToLower(a.Hex()) }

// NewEngine binds a minter whose custody account is self and whose output
// token is xaum.
func NewEngine(state engineState, bank Bank, self, xaum common.Address) *Engine {
	ns := "minter/" + strings.ToLower(self.Hex())
	e := &Engine{
		state:   state,
		bank:    bank,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		self:    self,
		xaum:    xaum,
		ns:      ns,
		gov:     timelock.New(state, ns),
	}
	e.minPrice = timelock.NewField[uint256.Int](state, ns, "minPrice", formatPrice)
	e.maxPrice = timelock.NewField[uint256.Int](state, ns, "maxPrice", formatPrice)
	e.priceOperator = timelock.NewField[common.Address](state, ns, "priceOperator", formatAddr)
	e.fundOperator = timelock.NewField[common.Address](state, ns, "fundOperator", formatAddr)
	e.fundRecipient = timelock.NewField[common.Address](state, ns, "fundRecipient", formatAddr)
	return e
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
	e.gov.SetEmitter(emitter)
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	return nil
}

// Address returns the custody account of the minter.
func (e *Engine) Address() common.Address { return e.self }

// XAUm returns the output token.
func (e *Engine) XAUm() common.Address { return e.xaum }

// Governance exposes ownership and upgrade controls.
func (e *Engine) Governance() *timelock.Governance { return e.gov }

func toU256(v *big.Int) (uint256.Int, error) {
	var out uint256.Int
	if v == nil {
		return out, nil
	}
	if v.Sign() < 0 {
		return out, fmt.Errorf("minter: negative value %s", v)
	}
	if out.SetFromBig(v) {
		return out, fmt.Errorf("minter: value %s overflows 256 bits", v)
	}
	return out, nil
}

// Init seeds governed values. Existing values are left untouched.
func (e *Engine) Init(p Params) error {
	if err := e.ready(); err != nil {
		return err
	}
	minPrice, err := toU256(p.MinPrice)
	if err != nil {
		return err
	}
	maxPrice, err := toU256(p.MaxPrice)
	if err != nil {
		return err
	}
	if minPrice.Gt(&maxPrice) {
		return fmt.Errorf("%w: min %s above max %s", ErrInvalidPriceLimit, minPrice.Dec(), maxPrice.Dec())
	}
	if _, err := e.bank.Decimals(e.xaum); err != nil {
		return fmt.Errorf("minter: xaum token: %w", err)
	}
	return e.state.Atomic(func() error {
		if err := e.gov.Init(p.Owner, p.Delay, p.Revoker); err != nil {
			return err
		}
		if err := e.minPrice.Init(minPrice); err != nil {
			return err
		}
		if err := e.maxPrice.Init(maxPrice); err != nil {
			return err
		}
		if err := e.priceOperator.Init(p.PriceOperator); err != nil {
			return err
		}
		if err := e.fundOperator.Init(p.FundOperator); err != nil {
			return err
		}
		return e.fundRecipient.Init(p.FundRecipient)
	})
}

func request[T comparable](e *Engine, f *timelock.Field[T], caller common.Address, value T) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		_, err := timelock.Request(e.gov, f, caller, e.now(), value)
		return err
	})
}

func revoke[T comparable](e *Engine, f *timelock.Field[T], caller common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		_, err := timelock.Revoke(e.gov, f, caller)
		return err
	})
}

func (e *Engine) RequestDelay(caller common.Address, delay uint64) error {
	return request(e, e.gov.Delay, caller, delay)
}
func (e *Engine) RevokeDelay(caller common.Address) error { return revoke(e, e.gov.Delay, caller) }

func (e *Engine) RequestRevoker(caller, revoker common.Address) error {
	return request(e, e.gov.Revoker, caller, revoker)
}
func (e *Engine) RevokeRevoker(caller common.Address) error { return revoke(e, e.gov.Revoker, caller) }

func (e *Engine) RequestPriceOperator(caller, operator common.Address) error {
	return request(e, e.priceOperator, caller, operator)
}
func (e *Engine) RevokePriceOperator(caller common.Address) error {
	return revoke(e, e.priceOperator, caller)
}

func (e *Engine) RequestFundOperator(caller, operator common.Address) error {
	return request(e, e.fundOperator, caller, operator)
}
func (e *Engine) RevokeFundOperator(caller common.Address) error {
	return revoke(e, e.fundOperator, caller)
}

func (e *Engine) RequestFundRecipient(caller, recipient common.Address) error {
	return request(e, e.fundRecipient, caller, recipient)
}
func (e *Engine) RevokeFundRecipient(caller common.Address) error {
	return revoke(e, e.fundRecipient, caller)
}

// RequestMinPrice proposes a new lower price bound. It must not exceed the
// upper bound in effect at request time.
func (e *Engine) RequestMinPrice(caller common.Address, price *big.Int) error {
	if err := e.gov.OnlyOwner(caller); err != nil {
		return err
	}
	value, err := toU256(price)
	if err != nil {
		return err
	}
	maxPrice, err := e.maxPrice.Current()
	if err != nil {
		return err
	}
	if value.Gt(&maxPrice) {
		return fmt.Errorf("%w: min %s above max %s", ErrInvalidPriceLimit, value.Dec(), maxPrice.Dec())
	}
	return request(e, e.minPrice, caller, value)
}
func (e *Engine) RevokeMinPrice(caller common.Address) error { return revoke(e, e.minPrice, caller) }

// RequestMaxPrice proposes a new upper price bound. It must not fall below
// the lower bound in effect at request time.
func (e *Engine) RequestMaxPrice(caller common.Address, price *big.Int) error {
	if err := e.gov.OnlyOwner(caller); err != nil {
		return err
	}
	value, err := toU256(price)
	if err != nil {
		return err
	}
	minPrice, err := e.minPrice.Current()
	if err != nil {
		return err
	}
	if value.Lt(&minPrice) {
		return fmt.Errorf("%w: min %s above max %s", ErrInvalidPriceLimit, minPrice.Dec(), value.Dec())
	}
	return request(e, e.maxPrice, caller, value)
}
func (e *Engine) RevokeMaxPrice(caller common.Address) error { return revoke(e, e.maxPrice, caller) }

// RequestUpgrade commits to a new implementation and its initialisation data.
func (e *Engine) RequestUpgrade(caller, impl common.Address, data []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error { return e.gov.RequestUpgrade(caller, e.now(), impl, data) })
}

// UpgradeToAndCall activates the committed implementation.
func (e *Engine) UpgradeToAndCall(caller, impl common.Address, data []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error { return e.gov.ExecuteUpgrade(caller, e.now(), impl, data) })
}

func (e *Engine) RevokeUpgrade(caller common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		_, err := e.gov.RevokeUpgrade(caller)
		return err
	})
}

// GovernedAddress describes an address-valued governed field.
type GovernedAddress = timelock.Timer[common.Address]

// GovernedPrice describes a price bound with big.Int values.
type GovernedPrice struct {
	Current     *big.Int
	Next        *big.Int
	EffectiveAt uint64
}

func loadPrice(f *timelock.Field[uint256.Int]) (GovernedPrice, error) {
	timer, err := f.Load()
	if err != nil {
		return GovernedPrice{}, err
	}
	return GovernedPrice{Current: timer.Current.ToBig(), Next: timer.Next.ToBig(), EffectiveAt: timer.EffectiveAt}, nil
}

func (e *Engine) MinPrice() (GovernedPrice, error) { return loadPrice(e.minPrice) }
func (e *Engine) MaxPrice() (GovernedPrice, error) { return loadPrice(e.maxPrice) }

func (e *Engine) PriceOperator() (GovernedAddress, error) { return e.priceOperator.Load() }
func (e *Engine) FundOperator() (GovernedAddress, error) { return e.fundOperator.Load() }
func (e *Engine) FundRecipient() (GovernedAddress, error) { return e.fundRecipient.Load() }
func (e *Engine) Revoker() (GovernedAddress, error) { return e.gov.Revoker.Load() }
func (e *Engine) Delay() (timelock.Timer[uint64], error) { return e.gov.Delay.Load() }
