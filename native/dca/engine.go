package dca

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"xaumdca/core/events"
	"xaumdca/core/types"
	"xaumdca/native/timelock"
)

const (
	// FeeDenominator is the basis-point scale of FeeBps.
	FeeDenominator = 10_000
	// SwapTolerance is the basis-point slack allowed between the budget and
	// what a swap consumes, and between funding spent and settlement received.
	SwapTolerance = 10_500
	// MaxPageSize bounds a single paginated query.
	MaxPageSize = 1000
	// defaultIntervalSpan is how many minimum intervals the default upper
	// interval bound covers.
	defaultIntervalSpan = 12
)

// Bank is the token service the ledger holds funds in.
type Bank interface {
	Transfer(token, from, to common.Address, amount *big.Int) error
	BalanceOf(token, holder common.Address) (*big.Int, error)
	Decimals(token common.Address) (uint8, error)
	TransferNFT(collection, from, to common.Address, id *big.Int) error
}

// Minter converts settlement stables into XAUm and custodies the output until
// the ledger collects it.
type Minter interface {
	Convert(caller, beneficiary, fromToken common.Address, amount *big.Int) (*big.Int, error)
	Collect(caller, beneficiary common.Address, amount *big.Int) error
	IsStable(token common.Address) (bool, error)
	XAUm() common.Address
}

// SwapRequest is what the ledger hands an adapter for one tranche. The adapter
// may pull up to AmountIn of TokenIn from Payer and must deliver TokenOut to
// Recipient.
type SwapRequest struct {
	Payer     common.Address
	Recipient common.Address
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	CallData  []byte
}

// SwapAdapter executes an opaque swap and reports the output it produced. The
// report is checked against observed balances before anything relies on it.
type SwapAdapter interface {
	Swap(ctx context.Context, req SwapRequest) (*big.Int, error)
}

type engineState interface {
	timelock.Store
	KVDelete(key []byte) error
	Atomic(fn func() error) error
}

// Params seeds a fresh ledger.
type Params struct {
	Owner    common.Address
	Operator common.Address
	Revoker  common.Address
	Delay    uint64
	Settings Settings
}

// Engine is the order ledger for one funding token.
type Engine struct {
	state   engineState
	bank    Bank
	minter  Minter
	emitter events.Emitter
	nowFn   func() int64

	self   common.Address
	dollar common.Address
	ns     string

	gov      *timelock.Governance
	operator *timelock.Field[common.Address]
	adapters map[common.Address]SwapAdapter
}

func formatAddr(a common.Address) string { return hexAddr(a) }

// NewEngine binds a ledger whose custody account is self and whose funding
// token is dollar.
func NewEngine(state engineState, bank Bank, minter Minter, self, dollar common.Address) *Engine {
	ns := "dca/" + strings.ToLower(self.Hex())
	e := &Engine{
		state:    state,
		bank:     bank,
		minter:   minter,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		self:     self,
		dollar:   dollar,
		ns:       ns,
		gov:      timelock.New(state, ns),
		adapters: make(map[common.Address]SwapAdapter),
	}
	e.operator = timelock.NewField[common.Address](state, ns, "operator", formatAddr)
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

// RegisterAdapter makes an adapter implementation callable under addr. The
// address must also be allow-listed by the owner before execution accepts it.
func (e *Engine) RegisterAdapter(addr common.Address, adapter SwapAdapter) {
	if adapter == nil {
		delete(e.adapters, addr)
		return
	}
	e.adapters[addr] = adapter
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
	if e.minter == nil {
		return errNilMinter
	}
	return nil
}

// Address returns the custody account of the ledger.
func (e *Engine) Address() common.Address { return e.self }

// Dollar returns the funding token.
func (e *Engine) Dollar() common.Address { return e.dollar }

// Governance exposes ownership and upgrade controls.
func (e *Engine) Governance() *timelock.Governance { return e.gov }

func validateSettings(s *Settings) error {
	if s.FeeBps > FeeDenominator {
		return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, s.FeeBps)
	}
	return validateIntervals(s.MinTradeInterval, s.MaxTradeInterval)
}

func validateIntervals(minInterval, maxInterval uint64) error {
	if minInterval == 0 {
		return fmt.Errorf("%w: minimum must be positive", ErrInvalidInterval)
	}
	if maxInterval != 0 && maxInterval < minInterval {
		return fmt.Errorf("%w: maximum %d below minimum %d", ErrInvalidInterval, maxInterval, minInterval)
	}
	return nil
}

// Init seeds governance and settings. Existing values are left untouched.
func (e *Engine) Init(p Params) error {
	if err := e.ready(); err != nil {
		return err
	}
	settings := p.Settings
	settings.normalize()
	if err := validateSettings(&settings); err != nil {
		return err
	}
	if _, err := e.bank.Decimals(e.dollar); err != nil {
		return fmt.Errorf("dca: funding token: %w", err)
	}
	return e.state.Atomic(func() error {
		if err := e.gov.Init(p.Owner, p.Delay, p.Revoker); err != nil {
			return err
		}
		if err := e.operator.Init(p.Operator); err != nil {
			return err
		}
		var existing Settings
		ok, err := e.state.KVGet(e.settingsKey(), &existing)
		if err != nil || ok {
			return err
		}
		return e.state.KVPut(e.settingsKey(), &settings)
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

func (e *Engine) RequestOperator(caller, operator common.Address) error {
	return request(e, e.operator, caller, operator)
}
func (e *Engine) RevokeOperator(caller common.Address) error { return revoke(e, e.operator, caller) }

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

func (e *Engine) onlyOperator(caller common.Address) error {
	operator, err := e.operator.Current()
	if err != nil {
		return err
	}
	if operator == (common.Address{}) || caller != operator {
		return ErrNotOperator
	}
	return nil
}

// GovernedAddress describes an address-valued governed field.
type GovernedAddress = timelock.Timer[common.Address]

func (e *Engine) Operator() (GovernedAddress, error) { return e.operator.Load() }
func (e *Engine) Revoker() (GovernedAddress, error) { return e.gov.Revoker.Load() }
func (e *Engine) Delay() (timelock.Timer[uint64], error) { return e.gov.Delay.Load() }
