package swap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	coreerrors "xaumdca/core/errors"
	"xaumdca/native/dca"
)

// RateDecimals is the fixed-point precision of adapter rates.
const RateDecimals = 18

const swapABI = `[{"type":"function","name":"swap","inputs":[{"name":"amountIn","type":"uint256"},{"name":"minAmountOut","type":"uint256"}],"outputs":[{"name":"amountOut","type":"uint256"}]}]`

var parsedABI = mustParseABI(swapABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("swap: parse abi: %v", err))
	}
	return parsed
}

var (
	ErrBadCallData    = fmt.Errorf("swap: %w: call data", coreerrors.ErrMismatch)
	ErrAmountMismatch = fmt.Errorf("swap: %w: encoded amount differs from request", coreerrors.ErrMismatch)
	ErrSlippage       = fmt.Errorf("swap: %w: output below minimum", coreerrors.ErrOutOfRange)
	ErrNoRate         = fmt.Errorf("swap: %w: no rate for pair", coreerrors.ErrNotWhitelisted)
	ErrEmptyInventory = fmt.Errorf("swap: %w: adapter inventory", coreerrors.ErrInvalidAmount)
	errNilBank        = errors.New("swap: bank not configured")
)

// Bank moves tokens for the adapter.
type Bank interface {
	Transfer(token, from, to common.Address, amount *big.Int) error
	BalanceOf(token, holder common.Address) (*big.Int, error)
	Decimals(token common.Address) (uint8, error)
}

// EncodeCall packs swap(amountIn, minAmountOut) call data.
func EncodeCall(amountIn, minAmountOut *big.Int) ([]byte, error) {
	return parsedABI.Pack("swap", amountIn, minAmountOut)
}

// DecodeCall unpacks call data produced by EncodeCall.
func DecodeCall(data []byte) (amountIn, minAmountOut *big.Int, err error) {
	method, ok := parsedABI.Methods["swap"]
	if !ok || len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, nil, ErrBadCallData
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadCallData, err)
	}
	if len(values) != 2 {
		return nil, nil, ErrBadCallData
	}
	amountIn, ok1 := values[0].(*big.Int)
	minAmountOut, ok2 := values[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, nil, ErrBadCallData
	}
	return amountIn, minAmountOut, nil
}

type pair struct {
	in, out common.Address
}

// FixedRateAdapter swaps from its own inventory at operator-set rates. It is
// the in-process stand-in for an external venue.
type FixedRateAdapter struct {
	mu    sync.RWMutex
	bank  Bank
	self  common.Address
	rates map[pair]*big.Int
}

var _ dca.SwapAdapter = (*FixedRateAdapter)(nil)

// NewFixedRateAdapter returns an adapter whose inventory is held by self.
func NewFixedRateAdapter(bank Bank, self common.Address) *FixedRateAdapter {
	return &FixedRateAdapter{bank: bank, self: self, rates: make(map[pair]*big.Int)}
}

// Address returns the inventory account of the adapter.
func (a *FixedRateAdapter) Address() common.Address { return a.self }

// SetRate prices one unit of in as rate/1e18 units of out. A nil or zero rate
// disables the pair.
func (a *FixedRateAdapter) SetRate(in, out common.Address, rate *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rate == nil || rate.Sign() <= 0 {
		delete(a.rates, pair{in, out})
		return
	}
	a.rates[pair{in, out}] = new(big.Int).Set(rate)
}

// Quote returns what amountIn of in buys, rescaled for both tokens' decimals.
func (a *FixedRateAdapter) Quote(in, out common.Address, amountIn *big.Int) (*big.Int, error) {
	if a.bank == nil {
		return nil, errNilBank
	}
	a.mu.RLock()
	rate, ok := a.rates[pair{in, out}]
	a.mu.RUnlock()
	if !ok {
		return nil, ErrNoRate
	}
	inDec, err := a.bank.Decimals(in)
	if err != nil {
		return nil, err
	}
	outDec, err := a.bank.Decimals(out)
	if err != nil {
		return nil, err
	}
	num := new(big.Int).Mul(amountIn, rate)
	num.Mul(num, pow10(outDec))
	den := new(big.Int).Mul(pow10(inDec), pow10(RateDecimals))
	return num.Quo(num, den), nil
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Swap pulls the requested input from the payer and pays the quoted output to
// the recipient. The call data must encode the same input amount.
func (a *FixedRateAdapter) Swap(ctx context.Context, req dca.SwapRequest) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	amountIn, minOut, err := DecodeCall(req.CallData)
	if err != nil {
		return nil, err
	}
	if req.AmountIn == nil || amountIn.Cmp(req.AmountIn) != 0 {
		return nil, fmt.Errorf("%w: encoded %s, requested %s", ErrAmountMismatch, amountIn, req.AmountIn)
	}
	out, err := a.Quote(req.TokenIn, req.TokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	if out.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrSlippage, out, minOut)
	}
	held, err := a.bank.BalanceOf(req.TokenOut, a.self)
	if err != nil {
		return nil, err
	}
	if held.Cmp(out) < 0 {
		return nil, fmt.Errorf("%w: holds %s, owes %s", ErrEmptyInventory, held, out)
	}
	if err := a.bank.Transfer(req.TokenIn, req.Payer, a.self, amountIn); err != nil {
		return nil, err
	}
	if err := a.bank.Transfer(req.TokenOut, a.self, req.Recipient, out); err != nil {
		return nil, err
	}
	return out, nil
}
