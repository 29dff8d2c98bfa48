package swap

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	coreerrors "xaumdca/core/errors"
	corestate "xaumdca/core/state"
	"xaumdca/native/bank"
	"xaumdca/native/dca"
	"xaumdca/native/minter"
	"xaumdca/storage"
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	operator = common.HexToAddress("0x0000000000000000000000000000000000000002")
	router   = common.HexToAddress("0x0000000000000000000000000000000000000004")
	priceOp  = common.HexToAddress("0x0000000000000000000000000000000000000007")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000a11")

	ledgerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	minterAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	adapterAddr = common.HexToAddress("0x00000000000000000000000000000000000000e0")

	usd1 = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	usdt = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	xaum = common.HexToAddress("0x00000000000000000000000000000000000000a3")
)

const day = 86400

func e18(v int64) *big.Int { return new(big.Int).Mul(big.NewInt(v), big.NewInt(1e18)) }
func e6(v int64) *big.Int { return new(big.Int).Mul(big.NewInt(v), big.NewInt(1e6)) }

func newBank(t *testing.T) *bank.Bank {
	t.Helper()
	b := bank.New(corestate.NewManager(storage.NewMemDB()))
	require.NoError(t, b.Register(usd1, "USD1", 18))
	require.NoError(t, b.Register(usdt, "USDT", 6))
	require.NoError(t, b.Register(xaum, "XAUM", 18))
	return b
}

func TestCallDataRoundTrip(t *testing.T) {
	data, err := EncodeCall(e18(10), e6(9))
	require.NoError(t, err)
	in, minOut, err := DecodeCall(data)
	require.NoError(t, err)
	require.Equal(t, 0, in.Cmp(e18(10)))
	require.Equal(t, 0, minOut.Cmp(e6(9)))

	_, _, err = DecodeCall([]byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrBadCallData)
	_, _, err = DecodeCall(append([]byte{0xde, 0xad, 0xbe, 0xef}, data[4:]...))
	require.ErrorIs(t, err, coreerrors.ErrMismatch)
}

func TestFixedRateAdapterSwap(t *testing.T) {
	b := newBank(t)
	a := NewFixedRateAdapter(b, adapterAddr)
	require.NoError(t, b.Mint(usdt, adapterAddr, e6(1000)))
	require.NoError(t, b.Mint(usd1, alice, e18(100)))

	data, err := EncodeCall(e18(100), e6(99))
	require.NoError(t, err)
	req := dca.SwapRequest{Payer: alice, Recipient: alice, TokenIn: usd1, TokenOut: usdt, AmountIn: e18(100), CallData: data}

	_, err = a.Swap(context.Background(), req)
	require.ErrorIs(t, err, ErrNoRate)

	a.SetRate(usd1, usdt, big.NewInt(98e16))
	_, err = a.Swap(context.Background(), req)
	require.ErrorIs(t, err, ErrSlippage)

	a.SetRate(usd1, usdt, big.NewInt(1e18))
	bad := req
	bad.AmountIn = e18(50)
	_, err = a.Swap(context.Background(), bad)
	require.ErrorIs(t, err, ErrAmountMismatch)

	out, err := a.Swap(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 0, out.Cmp(e6(100)))
	got, _ := b.BalanceOf(usdt, alice)
	require.Equal(t, 0, got.Cmp(e6(100)))
	paid, _ := b.BalanceOf(usd1, adapterAddr)
	require.Equal(t, 0, paid.Cmp(e18(100)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Swap(ctx, req)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLedgerExecutesThroughAdapter(t *testing.T) {
	mgr := corestate.NewManager(storage.NewMemDB())
	b := bank.New(mgr)
	require.NoError(t, b.Register(usd1, "USD1", 18))
	require.NoError(t, b.Register(usdt, "USDT", 6))
	require.NoError(t, b.Register(xaum, "XAUM", 18))
	now := int64(1_700_000_000)
	clock := func() int64 { return now }

	m := minter.NewEngine(mgr, b, minterAddr, xaum)
	m.SetNowFunc(clock)
	require.NoError(t, m.Init(minter.Params{Owner: owner, Delay: day, MinPrice: e18(1000), MaxPrice: e18(5000), PriceOperator: priceOp}))
	require.NoError(t, m.SetStable(owner, usdt, true))
	require.NoError(t, m.SetLedger(owner, ledgerAddr, true))
	require.NoError(t, m.SetFixedPrice(priceOp, e18(2000), 30*day))

	ledger := dca.NewEngine(mgr, b, m, ledgerAddr, usd1)
	ledger.SetNowFunc(clock)
	require.NoError(t, ledger.Init(dca.Params{
		Owner:    owner,
		Operator: operator,
		Delay:    day,
		Settings: dca.Settings{
			Router:           router,
			MinDollarPrice:   big.NewInt(99e16),
			MinDollarAmount:  e18(10),
			MinTradeInterval: day,
			FeeBps:           50,
		},
	}))

	adapter := NewFixedRateAdapter(b, adapterAddr)
	adapter.SetRate(usd1, usdt, big.NewInt(1e18))
	ledger.RegisterAdapter(adapterAddr, adapter)
	require.NoError(t, ledger.SetAdapter(owner, adapterAddr, true))
	require.NoError(t, b.Mint(usdt, adapterAddr, e6(1_000_000)))
	require.NoError(t, b.Mint(xaum, minterAddr, e18(100)))
	require.NoError(t, b.Mint(usd1, alice, e18(4000)))

	id, err := ledger.CreateOrder(router, alice, e18(4000), e18(2000), day, alice)
	require.NoError(t, err)

	data, err := EncodeCall(e18(2000), e6(1990))
	require.NoError(t, err)
	trade, err := ledger.ExecuteOrderAndClaim(context.Background(), operator, id, adapterAddr, usdt, data)
	require.NoError(t, err)
	require.Equal(t, 0, trade.StableOut.Cmp(e6(2000)))
	require.Equal(t, 0, trade.Fee.Cmp(e6(10)))
	// 1990 USDT at 2000 USD per XAUm.
	require.Equal(t, "995000000000000000", trade.XaumOut.String())

	got, _ := b.BalanceOf(xaum, alice)
	require.Equal(t, 0, got.Cmp(trade.XaumOut))
	fee, _ := ledger.FeeToClaim(usdt)
	require.Equal(t, 0, fee.Cmp(e6(10)))

	now += day
	wrong, err := EncodeCall(e18(1000), big.NewInt(0))
	require.NoError(t, err)
	_, err = ledger.ExecuteOrder(context.Background(), operator, id, adapterAddr, usdt, wrong)
	require.ErrorIs(t, err, ErrAmountMismatch)
	o, _ := ledger.Order(id)
	require.Equal(t, 0, o.DollarBalance.Cmp(e18(2000)))
}
