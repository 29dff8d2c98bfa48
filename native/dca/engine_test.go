package dca

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	coreerrors "xaumdca/core/errors"
	"xaumdca/core/events"
	corestate "xaumdca/core/state"
	"xaumdca/native/bank"
	"xaumdca/native/minter"
	"xaumdca/native/timelock"
	"xaumdca/storage"
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	operator = common.HexToAddress("0x0000000000000000000000000000000000000002")
	revoker  = common.HexToAddress("0x0000000000000000000000000000000000000003")
	router   = common.HexToAddress("0x0000000000000000000000000000000000000004")
	legal    = common.HexToAddress("0x0000000000000000000000000000000000000005")
	feeSink  = common.HexToAddress("0x0000000000000000000000000000000000000006")
	priceOp  = common.HexToAddress("0x0000000000000000000000000000000000000007")

	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000c01")

	ledgerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	minterAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	adapterAddr = common.HexToAddress("0x00000000000000000000000000000000000000e0")

	usd1 = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	usdc = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	xaum = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	nft  = common.HexToAddress("0x00000000000000000000000000000000000000a4")
)

const day = 86400

func e18(v int64) *big.Int { return new(big.Int).Mul(big.NewInt(v), big.NewInt(1e18)) }

func requireBig(t *testing.T, want int64, got *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	require.NotNil(t, got)
	require.Equal(t, big.NewInt(want).String(), got.String(), msgAndArgs...)
}

// stubAdapter pulls consumeBps of the request and pays rateBps of what it
// pulled, reporting reportSkew more than it paid.
type stubAdapter struct {
	bank       *bank.Bank
	self       common.Address
	consumeBps int64
	rateBps    int64
	reportSkew int64
	calls      int
}

func (a *stubAdapter) Swap(_ context.Context, req SwapRequest) (*big.Int, error) {
	a.calls++
	spent := new(big.Int).Mul(req.AmountIn, big.NewInt(a.consumeBps))
	spent.Quo(spent, big.NewInt(FeeDenominator))
	out := new(big.Int).Mul(spent, big.NewInt(a.rateBps))
	out.Quo(out, big.NewInt(FeeDenominator))
	if err := a.bank.Transfer(req.TokenIn, req.Payer, a.self, spent); err != nil {
		return nil, err
	}
	if err := a.bank.Transfer(req.TokenOut, a.self, req.Recipient, out); err != nil {
		return nil, err
	}
	return new(big.Int).Add(out, big.NewInt(a.reportSkew)), nil
}

type fixture struct {
	engine  *Engine
	minter  *minter.Engine
	bank    *bank.Bank
	adapter *stubAdapter
	events  *events.Recorder
	now     int64
}

func newFixture(t *testing.T, rebase bool) *fixture {
	t.Helper()
	mgr := corestate.NewManager(storage.NewMemDB())
	rec := &events.Recorder{}
	mgr.SetEmitter(rec)
	b := bank.New(mgr)
	require.NoError(t, b.Register(usd1, "USD1", 18))
	require.NoError(t, b.Register(usdc, "USDC", 18))
	require.NoError(t, b.Register(xaum, "XAUM", 18))

	f := &fixture{bank: b, events: rec, now: 1_700_000_000}
	clock := func() int64 { return f.now }

	f.minter = minter.NewEngine(mgr, b, minterAddr, xaum)
	f.minter.SetEmitter(mgr)
	f.minter.SetNowFunc(clock)
	require.NoError(t, f.minter.Init(minter.Params{
		Owner:         owner,
		Delay:         day,
		MinPrice:      e18(1),
		MaxPrice:      e18(5000),
		PriceOperator: priceOp,
		Revoker:       revoker,
	}))
	require.NoError(t, f.minter.SetStable(owner, usdc, true))
	require.NoError(t, f.minter.SetLedger(owner, ledgerAddr, true))
	require.NoError(t, f.minter.SetFixedPrice(priceOp, e18(2), 3650*day))

	f.engine = NewEngine(mgr, b, f.minter, ledgerAddr, usd1)
	f.engine.SetEmitter(mgr)
	f.engine.SetNowFunc(clock)
	require.NoError(t, f.engine.Init(Params{
		Owner:    owner,
		Operator: operator,
		Revoker:  revoker,
		Delay:    day,
		Settings: Settings{
			Router:           router,
			LegalAccount:     legal,
			MinDollarPrice:   big.NewInt(99e16),
			MinDollarAmount:  big.NewInt(100),
			MinTradeInterval: day,
			Rebase:           rebase,
		},
	}))

	f.adapter = &stubAdapter{bank: b, self: adapterAddr, consumeBps: FeeDenominator, rateBps: FeeDenominator}
	f.engine.RegisterAdapter(adapterAddr, f.adapter)
	require.NoError(t, f.engine.SetAdapter(owner, adapterAddr, true))

	require.NoError(t, b.Mint(xaum, minterAddr, big.NewInt(1_000_000)))
	require.NoError(t, b.Mint(usdc, adapterAddr, big.NewInt(1_000_000)))
	require.NoError(t, b.Mint(usd1, alice, big.NewInt(1_000_000)))
	require.NoError(t, b.Mint(usd1, bob, big.NewInt(1_000_000)))
	rec.Reset()
	return f
}

func (f *fixture) create(t *testing.T, user common.Address, initAmount, perTrade int64, receiver common.Address) uint64 {
	t.Helper()
	id, err := f.engine.CreateOrder(router, user, big.NewInt(initAmount), big.NewInt(perTrade), day, receiver)
	require.NoError(t, err)
	return id
}

func (f *fixture) execute(id uint64) (*Trade, error) {
	return f.engine.ExecuteOrder(context.Background(), operator, id, adapterAddr, usdc, nil)
}

func (f *fixture) order(t *testing.T, id uint64) *Order {
	t.Helper()
	o, err := f.engine.Order(id)
	require.NoError(t, err)
	return o
}

func (f *fixture) balance(t *testing.T, token, holder common.Address) *big.Int {
	t.Helper()
	bal, err := f.bank.BalanceOf(token, holder)
	require.NoError(t, err)
	return bal
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t, false)
	create := func(caller, user common.Address, initAmount, perTrade int64, interval uint64) error {
		_, err := f.engine.CreateOrder(caller, user, big.NewInt(initAmount), big.NewInt(perTrade), interval, common.Address{})
		return err
	}

	require.ErrorIs(t, create(alice, alice, 20000, 10000, day), ErrNotRouter)
	require.ErrorIs(t, create(router, alice, 20000, 99, day), ErrBelowMinimum)
	require.ErrorIs(t, create(router, alice, 20001, 10000, day), coreerrors.ErrInvalidAmount)
	require.ErrorIs(t, create(router, alice, 0, 10000, day), ErrNotMultiple)
	require.ErrorIs(t, create(router, alice, 20000, 10000, day-1), ErrInvalidInterval)
	require.ErrorIs(t, create(router, alice, 20000, 10000, day+1), ErrInvalidInterval)
	require.ErrorIs(t, create(router, alice, 20000, 10000, 13*day), coreerrors.ErrOutOfRange)
	require.NoError(t, create(router, alice, 20000, 10000, 12*day))

	require.NoError(t, f.engine.SetBlacklist(owner, bob, true))
	require.ErrorIs(t, create(router, bob, 20000, 10000, day), coreerrors.ErrBlacklisted)
	_, err := f.engine.CreateOrder(router, alice, big.NewInt(20000), big.NewInt(10000), day, bob)
	require.ErrorIs(t, err, ErrBlacklisted)

	require.NoError(t, f.engine.SetPaused(owner, true))
	require.ErrorIs(t, create(router, alice, 20000, 10000, day), coreerrors.ErrPaused)
	require.NoError(t, f.engine.SetPaused(owner, false))

	id := f.create(t, alice, 30000, 10000, common.Address{})
	require.Equal(t, uint64(1), id)
	o := f.order(t, id)
	require.Equal(t, StatusActive, o.Status)
	require.Equal(t, alice, o.Receiver, "zero receiver defaults to the owner")
	requireBig(t, 30000, o.DollarBalance)
	require.Zero(t, o.DollarShareBalance.Sign())
	requireBig(t, 50000, f.balance(t, usd1, ledgerAddr))
	requireBig(t, 1_000_000-50000, f.balance(t, usd1, alice))

	n, err := f.engine.OrdersLength()
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
	require.Len(t, f.events.OfType(EventTypeOrderCreated), 2)
}

func TestFixedModeLifecycle(t *testing.T) {
	f := newFixture(t, false)
	id := f.create(t, alice, 20000, 10000, carol)

	trade, err := f.execute(id)
	require.NoError(t, err)
	requireBig(t, 10000, trade.DollarIn)
	requireBig(t, 5000, trade.XaumOut)
	require.False(t, trade.Completed)
	o := f.order(t, id)
	requireBig(t, 10000, o.DollarBalance)
	requireBig(t, 5000, o.XaumPending)
	require.Equal(t, uint64(f.now), o.LastTradeTime)
	require.Equal(t, StatusActive, o.Status)

	_, err = f.execute(id)
	require.ErrorIs(t, err, coreerrors.ErrTooEarly)

	f.now += day
	trade, err = f.execute(id)
	require.NoError(t, err)
	require.True(t, trade.Completed)
	o = f.order(t, id)
	require.Zero(t, o.DollarBalance.Sign())
	requireBig(t, 10000, o.XaumPending)
	require.Equal(t, StatusCompletedWithoutCollect, o.Status)

	_, err = f.execute(id)
	require.ErrorIs(t, err, coreerrors.ErrInvalidOrderState)
	_, err = f.engine.ClaimAllXaum(operator, id)
	require.ErrorIs(t, err, ErrInvalidStatus)

	collected, err := f.engine.CollectXaum(operator, id)
	require.NoError(t, err)
	requireBig(t, 10000, collected)
	o = f.order(t, id)
	require.Equal(t, StatusCompletedWithoutClaim, o.Status)
	requireBig(t, 10000, o.XaumBalance)
	require.Zero(t, o.XaumPending.Sign())
	live, _ := f.engine.ActiveOrdersLength()
	require.Equal(t, uint64(1), live)

	_, err = f.engine.CollectXaum(operator, id)
	require.ErrorIs(t, err, coreerrors.ErrInvalidOrderState)

	claimed, err := f.engine.ClaimAllXaum(operator, id)
	require.NoError(t, err)
	requireBig(t, 10000, claimed)
	requireBig(t, 10000, f.balance(t, xaum, carol))
	o = f.order(t, id)
	require.Equal(t, StatusCompleted, o.Status)
	require.Zero(t, o.XaumBalance.Sign())

	live, _ = f.engine.ActiveOrdersLength()
	require.Zero(t, live)
	mine, _ := f.engine.ActiveOrdersLengthByUser(alice)
	require.Zero(t, mine)

	require.ErrorIs(t, f.engine.CloseOrder(router, alice, id, alice), ErrInvalidStatus)
	require.Len(t, f.events.OfType(EventTypeOrderExecuted), 2)
	require.Len(t, f.events.OfType(EventTypeOrderClaimed), 1)
}

func TestShareModeEntitlementFollowsBalance(t *testing.T) {
	f := newFixture(t, true)
	first := f.create(t, alice, 20000, 10000, common.Address{})
	second := f.create(t, bob, 20000, 10000, common.Address{})

	shares, err := f.engine.TotalShares()
	require.NoError(t, err)
	requireBig(t, 40000, shares)
	o := f.order(t, first)
	requireBig(t, 20000, o.DollarShareInitAmount)
	requireBig(t, 20000, o.DollarShareBalance)

	ent, err := f.engine.Entitlement(first)
	require.NoError(t, err)
	requireBig(t, 20000, ent)

	// A rebase doubles what the ledger holds.
	require.NoError(t, f.bank.Mint(usd1, ledgerAddr, big.NewInt(40000)))
	ent, err = f.engine.Entitlement(first)
	require.NoError(t, err)
	requireBig(t, 40000, ent)

	trade, err := f.execute(first)
	require.NoError(t, err)
	requireBig(t, 10000, trade.DollarIn)
	o = f.order(t, first)
	requireBig(t, 15000, o.DollarShareBalance)
	requireBig(t, 10000, o.DollarBalance)
	requireBig(t, 20000, o.DollarShareInitAmount)
	shares, _ = f.engine.TotalShares()
	requireBig(t, 35000, shares)

	// The final tranche sweeps the whole entitlement.
	f.now += day
	trade, err = f.execute(first)
	require.NoError(t, err)
	requireBig(t, 30000, trade.DollarIn)
	require.True(t, trade.Completed)
	o = f.order(t, first)
	require.Zero(t, o.DollarShareBalance.Sign())
	require.Zero(t, o.DollarBalance.Sign())
	requireBig(t, 20000, o.XaumPending)
	require.Equal(t, StatusCompletedWithoutCollect, o.Status)
	shares, _ = f.engine.TotalShares()
	requireBig(t, 20000, shares)

	ent, _ = f.engine.Entitlement(second)
	requireBig(t, 40000, ent)

	require.NoError(t, f.engine.CloseOrder(router, bob, second, bob))
	requireBig(t, 1_000_000-20000+40000, f.balance(t, usd1, bob))
	shares, _ = f.engine.TotalShares()
	require.Zero(t, shares.Sign())
	require.Zero(t, f.balance(t, usd1, ledgerAddr).Sign())
}

func TestUnderConsumedFinalTrancheKeepsOrderLive(t *testing.T) {
	cases := []struct {
		name     string
		rebase   bool
		pool     int64
		spent    int64
		residual int64
	}{
		// 10000 left, the adapter takes 96% of it.
		{name: "fixed", spent: 9600, residual: 400},
		// The pool doubled, so the final tranche is a 30000 entitlement.
		{name: "share", rebase: true, pool: 40000, spent: 28800, residual: 1200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.rebase)
			id := f.create(t, alice, 20000, 10000, common.Address{})
			other := f.create(t, bob, 20000, 10000, common.Address{})
			if tc.pool > 0 {
				require.NoError(t, f.bank.Mint(usd1, ledgerAddr, big.NewInt(tc.pool)))
			}

			_, err := f.execute(id)
			require.NoError(t, err)

			f.now += day
			f.adapter.consumeBps = 9600
			trade, err := f.execute(id)
			require.NoError(t, err)
			requireBig(t, tc.spent, trade.DollarIn)
			require.False(t, trade.Completed)
			o := f.order(t, id)
			require.Equal(t, StatusActive, o.Status)
			requireBig(t, tc.residual, o.DollarBalance)
			if tc.rebase {
				require.Positive(t, o.DollarShareBalance.Sign())
				ent, err := f.engine.Entitlement(id)
				require.NoError(t, err)
				requireBig(t, tc.residual, ent)
			}
			budget, err := f.engine.TradeBudget(id)
			require.NoError(t, err)
			requireBig(t, tc.residual, budget)

			_, err = f.engine.CollectXaum(operator, id)
			require.NoError(t, err)
			_, err = f.engine.ClaimAllXaum(operator, id)
			require.NoError(t, err)
			require.Equal(t, StatusActive, f.order(t, id).Status)

			f.now += day
			f.adapter.consumeBps = FeeDenominator
			trade, err = f.execute(id)
			require.NoError(t, err)
			requireBig(t, tc.residual, trade.DollarIn)
			require.True(t, trade.Completed)
			o = f.order(t, id)
			require.Equal(t, StatusCompletedWithoutCollect, o.Status)
			require.Zero(t, o.DollarBalance.Sign())
			if tc.rebase {
				require.Zero(t, o.DollarShareBalance.Sign())
				ent, err := f.engine.Entitlement(other)
				require.NoError(t, err)
				requireBig(t, 40000, ent)
			}
		})
	}
}

func TestExecuteRejectsUntrustedSwaps(t *testing.T) {
	f := newFixture(t, false)
	id := f.create(t, alice, 20000, 10000, common.Address{})
	ctx := context.Background()

	_, err := f.engine.ExecuteOrder(ctx, alice, id, adapterAddr, usdc, nil)
	require.ErrorIs(t, err, ErrNotOperator)
	_, err = f.engine.ExecuteOrder(ctx, operator, id, adapterAddr, usd1, nil)
	require.ErrorIs(t, err, ErrSameSettlement)
	_, err = f.engine.ExecuteOrder(ctx, operator, id, adapterAddr, xaum, nil)
	require.ErrorIs(t, err, ErrStableNotAccepted)

	other := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	_, err = f.engine.ExecuteOrder(ctx, operator, id, other, usdc, nil)
	require.ErrorIs(t, err, coreerrors.ErrNotWhitelisted)
	require.NoError(t, f.engine.SetAdapter(owner, other, true))
	_, err = f.engine.ExecuteOrder(ctx, operator, id, other, usdc, nil)
	require.ErrorIs(t, err, ErrAdapterNotAllowed, "allow-listed but not registered")

	cases := []struct {
		name    string
		consume int64
		rate    int64
		skew    int64
		want    error
	}{
		{name: "no input", consume: 0, rate: FeeDenominator, want: ErrNoSwapInput},
		{name: "input overrun", consume: 10_600, rate: FeeDenominator, want: ErrSwapInputTooLarge},
		{name: "misreported output", consume: FeeDenominator, rate: FeeDenominator, skew: 1, want: ErrSwapReportMismatch},
		{name: "output above cap", consume: FeeDenominator, rate: 10_600, want: ErrSwapOutputTooHigh},
		{name: "price below floor", consume: FeeDenominator, rate: 9_000, want: ErrSwapPriceTooLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.adapter.consumeBps, f.adapter.rateBps, f.adapter.reportSkew = tc.consume, tc.rate, tc.skew
			_, err := f.execute(id)
			require.ErrorIs(t, err, tc.want)

			requireBig(t, 20000, f.balance(t, usd1, ledgerAddr), "failed swap must be discarded")
			requireBig(t, 1_000_000, f.balance(t, usdc, adapterAddr))
			o := f.order(t, id)
			require.Zero(t, o.LastTradeTime)
			require.Zero(t, o.XaumPending.Sign())
		})
	}

	f.adapter.consumeBps, f.adapter.rateBps, f.adapter.reportSkew = 10_400, FeeDenominator, 0
	trade, err := f.execute(id)
	require.NoError(t, err, "overrun within tolerance is accepted")
	requireBig(t, 10400, trade.DollarIn)
	requireBig(t, 9600, f.order(t, id).DollarBalance)
}

func TestExecuteDirectWithFee(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.engine.ExecuteOrderDirect(operator, 99)
	require.ErrorIs(t, err, ErrDollarNotStable, "stable check precedes order lookup")

	require.NoError(t, f.minter.SetStable(owner, usd1, true))
	require.NoError(t, f.engine.SetFeeBps(owner, 100))
	id := f.create(t, alice, 20000, 10000, common.Address{})

	_, err = f.engine.ExecuteOrderDirect(bob, id)
	require.ErrorIs(t, err, ErrNotOperator)

	trade, err := f.engine.ExecuteOrderDirect(operator, id)
	require.NoError(t, err)
	requireBig(t, 100, trade.Fee)
	requireBig(t, 4950, trade.XaumOut)
	fee, _ := f.engine.FeeToClaim(usd1)
	requireBig(t, 100, fee)
	requireBig(t, 10100, f.balance(t, usd1, ledgerAddr))

	_, err = f.engine.ClaimFee(alice, usd1, feeSink)
	require.ErrorIs(t, err, timelock.ErrNotOwner)
	_, err = f.engine.ClaimFee(owner, usd1, common.Address{})
	require.ErrorIs(t, err, ErrZeroRecipient)
	paid, err := f.engine.ClaimFee(owner, usd1, feeSink)
	require.NoError(t, err)
	requireBig(t, 100, paid)
	requireBig(t, 100, f.balance(t, usd1, feeSink))
	fee, _ = f.engine.FeeToClaim(usd1)
	require.Zero(t, fee.Sign())
	require.Len(t, f.events.OfType(EventTypeFeeClaimed), 1)
}

func TestExecuteAndClaim(t *testing.T) {
	f := newFixture(t, false)
	id := f.create(t, alice, 20000, 10000, carol)

	trade, err := f.engine.ExecuteOrderAndClaim(context.Background(), operator, id, adapterAddr, usdc, nil)
	require.NoError(t, err)
	requireBig(t, 5000, trade.XaumOut)
	requireBig(t, 5000, f.balance(t, xaum, carol))
	o := f.order(t, id)
	require.Equal(t, StatusActive, o.Status)
	require.Zero(t, o.XaumPending.Sign())
	require.Zero(t, o.XaumBalance.Sign())

	require.NoError(t, f.minter.SetStable(owner, usd1, true))
	f.now += day
	trade, err = f.engine.ExecuteOrderDirectAndClaim(operator, id)
	require.NoError(t, err)
	require.True(t, trade.Completed)
	requireBig(t, 10000, f.balance(t, xaum, carol))
	require.Equal(t, StatusCompleted, f.order(t, id).Status)
	ids, err := f.engine.UserOrderIDs(alice)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestCloseOrder(t *testing.T) {
	f := newFixture(t, false)
	id := f.create(t, alice, 20000, 10000, carol)
	_, err := f.execute(id)
	require.NoError(t, err)

	require.ErrorIs(t, f.engine.CloseOrder(router, alice, id, alice), ErrPendingXaum)
	_, err = f.engine.CollectXaum(operator, id)
	require.NoError(t, err)

	require.ErrorIs(t, f.engine.CloseOrder(alice, alice, id, alice), ErrNotRouter)
	require.ErrorIs(t, f.engine.CloseOrder(router, bob, id, bob), ErrNotOrderOwner)
	require.ErrorIs(t, f.engine.CloseOrder(router, alice, id, bob), ErrReceiverMismatch)
	require.ErrorIs(t, f.engine.CloseOrderByOperator(operator, id), ErrNotInBlacklist)

	require.NoError(t, f.engine.CloseOrder(router, alice, id, carol))
	requireBig(t, 10000, f.balance(t, usd1, carol))
	requireBig(t, 5000, f.balance(t, xaum, carol))
	o := f.order(t, id)
	require.Equal(t, StatusCanceled, o.Status)
	require.Zero(t, o.DollarBalance.Sign())
	require.Zero(t, o.XaumBalance.Sign())
	live, _ := f.engine.ActiveOrdersLength()
	require.Zero(t, live)

	closed := f.events.OfType(EventTypeOrderClosed)
	require.Len(t, closed, 1)
	require.Equal(t, "false", closed[0].Attributes["forced"])
}

func TestBlacklistedOwnerIsClosedToLegalAccount(t *testing.T) {
	f := newFixture(t, false)
	id := f.create(t, alice, 20000, 10000, common.Address{})
	_, err := f.engine.ExecuteOrderAndClaim(context.Background(), operator, id, adapterAddr, usdc, nil)
	require.NoError(t, err)

	require.NoError(t, f.engine.SetBlacklist(owner, alice, true))
	require.ErrorIs(t, f.engine.CloseOrder(router, alice, id, alice), coreerrors.ErrBlacklisted)

	f.now += day
	_, err = f.execute(id)
	require.NoError(t, err)
	_, err = f.engine.CollectXaum(operator, id)
	require.NoError(t, err)
	_, err = f.engine.ClaimAllXaum(operator, id)
	require.ErrorIs(t, err, ErrBlacklisted)

	require.ErrorIs(t, f.engine.CloseOrderByOperator(alice, id), ErrNotOperator)
	require.ErrorIs(t, f.engine.CloseOrderByOperator(operator, id), ErrInvalidStatus, "completed orders cannot be canceled")

	second := f.create(t, bob, 20000, 10000, common.Address{})
	require.NoError(t, f.engine.SetBlacklist(owner, bob, true))
	require.NoError(t, f.engine.CloseOrderByOperator(operator, second))
	requireBig(t, 20000, f.balance(t, usd1, legal))
	require.Equal(t, StatusCanceled, f.order(t, second).Status)
	closed := f.events.OfType(EventTypeOrderClosed)
	require.Len(t, closed, 1)
	require.Equal(t, "true", closed[0].Attributes["forced"])
}

func TestActiveIndexSwapRemove(t *testing.T) {
	f := newFixture(t, false)
	a0 := f.create(t, alice, 20000, 10000, common.Address{})
	a1 := f.create(t, alice, 20000, 10000, common.Address{})
	b2 := f.create(t, bob, 20000, 10000, common.Address{})

	require.NoError(t, f.engine.CloseOrder(router, alice, a0, alice))

	page, count, err := f.engine.ActiveOrders(0, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)
	require.Len(t, page, 3)
	require.Equal(t, b2, page[0].ID, "last entry moves into the freed slot")
	require.Equal(t, a1, page[1].ID)
	require.Equal(t, StatusNone, page[2].Status)
	require.Zero(t, page[2].DollarBalance.Sign())

	page, count, err = f.engine.ActiveOrders(1, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
	require.Len(t, page, 5)
	require.Equal(t, a1, page[0].ID)

	page, count, err = f.engine.ActiveOrders(2, 2)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Len(t, page, 2)

	mine, count, err := f.engine.ActiveOrdersByUser(alice, 0, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
	require.Equal(t, a1, mine[0].ID)
	ids, _ := f.engine.UserOrderIDs(alice)
	require.Equal(t, []uint64{a1}, ids)
	ids, _ = f.engine.UserOrderIDs(bob)
	require.Equal(t, []uint64{b2}, ids)

	_, _, err = f.engine.ActiveOrders(0, MaxPageSize+1)
	require.ErrorIs(t, err, ErrPageTooLarge)

	n, _ := f.engine.OrdersLength()
	require.Equal(t, uint64(3), n)
}

func TestIndexMembershipSurvivesRemovals(t *testing.T) {
	f := newFixture(t, false)
	var ids []uint64
	for i := 0; i < 6; i++ {
		ids = append(ids, f.create(t, alice, 1000, 1000, common.Address{}))
	}
	for _, id := range []uint64{ids[0], ids[3], ids[5]} {
		require.NoError(t, f.engine.CloseOrder(router, alice, id, alice))
	}
	page, count, err := f.engine.ActiveOrders(0, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
	got := []uint64{page[0].ID, page[1].ID, page[2].ID}
	require.ElementsMatch(t, []uint64{ids[1], ids[2], ids[4]}, got)
	for _, o := range page[:count] {
		require.True(t, o.Status.Live())
	}
}

func TestAdminSettings(t *testing.T) {
	f := newFixture(t, false)
	require.ErrorIs(t, f.engine.SetFeeBps(alice, 10), coreerrors.ErrUnauthorized)
	require.ErrorIs(t, f.engine.SetFeeBps(owner, FeeDenominator+1), ErrFeeTooHigh)
	require.NoError(t, f.engine.SetFeeBps(owner, 100))

	total, err := f.engine.TotalFee(big.NewInt(20000), big.NewInt(10000))
	require.NoError(t, err)
	requireBig(t, 200, total)

	require.ErrorIs(t, f.engine.SetTradeIntervals(owner, 0, 0), ErrInvalidInterval)
	require.ErrorIs(t, f.engine.SetTradeIntervals(owner, day, day-1), ErrInvalidInterval)
	require.NoError(t, f.engine.SetTradeIntervals(owner, 3600, 48*3600))
	s, err := f.engine.Settings()
	require.NoError(t, err)
	require.Equal(t, uint64(48*3600), s.MaxInterval())

	require.NoError(t, f.engine.SetMinDollarAmount(owner, big.NewInt(500)))
	minAmount, _ := f.engine.MinDollarAmount()
	requireBig(t, 500, minAmount)
	require.ErrorIs(t, f.engine.SetLegalAccount(owner, common.Address{}), ErrZeroRecipient)

	f.create(t, alice, 1000, 500, common.Address{})
	require.ErrorIs(t, f.engine.SetRebase(owner, true), ErrAccountingLocked)
	require.NoError(t, f.engine.SetRebase(owner, false))

	require.Len(t, f.events.OfType(EventTypeSettingUpdated), 4)
}

func TestOwnerWithdrawals(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.bank.Register(nft, "NFT", 0))
	require.NoError(t, f.bank.MintNFT(nft, ledgerAddr, big.NewInt(7)))
	require.NoError(t, f.bank.Mint(usdc, ledgerAddr, big.NewInt(50)))

	require.ErrorIs(t, f.engine.WithdrawToken(alice, usdc, alice, big.NewInt(50)), timelock.ErrNotOwner)
	require.ErrorIs(t, f.engine.WithdrawToken(owner, usdc, common.Address{}, big.NewInt(50)), ErrZeroRecipient)
	require.NoError(t, f.engine.WithdrawToken(owner, usdc, bob, big.NewInt(50)))
	requireBig(t, 50, f.balance(t, usdc, bob))

	require.ErrorIs(t, f.engine.WithdrawNFT(owner, nft, common.Address{}, big.NewInt(7)), ErrZeroRecipient)
	require.NoError(t, f.engine.WithdrawNFT(owner, nft, bob, big.NewInt(7)))
	holder, err := f.bank.OwnerOf(nft, big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, bob, holder)
	require.Len(t, f.events.OfType(EventTypeNFTWithdrawn), 1)
}

func TestOperatorRotationIsDelayed(t *testing.T) {
	f := newFixture(t, false)
	id := f.create(t, alice, 20000, 10000, common.Address{})

	require.ErrorIs(t, f.engine.RequestOperator(alice, carol), timelock.ErrNotOwner)
	require.NoError(t, f.engine.RequestOperator(owner, carol))
	timer, err := f.engine.Operator()
	require.NoError(t, err)
	require.Equal(t, operator, timer.Current)
	require.Equal(t, carol, timer.Next)
	require.Equal(t, uint64(f.now+day), timer.EffectiveAt)

	_, err = f.engine.ExecuteOrder(context.Background(), carol, id, adapterAddr, usdc, nil)
	require.ErrorIs(t, err, ErrNotOperator)

	f.now += day
	require.NoError(t, f.engine.RequestOperator(owner, carol))
	timer, _ = f.engine.Operator()
	require.Equal(t, carol, timer.Current)
	require.Zero(t, timer.EffectiveAt)

	_, err = f.engine.ExecuteOrder(context.Background(), carol, id, adapterAddr, usdc, nil)
	require.NoError(t, err)
	_, err = f.engine.CollectXaum(operator, id)
	require.ErrorIs(t, err, ErrNotOperator)

	require.NoError(t, f.engine.RequestOperator(owner, bob))
	require.ErrorIs(t, f.engine.RevokeOperator(alice), coreerrors.ErrUnauthorized)
	require.NoError(t, f.engine.RevokeOperator(revoker))
	timer, _ = f.engine.Operator()
	require.Equal(t, carol, timer.Current)
	require.Equal(t, carol, timer.Next)
	require.Zero(t, timer.EffectiveAt)
}

func TestUpgradeAuthorization(t *testing.T) {
	f := newFixture(t, false)
	impl := common.HexToAddress("0x0000000000000000000000000000000000001234")
	data := []byte("init")

	require.NoError(t, f.engine.RequestUpgrade(owner, impl, data))
	require.ErrorIs(t, f.engine.UpgradeToAndCall(owner, impl, data), coreerrors.ErrTooEarly)
	f.now += day
	require.ErrorIs(t, f.engine.UpgradeToAndCall(owner, impl, []byte("other")), coreerrors.ErrMismatch)
	require.ErrorIs(t, f.engine.UpgradeToAndCall(owner, carol, data), coreerrors.ErrMismatch)
	require.NoError(t, f.engine.UpgradeToAndCall(owner, impl, data))

	st, err := f.engine.Governance().Upgrade()
	require.NoError(t, err)
	require.Equal(t, impl, st.Implementation)

	next := common.HexToAddress("0x0000000000000000000000000000000000005678")
	require.NoError(t, f.engine.RequestUpgrade(owner, next, data))
	require.NoError(t, f.engine.RevokeUpgrade(revoker))
	f.now += day
	require.ErrorIs(t, f.engine.UpgradeToAndCall(owner, next, data), coreerrors.ErrTooEarly)
}

func TestTradeBudgetAndSchedule(t *testing.T) {
	f := newFixture(t, false)
	id := f.create(t, alice, 30000, 10000, carol)

	budget, err := f.engine.TradeBudget(id)
	require.NoError(t, err)
	requireBig(t, 10000, budget)
	next, err := f.engine.NextTradeTime(id)
	require.NoError(t, err)
	require.Zero(t, next)

	_, err = f.execute(id)
	require.NoError(t, err)
	next, err = f.engine.NextTradeTime(id)
	require.NoError(t, err)
	require.Equal(t, uint64(f.now+day), next)

	f.now += day
	_, err = f.execute(id)
	require.NoError(t, err)
	budget, err = f.engine.TradeBudget(id)
	require.NoError(t, err)
	requireBig(t, 10000, budget)
	requireBig(t, 10000, f.order(t, id).DollarBalance)

	_, err = f.engine.TradeBudget(99)
	require.ErrorIs(t, err, ErrOrderNotFound)
}
