package keeper

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"xaumdca/native/dca"
	"xaumdca/services/dcad/internal/dcadtest"
	"xaumdca/services/dcad/node"
)

func newNode(t *testing.T) *node.Node {
	t.Helper()
	n, err := node.New(dcadtest.Config(), nil)
	require.NoError(t, err)
	t.Cleanup(n.Close)
	require.NoError(t, dcadtest.Seed(n))
	return n
}

func createOrder(t *testing.T, n *node.Node, dollar common.Address, initAmount, perTrade int64) uint64 {
	t.Helper()
	var id uint64
	require.NoError(t, n.Do(func() error {
		var err error
		id, err = n.Router().CreateOrder(dcadtest.Alice, dollar, big.NewInt(initAmount), big.NewInt(perTrade), 3600, dcadtest.Alice)
		return err
	}))
	return id
}

func balance(t *testing.T, n *node.Node, token, holder common.Address) *big.Int {
	t.Helper()
	var out *big.Int
	require.NoError(t, n.View(func() error {
		var err error
		out, err = n.Bank().BalanceOf(token, holder)
		return err
	}))
	return out
}

func order(t *testing.T, n *node.Node, dollar common.Address, id uint64) *dca.Order {
	t.Helper()
	engine, err := n.Ledger(dollar)
	require.NoError(t, err)
	var o *dca.Order
	require.NoError(t, n.View(func() error {
		var err error
		o, err = engine.Order(id)
		return err
	}))
	return o
}

func TestTickExecutesDirectAndAdapterRoutes(t *testing.T) {
	n := newNode(t)
	direct := createOrder(t, n, dcadtest.USD1, 2000, 1000)
	swapped := createOrder(t, n, dcadtest.USDT, 2000, 1000)

	k := New(n, Config{PageSize: 1, SlippageBps: 100}, nil)
	res := k.Tick(context.Background())
	require.Equal(t, Result{Executed: 2}, res)

	// 1000 USD1 less a 50 bps fee at two funding units per XAUm unit.
	o := order(t, n, dcadtest.USD1, direct)
	require.Equal(t, "1000", o.DollarBalance.String())
	require.Zero(t, o.XaumPending.Sign())
	require.Zero(t, o.XaumBalance.Sign())

	// 1000 USDT swaps 1:1 into USDC; 995 USDC (6 decimals) converts into
	// 18-decimal XAUm.
	o = order(t, n, dcadtest.USDT, swapped)
	require.Equal(t, "1000", o.DollarBalance.String())
	require.Equal(t, "497500000000000", new(big.Int).Sub(balance(t, n, dcadtest.XAUM, dcadtest.Alice), big.NewInt(497)).String())

	engine, err := n.Ledger(dcadtest.USDT)
	require.NoError(t, err)
	require.NoError(t, n.View(func() error {
		fee, err := engine.FeeToClaim(dcadtest.USDC)
		require.Equal(t, "5", fee.String())
		return err
	}))
}

func TestTickSkipsOrdersThatAreNotDue(t *testing.T) {
	n := newNode(t)
	createOrder(t, n, dcadtest.USD1, 2000, 1000)

	k := New(n, Config{SlippageBps: 100}, nil)
	require.Equal(t, Result{Executed: 1}, k.Tick(context.Background()))
	require.Equal(t, Result{Skipped: 1}, k.Tick(context.Background()))

	// The keeper's clock says due but the ledger's does not.
	k.SetNowFunc(func() time.Time { return time.Now().Add(2 * time.Hour) })
	require.Equal(t, Result{Skipped: 1}, k.Tick(context.Background()))
}

func TestTickCountsFailures(t *testing.T) {
	n := newNode(t)
	createOrder(t, n, dcadtest.USDT, 2000, 1000)
	adapter, ok := n.Adapter(dcadtest.Adapter)
	require.True(t, ok)
	adapter.SetRate(dcadtest.USDT, dcadtest.USDC, nil)

	k := New(n, Config{SlippageBps: 100}, nil)
	require.Equal(t, Result{Failed: 1}, k.Tick(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	n := newNode(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	k := New(n, Config{Interval: time.Millisecond}, nil)
	require.ErrorIs(t, k.Run(ctx), context.Canceled)
}
