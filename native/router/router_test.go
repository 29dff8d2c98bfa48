package router

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	coreerrors "xaumdca/core/errors"
	"xaumdca/native/dca"
)

var (
	owner      = common.HexToAddress("0x0000000000000000000000000000000000000001")
	routerAddr = common.HexToAddress("0x0000000000000000000000000000000000000004")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	usd1       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	usdt       = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	ledgerAddr = common.HexToAddress("0x00000000000000000000000000000000000000d0")
)

type recordingLedger struct {
	dollar  common.Address
	callers []common.Address
	owners  []common.Address
	orders  []dca.Order
}

func (l *recordingLedger) Address() common.Address { return ledgerAddr }
func (l *recordingLedger) Dollar() common.Address { return l.dollar }

func (l *recordingLedger) CreateOrder(caller, owner common.Address, initAmount, perTrade *big.Int, interval uint64, receiver common.Address) (uint64, error) {
	l.callers = append(l.callers, caller)
	l.owners = append(l.owners, owner)
	id := uint64(len(l.orders))
	l.orders = append(l.orders, dca.Order{ID: id, Owner: owner, Receiver: receiver, DollarInitAmount: initAmount, DollarPerTrade: perTrade, Interval: interval})
	return id, nil
}

func (l *recordingLedger) CloseOrder(caller, owner common.Address, id uint64, receiver common.Address) error {
	l.callers = append(l.callers, caller)
	l.owners = append(l.owners, owner)
	return nil
}

func (l *recordingLedger) ActiveOrders(start, size uint64) ([]dca.Order, uint64, error) {
	return l.orders, uint64(len(l.orders)), nil
}

func (l *recordingLedger) ActiveOrdersByUser(user common.Address, start, size uint64) ([]dca.Order, uint64, error) {
	var out []dca.Order
	for _, o := range l.orders {
		if o.Owner == user {
			out = append(out, o)
		}
	}
	return out, uint64(len(out)), nil
}

func (l *recordingLedger) ActiveOrdersLengthByUser(user common.Address) (uint64, error) {
	_, n, err := l.ActiveOrdersByUser(user, 0, 0)
	return n, err
}

func (l *recordingLedger) OrdersLength() (uint64, error) { return uint64(len(l.orders)), nil }

func (l *recordingLedger) TotalFee(initAmount, perTrade *big.Int) (*big.Int, error) {
	return new(big.Int).Quo(initAmount, perTrade), nil
}

func (l *recordingLedger) MinDollarAmount() (*big.Int, error) { return big.NewInt(100), nil }

func TestRegisterRequiresOwnerAndMatchingToken(t *testing.T) {
	r := New(routerAddr, owner)
	ledger := &recordingLedger{dollar: usd1}

	require.ErrorIs(t, r.Register(alice, usd1, ledger), coreerrors.ErrUnauthorized)
	require.ErrorIs(t, r.Register(owner, usdt, ledger), ErrMismatch)
	require.NoError(t, r.Register(owner, usd1, ledger))
	require.Equal(t, []common.Address{usd1}, r.Tokens())

	require.NoError(t, r.Register(owner, usd1, nil))
	_, err := r.Ledger(usd1)
	require.ErrorIs(t, err, ErrNoLedger)
}

func TestForwardsAsRouter(t *testing.T) {
	r := New(routerAddr, owner)
	ledger := &recordingLedger{dollar: usd1}
	require.NoError(t, r.Register(owner, usd1, ledger))

	id, err := r.CreateOrder(alice, usd1, big.NewInt(200), big.NewInt(100), 86400, common.Address{})
	require.NoError(t, err)
	require.Zero(t, id)
	require.NoError(t, r.CloseOrder(alice, usd1, id, alice))
	require.Equal(t, []common.Address{routerAddr, routerAddr}, ledger.callers)
	require.Equal(t, []common.Address{alice, alice}, ledger.owners)

	n, err := r.ActiveOrdersLengthByUser(usd1, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
	fee, err := r.TotalFee(usd1, big.NewInt(200), big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, int64(2), fee.Int64())
	minAmount, err := r.MinDollarAmountPerTrade(usd1)
	require.NoError(t, err)
	require.Equal(t, int64(100), minAmount.Int64())
}

func TestUnknownTokenHasNoLedger(t *testing.T) {
	r := New(routerAddr, owner)
	_, err := r.CreateOrder(alice, usdt, big.NewInt(200), big.NewInt(100), 86400, alice)
	require.ErrorIs(t, err, ErrNoLedger)
	require.ErrorIs(t, r.CloseOrder(alice, usdt, 0, alice), coreerrors.ErrNotWhitelisted)
	_, _, err = r.ActiveOrders(usdt, 0, 10)
	require.ErrorIs(t, err, ErrNoLedger)
	_, _, err = r.ActiveOrdersByUser(usdt, alice, 0, 10)
	require.ErrorIs(t, err, ErrNoLedger)
	_, err = r.OrdersLength(usdt)
	require.ErrorIs(t, err, ErrNoLedger)
}
