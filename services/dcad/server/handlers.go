package server

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"xaumdca/native/dca"
	"xaumdca/services/dcad/node"
)

const defaultPageSize = 100

var errBadRequest = errors.New("bad request")

type orderView struct {
	ID                    uint64 `json:"id"`
	Status                string `json:"status"`
	Owner                 string `json:"owner"`
	Receiver              string `json:"receiver"`
	Interval              uint64 `json:"interval"`
	LastTradeTime         uint64 `json:"last_trade_time"`
	DollarInitAmount      string `json:"dollar_init_amount"`
	DollarPerTrade        string `json:"dollar_per_trade"`
	DollarBalance         string `json:"dollar_balance"`
	DollarShareInitAmount string `json:"dollar_share_init_amount"`
	DollarShareBalance    string `json:"dollar_share_balance"`
	XaumBalance           string `json:"xaum_balance"`
	XaumPending           string `json:"xaum_pending"`
}

func renderOrder(o dca.Order) orderView {
	c := o.Clone()
	return orderView{
		ID:                    c.ID,
		Status:                c.Status.String(),
		Owner:                 c.Owner.Hex(),
		Receiver:              c.Receiver.Hex(),
		Interval:              c.Interval,
		LastTradeTime:         c.LastTradeTime,
		DollarInitAmount:      c.DollarInitAmount.String(),
		DollarPerTrade:        c.DollarPerTrade.String(),
		DollarBalance:         c.DollarBalance.String(),
		DollarShareInitAmount: c.DollarShareInitAmount.String(),
		DollarShareBalance:    c.DollarShareBalance.String(),
		XaumBalance:           c.XaumBalance.String(),
		XaumPending:           c.XaumPending.String(),
	}
}

type pageView struct {
	Orders []orderView `json:"orders"`
	Start  uint64      `json:"start"`
	Count  uint64      `json:"count"`
	Total  uint64      `json:"total"`
}

func renderPage(orders []dca.Order, start, count, total uint64) pageView {
	out := pageView{Orders: make([]orderView, 0, count), Start: start, Count: count, Total: total}
	for _, o := range orders[:count] {
		out.Orders = append(out.Orders, renderOrder(o))
	}
	return out
}

func addressParam(r *http.Request, name string) (common.Address, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return common.HexToAddress(raw), nil
}

func uintQuery(r *http.Request, name string, fallback uint64) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return v, nil
}

func amountQuery(r *http.Request, name string) (*big.Int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return v, nil
}

func pageQuery(r *http.Request) (uint64, uint64, error) {
	start, err := uintQuery(r, "start", 0)
	if err != nil {
		return 0, 0, err
	}
	size, err := uintQuery(r, "size", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	return start, size, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ledgerView struct {
	Symbol       string `json:"symbol"`
	Address      string `json:"address"`
	Dollar       string `json:"dollar"`
	Settlement   string `json:"settlement,omitempty"`
	Adapter      string `json:"adapter,omitempty"`
	Orders       uint64 `json:"orders"`
	ActiveOrders uint64 `json:"active_orders"`
}

func hexOrEmpty(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

func (s *Server) handleLedgers(w http.ResponseWriter, r *http.Request) {
	infos := s.node.Ledgers()
	out := make([]ledgerView, 0, len(infos))
	err := s.node.View(func() error {
		for _, info := range infos {
			engine, err := s.node.Ledger(info.Dollar)
			if err != nil {
				return err
			}
			total, err := engine.OrdersLength()
			if err != nil {
				return err
			}
			live, err := engine.ActiveOrdersLength()
			if err != nil {
				return err
			}
			out = append(out, ledgerView{
				Symbol:       info.Symbol,
				Address:      info.Address.Hex(),
				Dollar:       info.Dollar.Hex(),
				Settlement:   hexOrEmpty(info.Settlement),
				Adapter:      hexOrEmpty(info.Adapter),
				Orders:       total,
				ActiveOrders: live,
			})
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type governedView struct {
	Current     string `json:"current"`
	Next        string `json:"next"`
	EffectiveAt uint64 `json:"effective_at"`
}

type settingsView struct {
	Ledger           string       `json:"ledger"`
	Router           string       `json:"router"`
	LegalAccount     string       `json:"legal_account"`
	FeeBps           uint64       `json:"fee_bps"`
	MinDollarPrice   string       `json:"min_dollar_price"`
	MinDollarAmount  string       `json:"min_dollar_amount"`
	MinTradeInterval uint64       `json:"min_trade_interval"`
	MaxTradeInterval uint64       `json:"max_trade_interval"`
	Paused           bool         `json:"paused"`
	Rebase           bool         `json:"rebase"`
	TotalShares      string       `json:"total_shares"`
	Operator         governedView `json:"operator"`
	Revoker          governedView `json:"revoker"`
	Delay            governedView `json:"delay"`
}

func addressTimer(t dca.GovernedAddress) governedView {
	return governedView{Current: t.Current.Hex(), Next: t.Next.Hex(), EffectiveAt: t.EffectiveAt}
}

func (s *Server) ledger(r *http.Request) (*dca.Engine, node.LedgerInfo, error) {
	token, err := addressParam(r, "token")
	if err != nil {
		return nil, node.LedgerInfo{}, err
	}
	info, err := s.node.LedgerInfo(token)
	if err != nil {
		return nil, info, err
	}
	engine, err := s.node.Ledger(token)
	return engine, info, err
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	engine, info, err := s.ledger(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var view settingsView
	err = s.node.View(func() error {
		settings, err := engine.Settings()
		if err != nil {
			return err
		}
		shares, err := engine.TotalShares()
		if err != nil {
			return err
		}
		operator, err := engine.Operator()
		if err != nil {
			return err
		}
		revoker, err := engine.Revoker()
		if err != nil {
			return err
		}
		delay, err := engine.Delay()
		if err != nil {
			return err
		}
		view = settingsView{
			Ledger:           info.Address.Hex(),
			Router:           settings.Router.Hex(),
			LegalAccount:     settings.LegalAccount.Hex(),
			FeeBps:           settings.FeeBps,
			MinDollarPrice:   settings.MinDollarPrice.String(),
			MinDollarAmount:  settings.MinDollarAmount.String(),
			MinTradeInterval: settings.MinTradeInterval,
			MaxTradeInterval: settings.MaxInterval(),
			Paused:           settings.Paused,
			Rebase:           settings.Rebase,
			TotalShares:      shares.String(),
			Operator:         addressTimer(operator),
			Revoker:          addressTimer(revoker),
			Delay: governedView{
				Current:     strconv.FormatUint(delay.Current, 10),
				Next:        strconv.FormatUint(delay.Next, 10),
				EffectiveAt: delay.EffectiveAt,
			},
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleActiveOrders(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	start, size, err := pageQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var view pageView
	err = s.node.View(func() error {
		orders, count, err := s.node.Router().ActiveOrders(token, start, size)
		if err != nil {
			return err
		}
		engine, err := s.node.Ledger(token)
		if err != nil {
			return err
		}
		total, err := engine.ActiveOrdersLength()
		if err != nil {
			return err
		}
		view = renderPage(orders, start, count, total)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := addressParam(r, "user")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	start, size, err := pageQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var view pageView
	err = s.node.View(func() error {
		orders, count, err := s.node.Router().ActiveOrdersByUser(token, user, start, size)
		if err != nil {
			return err
		}
		total, err := s.node.Router().ActiveOrdersLengthByUser(token, user)
		if err != nil {
			return err
		}
		view = renderPage(orders, start, count, total)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type orderDetailView struct {
	orderView
	Entitlement   string `json:"entitlement"`
	TradeBudget   string `json:"trade_budget"`
	NextTradeTime uint64 `json:"next_trade_time"`
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	engine, _, err := s.ledger(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: invalid order id", errBadRequest))
		return
	}
	var view orderDetailView
	err = s.node.View(func() error {
		o, err := engine.Order(id)
		if err != nil {
			return err
		}
		view.orderView = renderOrder(*o)
		entitlement, err := engine.Entitlement(id)
		if err != nil {
			return err
		}
		budget, err := engine.TradeBudget(id)
		if err != nil {
			return err
		}
		next, err := engine.NextTradeTime(id)
		if err != nil {
			return err
		}
		view.Entitlement = entitlement.String()
		view.TradeBudget = budget.String()
		view.NextTradeTime = next
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleFeeToClaim(w http.ResponseWriter, r *http.Request) {
	engine, _, err := s.ledger(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	feeToken, err := addressParam(r, "feeToken")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var fee *big.Int
	err = s.node.View(func() error {
		var err error
		fee, err = engine.FeeToClaim(feeToken)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": feeToken.Hex(), "amount": fee.String()})
}

func (s *Server) handleTotalFee(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	initAmount, err := amountQuery(r, "init")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	perTrade, err := amountQuery(r, "per_trade")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var fee, minAmount *big.Int
	err = s.node.View(func() error {
		var err error
		if fee, err = s.node.Router().TotalFee(token, initAmount, perTrade); err != nil {
			return err
		}
		minAmount, err = s.node.Router().MinDollarAmountPerTrade(token)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"total_fee":                   fee.String(),
		"min_dollar_amount_per_trade": minAmount.String(),
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	var (
		price      *big.Int
		validUntil uint64
		reserve    *big.Int
	)
	err := s.node.View(func() error {
		var err error
		if price, validUntil, err = s.node.Minter().FixedPrice(); err != nil {
			return err
		}
		reserve, err = s.node.Minter().Reserve()
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"price":       price.String(),
		"valid_until": validUntil,
		"reserve":     reserve.String(),
	})
}

func (s *Server) handleClaimable(w http.ResponseWriter, r *http.Request) {
	ledger, err := addressParam(r, "ledger")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := addressParam(r, "user")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var amount *big.Int
	err = s.node.View(func() error {
		var err error
		amount, err = s.node.Minter().Claimable(ledger, user)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}
