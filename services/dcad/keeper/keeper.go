// Package keeper trades due orders on behalf of each ledger's operator.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "xaumdca/core/errors"
	"xaumdca/native/dca"
	"xaumdca/native/swap"
	"xaumdca/services/dcad/node"
)

const bpsDenominator = 10_000

// Config tunes the keeper loop.
type Config struct {
	Interval    time.Duration
	PageSize    uint64
	SlippageBps uint64
}

// Result counts what one pass did.
type Result struct {
	Executed int
	Skipped  int
	Failed   int
}

// Keeper periodically scans every ledger's active index and executes orders
// whose interval has elapsed. Direct execution is used when the minter
// accepts the funding token; otherwise the ledger's first adapter swaps into
// its configured settlement stable.
type Keeper struct {
	node   *node.Node
	cfg    Config
	logger *slog.Logger
	nowFn  func() time.Time
}

// New returns a keeper over n.
func New(n *node.Node, cfg Config, logger *slog.Logger) *Keeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.PageSize == 0 || cfg.PageSize > dca.MaxPageSize {
		cfg.PageSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{node: n, cfg: cfg, logger: logger, nowFn: time.Now}
}

// SetNowFunc overrides the clock used to decide whether an order is due.
func (k *Keeper) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	k.nowFn = now
}

// Run ticks until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()
	for {
		res := k.Tick(ctx)
		if res.Executed > 0 || res.Failed > 0 {
			k.logger.Info("keeper pass", "executed", res.Executed, "skipped", res.Skipped, "failed", res.Failed)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick makes one pass over every ledger.
func (k *Keeper) Tick(ctx context.Context) Result {
	var total Result
	for _, info := range k.node.Ledgers() {
		if ctx.Err() != nil {
			break
		}
		res, err := k.tickLedger(ctx, info)
		if err != nil {
			k.logger.Warn("keeper scan failed", "ledger", info.Symbol, "error", err)
		}
		total.Executed += res.Executed
		total.Skipped += res.Skipped
		total.Failed += res.Failed
	}
	k.node.View(func() error {
		k.node.PublishGauges()
		return nil
	})
	return total
}

type candidate struct {
	id   uint64
	next uint64
}

func (k *Keeper) due(info node.LedgerInfo) ([]candidate, error) {
	var out []candidate
	err := k.node.View(func() error {
		engine, err := k.node.Ledger(info.Dollar)
		if err != nil {
			return err
		}
		live, err := engine.ActiveOrdersLength()
		if err != nil {
			return err
		}
		for start := uint64(0); start < live; start += k.cfg.PageSize {
			page, count, err := engine.ActiveOrders(start, k.cfg.PageSize)
			if err != nil {
				return err
			}
			for _, o := range page[:count] {
				if o.Status != dca.StatusActive {
					continue
				}
				next, err := engine.NextTradeTime(o.ID)
				if err != nil {
					return err
				}
				out = append(out, candidate{id: o.ID, next: next})
			}
		}
		return nil
	})
	return out, err
}

func (k *Keeper) tickLedger(ctx context.Context, info node.LedgerInfo) (Result, error) {
	var res Result
	candidates, err := k.due(info)
	if err != nil {
		return res, err
	}
	now := uint64(k.nowFn().Unix())
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		if c.next > now {
			res.Skipped++
			continue
		}
		trade, err := k.execute(ctx, info, c.id)
		switch {
		case err == nil:
			res.Executed++
			k.logger.Info("order executed",
				"ledger", info.Symbol,
				"order", c.id,
				"dollar_in", trade.DollarIn.String(),
				"xaum_out", trade.XaumOut.String(),
				"completed", trade.Completed)
		case errors.Is(err, coreerrors.ErrTooEarly), errors.Is(err, dca.ErrNothingToTrade):
			res.Skipped++
		default:
			res.Failed++
			k.logger.Warn("order execution failed", "ledger", info.Symbol, "order", c.id, "error", err)
		}
	}
	return res, nil
}

func (k *Keeper) execute(ctx context.Context, info node.LedgerInfo, id uint64) (*dca.Trade, error) {
	var trade *dca.Trade
	err := k.node.Observe(info.Dollar, "execute", func(engine *dca.Engine) error {
		operator, err := engine.Operator()
		if err != nil {
			return err
		}
		direct, err := k.node.Minter().IsStable(info.Dollar)
		if err != nil {
			return err
		}
		if direct {
			trade, err = engine.ExecuteOrderDirectAndClaim(operator.Current, id)
			return err
		}
		callData, err := k.callData(engine, info, id)
		if err != nil {
			return err
		}
		trade, err = engine.ExecuteOrderAndClaim(ctx, operator.Current, id, info.Adapter, info.Settlement, callData)
		return err
	})
	return trade, err
}

// callData quotes the next tranche on the ledger's adapter and encodes it with
// the configured slippage allowance.
func (k *Keeper) callData(engine *dca.Engine, info node.LedgerInfo, id uint64) ([]byte, error) {
	if info.Adapter == (common.Address{}) || info.Settlement == (common.Address{}) {
		return nil, fmt.Errorf("keeper: ledger %s has no adapter route", info.Symbol)
	}
	adapter, ok := k.node.Adapter(info.Adapter)
	if !ok {
		return nil, fmt.Errorf("keeper: adapter %s not wired", info.Adapter.Hex())
	}
	budget, err := engine.TradeBudget(id)
	if err != nil {
		return nil, err
	}
	if budget.Sign() == 0 {
		return nil, dca.ErrNothingToTrade
	}
	quote, err := adapter.Quote(info.Dollar, info.Settlement, budget)
	if err != nil {
		return nil, err
	}
	minOut := new(big.Int).Mul(quote, big.NewInt(int64(bpsDenominator-k.cfg.SlippageBps)))
	minOut.Quo(minOut, big.NewInt(bpsDenominator))
	return swap.EncodeCall(budget, minOut)
}
