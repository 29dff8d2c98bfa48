// Package node assembles the ledgers, minter, router and swap venues of a dcad
// instance on top of one state manager and serialises access to them.
package node

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"xaumdca/config"
	"xaumdca/core/events"
	corestate "xaumdca/core/state"
	"xaumdca/native/bank"
	"xaumdca/native/dca"
	"xaumdca/native/minter"
	"xaumdca/native/router"
	"xaumdca/native/swap"
	"xaumdca/observability"
	"xaumdca/storage"
)

// LedgerInfo is the static description of a wired ledger.
type LedgerInfo struct {
	Symbol     string
	Address    common.Address
	Dollar     common.Address
	Settlement common.Address
	Adapter    common.Address
}

// Node owns every engine of a deployment. Engines share one journaled state
// manager which is not safe for concurrent use, so every call goes through
// Do or View.
type Node struct {
	mu sync.Mutex

	db      storage.Database
	state   *corestate.Manager
	bank    *bank.Bank
	minter  *minter.Engine
	router  *router.Router
	logger  *slog.Logger
	metrics *observability.LedgerMetrics

	minterOwner common.Address
	ledgers     map[common.Address]*dca.Engine
	infos       map[common.Address]LedgerInfo
	adapters    map[common.Address]*swap.FixedRateAdapter
	symbols     map[common.Address]string
}

type options struct {
	db      storage.Database
	emitter events.Emitter
}

// Option customises a node before it bootstraps.
type Option func(*options)

// WithDatabase overrides the storage backend selected by configuration.
func WithDatabase(db storage.Database) Option {
	return func(o *options) { o.db = db }
}

// WithEmitter adds a sink for committed events next to the metrics sink.
func WithEmitter(emitter events.Emitter) Option {
	return func(o *options) { o.emitter = emitter }
}

func openDatabase(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendLevelDB:
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb %s: %w", cfg.Path, err)
		}
		return db, nil
	default:
		return storage.NewMemDB(), nil
	}
}

// New opens storage, constructs every engine described by cfg and seeds
// governed values that are not yet stored. Re-running New over persisted
// state leaves existing values untouched.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Node, error) {
	if cfg == nil {
		return nil, errors.New("node: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		logger:   logger,
		metrics:  observability.Ledger(),
		ledgers:  make(map[common.Address]*dca.Engine),
		infos:    make(map[common.Address]LedgerInfo),
		adapters: make(map[common.Address]*swap.FixedRateAdapter),
		symbols:  make(map[common.Address]string),
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	n.db = o.db
	if n.db == nil {
		db, err := openDatabase(cfg.Storage)
		if err != nil {
			return nil, err
		}
		n.db = db
	}
	n.state = corestate.NewManager(n.db)
	sinks := events.Multi{observability.Events(), &eventLog{logger: logger}}
	if o.emitter != nil {
		sinks = append(sinks, o.emitter)
	}
	n.state.SetEmitter(sinks)
	n.bank = bank.New(n.state)

	if err := n.bootstrap(cfg); err != nil {
		n.db.Close()
		return nil, err
	}
	return n, nil
}

func (n *Node) bootstrap(cfg *config.Config) error {
	for _, t := range cfg.Tokens {
		addr := common.HexToAddress(t.Address)
		n.symbols[addr] = strings.ToUpper(strings.TrimSpace(t.Symbol))
		if _, err := n.bank.Metadata(addr); err == nil {
			continue
		} else if !errors.Is(err, bank.ErrUnknownToken) {
			return err
		}
		if err := n.bank.Register(addr, t.Symbol, t.Decimals); err != nil {
			return fmt.Errorf("register token %s: %w", t.Symbol, err)
		}
	}
	if err := n.bootstrapMinter(cfg.Minter); err != nil {
		return err
	}
	if err := n.bootstrapAdapters(cfg.Adapters); err != nil {
		return err
	}

	routerOwner := common.HexToAddress(cfg.Router.Owner)
	n.router = router.New(common.HexToAddress(cfg.Router.Address), routerOwner)
	for i := range cfg.Ledgers {
		if err := n.bootstrapLedger(cfg.Ledgers[i], routerOwner); err != nil {
			return fmt.Errorf("ledger %s: %w", cfg.Ledgers[i].Address, err)
		}
	}
	return nil
}

func (n *Node) bootstrapMinter(mc config.MinterConfig) error {
	owner := common.HexToAddress(mc.Owner)
	n.minterOwner = owner
	n.minter = minter.NewEngine(n.state, n.bank, common.HexToAddress(mc.Address), common.HexToAddress(mc.XAUm))
	n.minter.SetEmitter(n.state)
	minPrice, err := config.ParseAmount(mc.MinPrice)
	if err != nil {
		return err
	}
	maxPrice, err := config.ParseAmount(mc.MaxPrice)
	if err != nil {
		return err
	}
	if err := n.minter.Init(minter.Params{
		Owner:         owner,
		Delay:         mc.Delay.Seconds(),
		MinPrice:      minPrice,
		MaxPrice:      maxPrice,
		PriceOperator: common.HexToAddress(mc.PriceOperator),
		FundOperator:  common.HexToAddress(mc.FundOperator),
		FundRecipient: common.HexToAddress(mc.FundRecipient),
		Revoker:       common.HexToAddress(mc.Revoker),
	}); err != nil {
		return fmt.Errorf("init minter: %w", err)
	}
	for _, raw := range mc.Stables {
		stable := common.HexToAddress(raw)
		if ok, err := n.minter.IsStable(stable); err != nil {
			return err
		} else if ok {
			continue
		}
		if err := n.minter.SetStable(owner, stable, true); err != nil {
			return fmt.Errorf("accept stable %s: %w", raw, err)
		}
	}
	return nil
}

func (n *Node) bootstrapAdapters(adapters []config.AdapterConfig) error {
	for _, ac := range adapters {
		addr := common.HexToAddress(ac.Address)
		adapter := swap.NewFixedRateAdapter(n.bank, addr)
		for _, rc := range ac.Rates {
			rate, err := config.ParseAmount(rc.Rate)
			if err != nil {
				return err
			}
			adapter.SetRate(common.HexToAddress(rc.In), common.HexToAddress(rc.Out), rate)
		}
		n.adapters[addr] = adapter
	}
	return nil
}

func (n *Node) bootstrapLedger(lc config.LedgerConfig, routerOwner common.Address) error {
	owner := common.HexToAddress(lc.Owner)
	self := common.HexToAddress(lc.Address)
	dollar := common.HexToAddress(lc.Dollar)
	engine := dca.NewEngine(n.state, n.bank, n.minter, self, dollar)
	engine.SetEmitter(n.state)

	minDollarPrice, err := config.ParseAmount(lc.MinDollarPrice)
	if err != nil {
		return err
	}
	minDollarAmount, err := config.ParseAmount(lc.MinDollarAmount)
	if err != nil {
		return err
	}
	if err := engine.Init(dca.Params{
		Owner:    owner,
		Operator: common.HexToAddress(lc.Operator),
		Revoker:  common.HexToAddress(lc.Revoker),
		Delay:    lc.Delay.Seconds(),
		Settings: dca.Settings{
			Router:           n.router.Address(),
			LegalAccount:     common.HexToAddress(lc.LegalAccount),
			FeeBps:           lc.FeeBps,
			MinDollarPrice:   minDollarPrice,
			MinDollarAmount:  minDollarAmount,
			MinTradeInterval: lc.MinTradeInterval.Seconds(),
			MaxTradeInterval: lc.MaxTradeInterval.Seconds(),
			Rebase:           lc.Rebase,
		},
	}); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	info := LedgerInfo{
		Symbol:     n.symbols[dollar],
		Address:    self,
		Dollar:     dollar,
		Settlement: common.HexToAddress(lc.Settlement),
	}
	for _, raw := range lc.Adapters {
		addr := common.HexToAddress(raw)
		adapter, ok := n.adapters[addr]
		if !ok {
			return fmt.Errorf("adapter %s not configured", addr.Hex())
		}
		engine.RegisterAdapter(addr, adapter)
		if allowed, err := engine.IsAdapter(addr); err != nil {
			return err
		} else if !allowed {
			if err := engine.SetAdapter(owner, addr, true); err != nil {
				return err
			}
		}
		if info.Adapter == (common.Address{}) {
			info.Adapter = addr
		}
	}

	if ok, err := n.minter.IsLedger(self); err != nil {
		return err
	} else if !ok {
		if err := n.minter.SetLedger(n.minterOwner, self, true); err != nil {
			return fmt.Errorf("register with minter: %w", err)
		}
	}
	if err := n.router.Register(routerOwner, dollar, engine); err != nil {
		return err
	}
	n.ledgers[dollar] = engine
	n.infos[dollar] = info
	return nil
}

// Close releases the storage backend.
func (n *Node) Close() {
	if n == nil || n.db == nil {
		return
	}
	n.db.Close()
}

// Do runs fn with exclusive access to every engine.
func (n *Node) Do(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn()
}

// View is Do for read paths. Reads share the lock because KV reads consult
// the state journal.
func (n *Node) View(fn func() error) error { return n.Do(fn) }

// Observe runs fn as a ledger operation, recording its outcome and latency.
func (n *Node) Observe(dollar common.Address, operation string, fn func(*dca.Engine) error) error {
	engine, err := n.Ledger(dollar)
	if err != nil {
		return err
	}
	start := time.Now()
	err = n.Do(func() error { return fn(engine) })
	n.metrics.Observe(n.symbols[dollar], operation, time.Since(start), err)
	return err
}

// Ledger returns the engine serving dollar.
func (n *Node) Ledger(dollar common.Address) (*dca.Engine, error) {
	engine, ok := n.ledgers[dollar]
	if !ok {
		return nil, fmt.Errorf("%w: %s", router.ErrNoLedger, dollar.Hex())
	}
	return engine, nil
}

// LedgerInfo describes the ledger serving dollar.
func (n *Node) LedgerInfo(dollar common.Address) (LedgerInfo, error) {
	info, ok := n.infos[dollar]
	if !ok {
		return LedgerInfo{}, fmt.Errorf("%w: %s", router.ErrNoLedger, dollar.Hex())
	}
	return info, nil
}

// Ledgers lists wired ledgers in funding token order.
func (n *Node) Ledgers() []LedgerInfo {
	out := make([]LedgerInfo, 0, len(n.infos))
	for _, info := range n.infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dollar.Cmp(out[j].Dollar) < 0 })
	return out
}

// Adapter returns the swap venue registered at addr.
func (n *Node) Adapter(addr common.Address) (*swap.FixedRateAdapter, bool) {
	adapter, ok := n.adapters[addr]
	return adapter, ok
}

func (n *Node) Bank() *bank.Bank { return n.bank }
func (n *Node) Minter() *minter.Engine { return n.minter }
func (n *Node) Router() *router.Router { return n.router }
func (n *Node) Symbol(token common.Address) string { return n.symbols[token] }

// PublishGauges refreshes the per-ledger gauges. Callers must hold the lock.
func (n *Node) PublishGauges() {
	for dollar, engine := range n.ledgers {
		symbol := n.symbols[dollar]
		if live, err := engine.ActiveOrdersLength(); err == nil {
			n.metrics.SetActiveOrders(symbol, live)
		}
		for token, tokenSymbol := range n.symbols {
			fee, err := engine.FeeToClaim(token)
			if err != nil || (fee.Sign() == 0 && token != dollar) {
				continue
			}
			n.metrics.RecordFee(symbol, tokenSymbol, fee)
		}
	}
}

// Credit mints amount of token to holder. It exists for development
// deployments that seed balances at start-up.
func (n *Node) Credit(token, holder common.Address, amount *big.Int) error {
	return n.Do(func() error { return n.bank.Mint(token, holder, amount) })
}

// eventLog writes every committed event at debug level.
type eventLog struct {
	logger *slog.Logger
}

func (l *eventLog) Emit(e events.Event) {
	evt, ok := events.Canonical(e)
	if !ok {
		return
	}
	attrs := make([]any, 0, 2*len(evt.Attributes)+2)
	attrs = append(attrs, "type", evt.Type)
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, evt.Attributes[k])
	}
	l.logger.Debug("event", attrs...)
}
