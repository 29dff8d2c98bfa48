// Package dcadtest builds a small two-ledger deployment for service tests.
package dcadtest

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"xaumdca/config"
	"xaumdca/services/dcad/node"
)

var (
	Owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	Operator = common.HexToAddress("0x0000000000000000000000000000000000000002")
	PriceOp  = common.HexToAddress("0x0000000000000000000000000000000000000007")
	Alice    = common.HexToAddress("0x0000000000000000000000000000000000000a11")

	USD1 = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	USDT = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	XAUM = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	USDC = common.HexToAddress("0x00000000000000000000000000000000000000a4")

	Minter     = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	Router     = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	USD1Ledger = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	USDTLedger = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	Adapter    = common.HexToAddress("0x00000000000000000000000000000000000000e0")
)

// Price is the XAUm price pushed by Seed: two funding units per XAUm unit.
var Price = new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))

func dur(d time.Duration) config.Duration { return config.Duration{Duration: d} }

// Config describes a USD1 ledger that executes directly and a USDT ledger
// that swaps into USDC through a fixed-rate adapter.
func Config() *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{
			Name:            "dcad",
			Env:             "test",
			ListenAddress:   "127.0.0.1:0",
			ReadTimeout:     dur(time.Second),
			ShutdownTimeout: dur(time.Second),
			RateLimit:       config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		},
		Storage: config.StorageConfig{Backend: config.BackendMemory},
		Tokens: []config.TokenConfig{
			{Address: USD1.Hex(), Symbol: "USD1", Decimals: 18},
			{Address: USDT.Hex(), Symbol: "USDT", Decimals: 6},
			{Address: XAUM.Hex(), Symbol: "XAUM", Decimals: 18},
			{Address: USDC.Hex(), Symbol: "USDC", Decimals: 6},
		},
		Minter: config.MinterConfig{
			Address:       Minter.Hex(),
			XAUm:          XAUM.Hex(),
			Owner:         Owner.Hex(),
			Delay:         dur(24 * time.Hour),
			MinPrice:      "1000000000000000000",
			MaxPrice:      "5000000000000000000000",
			PriceOperator: PriceOp.Hex(),
			Stables:       []string{USD1.Hex(), USDC.Hex()},
		},
		Router: config.RouterConfig{Address: Router.Hex(), Owner: Owner.Hex()},
		Ledgers: []config.LedgerConfig{
			{
				Address:          USD1Ledger.Hex(),
				Dollar:           USD1.Hex(),
				Owner:            Owner.Hex(),
				Operator:         Operator.Hex(),
				Delay:            dur(24 * time.Hour),
				LegalAccount:     Owner.Hex(),
				FeeBps:           50,
				MinDollarPrice:   "990000000000000000",
				MinDollarAmount:  "100",
				MinTradeInterval: dur(time.Hour),
			},
			{
				Address:          USDTLedger.Hex(),
				Dollar:           USDT.Hex(),
				Owner:            Owner.Hex(),
				Operator:         Operator.Hex(),
				Delay:            dur(24 * time.Hour),
				LegalAccount:     Owner.Hex(),
				FeeBps:           50,
				MinDollarPrice:   "990000000000000000",
				MinDollarAmount:  "100",
				MinTradeInterval: dur(time.Hour),
				Adapters:         []string{Adapter.Hex()},
				Settlement:       USDC.Hex(),
			},
		},
		Adapters: []config.AdapterConfig{{
			Address: Adapter.Hex(),
			Rates:   []config.RateConfig{{In: USDT.Hex(), Out: USDC.Hex(), Rate: "1000000000000000000"}},
		}},
		Keeper: config.KeeperConfig{Interval: dur(time.Minute), PageSize: 2, SlippageBps: 100},
	}
}

// Seed funds Alice in both funding tokens, stocks the minter and the adapter,
// and pushes Price for a year.
func Seed(n *node.Node) error {
	credits := []struct {
		token, holder common.Address
		amount        int64
	}{
		{USD1, Alice, 1_000_000},
		{USDT, Alice, 1_000_000},
		{XAUM, Minter, 1_000_000_000_000_000_000},
		{USDC, Adapter, 1_000_000_000},
	}
	for _, c := range credits {
		if err := n.Credit(c.token, c.holder, big.NewInt(c.amount)); err != nil {
			return err
		}
	}
	return n.Do(func() error {
		return n.Minter().SetFixedPrice(PriceOp, Price, 365*24*3600)
	})
}
