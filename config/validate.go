package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"

	maxFeeBps = 10_000
)

// ParseAddress parses a 0x-prefixed hex address. Empty input yields the zero
// address.
func ParseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

// ParseAmount parses a non-negative base-10 integer. Empty input yields zero.
func ParseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return v, nil
}

func requireAddress(field, raw string) (common.Address, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return addr, fmt.Errorf("%s: %w", field, err)
	}
	if addr == (common.Address{}) {
		return addr, fmt.Errorf("%s must be configured", field)
	}
	return addr, nil
}

func optionalAddress(field, raw string) error {
	if _, err := ParseAddress(raw); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// Validate checks addresses, amounts and bounds without touching state.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLevelDB:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path must be configured for leveldb")
		}
	default:
		return fmt.Errorf("storage.backend %q not supported", c.Storage.Backend)
	}
	if c.Service.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("service.rate_limit.rps must not be negative")
	}

	tokens := make(map[common.Address]bool, len(c.Tokens))
	for i, t := range c.Tokens {
		addr, err := requireAddress(fmt.Sprintf("tokens[%d].address", i), t.Address)
		if err != nil {
			return err
		}
		if tokens[addr] {
			return fmt.Errorf("tokens[%d]: duplicate token %s", i, addr.Hex())
		}
		if strings.TrimSpace(t.Symbol) == "" {
			return fmt.Errorf("tokens[%d].symbol must be configured", i)
		}
		if t.Decimals > 36 {
			return fmt.Errorf("tokens[%d].decimals %d too large", i, t.Decimals)
		}
		tokens[addr] = true
	}
	known := func(field, raw string) error {
		addr, err := requireAddress(field, raw)
		if err != nil {
			return err
		}
		if !tokens[addr] {
			return fmt.Errorf("%s: token %s not registered", field, addr.Hex())
		}
		return nil
	}

	if err := c.validateMinter(known); err != nil {
		return err
	}
	if _, err := requireAddress("router.address", c.Router.Address); err != nil {
		return err
	}
	if _, err := requireAddress("router.owner", c.Router.Owner); err != nil {
		return err
	}

	dollars := make(map[string]bool, len(c.Ledgers))
	for i := range c.Ledgers {
		if err := c.Ledgers[i].validate(i, known); err != nil {
			return err
		}
		key := strings.ToLower(strings.TrimSpace(c.Ledgers[i].Dollar))
		if dollars[key] {
			return fmt.Errorf("ledgers[%d]: funding token %s already served", i, c.Ledgers[i].Dollar)
		}
		dollars[key] = true
	}

	if c.Keeper.SlippageBps >= maxFeeBps {
		return fmt.Errorf("keeper.slippage_bps %d must be below %d", c.Keeper.SlippageBps, maxFeeBps)
	}
	if c.Keeper.PageSize > 1000 {
		return fmt.Errorf("keeper.page_size %d above 1000", c.Keeper.PageSize)
	}

	for i, a := range c.Adapters {
		if _, err := requireAddress(fmt.Sprintf("adapters[%d].address", i), a.Address); err != nil {
			return err
		}
		for j, r := range a.Rates {
			field := fmt.Sprintf("adapters[%d].rates[%d]", i, j)
			if err := known(field+".in", r.In); err != nil {
				return err
			}
			if err := known(field+".out", r.Out); err != nil {
				return err
			}
			rate, err := ParseAmount(r.Rate)
			if err != nil {
				return fmt.Errorf("%s.rate: %w", field, err)
			}
			if rate.Sign() == 0 {
				return fmt.Errorf("%s.rate must be positive", field)
			}
		}
	}
	return nil
}

func (c *Config) validateMinter(known func(field, raw string) error) error {
	m := c.Minter
	if _, err := requireAddress("minter.address", m.Address); err != nil {
		return err
	}
	if err := known("minter.xaum", m.XAUm); err != nil {
		return err
	}
	if _, err := requireAddress("minter.owner", m.Owner); err != nil {
		return err
	}
	for field, raw := range map[string]string{
		"minter.revoker":        m.Revoker,
		"minter.price_operator": m.PriceOperator,
		"minter.fund_operator":  m.FundOperator,
		"minter.fund_recipient": m.FundRecipient,
	} {
		if err := optionalAddress(field, raw); err != nil {
			return err
		}
	}
	minPrice, err := ParseAmount(m.MinPrice)
	if err != nil {
		return fmt.Errorf("minter.min_price: %w", err)
	}
	maxPrice, err := ParseAmount(m.MaxPrice)
	if err != nil {
		return fmt.Errorf("minter.max_price: %w", err)
	}
	if minPrice.Cmp(maxPrice) > 0 {
		return fmt.Errorf("minter.min_price above minter.max_price")
	}
	for i, s := range m.Stables {
		if err := known(fmt.Sprintf("minter.stables[%d]", i), s); err != nil {
			return err
		}
	}
	return nil
}

func (l *LedgerConfig) validate(i int, known func(field, raw string) error) error {
	prefix := fmt.Sprintf("ledgers[%d]", i)
	if _, err := requireAddress(prefix+".address", l.Address); err != nil {
		return err
	}
	if err := known(prefix+".dollar", l.Dollar); err != nil {
		return err
	}
	if _, err := requireAddress(prefix+".owner", l.Owner); err != nil {
		return err
	}
	for _, f := range []struct{ name, raw string }{
		{"operator", l.Operator},
		{"revoker", l.Revoker},
		{"legal_account", l.LegalAccount},
	} {
		if err := optionalAddress(prefix+"."+f.name, f.raw); err != nil {
			return err
		}
	}
	for j, a := range l.Adapters {
		if _, err := requireAddress(fmt.Sprintf("%s.adapters[%d]", prefix, j), a); err != nil {
			return err
		}
	}
	if strings.TrimSpace(l.Settlement) != "" {
		if err := known(prefix+".settlement", l.Settlement); err != nil {
			return err
		}
	}
	if l.FeeBps > maxFeeBps {
		return fmt.Errorf("%s.fee_bps %d above %d", prefix, l.FeeBps, maxFeeBps)
	}
	if _, err := ParseAmount(l.MinDollarPrice); err != nil {
		return fmt.Errorf("%s.min_dollar_price: %w", prefix, err)
	}
	if _, err := ParseAmount(l.MinDollarAmount); err != nil {
		return fmt.Errorf("%s.min_dollar_amount: %w", prefix, err)
	}
	minInterval := l.MinTradeInterval.Seconds()
	if minInterval == 0 {
		return fmt.Errorf("%s.min_trade_interval must be at least one second", prefix)
	}
	if maxInterval := l.MaxTradeInterval.Seconds(); maxInterval != 0 && maxInterval < minInterval {
		return fmt.Errorf("%s.max_trade_interval below min_trade_interval", prefix)
	}
	return nil
}
