package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML and TOML files can use strings such as
// "24h" or "90s".
type Duration struct {
	time.Duration
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return parsed, nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// UnmarshalText lets the TOML decoder read durations.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration for TOML output.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Seconds returns the duration in whole seconds, the unit engines work in.
func (d Duration) Seconds() uint64 {
	if d.Duration <= 0 {
		return 0
	}
	return uint64(d.Duration / time.Second)
}

// ServiceConfig controls the daemon and its query API.
type ServiceConfig struct {
	Name            string          `yaml:"name" toml:"name"`
	Env             string          `yaml:"env" toml:"env"`
	ListenAddress   string          `yaml:"listen" toml:"listen"`
	ReadTimeout     Duration        `yaml:"read_timeout" toml:"read_timeout"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// RateLimitConfig bounds query traffic per client.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"rps" toml:"rps"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// StorageConfig selects the key/value backend.
type StorageConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig optionally mirrors logs into a rotated file.
type LoggingConfig struct {
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// TokenConfig registers a fungible token with the bank.
type TokenConfig struct {
	Address  string `yaml:"address" toml:"address"`
	Symbol   string `yaml:"symbol" toml:"symbol"`
	Decimals uint8  `yaml:"decimals" toml:"decimals"`
}

// MinterConfig seeds the price-bounded minter. Amounts are base-10 integers
// with 18 decimals of price precision.
type MinterConfig struct {
	Address       string   `yaml:"address" toml:"address"`
	XAUm          string   `yaml:"xaum" toml:"xaum"`
	Owner         string   `yaml:"owner" toml:"owner"`
	Revoker       string   `yaml:"revoker" toml:"revoker"`
	Delay         Duration `yaml:"delay" toml:"delay"`
	MinPrice      string   `yaml:"min_price" toml:"min_price"`
	MaxPrice      string   `yaml:"max_price" toml:"max_price"`
	PriceOperator string   `yaml:"price_operator" toml:"price_operator"`
	FundOperator  string   `yaml:"fund_operator" toml:"fund_operator"`
	FundRecipient string   `yaml:"fund_recipient" toml:"fund_recipient"`
	Stables       []string `yaml:"stables" toml:"stables"`
}

// LedgerConfig seeds one order ledger.
type LedgerConfig struct {
	Address          string   `yaml:"address" toml:"address"`
	Dollar           string   `yaml:"dollar" toml:"dollar"`
	Owner            string   `yaml:"owner" toml:"owner"`
	Operator         string   `yaml:"operator" toml:"operator"`
	Revoker          string   `yaml:"revoker" toml:"revoker"`
	Delay            Duration `yaml:"delay" toml:"delay"`
	LegalAccount     string   `yaml:"legal_account" toml:"legal_account"`
	FeeBps           uint64   `yaml:"fee_bps" toml:"fee_bps"`
	MinDollarPrice   string   `yaml:"min_dollar_price" toml:"min_dollar_price"`
	MinDollarAmount  string   `yaml:"min_dollar_amount" toml:"min_dollar_amount"`
	MinTradeInterval Duration `yaml:"min_trade_interval" toml:"min_trade_interval"`
	MaxTradeInterval Duration `yaml:"max_trade_interval" toml:"max_trade_interval"`
	Rebase           bool     `yaml:"rebase" toml:"rebase"`
	Adapters         []string `yaml:"adapters" toml:"adapters"`
	// Settlement is the stable the keeper swaps into when the funding token
	// is not itself accepted by the minter.
	Settlement string `yaml:"settlement" toml:"settlement"`
}

// KeeperConfig drives the background executor that trades due orders as
// each ledger's operator.
type KeeperConfig struct {
	Enabled     bool     `yaml:"enabled" toml:"enabled"`
	Interval    Duration `yaml:"interval" toml:"interval"`
	PageSize    uint64   `yaml:"page_size" toml:"page_size"`
	SlippageBps uint64   `yaml:"slippage_bps" toml:"slippage_bps"`
}

// RouterConfig places the dispatch router.
type RouterConfig struct {
	Address string `yaml:"address" toml:"address"`
	Owner   string `yaml:"owner" toml:"owner"`
}

// AdapterConfig describes a fixed-rate swap venue.
type AdapterConfig struct {
	Address string       `yaml:"address" toml:"address"`
	Rates   []RateConfig `yaml:"rates" toml:"rates"`
}

// RateConfig prices one unit of In as Rate/1e18 units of Out.
type RateConfig struct {
	In   string `yaml:"in" toml:"in"`
	Out  string `yaml:"out" toml:"out"`
	Rate string `yaml:"rate" toml:"rate"`
}
