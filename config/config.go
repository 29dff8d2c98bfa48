package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the deployment description of a dcad instance.
type Config struct {
	Service  ServiceConfig   `yaml:"service" toml:"service"`
	Storage  StorageConfig   `yaml:"storage" toml:"storage"`
	Logging  LoggingConfig   `yaml:"logging" toml:"logging"`
	Tokens   []TokenConfig   `yaml:"tokens" toml:"tokens"`
	Minter   MinterConfig    `yaml:"minter" toml:"minter"`
	Router   RouterConfig    `yaml:"router" toml:"router"`
	Ledgers  []LedgerConfig  `yaml:"ledgers" toml:"ledgers"`
	Adapters []AdapterConfig `yaml:"adapters" toml:"adapters"`
	Keeper   KeeperConfig    `yaml:"keeper" toml:"keeper"`
}

// Load reads the configuration at path. Files ending in .toml are decoded as
// TOML, everything else as YAML. Defaults are applied before validation.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if isTOML(path) {
		meta, err := toml.Decode(string(raw), cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("decode config: unknown key %s", undecoded[0])
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = "dcad"
	}
	if strings.TrimSpace(cfg.Service.Env) == "" {
		cfg.Service.Env = "dev"
	}
	if cfg.Service.ListenAddress == "" {
		cfg.Service.ListenAddress = ":7090"
	}
	if cfg.Service.ReadTimeout.Duration == 0 {
		cfg.Service.ReadTimeout.Duration = 10 * time.Second
	}
	if cfg.Service.ShutdownTimeout.Duration == 0 {
		cfg.Service.ShutdownTimeout.Duration = 5 * time.Second
	}
	if cfg.Service.RateLimit.RequestsPerSecond == 0 {
		cfg.Service.RateLimit.RequestsPerSecond = 20
	}
	if cfg.Service.RateLimit.Burst <= 0 {
		cfg.Service.RateLimit.Burst = 40
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	if cfg.Logging.File != "" {
		if cfg.Logging.MaxSizeMB <= 0 {
			cfg.Logging.MaxSizeMB = 100
		}
		if cfg.Logging.MaxBackups <= 0 {
			cfg.Logging.MaxBackups = 5
		}
		if cfg.Logging.MaxAgeDays <= 0 {
			cfg.Logging.MaxAgeDays = 28
		}
	}
	if cfg.Minter.Delay.Duration == 0 {
		cfg.Minter.Delay.Duration = 24 * time.Hour
	}
	if cfg.Keeper.Interval.Duration == 0 {
		cfg.Keeper.Interval.Duration = time.Minute
	}
	if cfg.Keeper.PageSize == 0 {
		cfg.Keeper.PageSize = 100
	}
	if cfg.Keeper.SlippageBps == 0 {
		cfg.Keeper.SlippageBps = 100
	}
	if cfg.Router.Owner == "" {
		cfg.Router.Owner = cfg.Minter.Owner
	}
	for i := range cfg.Ledgers {
		l := &cfg.Ledgers[i]
		if l.Delay.Duration == 0 {
			l.Delay.Duration = 24 * time.Hour
		}
		if l.MinTradeInterval.Duration == 0 {
			l.MinTradeInterval.Duration = 24 * time.Hour
		}
		if l.MinDollarPrice == "" {
			l.MinDollarPrice = "990000000000000000"
		}
		if l.MinDollarAmount == "" {
			l.MinDollarAmount = "0"
		}
	}
}

// Write persists cfg at path in the format implied by its extension.
func Write(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isTOML(path) {
		return toml.NewEncoder(f).Encode(cfg)
	}
	enc := yaml.NewEncoder(f)
	defer enc.Close()
	return enc.Encode(cfg)
}
