// Package config loads and validates the monitor configuration.
//
// Settings come from viper, which the CLI binds to flags and to ARBMON_*
// environment variables. Chain definitions for BSC and Polygon are built in;
// RPC endpoints, prices, and thresholds can be overridden.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ChainConfig describes a single monitored blockchain.
type ChainConfig struct {
	Name           string
	ChainID        int64
	RPCURLs        []string // ordered; first is primary
	BlockTime      time.Duration
	NativeToken    string
	NativeTokenUSD decimal.Decimal
	DexRouters     map[string]string // label -> lowercased 0x address
	Pools          map[string]string // label -> lowercased 0x address
	ScanInterval   time.Duration     // pool scan tick
}

// Config is the full monitor configuration.
type Config struct {
	DatabaseURL string
	DataDir     string // badger checkpoint directory
	APIKeys     []string
	LogLevel    string

	MaxSubscribers int

	ImbalanceThresholdPct decimal.Decimal
	SwapFeePct            decimal.Decimal
	SmallOppMinUSD        decimal.Decimal
	SmallOppMaxUSD        decimal.Decimal

	OpportunityRetentionDays int
	TransactionArchiveDays   int
	RetentionHourUTC         int

	Chains []ChainConfig
}

// Defaults registers the default values for all viper keys.
func Defaults(v *viper.Viper) {
	v.SetDefault("data-dir", "~/.arbmon")
	v.SetDefault("log-level", "info")
	v.SetDefault("max-subscribers", 100)
	v.SetDefault("imbalance-threshold-pct", 5.0)
	v.SetDefault("swap-fee-pct", 0.3)
	v.SetDefault("small-opp-min-usd", 10000.0)
	v.SetDefault("small-opp-max-usd", 100000.0)
	v.SetDefault("opportunity-retention-days", 30)
	v.SetDefault("transaction-archive-days", 90)
	v.SetDefault("retention-hour-utc", 2)
	v.SetDefault("bsc.rpc", []string{"https://bsc-dataseed.binance.org", "https://bsc-dataseed1.defibit.io"})
	v.SetDefault("bsc.native-usd", "300.0")
	v.SetDefault("polygon.rpc", []string{"https://polygon-rpc.com", "https://rpc-mainnet.matic.quiknode.pro"})
	v.SetDefault("polygon.native-usd", "0.80")
}

// FromViper builds a Config from the given viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	dataDir, err := homedir.Expand(v.GetString("data-dir"))
	if err != nil {
		return nil, fmt.Errorf("bad data-dir: %w", err)
	}

	cfg := &Config{
		DatabaseURL:              v.GetString("database-url"),
		DataDir:                  dataDir,
		APIKeys:                  splitKeys(v.GetString("api-keys")),
		LogLevel:                 v.GetString("log-level"),
		MaxSubscribers:           v.GetInt("max-subscribers"),
		ImbalanceThresholdPct:    decimal.NewFromFloat(v.GetFloat64("imbalance-threshold-pct")),
		SwapFeePct:               decimal.NewFromFloat(v.GetFloat64("swap-fee-pct")),
		SmallOppMinUSD:           decimal.NewFromFloat(v.GetFloat64("small-opp-min-usd")),
		SmallOppMaxUSD:           decimal.NewFromFloat(v.GetFloat64("small-opp-max-usd")),
		OpportunityRetentionDays: v.GetInt("opportunity-retention-days"),
		TransactionArchiveDays:   v.GetInt("transaction-archive-days"),
		RetentionHourUTC:         v.GetInt("retention-hour-utc"),
	}

	bsc := BSC()
	if urls := v.GetStringSlice("bsc.rpc"); len(urls) > 0 {
		bsc.RPCURLs = urls
	}
	if usd := v.GetString("bsc.native-usd"); usd != "" {
		bsc.NativeTokenUSD, err = decimal.NewFromString(usd)
		if err != nil {
			return nil, fmt.Errorf("bad bsc.native-usd: %w", err)
		}
	}

	polygon := Polygon()
	if urls := v.GetStringSlice("polygon.rpc"); len(urls) > 0 {
		polygon.RPCURLs = urls
	}
	if usd := v.GetString("polygon.native-usd"); usd != "" {
		polygon.NativeTokenUSD, err = decimal.NewFromString(usd)
		if err != nil {
			return nil, fmt.Errorf("bad polygon.native-usd: %w", err)
		}
	}

	cfg.Chains = []ChainConfig{bsc, polygon}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants: database URL present, chain IDs unique and
// positive, endpoints non-empty, all router/pool addresses valid and
// normalized.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database-url is required")
	}
	seen := make(map[int64]string)
	for i := range c.Chains {
		ch := &c.Chains[i]
		if ch.ChainID <= 0 {
			return fmt.Errorf("chain %s: chain_id must be positive", ch.Name)
		}
		if prev, ok := seen[ch.ChainID]; ok {
			return fmt.Errorf("chain %s: chain_id %d already used by %s", ch.Name, ch.ChainID, prev)
		}
		seen[ch.ChainID] = ch.Name
		if len(ch.RPCURLs) == 0 {
			return fmt.Errorf("chain %s: no RPC endpoints configured", ch.Name)
		}
		if ch.BlockTime <= 0 {
			return fmt.Errorf("chain %s: block time must be positive", ch.Name)
		}
		if !ch.NativeTokenUSD.IsPositive() {
			return fmt.Errorf("chain %s: native token USD price must be positive", ch.Name)
		}
		if err := normalizeAddressMap(ch.DexRouters); err != nil {
			return fmt.Errorf("chain %s routers: %w", ch.Name, err)
		}
		if err := normalizeAddressMap(ch.Pools); err != nil {
			return fmt.Errorf("chain %s pools: %w", ch.Name, err)
		}
	}
	return nil
}

// NormalizeAddress lowercases a hex address and ensures the 0x prefix.
// All address comparisons in the monitor happen on this form.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}
	return addr
}

func normalizeAddressMap(m map[string]string) error {
	for label, addr := range m {
		norm := NormalizeAddress(addr)
		if !common.IsHexAddress(norm) {
			return fmt.Errorf("%s: %q is not a valid address", label, addr)
		}
		m[label] = norm
	}
	return nil
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
