package config

import (
	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	PoolFile string
	Index    int
	Amounts  []string
	Cursor   string
	FeeRate  uint32
	LogLevel string

	Pools []PoolFile
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{
		"amount":    []string{"1000000000000000000"},
		"cursor":    "0",
		"log-level": "warn",
	})
	if err != nil {
		return QuoteConfig{}, err
	}
	cfg := QuoteConfig{
		PoolFile: v.GetString("pool-file"),
		Index:    v.GetInt("index"),
		Amounts:  getStringSlice(v, "amount"),
		Cursor:   v.GetString("cursor"),
		FeeRate:  v.GetUint32("fee-rate"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.PoolFile == "" {
		if err := v.UnmarshalKey(poolsKey, &cfg.Pools); err != nil {
			return QuoteConfig{}, err
		}
	}
	return cfg, nil
}

// ImportConfig holds configuration for the import-config command.
type ImportConfig struct {
	RPCURL   string
	Pool     string
	Asset    string
	Block    uint64
	Width    int32
	Out      string
	LogLevel string
}

// LoadImport merges config file, environment variables, and flags into ImportConfig.
func LoadImport(cfgFile string, flags *pflag.FlagSet) (ImportConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{
		"width":     10,
		"out":       "./pools.yaml",
		"log-level": "info",
	})
	if err != nil {
		return ImportConfig{}, err
	}
	return ImportConfig{
		RPCURL:   v.GetString("rpc"),
		Pool:     v.GetString("pool"),
		Asset:    v.GetString("asset"),
		Block:    v.GetUint64("block"),
		Width:    v.GetInt32("width"),
		Out:      v.GetString("out"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// AuditConfig holds configuration for the audit command.
type AuditConfig struct {
	RPCURL   string
	PGDSN    string
	Ledger   string
	Assets   []string
	Block    uint64
	LogLevel string
}

// LoadAudit merges config file, environment variables, and flags into AuditConfig.
func LoadAudit(cfgFile string, flags *pflag.FlagSet) (AuditConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{
		"log-level": "info",
	})
	if err != nil {
		return AuditConfig{}, err
	}
	return AuditConfig{
		RPCURL:   v.GetString("rpc"),
		PGDSN:    v.GetString("pg-dsn"),
		Ledger:   v.GetString("ledger"),
		Assets:   getStringSlice(v, "asset"),
		Block:    v.GetUint64("block"),
		LogLevel: v.GetString("log-level"),
	}, nil
}
