package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "CURVELEDGER"

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Ops               string
	Out               string
	PositionsOut      string
	CurvesOut         string
	PGDSN             string
	PoolFile          string
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	MetricsOut        string
	LogLevel          string

	World WorldFile
	Pools []PoolFile
}

// Load merges config file, environment variables, and flags into
// SimulateConfig. The world and, unless pool-file is set, the pool registry
// come from the config file.
func Load(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{
		"out":                "./data/events.jsonl",
		"positions-out":      "./data/positions.jsonl",
		"curves-out":         "./data/curves.jsonl",
		"batch-size":         uint64(500),
		"checkpoint":         "./data/replay_checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"log-level":          "info",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Ops:               v.GetString("ops"),
		Out:               v.GetString("out"),
		PositionsOut:      v.GetString("positions-out"),
		CurvesOut:         v.GetString("curves-out"),
		PGDSN:             v.GetString("pg-dsn"),
		PoolFile:          v.GetString("pool-file"),
		BatchSize:         v.GetUint64("batch-size"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		MetricsOut:        v.GetString("metrics-out"),
		LogLevel:          v.GetString("log-level"),
	}
	if err := v.UnmarshalKey("world", &cfg.World); err != nil {
		return SimulateConfig{}, fmt.Errorf("decode world: %w", err)
	}
	if cfg.PoolFile == "" {
		if err := v.UnmarshalKey(poolsKey, &cfg.Pools); err != nil {
			return SimulateConfig{}, fmt.Errorf("decode pools: %w", err)
		}
	}
	return cfg, nil
}

// load builds a viper instance from defaults, the config file (explicit or
// ./config.*), CURVELEDGER_* environment variables and flags.
func load(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
