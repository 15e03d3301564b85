package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"poolScope/internal/model"
)

// FetchConfig holds configuration for the one-shot fetch command.
type FetchConfig struct {
	EVMRPCURL      string
	AccountRPCURL  string
	Pools          []string
	Out            string
	PGDSN          string
	MaxRetries     int
	RetryBackoff   time.Duration
	FetchTimeout   time.Duration
	MaxConcurrency int
	RateLimit      float64
	LogLevel       string
}

// LoadFetch merges config file, environment variables, and flags into
// FetchConfig.
func LoadFetch(cfgFile string, flags *pflag.FlagSet) (FetchConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("max-retries", 2)
	v.SetDefault("retry-backoff", 200*time.Millisecond)
	v.SetDefault("fetch-timeout", 5*time.Second)
	v.SetDefault("max-concurrency", 8)
	v.SetDefault("rate-limit", 50.0)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return FetchConfig{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return FetchConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return FetchConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := FetchConfig{
		EVMRPCURL:      v.GetString("evm-rpc"),
		AccountRPCURL:  v.GetString("account-rpc"),
		Pools:          getStringSlice(v, "pool"),
		Out:            v.GetString("out"),
		PGDSN:          v.GetString("pg-dsn"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		FetchTimeout:   v.GetDuration("fetch-timeout"),
		MaxConcurrency: v.GetInt("max-concurrency"),
		RateLimit:      v.GetFloat64("rate-limit"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}

// ParsePools parses pool references of the form chain:address, e.g.
// evm:0xb4e16d... or account:58oQChx4...
func ParsePools(specs []string) ([]model.PoolIdentifier, error) {
	ids := make([]model.PoolIdentifier, 0, len(specs))
	for _, spec := range specs {
		chainTag, address, found := strings.Cut(spec, ":")
		if !found {
			return nil, fmt.Errorf("pool %q: want chain:address", spec)
		}
		family, err := model.ParseChainFamily(chainTag)
		if err != nil {
			return nil, fmt.Errorf("pool %q: %w", spec, err)
		}
		id, err := model.ParsePoolIdentifier(family, strings.TrimSpace(address))
		if err != nil {
			return nil, fmt.Errorf("pool %q: %w", spec, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
