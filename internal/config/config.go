package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServeConfig holds configuration for the aggregation server, loaded
// from flags, POOLSCOPE_* environment variables, or a config file.
type ServeConfig struct {
	EVMRPCURL      string
	AccountRPCURL  string
	ListenAddr     string
	PGDSN          string
	CacheTTL       time.Duration
	SweepInterval  time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	FetchTimeout   time.Duration
	MaxConcurrency int
	RateLimit      float64
	LogLevel       string
}

// LoadServe merges config file, environment variables, and flags into
// ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("cache-ttl", 30*time.Second)
	v.SetDefault("sweep-interval", time.Minute)
	v.SetDefault("max-retries", 2)
	v.SetDefault("retry-backoff", 200*time.Millisecond)
	v.SetDefault("fetch-timeout", 5*time.Second)
	v.SetDefault("max-concurrency", 8)
	v.SetDefault("rate-limit", 50.0)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return ServeConfig{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return ServeConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return ServeConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := ServeConfig{
		EVMRPCURL:      v.GetString("evm-rpc"),
		AccountRPCURL:  v.GetString("account-rpc"),
		ListenAddr:     v.GetString("listen"),
		PGDSN:          v.GetString("pg-dsn"),
		CacheTTL:       v.GetDuration("cache-ttl"),
		SweepInterval:  v.GetDuration("sweep-interval"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		FetchTimeout:   v.GetDuration("fetch-timeout"),
		MaxConcurrency: v.GetInt("max-concurrency"),
		RateLimit:      v.GetFloat64("rate-limit"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
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
