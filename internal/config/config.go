package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURLs         []string
	RegistryAddress string
	TokenAddress    string
	Gateways        []string
	RedisURL        string
	PostgresDSN     string
	ListenAddr      string
	RefreshInterval time.Duration
	VerifyInterval  time.Duration
	Workers         int
	MaxRetries      int
	RetryBackoff    time.Duration
	MetadataTTL     time.Duration
	HTTPTimeout     time.Duration
	Out             string
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEDGERFUND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("refresh-interval", 5*time.Minute)
	v.SetDefault("verify-interval", 15*time.Second)
	v.SetDefault("workers", 8)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("metadata-ttl", time.Hour)
	v.SetDefault("http-timeout", 30*time.Second)
	v.SetDefault("out", "./data/proposals.jsonl")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURLs:         getStringSlice(v, "rpc"),
		RegistryAddress: v.GetString("registry"),
		TokenAddress:    v.GetString("token"),
		Gateways:        getStringSlice(v, "gateway"),
		RedisURL:        v.GetString("redis"),
		PostgresDSN:     v.GetString("pg-dsn"),
		ListenAddr:      v.GetString("listen"),
		RefreshInterval: v.GetDuration("refresh-interval"),
		VerifyInterval:  v.GetDuration("verify-interval"),
		Workers:         v.GetInt("workers"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		MetadataTTL:     v.GetDuration("metadata-ttl"),
		HTTPTimeout:     v.GetDuration("http-timeout"),
		Out:             v.GetString("out"),
		LogLevel:        v.GetString("log-level"),
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
