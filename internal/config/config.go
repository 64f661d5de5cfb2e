package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "LOSSLESS"

	DefaultRPCURL    = "https://sepolia-rollup.arbitrum.io/rpc"
	DefaultChainID   = uint64(421614)
	DefaultUSDC      = "0x75faf114eafb1BDbe2F0316DF893FD58CE46AA4d"
	DefaultHermesURL = "https://hermes.pyth.network"
	DefaultAdmin     = "0xFF65DC5C653c2A6C7C11986b06E5f45D5Ba88076"
)

// Config holds the settings shared by every command.
type Config struct {
	RPCURL         string
	ChainID        uint64
	Factory        string
	USDC           string
	PrivateKey     string
	HermesURL      string
	AdminAddresses []string
	CheckOwner     bool
	PollInterval   time.Duration
	Timeout        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	PGDSN          string
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return Config{}, err
	}
	return common(v), nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", DefaultRPCURL)
	v.SetDefault("chain-id", DefaultChainID)
	v.SetDefault("usdc", DefaultUSDC)
	v.SetDefault("hermes-url", DefaultHermesURL)
	v.SetDefault("admin", []string{DefaultAdmin})
	v.SetDefault("check-owner", true)
	v.SetDefault("poll-interval", 30*time.Second)
	v.SetDefault("timeout", 10*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("redis-db", 0)
	v.SetDefault("log-level", "info")
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
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func common(v *viper.Viper) Config {
	return Config{
		RPCURL:         v.GetString("rpc"),
		ChainID:        v.GetUint64("chain-id"),
		Factory:        v.GetString("factory"),
		USDC:           v.GetString("usdc"),
		PrivateKey:     v.GetString("private-key"),
		HermesURL:      v.GetString("hermes-url"),
		AdminAddresses: getStringSlice(v, "admin"),
		CheckOwner:     v.GetBool("check-owner"),
		PollInterval:   v.GetDuration("poll-interval"),
		Timeout:        v.GetDuration("timeout"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		RedisAddr:      v.GetString("redis-addr"),
		RedisPassword:  v.GetString("redis-password"),
		RedisDB:        v.GetInt("redis-db"),
		PGDSN:          v.GetString("pg-dsn"),
		LogLevel:       v.GetString("log-level"),
	}
}

// RequireFactory returns an error when no factory address is configured.
func (c Config) RequireFactory() error {
	if strings.TrimSpace(c.Factory) == "" {
		return fmt.Errorf("factory address is required (--factory or %s_FACTORY)", EnvPrefix)
	}
	return nil
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
	return cleanStrings(strings.Split(input, ","))
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
