package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig configures the live update service.
type ServeConfig struct {
	Config
	Addr           string
	CacheTTL       time.Duration
	WatchEvents    bool
	AllowedOrigins []string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"addr":         ":8080",
		"cache-ttl":    2 * time.Minute,
		"watch-events": true,
	})
	if err != nil {
		return ServeConfig{}, err
	}
	return ServeConfig{
		Config:         common(v),
		Addr:           v.GetString("addr"),
		CacheTTL:       v.GetDuration("cache-ttl"),
		WatchEvents:    v.GetBool("watch-events"),
		AllowedOrigins: getStringSlice(v, "allowed-origin"),
	}, nil
}
