package config

import (
	"github.com/spf13/pflag"
)

// SyncConfig configures the event sync command.
type SyncConfig struct {
	Config
	FromBlock         uint64
	ToBlock           uint64
	Markets           []string
	BatchSize         uint64
	Out               string
	EventsOut         string
	Checkpoint        string
	CheckpointEnabled bool
	Follow            bool
	Migrate           bool
}

// LoadSync merges config file, environment variables, and flags into SyncConfig.
func LoadSync(cfgFile string, flags *pflag.FlagSet) (SyncConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":         uint64(2000),
		"out":                "./data/logs.jsonl",
		"events-out":         "./data/typed_events.jsonl",
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
	})
	if err != nil {
		return SyncConfig{}, err
	}

	return SyncConfig{
		Config:            common(v),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Markets:           getStringSlice(v, "market"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		EventsOut:         v.GetString("events-out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		Follow:            v.GetBool("follow"),
		Migrate:           v.GetBool("migrate"),
	}, nil
}

// DecodeConfig configures re-decoding a raw logs file.
type DecodeConfig struct {
	Config
	In     string
	Out    string
	Errors string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":    "./data/typed_events.jsonl",
		"errors": "./data/decode_errors.jsonl",
	})
	if err != nil {
		return DecodeConfig{}, err
	}
	return DecodeConfig{
		Config: common(v),
		In:     v.GetString("in"),
		Out:    v.GetString("out"),
		Errors: v.GetString("errors"),
	}, nil
}
