package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != DefaultRPCURL || cfg.ChainID != DefaultChainID || cfg.USDC != DefaultUSDC {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Fatalf("poll interval mismatch: %s", cfg.PollInterval)
	}
	if !reflect.DeepEqual(cfg.AdminAddresses, []string{DefaultAdmin}) {
		t.Fatalf("admin mismatch: %v", cfg.AdminAddresses)
	}
	if err := cfg.RequireFactory(); err == nil {
		t.Fatalf("expected missing factory error")
	}
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("LOSSLESS_FACTORY", "0x00000000000000000000000000000000000fac70")
	t.Setenv("LOSSLESS_ADMIN", "0xabc, ,0xdef")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Uint64("chain-id", 0, "")
	flags.Duration("poll-interval", 0, "")
	if err := flags.Parse([]string{"--chain-id=31337", "--poll-interval=5s"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != 31337 || cfg.PollInterval != 5*time.Second {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.RequireFactory() != nil {
		t.Fatalf("factory from env not applied")
	}
	if !reflect.DeepEqual(cfg.AdminAddresses, []string{"0xabc", "0xdef"}) {
		t.Fatalf("admin mismatch: %v", cfg.AdminAddresses)
	}
}

func TestLoadSyncFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lossless.yaml")
	body := "factory: \"0x00000000000000000000000000000000000fac70\"\nfrom: 100\nmarket:\n  - \"0x01\"\n  - \"0x02\"\nfollow: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadSync(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FromBlock != 100 || !cfg.Follow || cfg.BatchSize != 2000 {
		t.Fatalf("unexpected sync config: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Markets, []string{"0x01", "0x02"}) {
		t.Fatalf("markets mismatch: %v", cfg.Markets)
	}
	if !cfg.CheckpointEnabled {
		t.Fatalf("checkpoint should default on")
	}
}

func TestParseWindow(t *testing.T) {
	if got, err := ParseWindow("1h"); err != nil || got != 3600 {
		t.Fatalf("got %d %v", got, err)
	}
	if _, err := ParseWindow("10ms"); err == nil {
		t.Fatalf("expected error for sub-second window")
	}
	if _, err := ParseWindow("soon"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseTimestamp(t *testing.T) {
	if got, err := ParseTimestamp("1700000000"); err != nil || got != 1700000000 {
		t.Fatalf("got %d %v", got, err)
	}
	if got, err := ParseTimestamp("2024-01-01T00:00:00Z"); err != nil || got != 1704067200 {
		t.Fatalf("got %d %v", got, err)
	}
	if got, err := ParseTimestamp(""); err != nil || got != 0 {
		t.Fatalf("empty: %d %v", got, err)
	}
}
