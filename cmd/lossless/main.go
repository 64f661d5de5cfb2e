package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"losslessMarket/internal/config"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "lossless",
		Short:        "Lossless prediction market client",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", config.DefaultRPCURL, "RPC URL")
	flags.Uint64("chain-id", config.DefaultChainID, "expected chain id")
	flags.String("factory", "", "market factory address")
	flags.String("usdc", config.DefaultUSDC, "USDC token address")
	flags.String("private-key", "", "hex private key used to sign transactions")
	flags.String("hermes-url", config.DefaultHermesURL, "price service base URL")
	flags.StringSlice("admin", []string{config.DefaultAdmin}, "admin addresses (comma-separated)")
	flags.Bool("check-owner", true, "require admin addresses to also own the factory")
	flags.Duration("timeout", 10*time.Second, "price service request timeout")
	flags.Int("max-retries", 5, "maximum retry attempts for reads")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("redis-addr", "", "optional redis address for caching and rate limits")
	flags.String("redis-password", "", "redis password")
	flags.Int("redis-db", 0, "redis database")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		marketsCmd(),
		marketCmd(),
		balanceCmd(),
		betCmd(),
		resolveCmd(),
		claimCmd(),
		createMarketCmd(),
		cancelCmd(),
		withdrawCmd(),
		adminCheckCmd(),
		syncCmd(),
		decodeCmd(),
		aggregateCmd(),
		serveCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func configFile(cmd *cobra.Command) string {
	cfgFile, _ := cmd.Flags().GetString("config")
	return cfgFile
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
