package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"losslessMarket/internal/aggregate"
	"losslessMarket/internal/config"
	"losslessMarket/internal/model"
	"losslessMarket/internal/storage/postgres"
)

func aggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Fold market events into per-window betting activity",
		Args:  cobra.NoArgs,
		RunE:  runAggregate,
	}
	cmd.Flags().String("in", "", "typed events JSONL (reads Postgres market_events when empty)")
	cmd.Flags().String("window", "1h", "aggregation window (e.g. 5m, 1h, 24h)")
	cmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	cmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	cmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	cmd.Flags().Bool("migrate", false, "apply Postgres migrations first")
	return cmd
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadAggregate(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}
	migrate, _ := cmd.Flags().GetBool("migrate")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	windowSeconds, err := config.ParseWindow(cfg.Window)
	if err != nil {
		return err
	}
	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	var stateStore aggregate.StateStore
	if cfg.StateFile != "" {
		stateStore = &aggregate.FileStateStore{Path: cfg.StateFile, WindowSeconds: windowSeconds}
	} else {
		stateStore = aggregate.NewDBStateStore(store, cfg.ChainID, windowSeconds)
	}

	var source aggregate.EventSource
	if cfg.Input != "" {
		source = aggregate.FileSource(cfg.Input, logger)
	} else {
		chainID := cfg.ChainID
		source = func(ctx context.Context, afterTs uint64, fn func(model.TypedEventRecord) error) error {
			return store.StreamEvents(ctx, chainID, afterTs, fn)
		}
	}

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		StateStore:    stateStore,
	}, store, logger)

	logger.Info("aggregate start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", recomputeFrom),
	)

	return agg.Run(ctx, source)
}
