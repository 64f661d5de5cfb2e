package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"losslessMarket/internal/chain"
	"losslessMarket/internal/config"
	"losslessMarket/internal/indexer"
	"losslessMarket/internal/storage"
	"losslessMarket/internal/storage/postgres"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync factory and market events into JSONL or Postgres",
		Args:  cobra.NoArgs,
		RunE:  runSync,
	}
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().StringSlice("market", nil, "extra market addresses to follow (comma-separated)")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	cmd.Flags().String("out", "./data/logs.jsonl", "raw logs JSONL path (empty to skip)")
	cmd.Flags().String("events-out", "./data/typed_events.jsonl", "typed events JSONL path, used without --pg-dsn")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path, used without --pg-dsn")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	cmd.Flags().Bool("follow", false, "keep polling for new blocks")
	cmd.Flags().Duration("poll-interval", 0, "poll interval in follow mode")
	cmd.Flags().Bool("migrate", false, "apply Postgres migrations before syncing")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadSync(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	var factory common.Address
	if cfg.Factory != "" {
		if !common.IsHexAddress(cfg.Factory) {
			return fmt.Errorf("invalid factory address: %s", cfg.Factory)
		}
		factory = common.HexToAddress(cfg.Factory)
	}
	markets, err := indexer.ParseAddresses(cfg.Markets)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var logSink storage.Storage
	if cfg.Out != "" {
		logSink = storage.NewJsonlStorage(cfg.Out)
	}

	var (
		eventSink  storage.EventStorage
		checkpoint indexer.Checkpointer
	)
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if cfg.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
		}
		eventSink = store
		if cfg.CheckpointEnabled {
			checkpoint = &indexer.DBCheckpoint{Backend: store, Name: indexer.CheckpointName(cfg.ChainID, factory)}
		}
	} else {
		if cfg.EventsOut != "" {
			eventSink = storage.NewJsonlStorage(cfg.EventsOut)
		}
		checkpoint = indexer.NewCheckpointStore(cfg.Checkpoint, cfg.CheckpointEnabled)
	}

	runner, err := indexer.NewRunner(indexer.RunConfig{
		FromBlock:    cfg.FromBlock,
		ToBlock:      cfg.ToBlock,
		Factory:      factory,
		Markets:      markets,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Follow:       cfg.Follow,
		PollInterval: cfg.PollInterval,
	}, chainClient, logSink, eventSink, checkpoint, logger)
	if err != nil {
		return err
	}

	logger.Info("sync start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("factory", cfg.Factory),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("markets", len(markets)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("follow", cfg.Follow),
	)

	err = runner.Run(ctx)
	logger.Info("sync stopped", zap.Int("tracked_markets", len(runner.Tracked())))
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
