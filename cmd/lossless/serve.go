package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	rediscache "losslessMarket/internal/cache/redis"
	"losslessMarket/internal/config"
	"losslessMarket/internal/indexer"
	"losslessMarket/internal/model"
	"losslessMarket/internal/notify"
	"losslessMarket/internal/server"
	"losslessMarket/internal/service"
	"losslessMarket/internal/storage"
	"losslessMarket/internal/storage/postgres"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve market snapshots and live updates over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().Duration("poll-interval", service.DefaultPollInterval, "market list poll interval")
	cmd.Flags().Duration("cache-ttl", 2*time.Minute, "redis snapshot TTL")
	cmd.Flags().Bool("watch-events", true, "follow contract events for notifications and refreshes")
	cmd.Flags().StringSlice("allowed-origin", nil, "websocket origins to accept (default any)")
	cmd.Flags().Bool("migrate", false, "apply Postgres migrations on start")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadServe(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}
	migrate, _ := cmd.Flags().GetBool("migrate")

	ctx, stop := signalContext()
	defer stop()

	a, err := loadApp(ctx, cfg.Config)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	page := service.NewMarketsPage(a.factory, a.client, service.MarketsPageConfig{PollInterval: cfg.PollInterval}, logger)
	metrics := server.NewMetrics()
	srv := server.New(server.Config{Addr: cfg.Addr, AllowOrigin: originChecker(cfg.AllowedOrigins)}, page, metrics, logger)

	page.OnUpdate(srv.PublishMarkets)
	page.OnError(func(error) { srv.RefreshFailed() })
	a.notifier.Subscribe(srv.PublishNotification)

	if a.redis != nil {
		page.SetCache(rediscache.NewMarketCache(a.redis, cfg.ChainID, cfg.CacheTTL))
		srv.AddHealthCheck(a.redis.Ping)
	}

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if migrate {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
		}
		srv.AddHealthCheck(store.Ping)
		chainID := cfg.ChainID
		page.OnUpdate(func(markets []model.Market) {
			if err := store.UpsertMarkets(ctx, chainID, markets); err != nil {
				logger.Warn("market snapshot write failed", zap.Error(err))
			}
		})
	}

	if err := a.connectOptional(ctx); err != nil {
		logger.Warn("wallet not connected", zap.Error(err))
	}
	a.session.OnInvalidate(func() {
		if _, err := page.Refresh(ctx); err != nil {
			logger.Warn("refresh after network change failed", zap.Error(err))
		}
	})

	logger.Info("serve start",
		zap.String("addr", cfg.Addr),
		zap.String("factory", cfg.Factory),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("redis", a.redis != nil),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("watch_events", cfg.WatchEvents),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return page.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		a.notifier.RunCleanup(gctx, 10*time.Minute)
		return nil
	})
	g.Go(func() error { return watchChain(gctx, a, cfg.PollInterval) })
	if cfg.WatchEvents {
		g.Go(func() error {
			if err := followEvents(gctx, a, cfg, page, store); err != nil && gctx.Err() == nil {
				logger.Error("event follower stopped", zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// followEvents tails factory and market logs from the current head, turning
// each event into a notification and a list refresh.
func followEvents(ctx context.Context, a *app, cfg config.ServeConfig, page *service.MarketsPage, store *postgres.Store) error {
	head, err := a.client.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	known, err := a.factory.GetAllMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}
	markets, err := indexer.ParseAddresses(known)
	if err != nil {
		return err
	}

	var sink storage.EventStorage = discardEvents{}
	if store != nil {
		sink = store
	}
	runner, err := indexer.NewRunner(indexer.RunConfig{
		FromBlock:    head + 1,
		Factory:      a.factory.Address(),
		Markets:      markets,
		BatchSize:    2000,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Follow:       true,
		PollInterval: 5 * time.Second,
	}, a.client, nil, sink, nil, a.logger)
	if err != nil {
		return err
	}
	runner.OnEvents(func(events []model.TypedEvent) {
		for _, ev := range events {
			a.notifier.Publish(notify.FromEvent(ev))
		}
		go func() {
			if _, err := page.Refresh(ctx); err != nil {
				a.logger.Warn("refresh after events failed", zap.Error(err))
			}
		}()
	})
	return runner.Run(ctx)
}

// watchChain invalidates the session when the RPC endpoint switches networks.
func watchChain(ctx context.Context, a *app, interval time.Duration) error {
	if interval <= 0 {
		interval = service.DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := a.cfg.ChainID
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		id, err := a.client.GetChainID(ctx)
		if err != nil {
			a.logger.Debug("chain id poll failed", zap.Error(err))
			continue
		}
		if id.IsUint64() && id.Uint64() != last {
			last = id.Uint64()
			a.session.ChainChanged(last)
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimSuffix(strings.ToLower(origin), "/")
		if origin == "*" {
			return nil
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[strings.ToLower(r.Header.Get("Origin"))]
		return ok
	}
}

type discardEvents struct{}

func (discardEvents) PutEventBatch(ctx context.Context, events []model.TypedEvent) error {
	return nil
}
