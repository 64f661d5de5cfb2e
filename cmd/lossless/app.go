package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	rediscache "losslessMarket/internal/cache/redis"
	"losslessMarket/internal/chain"
	"losslessMarket/internal/config"
	"losslessMarket/internal/contracts"
	"losslessMarket/internal/notify"
	"losslessMarket/internal/oracle"
	"losslessMarket/internal/service"
	"losslessMarket/internal/txerr"
	"losslessMarket/internal/wallet"
)

// app is the wiring shared by the interactive commands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	client   *chain.Client
	factory  *contracts.Factory
	session  *wallet.Session
	notifier *notify.Notifier
	redis    *rediscache.Client
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.RequireFactory(); err != nil {
		return nil, err
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	factory, err := contracts.NewFactory(cfg.Factory, client)
	if err != nil {
		client.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, client: client, factory: factory}

	var limiter wallet.RateLimiter
	if cfg.RedisAddr != "" {
		rc, err := rediscache.New(ctx, rediscache.ClientConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			logger.Warn("redis unavailable, continuing without it", zap.Error(err))
		} else {
			a.redis = rc
			limiter = rediscache.NewRateLimiter(rc)
		}
	}

	var owner wallet.OwnerReader
	if cfg.CheckOwner {
		owner = factory
	}
	verifier := wallet.NewAdminVerifier(cfg.AdminAddresses, owner, limiter, logger)
	a.session = wallet.NewSession(client, wallet.Config{ChainID: cfg.ChainID, USDC: cfg.USDC}, verifier, logger)

	a.notifier = notify.NewNotifier(notify.DefaultTTL, logger)
	return a, nil
}

// connect binds the configured private key to the session.
func (a *app) connect(ctx context.Context, action string) error {
	if a.cfg.PrivateKey == "" {
		return fmt.Errorf("%w: set --private-key or %s_PRIVATE_KEY", wallet.ErrNotConnected, config.EnvPrefix)
	}
	a.session.OnTransaction(a.notifier.Hook(action))
	if err := a.session.Connect(ctx, a.cfg.PrivateKey); err != nil {
		return err
	}
	return nil
}

// connectOptional connects when a key is configured and stays read-only otherwise.
func (a *app) connectOptional(ctx context.Context) error {
	if a.cfg.PrivateKey == "" {
		return nil
	}
	return a.connect(ctx, "read")
}

func (a *app) prices() *oracle.HermesClient {
	return oracle.NewHermesClient(oracle.HermesConfig{
		BaseURL:      a.cfg.HermesURL,
		Timeout:      a.cfg.Timeout,
		MaxRetries:   a.cfg.MaxRetries,
		RetryBackoff: a.cfg.RetryBackoff,
	}, a.logger)
}

func (a *app) detail(address string) (*service.MarketDetail, error) {
	return service.NewMarketDetail(address, a.client, a.session, a.prices(), a.logger)
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.client.Close()
	_ = a.logger.Sync()
}

// loadApp builds the logger and the app from cfg.
func loadApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// userError logs the raw failure and returns the inline message shown to users.
func (a *app) userError(err error) error {
	if err == nil {
		return nil
	}
	a.logger.Debug("action failed", zap.Error(err))
	return errors.New(txerr.Message(err))
}
