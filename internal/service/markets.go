package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"losslessMarket/internal/contracts"
	"losslessMarket/internal/model"
	"losslessMarket/internal/view"
)

const (
	DefaultPollInterval = 30 * time.Second
	defaultConcurrency  = 8
)

// SnapshotCache persists the last market list across processes.
type SnapshotCache interface {
	SetAll(ctx context.Context, markets []model.Market) error
	All(ctx context.Context) ([]model.Market, error)
}

// MarketLister enumerates markets. contracts.Factory implements it.
type MarketLister interface {
	GetAllMarkets(ctx context.Context) ([]string, error)
}

// MarketsPageConfig tunes the markets list poller.
type MarketsPageConfig struct {
	PollInterval time.Duration
	Concurrency  int
}

// MarketsPage keeps a polled snapshot of every factory market.
type MarketsPage struct {
	factory MarketLister
	caller  contracts.Caller
	cfg     MarketsPageConfig
	logger  *zap.Logger
	cache   SnapshotCache

	inFlight atomic.Bool
	pending  atomic.Bool

	mu        sync.RWMutex
	markets   []model.Market
	loadedAt  time.Time
	lastErr   error
	listeners []func([]model.Market)
	onError   []func(error)
}

func NewMarketsPage(factory MarketLister, caller contracts.Caller, cfg MarketsPageConfig, logger *zap.Logger) *MarketsPage {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketsPage{factory: factory, caller: caller, cfg: cfg, logger: logger}
}

// SetCache attaches an optional snapshot cache.
func (p *MarketsPage) SetCache(cache SnapshotCache) {
	p.cache = cache
}

// OnUpdate registers fn to receive every freshly loaded list.
func (p *MarketsPage) OnUpdate(fn func([]model.Market)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// OnError registers fn to run after a failed refresh.
func (p *MarketsPage) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = append(p.onError, fn)
	p.mu.Unlock()
}

// Load enumerates factory markets and reads their details concurrently.
// Markets whose read fails are dropped from the result. Factory order is kept.
func (p *MarketsPage) Load(ctx context.Context) ([]model.Market, error) {
	if p.factory == nil || p.caller == nil {
		return nil, fmt.Errorf("markets page is not configured")
	}
	addresses, err := p.factory.GetAllMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	results := make([]*model.Market, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, address := range addresses {
		i, address := i, address
		g.Go(func() error {
			m, err := p.loadOne(gctx, address)
			if err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return err
				}
				p.logger.Warn("market read failed, skipping", zap.String("market", address), zap.Error(err))
				return nil
			}
			results[i] = &m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	markets := make([]model.Market, 0, len(results))
	for _, m := range results {
		if m != nil {
			markets = append(markets, *m)
		}
	}
	return markets, nil
}

func (p *MarketsPage) loadOne(ctx context.Context, address string) (model.Market, error) {
	market, err := contracts.NewMarket(address, p.caller)
	if err != nil {
		return model.Market{}, err
	}
	m, err := market.Details(ctx)
	if err != nil {
		return model.Market{}, err
	}
	m.Symbol = view.SymbolFromQuestion(m.Question)
	return m, nil
}

// Refresh reloads the list. A call made while another refresh is running is
// queued instead: the running refresh loads again once it finishes, so a
// refresh requested after a transaction never ends on data read before it.
// The bool reports whether this call performed the load.
func (p *MarketsPage) Refresh(ctx context.Context) (bool, error) {
	p.pending.Store(true)
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug("markets refresh in flight, queued another pass")
		return false, nil
	}

	var err error
	for {
		for p.pending.Swap(false) {
			err = p.refreshOnce(ctx)
		}
		p.inFlight.Store(false)
		if !p.pending.Load() || !p.inFlight.CompareAndSwap(false, true) {
			return true, err
		}
	}
}

func (p *MarketsPage) refreshOnce(ctx context.Context) error {
	start := time.Now()
	markets, err := p.Load(ctx)

	p.mu.Lock()
	p.lastErr = err
	if err == nil {
		p.markets = markets
		p.loadedAt = time.Now()
	}
	listeners := make([]func([]model.Market), len(p.listeners))
	copy(listeners, p.listeners)
	onError := make([]func(error), len(p.onError))
	copy(onError, p.onError)
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("markets refresh failed", zap.Error(err))
		for _, fn := range onError {
			fn(err)
		}
		return err
	}

	p.logger.Info("markets refreshed", zap.Int("markets", len(markets)), zap.Duration("took", time.Since(start)))
	if p.cache != nil {
		if err := p.cache.SetAll(ctx, markets); err != nil {
			p.logger.Warn("market cache write failed", zap.Error(err))
		}
	}
	for _, fn := range listeners {
		fn(cloneMarkets(markets))
	}
	return nil
}

// Run loads once, then re-polls every PollInterval until ctx is done.
func (p *MarketsPage) Run(ctx context.Context) error {
	p.warmFromCache(ctx)
	_, _ = p.Refresh(ctx)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = p.Refresh(ctx)
		}
	}
}

func (p *MarketsPage) warmFromCache(ctx context.Context) {
	if p.cache == nil {
		return
	}
	markets, err := p.cache.All(ctx)
	if err != nil {
		p.logger.Debug("market cache miss", zap.Error(err))
		return
	}
	p.mu.Lock()
	if p.markets == nil {
		p.markets = markets
	}
	p.mu.Unlock()
	p.logger.Info("markets warmed from cache", zap.Int("markets", len(markets)))
}

// Markets returns a copy of the last loaded list.
func (p *MarketsPage) Markets() []model.Market {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneMarkets(p.markets)
}

// Market finds one market in the last loaded list.
func (p *MarketsPage) Market(address string) (model.Market, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, m := range p.markets {
		if strings.EqualFold(m.Address, address) {
			return m, true
		}
	}
	return model.Market{}, false
}

// Status reports when the list was last loaded and the last refresh error.
func (p *MarketsPage) Status() (time.Time, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loadedAt, p.lastErr
}

func cloneMarkets(markets []model.Market) []model.Market {
	if markets == nil {
		return nil
	}
	return append([]model.Market(nil), markets...)
}
