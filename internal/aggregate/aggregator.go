package aggregate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"losslessMarket/internal/model"
	"losslessMarket/internal/storage"
	"losslessMarket/internal/view"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Sink receives finished window stats. postgres.Store implements it.
type Sink interface {
	UpsertWindowStats(ctx context.Context, stats []model.MarketWindowStats) error
}

// EventSource streams typed events newer than afterTs, oldest first.
type EventSource func(ctx context.Context, afterTs uint64, fn func(model.TypedEventRecord) error) error

// FileSource reads typed events from a JSONL file written by the sync command.
func FileSource(path string, logger *zap.Logger) EventSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, afterTs uint64, fn func(model.TypedEventRecord) error) error {
		return storage.ScanEvents(path, func(record model.TypedEventRecord) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(record)
		}, func(err error) {
			logger.Warn("decode typed event", zap.Error(err))
		})
	}
}

// Aggregator folds typed events into per-market bet activity windows.
type Aggregator struct {
	cfg          Config
	sink         Sink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
}

func NewAggregator(cfg Config, sink Sink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run aggregates every event from source newer than the saved state.
func (a *Aggregator) Run(ctx context.Context, source EventSource) error {
	if a.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if source == nil {
		return fmt.Errorf("event source is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.MarketWindowStats, 0, a.cfg.BatchSize)
	maxTs := startTs
	var total, written, skipped, failed int

	err = source(ctx, startTs, func(record model.TypedEventRecord) error {
		total++
		if record.Timestamp <= startTs {
			skipped++
			return nil
		}

		start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		end := start + a.cfg.WindowSeconds

		key := marketKey(record.Address)
		acc := a.accumulators[key]
		if acc == nil {
			acc = NewAccumulator(record, start, end)
			a.accumulators[key] = acc
		} else if acc.WindowStart != start {
			if stats := a.finish(acc); stats != nil {
				batch = append(batch, *stats)
				written++
			}
			acc = NewAccumulator(record, start, end)
			a.accumulators[key] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("market", record.Address), zap.String("event", record.EventName))
			return nil
		}
		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.sink.UpsertWindowStats(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, acc := range a.accumulators {
		if stats := a.finish(acc); stats != nil {
			batch = append(batch, *stats)
			written++
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 {
		if err := a.sink.UpsertWindowStats(ctx, batch); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", written),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return nil
}

func (a *Aggregator) finish(acc *Accumulator) *model.MarketWindowStats {
	if acc == nil || acc.Empty() {
		return nil
	}
	stats := &model.MarketWindowStats{
		ChainID:        acc.ChainID,
		MarketAddress:  acc.MarketAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		BetCount:       acc.BetCount,
		YesVolume:      view.FormatUSDC(acc.YesVolume.String()),
		NoVolume:       view.FormatUSDC(acc.NoVolume.String()),
		ClaimCount:     acc.ClaimCount,
		ClaimedAmount:  view.FormatUSDC(acc.ClaimedAmount.String()),
	}
	if share := view.YesShare(acc.YesVolume.String(), acc.NoVolume.String()); share != "" {
		stats.YesShare = &share
	}
	return stats
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState records the newest timestamp whose windows are all flushed.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs--
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func marketKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
