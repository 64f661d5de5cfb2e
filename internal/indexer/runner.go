package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"losslessMarket/internal/contracts"
	"losslessMarket/internal/model"
	"losslessMarket/internal/retry"
	"losslessMarket/internal/storage"
)

// LogSource is the chain access the runner needs. chain.Client implements it.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for the sync loop.
type RunConfig struct {
	FromBlock    uint64
	ToBlock      uint64
	Factory      common.Address
	Markets      []common.Address
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	// Follow keeps polling for new blocks after reaching the head.
	Follow       bool
	PollInterval time.Duration
}

// Runner streams factory and market logs, decodes them and writes both raw
// logs and typed events. Markets announced by MarketCreated are tracked from
// the block they appear in.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	logs       storage.Storage
	events     storage.EventStorage
	decoder    *contracts.EventDecoder
	checkpoint Checkpointer
	logger     *zap.Logger

	tracked  map[common.Address]struct{}
	seen     map[string]struct{}
	onEvents []func([]model.TypedEvent)
}

// NewRunner builds a Runner. logs and events may each be nil, but not both.
func NewRunner(cfg RunConfig, source LogSource, logs storage.Storage, events storage.EventStorage, checkpoint Checkpointer, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder, err := contracts.NewEventDecoder()
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		checkpoint = NewCheckpointStore("", false)
	}
	r := &Runner{
		cfg:        cfg,
		source:     source,
		logs:       logs,
		events:     events,
		decoder:    decoder,
		checkpoint: checkpoint,
		logger:     logger,
		tracked:    make(map[common.Address]struct{}),
		seen:       make(map[string]struct{}),
	}
	for _, addr := range cfg.Markets {
		r.tracked[addr] = struct{}{}
	}
	return r, nil
}

// OnEvents registers fn to receive every batch of newly decoded events.
func (r *Runner) OnEvents(fn func([]model.TypedEvent)) {
	r.onEvents = append(r.onEvents, fn)
}

// Tracked returns the market addresses currently followed.
func (r *Runner) Tracked() []common.Address {
	out := make([]common.Address, 0, len(r.tracked))
	for addr := range r.tracked {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Hex()) < strings.ToLower(out[j].Hex()) })
	return out
}

// Run syncs up to ToBlock (or the chain head) and, in follow mode, keeps
// going until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("log source is nil")
	}
	if r.logs == nil && r.events == nil {
		return fmt.Errorf("no storage configured")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Factory == (common.Address{}) && len(r.tracked) == 0 {
		return fmt.Errorf("factory or market address is required")
	}
	if r.cfg.PollInterval <= 0 {
		r.cfg.PollInterval = 15 * time.Second
	}

	chainID, err := r.source.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	from := r.cfg.FromBlock
	cp, ok, err := r.checkpoint.Load(ctx)
	if err != nil {
		return err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}

	for {
		to := r.cfg.ToBlock
		if to == 0 {
			latest, err := r.source.LatestBlockNumber(ctx)
			if err != nil {
				return fmt.Errorf("get latest block: %w", err)
			}
			to = latest
		}

		if from <= to {
			if err := r.syncRange(ctx, chainID.Uint64(), from, to); err != nil {
				return err
			}
			from = to + 1
		} else {
			r.logger.Debug("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		}

		if !r.cfg.Follow || r.cfg.ToBlock != 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

func (r *Runner) syncRange(ctx context.Context, chainID, from, to uint64) error {
	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.seen = make(map[string]struct{})
		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To), zap.Uint64("blocks", blockRange.Len()), zap.Int("markets", len(r.tracked)))

		logs, err := r.filterLogsWithRetry(ctx, blockRange, r.addresses())
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		records, events, err := r.process(ctx, chainID, logs)
		if err != nil {
			return err
		}

		// Markets created inside this batch may already have activity in it.
		if created := r.trackCreated(events); len(created) > 0 {
			r.logger.Info("new markets discovered", zap.Int("count", len(created)))
			more, err := r.filterLogsWithRetry(ctx, blockRange, created)
			if err != nil {
				return fmt.Errorf("filter new market logs: %w", err)
			}
			moreRecords, moreEvents, err := r.process(ctx, chainID, more)
			if err != nil {
				return err
			}
			records = append(records, moreRecords...)
			events = append(events, moreEvents...)
			sortRecords(records)
			sortEvents(events)
		}

		if err := r.store(ctx, records, events); err != nil {
			return err
		}
		if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
			return err
		}

		r.logger.Info("batch complete",
			zap.Int("logs", len(records)),
			zap.Int("events", len(events)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}
	return nil
}

func (r *Runner) process(ctx context.Context, chainID uint64, logs []types.Log) ([]model.LogRecord, []model.TypedEvent, error) {
	ingestedAt := time.Now().UTC()
	records := make([]model.LogRecord, 0, len(logs))
	events := make([]model.TypedEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		record := logRecord(chainID, lg, ingestedAt)
		if _, dup := r.seen[record.Key()]; dup {
			continue
		}
		r.seen[record.Key()] = struct{}{}

		ts, err := r.blockTimestampWithRetry(ctx, lg.BlockNumber)
		if err != nil {
			return nil, nil, fmt.Errorf("block timestamp %d: %w", lg.BlockNumber, err)
		}
		record.Timestamp = ts
		records = append(records, record)

		if !r.decoder.CanDecode(record.Topic0()) {
			continue
		}
		event, err := r.decoder.Decode(record)
		if err != nil {
			r.logger.Warn("decode log failed",
				zap.String("tx_hash", record.TxHash),
				zap.Uint64("log_index", record.LogIndex),
				zap.Error(err),
			)
			continue
		}
		events = append(events, *event)
	}
	return records, events, nil
}

func (r *Runner) trackCreated(events []model.TypedEvent) []common.Address {
	var created []common.Address
	for _, ev := range events {
		data, ok := ev.Decoded.(model.MarketCreatedEventData)
		if !ok || !common.IsHexAddress(data.Market) {
			continue
		}
		addr := common.HexToAddress(data.Market)
		if _, known := r.tracked[addr]; known {
			continue
		}
		r.tracked[addr] = struct{}{}
		created = append(created, addr)
	}
	return created
}

func (r *Runner) store(ctx context.Context, records []model.LogRecord, events []model.TypedEvent) error {
	if r.logs != nil {
		if err := r.logs.PutLogBatch(ctx, records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}
	}
	if r.events != nil {
		if err := r.events.PutEventBatch(ctx, events); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
	}
	if len(events) > 0 {
		for _, fn := range r.onEvents {
			fn(events)
		}
	}
	return nil
}

func (r *Runner) addresses() []common.Address {
	out := make([]common.Address, 0, len(r.tracked)+1)
	if r.cfg.Factory != (common.Address{}) {
		out = append(out, r.cfg.Factory)
	}
	return append(out, r.Tracked()...)
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, blockRange BlockRange, addresses []common.Address) ([]types.Log, error) {
	var logs []types.Log
	err := retry.Do(ctx, r.retryPolicy(), func(ctx context.Context) error {
		var err error
		logs, err = r.source.FilterLogs(ctx, blockRange.From, blockRange.To, addresses, r.decoder.Topic0s())
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := retry.Do(ctx, r.retryPolicy(), func(ctx context.Context) error {
		var err error
		ts, err = r.source.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) retryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: r.cfg.MaxRetries, Backoff: r.cfg.RetryBackoff}
}

// logRecord converts lg without its block timestamp, which the caller fills in.
func logRecord(chainID uint64, lg types.Log, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, len(lg.Topics))
	for i, topic := range lg.Topics {
		topics[i] = topic.Hex()
	}
	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: lg.BlockNumber,
		BlockHash:   lg.BlockHash.Hex(),
		TxHash:      lg.TxHash.Hex(),
		TxIndex:     uint64(lg.TxIndex),
		LogIndex:    uint64(lg.Index),
		Address:     lg.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(lg.Data),
		Removed:     lg.Removed,
		IngestedAt:  ingestedAt.Format(time.RFC3339Nano),
	}
}

func sortRecords(records []model.LogRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].BlockNumber != records[j].BlockNumber {
			return records[i].BlockNumber < records[j].BlockNumber
		}
		return records[i].LogIndex < records[j].LogIndex
	})
}

func sortEvents(events []model.TypedEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})
}
