package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"losslessMarket/internal/model"
)

// Store provides Postgres persistence for markets, events and window stats.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertMarkets inserts or refreshes market snapshots.
func (s *Store) UpsertMarkets(ctx context.Context, chainID uint64, markets []model.Market) error {
	if len(markets) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(`
			INSERT INTO markets (
				chain_id, market_address, factory, creator, question, symbol, price_feed_id,
				target_price, resolve_date, state, winning_side,
				total_yes, total_no, total_principal, resolved_interest, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now(),now())
			ON CONFLICT (chain_id, market_address)
			DO UPDATE SET
				state = EXCLUDED.state,
				winning_side = EXCLUDED.winning_side,
				symbol = EXCLUDED.symbol,
				total_yes = EXCLUDED.total_yes,
				total_no = EXCLUDED.total_no,
				total_principal = EXCLUDED.total_principal,
				resolved_interest = EXCLUDED.resolved_interest,
				updated_at = now()
		`,
			int64(chainID),
			strings.ToLower(m.Address),
			m.Factory,
			m.Creator,
			m.Question,
			m.Symbol,
			m.PriceFeedID,
			numeric(m.TargetPrice),
			int64(m.ResolveDate),
			int16(m.State),
			int16(m.WinningSide),
			numeric(m.TotalYes),
			numeric(m.TotalNo),
			numeric(m.TotalPrincipal),
			numeric(m.ResolvedInterest),
		)
	}
	return s.execBatch(ctx, batch, len(markets))
}

// PutEventBatch stores decoded events. Events already stored are ignored.
func (s *Store) PutEventBatch(ctx context.Context, events []model.TypedEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		rec, err := ev.Record()
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO market_events (
				chain_id, block_number, block_hash, tx_hash, log_index, address, event_name, block_ts, decoded
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
		`,
			int64(rec.ChainID),
			int64(rec.BlockNumber),
			rec.BlockHash,
			strings.ToLower(rec.TxHash),
			int64(rec.LogIndex),
			strings.ToLower(rec.Address),
			rec.EventName,
			int64(rec.Timestamp),
			[]byte(rec.Decoded),
		)
	}
	return s.execBatch(ctx, batch, len(events))
}

// StreamEvents calls fn for every stored event after afterTs, oldest first.
func (s *Store) StreamEvents(ctx context.Context, chainID uint64, afterTs uint64, fn func(model.TypedEventRecord) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, block_number, block_hash, tx_hash, log_index, address, event_name, block_ts, decoded
		FROM market_events
		WHERE chain_id = $1 AND block_ts > $2
		ORDER BY block_ts, block_number, log_index
	`, int64(chainID), int64(afterTs))
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec                        model.TypedEventRecord
			chain, block, logIndex, ts int64
			decoded                    []byte
		)
		if err := rows.Scan(&chain, &block, &rec.BlockHash, &rec.TxHash, &logIndex, &rec.Address, &rec.EventName, &ts, &decoded); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		rec.ChainID = uint64(chain)
		rec.BlockNumber = uint64(block)
		rec.LogIndex = uint64(logIndex)
		rec.Timestamp = uint64(ts)
		rec.Decoded = decoded
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// UpsertWindowStats inserts or updates per-market window stats.
func (s *Store) UpsertWindowStats(ctx context.Context, stats []model.MarketWindowStats) error {
	if len(stats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range stats {
		batch.Queue(`
			INSERT INTO market_window_stats (
				chain_id, market_address, window_size_seconds, window_start_ts, window_end_ts,
				bet_count, yes_volume, no_volume, claim_count, claimed_amount, yes_share, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
			ON CONFLICT (chain_id, market_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				bet_count = EXCLUDED.bet_count,
				yes_volume = EXCLUDED.yes_volume,
				no_volume = EXCLUDED.no_volume,
				claim_count = EXCLUDED.claim_count,
				claimed_amount = EXCLUDED.claimed_amount,
				yes_share = EXCLUDED.yes_share,
				updated_at = now()
		`,
			int64(m.ChainID),
			strings.ToLower(m.MarketAddress),
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.BetCount),
			m.YesVolume,
			m.NoVolume,
			int64(m.ClaimCount),
			m.ClaimedAmount,
			m.YesShare,
		)
	}
	return s.execBatch(ctx, batch, len(stats))
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

func (s *Store) execBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func numeric(value string) string {
	if strings.TrimSpace(value) == "" {
		return "0"
	}
	return value
}
