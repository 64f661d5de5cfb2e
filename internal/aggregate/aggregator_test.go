package aggregate

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"testing"

	"losslessMarket/internal/model"
)

type memorySink struct {
	stats []model.MarketWindowStats
}

func (m *memorySink) UpsertWindowStats(ctx context.Context, stats []model.MarketWindowStats) error {
	m.stats = append(m.stats, stats...)
	return nil
}

func record(t *testing.T, market, name string, ts uint64, payload interface{}) model.TypedEventRecord {
	t.Helper()
	decoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return model.TypedEventRecord{ChainID: 421614, Address: market, EventName: name, Timestamp: ts, BlockNumber: ts, Decoded: decoded}
}

func sliceSource(records []model.TypedEventRecord) EventSource {
	return func(ctx context.Context, afterTs uint64, fn func(model.TypedEventRecord) error) error {
		for _, r := range records {
			if err := fn(r); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestAggregatorWindows(t *testing.T) {
	records := []model.TypedEventRecord{
		record(t, "0xA", "BetPlaced", 3_600, model.BetPlacedEventData{Side: model.SideYes, Amount: "3000000"}),
		record(t, "0xA", "BetPlaced", 3_650, model.BetPlacedEventData{Side: model.SideNo, Amount: "1000000"}),
		record(t, "0xB", "MarketCancelled", 3_660, model.MarketCancelledEventData{}),
		record(t, "0xA", "BetPlaced", 7_300, model.BetPlacedEventData{Side: model.SideYes, Amount: "500000"}),
		record(t, "0xA", "Claimed", 7_400, model.ClaimedEventData{Amount: "4100000"}),
	}
	sink := &memorySink{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}

	agg := NewAggregator(Config{WindowSeconds: 3_600, StateStore: state}, sink, nil)
	if err := agg.Run(context.Background(), sliceSource(records)); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.stats) != 2 {
		t.Fatalf("expected 2 windows (cancel-only window dropped), got %d", len(sink.stats))
	}
	sort.Slice(sink.stats, func(i, j int) bool { return sink.stats[i].WindowStart.Before(sink.stats[j].WindowStart) })

	first := sink.stats[0]
	if first.BetCount != 2 || first.YesVolume != "3" || first.NoVolume != "1" || first.YesShare == nil || *first.YesShare != "0.7500" {
		t.Fatalf("first window mismatch: %+v", first)
	}
	if first.WindowStart.Unix() != 3_600 || first.WindowEnd.Unix() != 7_200 {
		t.Fatalf("window bounds mismatch: %v %v", first.WindowStart, first.WindowEnd)
	}

	second := sink.stats[1]
	if second.BetCount != 1 || second.ClaimCount != 1 || second.ClaimedAmount != "4.1" || *second.YesShare != "1.0000" {
		t.Fatalf("second window mismatch: %+v", second)
	}

	last, ok, err := state.Load(context.Background())
	if err != nil || !ok || last != 7_400 {
		t.Fatalf("state mismatch: %d %v %v", last, ok, err)
	}
}

func TestAggregatorSkipsProcessedEvents(t *testing.T) {
	records := []model.TypedEventRecord{
		record(t, "0xA", "BetPlaced", 100, model.BetPlacedEventData{Side: model.SideYes, Amount: "1"}),
		record(t, "0xA", "BetPlaced", 200, model.BetPlacedEventData{Side: model.SideNo, Amount: "2"}),
	}
	sink := &memorySink{}
	agg := NewAggregator(Config{WindowSeconds: 1_000, RecomputeFrom: 150}, sink, nil)
	if err := agg.Run(context.Background(), sliceSource(records)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.stats) != 1 || sink.stats[0].BetCount != 1 || sink.stats[0].NoVolume != "0.000002" {
		t.Fatalf("expected only the later bet, got %+v", sink.stats)
	}
}

func TestAccumulatorRejectsUnknownSide(t *testing.T) {
	r := record(t, "0xA", "BetPlaced", 1, model.BetPlacedEventData{Side: model.SideNone, Amount: "1"})
	acc := NewAccumulator(r, 0, 60)
	if err := acc.AddEvent(r); err == nil {
		t.Fatalf("expected error for a bet without side")
	}
	if !acc.Empty() {
		t.Fatalf("rejected bet must not count")
	}
}

func TestFileStateStoreIgnoresOtherWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	ctx := context.Background()

	hourly := &FileStateStore{Path: path, WindowSeconds: 3600}
	if _, ok, err := hourly.Load(ctx); err != nil || ok {
		t.Fatalf("fresh state: %v %v", ok, err)
	}
	if err := hourly.Save(ctx, 1700000000); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ts, ok, err := hourly.Load(ctx); err != nil || !ok || ts != 1700000000 {
		t.Fatalf("reload: %d %v %v", ts, ok, err)
	}

	daily := &FileStateStore{Path: path, WindowSeconds: 86400}
	if _, ok, err := daily.Load(ctx); err != nil || ok {
		t.Fatalf("state from another window must be ignored: %v %v", ok, err)
	}
}

type memoryState map[string]uint64

func (m memoryState) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	ts, ok := m[name]
	return ts, ok, nil
}

func (m memoryState) SaveState(ctx context.Context, name string, ts uint64) error {
	m[name] = ts
	return nil
}

func TestDBStateStoreNamesRowPerWindow(t *testing.T) {
	backend := memoryState{}
	hourly := NewDBStateStore(backend, 421614, 3600)
	if err := hourly.Save(context.Background(), 99); err != nil {
		t.Fatalf("save: %v", err)
	}
	if backend["aggregator:421614:3600"] != 99 {
		t.Fatalf("unexpected rows: %v", backend)
	}
	daily := NewDBStateStore(backend, 421614, 86400)
	if _, ok, _ := daily.Load(context.Background()); ok {
		t.Fatalf("expected no progress for other window")
	}
}
