package indexer

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"losslessMarket/internal/contracts"
	"losslessMarket/internal/model"
)

type fakeSource struct {
	head    uint64
	logs    []types.Log
	filters int
}

func (f *fakeSource) GetChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(421614), nil
}

func (f *fakeSource) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeSource) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number*2, nil
}

func (f *fakeSource) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	f.filters++
	wanted := make(map[common.Address]bool, len(addresses))
	for _, a := range addresses {
		wanted[a] = true
	}
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= fromBlock && l.BlockNumber <= toBlock && wanted[l.Address] {
			out = append(out, l)
		}
	}
	return out, nil
}

type memoryStore struct {
	logs   []model.LogRecord
	events []model.TypedEvent
}

func (m *memoryStore) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	m.logs = append(m.logs, logs...)
	return nil
}

func (m *memoryStore) PutEventBatch(ctx context.Context, events []model.TypedEvent) error {
	m.events = append(m.events, events...)
	return nil
}

var (
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000fac70")
	marketAddr  = common.HexToAddress("0x0000000000000000000000000000000000001000")
	userAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func createdLog(t *testing.T, block uint64, index uint) types.Log {
	t.Helper()
	factoryABI, err := contracts.FactoryABI()
	if err != nil {
		t.Fatalf("factory abi: %v", err)
	}
	event := factoryABI.Events["MarketCreated"]
	data, err := event.Inputs.NonIndexed().Pack("Will ETH be above $3,500?", big.NewInt(1_800_000_000))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address:     factoryAddr,
		Topics:      []common.Hash{event.ID, common.BytesToHash(marketAddr.Bytes()), common.BytesToHash(userAddr.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		Index:       index,
	}
}

func betLog(t *testing.T, block uint64, index uint, amount int64) types.Log {
	t.Helper()
	marketABI, err := contracts.MarketABI()
	if err != nil {
		t.Fatalf("market abi: %v", err)
	}
	event := marketABI.Events["BetPlaced"]
	data, err := event.Inputs.NonIndexed().Pack(uint8(model.SideYes), big.NewInt(amount))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address:     marketAddr,
		Topics:      []common.Hash{event.ID, common.BytesToHash(userAddr.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block*100) + int64(index))),
		Index:       index,
	}
}

func TestRunnerDiscoversMarketsWithinBatch(t *testing.T) {
	source := &fakeSource{head: 20}
	source.logs = []types.Log{
		createdLog(t, 5, 0),
		betLog(t, 6, 1, 1_000_000),
		betLog(t, 15, 0, 2_000_000),
	}
	store := &memoryStore{}
	cp := NewCheckpointStore(filepath.Join(t.TempDir(), "cp.json"), true)

	runner, err := NewRunner(RunConfig{FromBlock: 1, Factory: factoryAddr, BatchSize: 10}, source, store, store, cp, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	var notified int
	runner.OnEvents(func(evs []model.TypedEvent) { notified += len(evs) })

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(store.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(store.events))
	}
	names := []string{store.events[0].EventName, store.events[1].EventName, store.events[2].EventName}
	if names[0] != "MarketCreated" || names[1] != "BetPlaced" || names[2] != "BetPlaced" {
		t.Fatalf("unexpected event order: %v", names)
	}
	if store.events[1].Timestamp != 1_700_000_012 {
		t.Fatalf("timestamp mismatch: %d", store.events[1].Timestamp)
	}
	if len(store.logs) != 3 || notified != 3 {
		t.Fatalf("expected 3 logs and 3 notified events, got %d and %d", len(store.logs), notified)
	}
	if tracked := runner.Tracked(); len(tracked) != 1 || tracked[0] != marketAddr {
		t.Fatalf("market not tracked: %v", tracked)
	}

	saved, ok, err := cp.Load(context.Background())
	if err != nil || !ok || saved.LastProcessedBlock != 20 {
		t.Fatalf("checkpoint mismatch: %+v %v %v", saved, ok, err)
	}
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	source := &fakeSource{head: 20, logs: []types.Log{betLog(t, 4, 0, 1), betLog(t, 18, 0, 2)}}
	store := &memoryStore{}
	cp := NewCheckpointStore(filepath.Join(t.TempDir(), "cp.json"), true)
	if err := cp.Save(context.Background(), 10); err != nil {
		t.Fatalf("save: %v", err)
	}

	runner, err := NewRunner(RunConfig{FromBlock: 1, Markets: []common.Address{marketAddr}, BatchSize: 100}, source, nil, store, cp, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.events) != 1 || store.events[0].BlockNumber != 18 {
		t.Fatalf("expected only the post-checkpoint bet, got %+v", store.events)
	}
	if source.filters != 1 {
		t.Fatalf("expected a single filter call, got %d", source.filters)
	}
}

func TestRunnerRequiresTargets(t *testing.T) {
	runner, err := NewRunner(RunConfig{BatchSize: 10}, &fakeSource{}, &memoryStore{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	if err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected error without factory or markets")
	}
}

type memoryState map[string]uint64

func (m memoryState) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

func (m memoryState) SaveState(ctx context.Context, name string, value uint64) error {
	m[name] = value
	return nil
}

func TestDBCheckpoint(t *testing.T) {
	state := memoryState{}
	cp := &DBCheckpoint{Backend: state, Name: CheckpointName(421614, factoryAddr)}
	if _, ok, _ := cp.Load(context.Background()); ok {
		t.Fatalf("expected empty checkpoint")
	}
	if err := cp.Save(context.Background(), 99); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := cp.Load(context.Background())
	if err != nil || !ok || got.LastProcessedBlock != 99 {
		t.Fatalf("checkpoint mismatch: %+v", got)
	}
	if _, ok := state["sync:421614:0x00000000000000000000000000000000000fac70"]; !ok {
		t.Fatalf("unexpected state key: %v", state)
	}
}
