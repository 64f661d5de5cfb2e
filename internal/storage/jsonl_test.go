package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"losslessMarket/internal/model"
)

func TestJsonlEventsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	s := NewJsonlStorage(path)

	events := []model.TypedEvent{
		{ChainID: 421614, BlockNumber: 10, TxHash: "0x01", EventName: "BetPlaced", Timestamp: 100,
			Decoded: model.BetPlacedEventData{User: "0xabc", Side: model.SideYes, Amount: "5000000"}},
		{ChainID: 421614, BlockNumber: 11, TxHash: "0x02", EventName: "MarketCancelled", Timestamp: 110,
			Decoded: model.MarketCancelledEventData{}},
	}
	if err := s.PutEventBatch(context.Background(), events[:1]); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutEventBatch(context.Background(), events[1:]); err != nil {
		t.Fatalf("put: %v", err)
	}

	var names []string
	err := ScanEvents(path, func(r model.TypedEventRecord) error {
		names = append(names, r.EventName)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(names) != 2 || names[0] != "BetPlaced" || names[1] != "MarketCancelled" {
		t.Fatalf("unexpected events: %v", names)
	}
}

func TestScanEventsSkipsBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	data := "{\"event_name\":\"Claimed\"}\nnot json\n\n{\"event_name\":\"BetPlaced\"}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var count, bad int
	err := ScanEvents(path, func(model.TypedEventRecord) error { count++; return nil }, func(error) { bad++ })
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 2 || bad != 1 {
		t.Fatalf("expected 2 events and 1 bad line, got %d and %d", count, bad)
	}

	stop := errors.New("stop")
	if err := ScanEvents(path, func(model.TypedEventRecord) error { return stop }, nil); !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestJsonlResetAndLineNumbers(t *testing.T) {
	s := NewJsonlStorage(filepath.Join(t.TempDir(), "errors.jsonl"))
	if err := s.Append(map[string]int{"line": 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := s.Append(map[string]int{"line": 2}, map[string]int{"line": 3}); err != nil {
		t.Fatalf("append: %v", err)
	}

	var lines []int
	err := ScanLines(s.Path(), func(lineNo int, line []byte) error {
		lines = append(lines, lineNo)
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(lines) != 2 || lines[0] != 1 || lines[1] != 2 {
		t.Fatalf("unexpected line numbers: %v", lines)
	}
}
