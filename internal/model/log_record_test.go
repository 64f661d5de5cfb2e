package model

import (
	"errors"
	"testing"
)

func TestLogRecordHelpers(t *testing.T) {
	rec := LogRecord{
		ChainID:     421614,
		BlockNumber: 100,
		TxHash:      "0xABC",
		LogIndex:    3,
		Address:     "0x1111111111111111111111111111111111111111",
		Topics:      []string{"0xaaa", "0xbbb"},
	}
	if rec.Topic0() != "0xaaa" {
		t.Fatalf("topic0 mismatch: %s", rec.Topic0())
	}
	if rec.Key() != "421614:0xabc:3" {
		t.Fatalf("key mismatch: %s", rec.Key())
	}

	failure := rec.DecodeFailure(errors.New("bad data"))
	if failure.Topic0 != "0xaaa" || failure.Error != "bad data" || failure.BlockNumber != 100 {
		t.Fatalf("unexpected failure record: %+v", failure)
	}

	if (LogRecord{}).Topic0() != "" {
		t.Fatalf("anonymous log should have empty topic0")
	}
}

func TestTypedEventRecordDecodeInto(t *testing.T) {
	rec := TypedEventRecord{EventName: "BetPlaced", Decoded: []byte(`{"user":"0x01","side":1,"amount":"2500000"}`)}
	var bet BetPlacedEventData
	if err := rec.DecodeInto(&bet); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bet.Amount != "2500000" || bet.Side != SideYes {
		t.Fatalf("unexpected payload: %+v", bet)
	}

	if err := (TypedEventRecord{EventName: "Claimed"}).DecodeInto(&bet); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}
