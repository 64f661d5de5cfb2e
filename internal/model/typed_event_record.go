package model

import (
	"encoding/json"
	"fmt"
)

// TypedEventRecord is a TypedEvent read back from JSONL or Postgres, with the
// payload left undecoded until the event name is known.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// DecodeInto unmarshals the payload into v, e.g. *BetPlacedEventData.
func (r TypedEventRecord) DecodeInto(v interface{}) error {
	if len(r.Decoded) == 0 {
		return fmt.Errorf("%s %s:%d has no payload", r.EventName, r.TxHash, r.LogIndex)
	}
	if err := json.Unmarshal(r.Decoded, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.EventName, err)
	}
	return nil
}
