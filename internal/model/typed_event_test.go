package model

import (
	"encoding/json"
	"testing"
)

func TestBetPlacedEventDataJSONStringFields(t *testing.T) {
	payload := BetPlacedEventData{
		User:   "0x1111111111111111111111111111111111111111",
		Side:   SideNo,
		Amount: "123456789012345678901234567890",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, ok := decoded["amount"].(string); !ok {
		t.Fatalf("amount should be string")
	}
	if side, ok := decoded["side"].(float64); !ok || side != 2 {
		t.Fatalf("side should encode as its numeric code, got %v", decoded["side"])
	}
}

func TestMarketResolvedEventDataJSONStringFields(t *testing.T) {
	payload := MarketResolvedEventData{
		WinningSide:    SideYes,
		TotalPrincipal: "5000000000",
		Interest:       "1234567",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, ok := decoded["total_principal"].(string); !ok {
		t.Fatalf("total_principal should be string")
	}
	if _, ok := decoded["interest"].(string); !ok {
		t.Fatalf("interest should be string")
	}
}
