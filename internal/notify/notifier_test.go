package notify

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"losslessMarket/internal/model"
)

func TestNotifierOncePerHashAndStatus(t *testing.T) {
	n := NewNotifier(time.Hour, nil)
	var got []model.TxNotification
	n.Subscribe(func(note model.TxNotification) { got = append(got, note) })

	hook := n.Hook("bet")
	hash := common.HexToHash("0xabc")
	hook(hash, StatusSubmitted)
	hook(hash, StatusSubmitted)
	hook(hash, StatusConfirmed)

	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Message != "Transaction submitted" || got[1].Message != "Transaction confirmed" {
		t.Fatalf("unexpected messages: %+v", got)
	}
	if got[0].Action != "bet" || got[0].TxHash != hash.Hex() {
		t.Fatalf("unexpected notification: %+v", got[0])
	}

	// An observed event for an already confirmed transaction is not repeated.
	ev := model.TypedEvent{TxHash: hash.Hex(), Address: "0x1", EventName: "BetPlaced"}
	if n.Publish(FromEvent(ev)) {
		t.Fatalf("event for a confirmed hash should be deduplicated")
	}
}

func TestSeenExpires(t *testing.T) {
	s := NewSeen(time.Minute)
	now := time.Unix(1_000, 0)
	s.now = func() time.Time { return now }

	if !s.Mark("a") || s.Mark("a") {
		t.Fatalf("second mark should be a duplicate")
	}
	now = now.Add(2 * time.Minute)
	s.Cleanup()
	if s.Len() != 0 {
		t.Fatalf("expected expired key to be removed")
	}
	if !s.Mark("a") {
		t.Fatalf("expired key should be new again")
	}
}

func TestSeenWithoutTTLKeepsKeys(t *testing.T) {
	s := NewSeen(0)
	s.Mark("a")
	s.Cleanup()
	if s.Mark("a") {
		t.Fatalf("key should be remembered forever")
	}
}
