// Package notify turns transaction lifecycle events into one-shot notices.
package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"losslessMarket/internal/chain"
	"losslessMarket/internal/model"
)

const (
	StatusSubmitted = "submitted"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"

	DefaultTTL = time.Hour
)

// Subscriber receives every notification that passed deduplication.
type Subscriber func(model.TxNotification)

// Notifier logs and fans out transaction notices, at most once per
// (tx hash, status).
type Notifier struct {
	seen   *Seen
	logger *zap.Logger

	mu   sync.RWMutex
	subs []Subscriber
}

func NewNotifier(ttl time.Duration, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{seen: NewSeen(ttl), logger: logger}
}

// Subscribe registers fn for future notifications.
func (n *Notifier) Subscribe(fn Subscriber) {
	n.mu.Lock()
	n.subs = append(n.subs, fn)
	n.mu.Unlock()
}

// Publish delivers note unless the same hash and status was already sent.
// It reports whether the note was delivered.
func (n *Notifier) Publish(note model.TxNotification) bool {
	note.TxHash = strings.ToLower(note.TxHash)
	if note.Message == "" {
		note.Message = defaultMessage(note.Status)
	}
	if !n.seen.Mark(note.TxHash + "/" + note.Status) {
		return false
	}

	n.logger.Info("tx notification",
		zap.String("tx_hash", note.TxHash),
		zap.String("market", note.Market),
		zap.String("action", note.Action),
		zap.String("status", note.Status),
	)

	n.mu.RLock()
	subs := append([]Subscriber(nil), n.subs...)
	n.mu.RUnlock()
	for _, fn := range subs {
		fn(note)
	}
	return true
}

// Hook adapts the notifier to a signer lifecycle hook.
func (n *Notifier) Hook(action string) chain.TxHook {
	return func(txHash common.Hash, status string) {
		n.Publish(model.TxNotification{TxHash: txHash.Hex(), Action: action, Status: status})
	}
}

// FromEvent builds a confirmed notice for an observed contract event.
func FromEvent(ev model.TypedEvent) model.TxNotification {
	return model.TxNotification{
		TxHash: ev.TxHash,
		Market: ev.Address,
		Action: ev.EventName,
		Status: StatusConfirmed,
	}
}

// RunCleanup expires old hashes every interval until ctx is done.
func (n *Notifier) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.seen.Cleanup()
		}
	}
}

func defaultMessage(status string) string {
	switch status {
	case StatusSubmitted:
		return "Transaction submitted"
	case StatusConfirmed:
		return "Transaction confirmed"
	case StatusFailed:
		return "Transaction failed"
	default:
		return ""
	}
}
