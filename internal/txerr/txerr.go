// Package txerr turns contract-call and transport failures into the short
// inline messages shown next to an action.
package txerr

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrUserRejected marks an action the user declined to sign.
var ErrUserRejected = errors.New("user rejected the request")

const userRejectedCode = 4001

// Kind classifies a failure.
type Kind string

const (
	KindNone         Kind = ""
	KindRejected     Kind = "rejected"
	KindInsufficient Kind = "insufficient_funds"
	KindRevert       Kind = "revert"
	KindNetwork      Kind = "network"
	KindOther        Kind = "other"
)

// Classify inspects err and its wrapped chain.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrUserRejected) {
		return KindRejected
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return KindRejected
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "user rejected"), strings.Contains(text, "user denied"):
		return KindRejected
	case strings.Contains(text, "insufficient funds"),
		strings.Contains(text, "insufficient balance"),
		strings.Contains(text, "transfer amount exceeds balance"):
		return KindInsufficient
	case strings.Contains(text, "execution reverted"), strings.Contains(text, "transaction reverted"):
		return KindRevert
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(text, "connection refused") || strings.Contains(text, "no such host") {
		return KindNetwork
	}
	return KindOther
}

// Message returns the inline text for err, or "" when err is nil.
func Message(err error) string {
	switch Classify(err) {
	case KindNone:
		return ""
	case KindRejected:
		return "Transaction was rejected in your wallet"
	case KindInsufficient:
		return "Insufficient balance for this transaction"
	case KindRevert:
		if reason := RevertReason(err); reason != "" {
			return "Transaction failed: " + reason
		}
		return "Transaction failed"
	case KindNetwork:
		return "Network error, please check your connection and try again"
	default:
		return err.Error()
	}
}

// RevertReason extracts the text after "execution reverted:" if present.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	idx := strings.Index(strings.ToLower(text), "execution reverted:")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(text[idx+len("execution reverted:"):])
}
