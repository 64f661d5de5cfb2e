package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	adminCheckLimit  = 5
	adminCheckWindow = time.Minute
)

// ErrRateLimited is returned when an address asks for admin verification too often.
var ErrRateLimited = errors.New("rate limit exceeded, please try again later")

// RateLimiter counts a request for key and reports whether it is allowed.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// OwnerReader reads the factory owner.
type OwnerReader interface {
	Owner(ctx context.Context) (string, error)
}

// AdminVerifier decides whether to show admin controls. The answer is a UI
// hint only; the contracts reject unauthorized admin calls on their own.
type AdminVerifier struct {
	allow   map[string]struct{}
	owner   OwnerReader
	limiter RateLimiter
	logger  *zap.Logger
}

// NewAdminVerifier builds a verifier from an allowlist. owner and limiter may be nil;
// a nil limiter uses an in-process sliding window.
func NewAdminVerifier(addresses []string, owner OwnerReader, limiter RateLimiter, logger *zap.Logger) *AdminVerifier {
	allow := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr != "" {
			allow[addr] = struct{}{}
		}
	}
	if limiter == nil {
		limiter = NewMemoryLimiter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminVerifier{allow: allow, owner: owner, limiter: limiter, logger: logger}
}

// Verify reports whether address is an admin. The address must be
// allowlisted and, when an owner reader is configured, also own the factory.
func (v *AdminVerifier) Verify(ctx context.Context, address string) (bool, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return false, nil
	}

	allowed, err := v.limiter.Allow(ctx, "admin:"+key, adminCheckLimit, adminCheckWindow)
	if err != nil {
		v.logger.Warn("admin rate limiter failed", zap.String("address", address), zap.Error(err))
	} else if !allowed {
		return false, ErrRateLimited
	}

	if _, ok := v.allow[key]; !ok {
		return false, nil
	}
	if v.owner == nil {
		v.logger.Debug("admin verified by allowlist", zap.String("address", address))
		return true, nil
	}

	owner, err := v.owner.Owner(ctx)
	if err != nil {
		return false, fmt.Errorf("read factory owner: %w", err)
	}
	if !strings.EqualFold(owner, key) {
		v.logger.Debug("allowlisted address is not the factory owner", zap.String("address", address), zap.String("owner", owner))
		return false, nil
	}
	return true, nil
}

// MemoryLimiter is a per-process sliding-window limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	now      func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{requests: make(map[string][]time.Time), now: time.Now}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := l.requests[key][:0]
	for _, ts := range l.requests[key] {
		if now.Sub(ts) < window {
			valid = append(valid, ts)
		}
	}
	if len(valid) >= limit {
		l.requests[key] = valid
		return false, nil
	}
	l.requests[key] = append(valid, now)
	return true, nil
}
