package notify

import (
	"sync"
	"time"
)

// Seen remembers keys for a TTL so each one is reported once. It is safe for
// concurrent use.
type Seen struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewSeen creates a set that forgets a key ttl after it was first recorded.
// A non-positive ttl keeps keys forever.
func NewSeen(ttl time.Duration) *Seen {
	return &Seen{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// Mark records key and reports whether it was new.
func (s *Seen) Mark(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if at, ok := s.seen[key]; ok && (s.ttl <= 0 || now.Sub(at) < s.ttl) {
		return false
	}
	s.seen[key] = now
	return true
}

// Len is the number of remembered keys.
func (s *Seen) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Cleanup drops expired keys.
func (s *Seen) Cleanup() {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, at := range s.seen {
		if now.Sub(at) >= s.ttl {
			delete(s.seen, key)
		}
	}
}
