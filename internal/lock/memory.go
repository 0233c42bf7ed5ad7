package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker is a single-process Locker with the same semantics as
// the Redis implementation.  It exists so that workers can be exercised
// in tests without a lock service; expiry is evaluated lazily on
// access, mirroring how a TTL behaves from a client's point of view.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	clock func() time.Time
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLocker returns an empty in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryEntry), clock: time.Now}
}

// SetClock overrides the time source, letting tests expire locks
// without sleeping.
func (l *MemoryLocker) SetClock(clock func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

// Acquire takes the lock unless an unexpired entry exists for the key.
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (*Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expiresAt) {
		return nil, ErrNotAcquired
	}
	token := uuid.NewString()
	l.held[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return &Handle{Key: key, Token: token}, nil
}

// Release deletes the entry only when the token still matches, exactly
// like the Redis compare-and-delete script.
func (l *MemoryLocker) Release(_ context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.held[h.Key]; ok && e.token == h.Token {
		delete(l.held, h.Key)
	}
	return nil
}
