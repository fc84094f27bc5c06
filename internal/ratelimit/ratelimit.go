// Package ratelimit gates how often a user may open a new stream
// session. Fixed-window semantics: every check increments the window
// counter, rejected checks included.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Limiter interface {
	// Allow reports whether this check is admitted.
	Allow(ctx context.Context, userID string) (bool, error)
}

type bucket struct {
	count int
	reset time.Time
}

// FixedWindow is the in-process limiter. Buckets live for the process
// lifetime; per-key updates are atomic under one mutex.
type FixedWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket

	now func() time.Time
}

func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &FixedWindow{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *FixedWindow) Allow(_ context.Context, userID string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{reset: now.Add(l.window)}
		l.buckets[userID] = b
	}

	if now.After(b.reset) {
		b.count = 0
		// reset moves strictly forward, whole windows at a time
		for !b.reset.After(now) {
			b.reset = b.reset.Add(l.window)
		}
	}

	b.count++
	return b.count <= l.limit, nil
}
