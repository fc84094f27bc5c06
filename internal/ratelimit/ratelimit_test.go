package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFixedWindow_RejectsExactlyAboveLimit(t *testing.T) {
	l := NewFixedWindow(5, time.Minute)

	for i := 1; i <= 5; i++ {
		ok, err := l.Allow(context.Background(), "u1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("check %d rejected inside limit", i)
		}
	}
	ok, err := l.Allow(context.Background(), "u1")
	if err != nil {
		t.Fatalf("allow 6: %v", err)
	}
	if ok {
		t.Fatalf("check 6 admitted above limit")
	}
}

func TestFixedWindow_ResetsAfterWindowElapses(t *testing.T) {
	now := time.Now()
	l := NewFixedWindow(2, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, _ = l.Allow(context.Background(), "u1")
	}
	if ok, _ := l.Allow(context.Background(), "u1"); ok {
		t.Fatalf("expected rejection before window elapsed")
	}

	// strictly after the window
	now = now.Add(time.Minute + time.Second)
	if ok, _ := l.Allow(context.Background(), "u1"); !ok {
		t.Fatalf("expected admission after window reset")
	}
}

// Rejected checks still count against the window: limit+1 rejected
// checks keep the user rejected until the reset.
func TestFixedWindow_RejectionsConsumeWindow(t *testing.T) {
	now := time.Now()
	l := NewFixedWindow(1, time.Minute)
	l.now = func() time.Time { return now }

	if ok, _ := l.Allow(context.Background(), "u1"); !ok {
		t.Fatalf("first check rejected")
	}
	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow(context.Background(), "u1"); ok {
			t.Fatalf("check above limit admitted")
		}
	}
}

func TestFixedWindow_UsersAreIndependent(t *testing.T) {
	l := NewFixedWindow(1, time.Minute)

	if ok, _ := l.Allow(context.Background(), "a"); !ok {
		t.Fatalf("user a rejected")
	}
	if ok, _ := l.Allow(context.Background(), "b"); !ok {
		t.Fatalf("user b rejected")
	}
}

func TestFixedWindow_ConcurrentChecksKeepCountExact(t *testing.T) {
	const n = 100
	l := NewFixedWindow(n, time.Minute)

	var wg sync.WaitGroup
	admitted := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := l.Allow(context.Background(), "u1")
			admitted <- ok
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	if count != n {
		t.Fatalf("expected all %d concurrent checks admitted, got %d", n, count)
	}
	// the very next check crosses the limit
	if ok, _ := l.Allow(context.Background(), "u1"); ok {
		t.Fatalf("check %d admitted above limit", n+1)
	}
}
