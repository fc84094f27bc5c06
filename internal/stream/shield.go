package stream

import (
	"context"
	"log"
	"time"
)

// WriteKind is fixed at session start; a racing change to the request
// flags mid-stream cannot alter which write happens.
type WriteKind string

const (
	WriteCreateMessage     WriteKind = "create_message"
	WriteUpdateAlternative WriteKind = "update_alternative"
)

// Record is the durable write handed to the shield at stream end.
type Record struct {
	Kind           WriteKind
	UserID         string
	ConversationID uint64
	AlternativeID  uint64
	Content        string
	Complete       bool
	StreamID       string
}

// Persister is the storage collaborator the shield writes through.
type Persister interface {
	CreateMessage(ctx context.Context, userID string, conversationID uint64, content string, complete bool, streamID string) (uint64, error)
	UpdateAlternative(ctx context.Context, alternativeID uint64, content string, complete bool) (uint64, error)
}

// Result reports how the shielded write ended. Exactly one of ID,
// Err, or Cancelled is meaningful.
type Result struct {
	ID        uint64
	Err       error
	Cancelled bool
}

// Shield performs the final durable write insulated from the
// cancellation that ends the streaming task. The write runs as a
// detached unit of work on the process-lifetime context and is awaited
// through a channel the caller's cancellation cannot reach.
type Shield struct {
	persister Persister
	attempts  int
	delay     time.Duration

	// base bounds the detached write to the process lifetime, not the
	// request. Nil means context.Background.
	base context.Context

	// onExhausted runs after the final attempt fails, e.g. to hand the
	// record to the replay queue.
	onExhausted func(Record, error)
}

func NewShield(p Persister, attempts int, delay time.Duration, base context.Context, onExhausted func(Record, error)) *Shield {
	if attempts <= 0 {
		attempts = 3
	}
	if base == nil {
		base = context.Background()
	}
	return &Shield{persister: p, attempts: attempts, delay: delay, base: base, onExhausted: onExhausted}
}

func (s *Shield) write(ctx context.Context, rec Record) (uint64, error) {
	if rec.Kind == WriteUpdateAlternative {
		return s.persister.UpdateAlternative(ctx, rec.AlternativeID, rec.Content, rec.Complete)
	}
	return s.persister.CreateMessage(ctx, rec.UserID, rec.ConversationID, rec.Content, rec.Complete, rec.StreamID)
}

// Persist blocks until the write lands, the retry budget is spent, or
// the process is shutting down. It is safe to call with the request
// context already cancelled.
func (s *Shield) Persist(rec Record) Result {
	done := make(chan Result, 1)

	go func() {
		var lastErr error
		for attempt := 1; attempt <= s.attempts; attempt++ {
			if attempt > 1 {
				select {
				case <-s.base.Done():
					done <- Result{Cancelled: true}
					return
				case <-time.After(s.delay):
				}
			}
			id, err := s.write(s.base, rec)
			if err == nil {
				done <- Result{ID: id}
				return
			}
			lastErr = err
			log.Printf("persist attempt=%d/%d stream_id=%s kind=%s err=%v",
				attempt, s.attempts, rec.StreamID, rec.Kind, err)
		}
		if s.onExhausted != nil {
			s.onExhausted(rec, lastErr)
		}
		done <- Result{Err: lastErr}
	}()

	select {
	case res := <-done:
		return res
	case <-s.base.Done():
		return Result{Cancelled: true}
	}
}
