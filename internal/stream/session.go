package stream

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/bcblevins/storyteller-stream-relay/internal/ai"
)

// Options capture session identity at start; they never change while
// the stream runs.
type Options struct {
	StreamID       string
	UserID         string
	ConversationID uint64
	IsAlternative  bool
	AlternativeID  uint64
	Keepalive      time.Duration
}

// Session relays one upstream token sequence to one client sink and
// guarantees exactly one durable write and exactly one done event at
// termination, however the stream ends.
type Session struct {
	opts   Options
	shield *Shield

	buf       strings.Builder
	aborted   bool
	lastEvent time.Time
}

func NewSession(opts Options, shield *Shield) *Session {
	if opts.Keepalive <= 0 {
		opts.Keepalive = 15 * time.Second
	}
	return &Session{opts: opts, shield: shield}
}

func (s *Session) writeKind() WriteKind {
	if s.opts.IsAlternative {
		return WriteUpdateAlternative
	}
	return WriteCreateMessage
}

// Run pumps the upstream sequence into the sink, then finalizes.
// It returns the persistence result for logging; the sink has already
// seen the terminal done event.
func (s *Session) Run(ctx context.Context, chunks <-chan string, upErrs <-chan *ai.StreamError, sink Sink) Result {
	// decided once, before any token moves
	kind := s.writeKind()

	keepalive := time.NewTimer(s.opts.Keepalive)
	defer keepalive.Stop()

	emit := func(ev Event) bool {
		if err := sink.Send(ev); err != nil {
			s.aborted = true
			return false
		}
		s.lastEvent = time.Now()
		if !keepalive.Stop() {
			select {
			case <-keepalive.C:
			default:
			}
		}
		keepalive.Reset(s.opts.Keepalive)
		return true
	}

	var termErr *ai.StreamError

pump:
	for {
		select {
		case <-ctx.Done():
			s.aborted = true
			break pump

		case frag, ok := <-chunks:
			if !ok {
				// natural end; a terminal error may still be buffered
				select {
				case e, more := <-upErrs:
					if more && e != nil {
						termErr = e
					}
				default:
				}
				if termErr != nil {
					emit(Event{Name: EventError, Data: mustJSON(errorPayload{
						Error:    termErr.Error(),
						StreamID: s.opts.StreamID,
					})})
				}
				break pump
			}
			// disconnect check before processing the fragment
			if ctx.Err() != nil {
				s.aborted = true
				break pump
			}
			s.buf.WriteString(frag)
			if !emit(Event{Name: EventToken, Data: frag}) {
				break pump
			}

		case e, ok := <-upErrs:
			if !ok {
				upErrs = nil
				continue
			}
			if e == nil {
				continue
			}
			// fragments produced before the error may still be
			// buffered; they precede it in the upstream sequence
		drain:
			for {
				select {
				case frag, more := <-chunks:
					if !more {
						break drain
					}
					s.buf.WriteString(frag)
					if !emit(Event{Name: EventToken, Data: frag}) {
						break drain
					}
				default:
					break drain
				}
			}
			termErr = e
			if !s.aborted {
				emit(Event{Name: EventError, Data: mustJSON(errorPayload{
					Error:    e.Error(),
					StreamID: s.opts.StreamID,
				})})
			}
			break pump

		case <-keepalive.C:
			// silent upstream; keep the transport open
			if !emit(Event{Name: EventPing, Data: ""}) {
				break pump
			}
		}
	}

	// a cancel can race the upstream closing its channels; the select
	// may then leave the pump through the closed-chunks case
	if ctx.Err() != nil {
		s.aborted = true
	}

	return s.finalize(kind, termErr, sink)
}

// finalize always runs: it persists the accumulated buffer through
// the shield and emits the single terminal done event.
func (s *Session) finalize(kind WriteKind, termErr *ai.StreamError, sink Sink) Result {
	rec := Record{
		Kind:           kind,
		UserID:         s.opts.UserID,
		ConversationID: s.opts.ConversationID,
		AlternativeID:  s.opts.AlternativeID,
		Content:        s.buf.String(),
		Complete:       termErr == nil && !s.aborted,
		StreamID:       s.opts.StreamID,
	}

	res := s.shield.Persist(rec)

	done := donePayload{StreamID: s.opts.StreamID}
	switch {
	case res.Cancelled:
		done.Error = "persist_cancelled"
	case res.Err != nil:
		done.Error = "persist_failed"
	case kind == WriteUpdateAlternative:
		id := res.ID
		done.AlternativeID = &id
	default:
		id := res.ID
		done.MessageID = &id
	}

	// best effort: the transport may already be gone
	if err := sink.Send(Event{Name: EventDone, Data: mustJSON(done)}); err != nil {
		log.Printf("stream %s: done event not delivered: %v", s.opts.StreamID, err)
	}
	return res
}
