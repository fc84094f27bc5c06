package stream

import "encoding/json"

const (
	EventToken = "token"
	EventPing  = "ping"
	EventError = "error"
	EventDone  = "done"
)

// Event is one client-facing frame. Data carries the raw fragment for
// token events, a JSON document for error/done, and nothing for ping.
type Event struct {
	Name string
	Data string
}

// Sink receives session events in emission order. A Send error means
// the client transport is gone.
type Sink interface {
	Send(ev Event) error
}

type errorPayload struct {
	Error    string `json:"error"`
	StreamID string `json:"stream_id"`
}

type donePayload struct {
	StreamID      string  `json:"stream_id"`
	MessageID     *uint64 `json:"message_id,omitempty"`
	AlternativeID *uint64 `json:"alternative_id,omitempty"`
	Error         string  `json:"error,omitempty"`
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
