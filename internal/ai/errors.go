package ai

import (
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind classifies terminal stream errors for client reporting.
type ErrorKind string

const (
	KindRateLimited    ErrorKind = "rate_limited"
	KindAuthFailed     ErrorKind = "auth_failed"
	KindConnection     ErrorKind = "connection_error"
	KindNotInitialized ErrorKind = "not_initialized"
	KindUnclassified   ErrorKind = "error"
)

// StreamError is the terminal element an upstream sequence may yield.
type StreamError struct {
	Kind ErrorKind
	Err  error
}

func (e *StreamError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *StreamError) Unwrap() error { return e.Err }

// Classify maps SDK errors onto the relay's error taxonomy.
func Classify(err error) *StreamError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return &StreamError{Kind: KindRateLimited, Err: err}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &StreamError{Kind: KindAuthFailed, Err: err}
		default:
			return &StreamError{Kind: KindConnection, Err: err}
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &StreamError{Kind: KindConnection, Err: err}
	}
	return &StreamError{Kind: KindUnclassified, Err: err}
}
