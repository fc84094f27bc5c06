// Package ai wraps a chat-completion provider behind a uniform
// streaming contract so the relay core never touches a vendor SDK
// directly.
package ai

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNotInitialized is returned when streaming is attempted before
// Initialize.
var ErrNotInitialized = errors.New("ai: client not initialized")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	Model       string
	Temperature float32
	MaxTokens   int

	// ReasoningEffort is set when the request transforms forced a
	// reasoning block; empty means provider default.
	ReasoningEffort string
}

// Streamer is the upstream contract consumed by stream sessions.
// The produced sequence is lazy and single-pass; a terminal error, if
// any, is the last element.
type Streamer interface {
	Initialize(apiKey, baseURL string) error
	StreamCompletion(ctx context.Context, req Request) (<-chan string, <-chan *StreamError)
}

// Client is the OpenAI-compatible Streamer. One Client serves one
// stream session: credentials come from the resolved bot.
type Client struct {
	c *openai.Client
}

func NewClient() *Client {
	return &Client{}
}

func (p *Client) Initialize(apiKey, baseURL string) error {
	if strings.TrimSpace(apiKey) == "" {
		return errors.New("ai: api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	p.c = openai.NewClientWithConfig(cfg)
	return nil
}

// StreamCompletion returns immediately with two channels; both are
// closed when streaming ends. At most one error is sent, and no
// fragment follows it.
func (p *Client) StreamCompletion(ctx context.Context, req Request) (<-chan string, <-chan *StreamError) {
	chunks := make(chan string, 16)
	errs := make(chan *StreamError, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if p.c == nil {
			errs <- &StreamError{Kind: KindNotInitialized, Err: ErrNotInitialized}
			return
		}

		chatReq := openai.ChatCompletionRequest{
			Model:       req.Model,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Stream:      true,
			Messages: func() []openai.ChatCompletionMessage {
				out := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
				for _, m := range req.Messages {
					out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
				}
				return out
			}(),
		}
		if req.ReasoningEffort != "" {
			chatReq.ReasoningEffort = req.ReasoningEffort
		}

		stream, err := p.c.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			errs <- Classify(err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if ctx.Err() != nil {
					// consumer went away; nobody reads the error
					return
				}
				errs <- Classify(err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				// the consumer may have stopped pumping; never block
				// past its cancellation
				select {
				case chunks <- delta:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return chunks, errs
}
