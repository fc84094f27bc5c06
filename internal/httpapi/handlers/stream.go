package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bcblevins/storyteller-stream-relay/internal/ai"
	"github.com/bcblevins/storyteller-stream-relay/internal/bots"
	"github.com/bcblevins/storyteller-stream-relay/internal/common"
	"github.com/bcblevins/storyteller-stream-relay/internal/messages"
	"github.com/bcblevins/storyteller-stream-relay/internal/stream"
	"github.com/bcblevins/storyteller-stream-relay/internal/transform"
)

type streamReq struct {
	BotID          *uint64          `json:"bot_id"`
	ConversationID *uint64          `json:"conversation_id"`
	Messages       []map[string]any `json:"messages"`
	StreamID       string           `json:"stream_id"`
	IsAlternative  bool             `json:"is_alternative"`
	AlternativeID  *uint64          `json:"alternative_id"`
}

// sseSink writes session events as SSE frames. Token payloads are raw
// text and may span lines; each line gets its own data field so the
// frame stays well formed.
type sseSink struct {
	c       *gin.Context
	flusher http.Flusher
}

func (s *sseSink) Send(ev stream.Event) error {
	if s.c.Request.Context().Err() != nil {
		return s.c.Request.Context().Err()
	}
	if _, err := fmt.Fprintf(s.c.Writer, "event: %s\n", ev.Name); err != nil {
		return err
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		if _, err := fmt.Fprintf(s.c.Writer, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(s.c.Writer, "\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Stream relays upstream tokens to the client and always records the
// assembled result, whatever ends the stream.
func (h *Handler) Stream(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req streamReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if len(req.Messages) == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "messages required")
		return
	}
	if req.IsAlternative && req.AlternativeID == nil {
		common.Fail(c, http.StatusBadRequest, 10003, "alternative_id required when is_alternative is set")
		return
	}

	allowed, err := h.Limiter.Allow(c.Request.Context(), uid)
	if err != nil {
		log.Printf("rate limiter unavailable uid=%s err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "rate limiter unavailable")
		return
	}
	if !allowed {
		common.Fail(c, http.StatusTooManyRequests, 42901, "too many streams, slow down")
		return
	}

	// Resolving: any failure here is a request-level error, no stream
	// event is ever sent.
	bot, err := h.Bots.Resolve(c.Request.Context(), uid, req.BotID, req.ConversationID)
	if err != nil {
		switch {
		case errors.Is(err, bots.ErrNotFoundOrUnauthorized):
			common.Fail(c, http.StatusForbidden, 40301, "bot not found or unauthorized")
		case errors.Is(err, bots.ErrNoBotConfigured):
			common.Fail(c, http.StatusForbidden, 40302, "no bot configured for this user")
		default:
			common.Fail(c, http.StatusBadGateway, 50201, "bot lookup failed")
		}
		return
	}

	conversationID := uint64(0)
	if req.ConversationID != nil {
		conversationID = *req.ConversationID
	}

	alternativeID := uint64(0)
	if req.IsAlternative {
		alt, err := h.MsgSvc.GetAlternative(c.Request.Context(), uid, *req.AlternativeID)
		if err != nil {
			if errors.Is(err, messages.ErrNotFound) {
				common.Fail(c, http.StatusNotFound, 40401, "alternative not found")
			} else {
				common.Fail(c, http.StatusBadGateway, 50202, "alternative lookup failed")
			}
			return
		}
		alternativeID = alt.ID
		if conversationID == 0 {
			conversationID = alt.ConversationID
		}
	}

	apiKey := bot.AccessKey
	baseURL := h.Cfg.DefaultBaseURL
	if bot.UseOpenRouter && bot.OpenRouterKey != nil {
		apiKey = *bot.OpenRouterKey
		baseURL = h.Cfg.OpenRouterBaseURL
	}
	if bot.AccessPath != nil && *bot.AccessPath != "" {
		baseURL = *bot.AccessPath
	}

	streamer := h.NewStreamer()
	if err := streamer.Initialize(apiKey, baseURL); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to init upstream client")
		return
	}

	model := bot.EffectiveModel()
	payload := map[string]any{
		"model":    model,
		"messages": toAnySlice(req.Messages),
	}
	payload = transform.Apply(payload, bot.Provider(), model, transform.Config{
		ForceReasoningEnabled:       h.Cfg.ForceReasoningEnabled,
		ForceReasoningEffort:        h.Cfg.ForceReasoningEffort,
		ForceReasoningModelPatterns: h.Cfg.ForceReasoningModelPatterns,
		ForceReasoningOverride:      h.Cfg.ForceReasoningOverride,
		EnableInjectionTag:          h.Cfg.InjectionTagEnabled,
		InjectionTagName:            h.Cfg.InjectionTagName,
	})

	streamID := strings.TrimSpace(req.StreamID)
	if streamID == "" {
		streamID, err = common.NewULID()
		if err != nil {
			common.Fail(c, http.StatusInternalServerError, 50005, "failed to mint stream id")
			return
		}
	}

	aiReq := ai.Request{
		Messages:        payloadMessages(payload),
		Model:           model,
		Temperature:     bot.EffectiveTemperature(),
		MaxTokens:       bot.EffectiveMaxTokens(),
		ReasoningEffort: reasoningEffort(payload),
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, okf := c.Writer.(http.Flusher)
	if !okf {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	ctx := c.Request.Context()
	chunks, upErrs := streamer.StreamCompletion(ctx, aiReq)

	sess := stream.NewSession(stream.Options{
		StreamID:       streamID,
		UserID:         uid,
		ConversationID: conversationID,
		IsAlternative:  req.IsAlternative,
		AlternativeID:  alternativeID,
		Keepalive:      h.Cfg.KeepaliveInterval,
	}, h.Shield)

	res := sess.Run(ctx, chunks, upErrs, &sseSink{c: c, flusher: flusher})
	switch {
	case res.Cancelled:
		log.Printf("stream %s: persist cancelled by shutdown", streamID)
	case res.Err != nil:
		log.Printf("stream %s: persist failed: %v", streamID, res.Err)
	default:
		log.Printf("stream %s: complete, record id=%d", streamID, res.ID)
	}
}

func toAnySlice(msgs []map[string]any) []any {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m)
	}
	return out
}

// payloadMessages flattens transformed payload messages back into the
// adapter's role/content pairs; structured content parts collapse to
// their text parts.
func payloadMessages(payload map[string]any) []ai.Message {
	raw, _ := payload["messages"].([]any)
	out := make([]ai.Message, 0, len(raw))
	for _, rm := range raw {
		m, ok := rm.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		switch content := m["content"].(type) {
		case string:
			out = append(out, ai.Message{Role: role, Content: content})
		case []any:
			var b strings.Builder
			for _, p := range content {
				part, ok := p.(map[string]any)
				if !ok {
					continue
				}
				if t, _ := part["type"].(string); t != "text" {
					continue
				}
				if txt, _ := part["text"].(string); txt != "" {
					if b.Len() > 0 {
						b.WriteString("\n\n")
					}
					b.WriteString(txt)
				}
			}
			out = append(out, ai.Message{Role: role, Content: b.String()})
		default:
			out = append(out, ai.Message{Role: role})
		}
	}
	return out
}

func reasoningEffort(payload map[string]any) string {
	reasoning, ok := payload["reasoning"].(map[string]any)
	if !ok {
		return ""
	}
	if enabled, _ := reasoning["enabled"].(bool); !enabled {
		return ""
	}
	effort, _ := reasoning["effort"].(string)
	return effort
}
