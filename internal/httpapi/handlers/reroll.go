package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bcblevins/storyteller-stream-relay/internal/common"
	"github.com/bcblevins/storyteller-stream-relay/internal/messages"
)

type rerollReq struct {
	// durable numeric id or a temporary client-side placeholder
	ParentMessageID json.RawMessage `json:"parent_message_id"`
	ConversationID  uint64          `json:"conversation_id"`
}

// parentIDString accepts both JSON forms: 123 and "temp-<stream_id>".
func parentIDString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatUint(n, 10), true
	}
	return "", false
}

// Reroll creates an empty, still-streaming alternative for an
// assistant message; the client then opens the stream with
// is_alternative=true and the returned id.
func (h *Handler) Reroll(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req rerollReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	parentID, ok := parentIDString(req.ParentMessageID)
	if !ok {
		common.Fail(c, http.StatusBadRequest, 10004, "parent_message_id required")
		return
	}

	alt, err := h.MsgSvc.InitiateReroll(c.Request.Context(), uid, parentID, req.ConversationID)
	if err != nil {
		switch {
		case errors.Is(err, messages.ErrNotRerollable):
			common.Fail(c, http.StatusBadRequest, 10005, "only assistant messages can be rerolled")
		case errors.Is(err, messages.ErrNotFound):
			common.Fail(c, http.StatusNotFound, 40402, "message not found")
		default:
			common.Fail(c, http.StatusBadGateway, 50203, "failed to create alternative")
		}
		return
	}

	common.OK(c, http.StatusOK, gin.H{
		"alternative_message": gin.H{
			"id":                alt.ID,
			"parent_message_id": alt.ParentMessageID,
			"conversation_id":   alt.ConversationID,
			"content":           alt.Content,
			"is_user_author":    false,
			"is_streaming":      alt.IsStreaming,
			"is_complete":       alt.IsComplete,
			"stream_id":         alt.StreamID,
			"is_active":         alt.IsActive,
		},
		"stream_id": alt.StreamID,
	})
}

func (h *Handler) ListAlternatives(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10006, "invalid message id")
		return
	}

	alts, err := h.MsgSvc.ListAlternatives(c.Request.Context(), uid, id)
	if err != nil {
		if errors.Is(err, messages.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "message not found")
			return
		}
		common.Fail(c, http.StatusBadGateway, 50204, "failed to list alternatives")
		return
	}
	common.OK(c, http.StatusOK, gin.H{"alternatives": alts})
}
