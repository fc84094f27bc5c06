package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bcblevins/storyteller-stream-relay/internal/bots"
	"github.com/bcblevins/storyteller-stream-relay/internal/common"
)

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AuthTest is an authenticated probe: it verifies the token and that
// a bot resolves for the caller.
func (h *Handler) AuthTest(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var explicit *uint64
	if raw := c.Query("bot_id"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10008, "invalid bot_id")
			return
		}
		explicit = &n
	}

	bot, err := h.Bots.Resolve(c.Request.Context(), uid, explicit, nil)
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

	name := bot.Name
	if name == "" {
		name = strconv.FormatUint(bot.ID, 10)
	}
	common.OK(c, http.StatusOK, gin.H{"user_id": uid, "bot": name})
}
