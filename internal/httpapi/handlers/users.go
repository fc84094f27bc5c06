package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bcblevins/storyteller-stream-relay/internal/auth"
	"github.com/bcblevins/storyteller-stream-relay/internal/common"
	"github.com/bcblevins/storyteller-stream-relay/internal/httpapi/middleware"
	"github.com/bcblevins/storyteller-stream-relay/internal/users"
)

func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

type createUserReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateUser provisions a local dev account. Production identities
// come from externally issued tokens.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "email and password required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50006, "failed to hash password")
		return
	}

	id, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50007, "failed to allocate user id")
		return
	}

	u := &users.User{ID: id, Email: req.Email, PasswordHash: hash}
	if err := h.Users.Create(c.Request.Context(), u); err != nil {
		common.Fail(c, http.StatusBadRequest, 10007, "failed to create user (maybe email already exists)")
		return
	}

	token, err := auth.SignJWT(u.ID, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50008, "failed to sign token")
		return
	}

	common.OK(c, http.StatusCreated, gin.H{"user_id": u.ID, "token": token})
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "email and password required")
		return
	}

	u, err := h.Users.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50009, "login failed")
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
		return
	}

	token, err := auth.SignJWT(u.ID, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50008, "failed to sign token")
		return
	}

	common.OK(c, http.StatusOK, gin.H{"user_id": u.ID, "token": token})
}
