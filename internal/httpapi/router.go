package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bcblevins/storyteller-stream-relay/internal/common"
	"github.com/bcblevins/storyteller-stream-relay/internal/httpapi/handlers"
	"github.com/bcblevins/storyteller-stream-relay/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     h.Cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/healthz", h.Health)

	// dev identity endpoints
	r.POST("/v1/users", h.CreateUser)
	r.POST("/v1/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(h.Cfg.JWTSecret))
	authGroup.GET("/v1/auth/test", h.AuthTest)
	authGroup.POST("/v1/stream", h.Stream)
	authGroup.POST("/v1/messages/reroll", h.Reroll)
	authGroup.GET("/v1/messages/:id/alternatives", h.ListAlternatives)

	return r
}
