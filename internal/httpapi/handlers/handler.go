package handlers

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/bcblevins/storyteller-stream-relay/internal/ai"
	"github.com/bcblevins/storyteller-stream-relay/internal/bots"
	"github.com/bcblevins/storyteller-stream-relay/internal/config"
	"github.com/bcblevins/storyteller-stream-relay/internal/messages"
	"github.com/bcblevins/storyteller-stream-relay/internal/ratelimit"
	"github.com/bcblevins/storyteller-stream-relay/internal/store/rabbitmq"
	"github.com/bcblevins/storyteller-stream-relay/internal/stream"
	"github.com/bcblevins/storyteller-stream-relay/internal/users"
)

type Handler struct {
	DB  *gorm.DB
	Cfg config.Config

	Bots    *bots.Resolver
	MsgSvc  *messages.Service
	Users   *users.Repo
	Limiter ratelimit.Limiter
	Shield  *stream.Shield

	// NewStreamer builds one upstream client per session; swapped out
	// in tests.
	NewStreamer func() ai.Streamer
}

// NewHandler wires the relay's collaborators. rdb and pub are
// optional; without them the in-process limiter/cache run and failed
// writes are only logged.
func NewHandler(db *gorm.DB, cfg config.Config, rdb *redis.Client, pub *rabbitmq.Publisher, baseCtx context.Context) *Handler {
	botRepo := bots.NewRepo(db)

	var cache bots.Cache
	if rdb != nil {
		cache = bots.NewRedisCache(rdb, cfg.BotCacheTTL)
	} else {
		cache = bots.NewMemCache(cfg.BotCacheTTL)
	}

	var limiter ratelimit.Limiter
	if rdb != nil {
		limiter = ratelimit.NewRedisWindow(rdb, cfg.RateLimit, cfg.RateWindow)
	} else {
		limiter = ratelimit.NewFixedWindow(cfg.RateLimit, cfg.RateWindow)
	}

	msgSvc := messages.NewService(messages.NewRepo(db), cfg.TempMessageIDPrefix)

	onExhausted := func(rec stream.Record, err error) {
		if pub == nil {
			log.Printf("persist exhausted stream_id=%s kind=%s err=%v (no replay queue)", rec.StreamID, rec.Kind, err)
			return
		}
		job := rabbitmq.PersistJob{
			Kind:           string(rec.Kind),
			UserID:         rec.UserID,
			ConversationID: rec.ConversationID,
			AlternativeID:  rec.AlternativeID,
			Content:        rec.Content,
			Complete:       rec.Complete,
			StreamID:       rec.StreamID,
		}
		if perr := pub.PublishPersist(context.WithoutCancel(baseCtx), job); perr != nil {
			log.Printf("persist replay publish failed stream_id=%s err=%v (write err=%v)", rec.StreamID, perr, err)
		}
	}

	return &Handler{
		DB:      db,
		Cfg:     cfg,
		Bots:    bots.NewResolver(botRepo, cache),
		MsgSvc:  msgSvc,
		Users:   users.NewRepo(db),
		Limiter: limiter,
		Shield:  stream.NewShield(msgSvc, cfg.PersistAttempts, cfg.PersistRetryDelay, baseCtx, onExhausted),
		NewStreamer: func() ai.Streamer {
			return ai.NewClient()
		},
	}
}
