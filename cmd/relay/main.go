package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bcblevins/storyteller-stream-relay/internal/bots"
	"github.com/bcblevins/storyteller-stream-relay/internal/config"
	"github.com/bcblevins/storyteller-stream-relay/internal/db"
	"github.com/bcblevins/storyteller-stream-relay/internal/httpapi"
	"github.com/bcblevins/storyteller-stream-relay/internal/httpapi/handlers"
	"github.com/bcblevins/storyteller-stream-relay/internal/messages"
	"github.com/bcblevins/storyteller-stream-relay/internal/store/rabbitmq"
	"github.com/bcblevins/storyteller-stream-relay/internal/users"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(
		&users.User{},
		&bots.BotConfig{},
		&messages.Conversation{},
		&messages.Message{},
		&messages.MessageAlternative{},
	); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	var pub *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		var err error
		pub, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatalf("rabbit publisher: %v", err)
		}
		defer pub.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := handlers.NewHandler(gdb, cfg, rdb, pub, ctx)
	r := httpapi.NewRouter(h)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Printf("relay listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("relay shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
