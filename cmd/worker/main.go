// The worker replays durable writes the relay's persistence shield
// could not land: it consumes persist jobs from the queue and retries
// them against the message store. Repeated failures dead-letter.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bcblevins/storyteller-stream-relay/internal/config"
	"github.com/bcblevins/storyteller-stream-relay/internal/db"
	"github.com/bcblevins/storyteller-stream-relay/internal/messages"
	"github.com/bcblevins/storyteller-stream-relay/internal/store/rabbitmq"
	"github.com/bcblevins/storyteller-stream-relay/internal/stream"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()
	if cfg.RabbitURL == "" {
		log.Fatalf("RABBIT_URL is required for the persist replay worker")
	}

	gdb := db.Connect(cfg.DBDSN)
	svc := messages.NewService(messages.NewRepo(gdb), cfg.TempMessageIDPrefix)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitQueue + ".dlq",
	})
	if err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var job rabbitmq.PersistJob
				if err := json.Unmarshal(d.Body, &job); err != nil || job.StreamID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := replay(ctx, svc, job); err != nil {
					log.Printf("worker=%d replay stream_id=%s cost=%s err=%v", workerID, job.StreamID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed stream_id=%s err=%v", workerID, job.StreamID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func replay(ctx context.Context, svc *messages.Service, job rabbitmq.PersistJob) error {
	if job.Kind == string(stream.WriteUpdateAlternative) {
		_, err := svc.UpdateAlternative(ctx, job.AlternativeID, job.Content, job.Complete)
		return err
	}
	// A replayed create may race an earlier write that actually landed;
	// the stream-id lookup keeps the write idempotent.
	if existing, err := svc.FindByStreamID(ctx, job.UserID, job.StreamID); err == nil && existing != nil {
		log.Printf("replay stream_id=%s already persisted as message %d", job.StreamID, existing.ID)
		return nil
	}
	_, err := svc.CreateMessage(ctx, job.UserID, job.ConversationID, job.Content, job.Complete, job.StreamID)
	return err
}
