package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pickupdesk/internal/audit"
	"pickupdesk/internal/config"
	"pickupdesk/internal/queue"
	"pickupdesk/internal/store"
)

// Worker drains the audit queue and writes the trail to Postgres.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "pickupdesk:audit")
	}

	repo := audit.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("audit worker started, waiting for messages...")
	for msg := range messages {
		if msg.Kind != "audit" {
			continue
		}

		var evt audit.Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("drop undecodable audit message: %v", err)
			continue
		}

		stored, err := repo.InsertEvent(ctx, evt)
		if err != nil {
			log.Printf("audit insert failed (%s %s): %v", evt.Action, evt.RegNo, err)
			continue
		}
		log.Printf("audit %s recorded for %q by %q", stored.Action, stored.RegNo, stored.Actor)
	}

	log.Println("audit worker stopped")
}
