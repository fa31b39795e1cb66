package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"absencetracker/internal/config"
	"absencetracker/internal/queue"
	"absencetracker/internal/store"
)

// Worker consumes record change events and writes them to the audit log.
func main() {
	cfg := config.Load()
	audit := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatalf("worker needs a shared queue; set QUEUE_BACKEND=redis")
	}
	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable, will keep retrying", cfg.RedisAddr)
	}

	messages, err := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey).Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for changes...")
	for msg := range messages {
		change, err := queue.DecodeChange(msg)
		if err != nil {
			log.Printf("skipping message: %v", err)
			continue
		}
		audit.Info(msg.Type,
			slog.String("_id", change.RemoteID),
			slog.String("id", change.LocalID),
			slog.String("user", change.UserID),
			slog.String("actor", change.Actor),
			slog.Time("at", change.At),
		)
	}

	log.Println("worker stopped")
}
