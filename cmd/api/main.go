package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"absencetracker/internal/auth"
	"absencetracker/internal/authority"
	"absencetracker/internal/config"
	"absencetracker/internal/httpmiddleware"
	"absencetracker/internal/queue"
	"absencetracker/internal/store"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	var (
		repo     authority.Store
		dbHealth = func(context.Context) bool { return true }
	)
	if cfg.DatabaseURL == "memory" {
		log.Println("using in-memory storage; data is lost on exit")
		repo = authority.NewMemoryStore()
	} else {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if db == nil {
			return err
		}
		defer db.Close()
		if err != nil {
			log.Printf("warning: db not reachable: %v", err)
		} else if err := authority.Migrate(ctx, db.Client); err != nil {
			return err
		}
		repo = authority.NewRepository(db.Client)
		dbHealth = db.Healthy
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(64)
		if err := auditInProcess(ctx, mem); err != nil {
			return err
		}
		q = mem
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	svc := authority.NewService(
		repo,
		authority.Tokens{Issuer: cfg.JWTIssuer, SigningKey: cfg.JWTSigningKey, TTL: cfg.AccessTTL},
		authority.WithQueue(q),
		authority.WithRegisterer(prometheus.DefaultRegisterer),
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).KeyBy(bearerSubject(cfg)).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := dbHealth(c.Request.Context())
		redisHealthy := cfg.QueueBackend == "memory" || redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	authority.Routes(r, svc, cfg.JWTSigningKey, cfg.JWTIssuer)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// auditInProcess logs change events when no worker shares the queue.
func auditInProcess(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	go func() {
		for msg := range messages {
			change, err := queue.DecodeChange(msg)
			if err != nil {
				continue
			}
			slog.Info(msg.Type, slog.String("_id", change.RemoteID), slog.String("actor", change.Actor))
		}
	}()
	return nil
}

// bearerSubject buckets authenticated callers by user instead of by IP.
func bearerSubject(cfg config.App) func(*gin.Context) string {
	return func(c *gin.Context) string {
		authz := c.GetHeader("Authorization")
		if len(authz) <= len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "Bearer ") {
			return ""
		}
		claims, err := auth.Parse(strings.TrimSpace(authz[len("Bearer "):]), cfg.JWTSigningKey, cfg.JWTIssuer)
		if err != nil {
			return ""
		}
		return "user:" + claims.UserID
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
