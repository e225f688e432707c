package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"docentdispatch/internal/auth"
	"docentdispatch/internal/config"
	"docentdispatch/internal/directory"
	internalhttp "docentdispatch/internal/http"
	"docentdispatch/internal/notify"
	"docentdispatch/internal/session"
	"docentdispatch/internal/store/postgres"
	"docentdispatch/internal/tags"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv load error: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	if err := postgres.Migrate(ctx, store); err != nil {
		log.Fatalf("schema migration failed: %v", err)
	}

	var sessions session.Store
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
		sessions = session.NewRedisStore(redisClient)
	} else {
		log.Printf("REDIS_ADDR not set, sessions held in memory")
		sessions = session.NewMemoryStore()
	}

	var mailer notify.Mailer
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		log.Printf("SMTP_HOST not set, reset links logged instead of emailed")
	}
	var sms notify.SMSSender
	if cfg.TwilioSID != "" && cfg.TwilioToken != "" && cfg.TwilioFrom != "" {
		sms = notify.NewTwilioSMS(cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioFrom)
	}
	notifier := notify.NewService(mailer, sms)

	authSvc := auth.NewService(store, notifier, cfg.Domain, cfg.MaxLoginFails, cfg.LockoutWindow, cfg.ResetTokenTTL)
	users := directory.NewService(store)
	tagSvc := tags.NewService(store, notifier)

	if cfg.AdminEmail != "" {
		admin, created, err := users.Bootstrap(ctx, cfg.AdminEmail, cfg.AdminFirstName, cfg.AdminLastName, cfg.AdminPhone)
		if err != nil {
			log.Fatalf("coordinator bootstrap failed: %v", err)
		}
		if created {
			log.Printf("bootstrap coordinator %s created, sending reset link", admin.Email)
			if err := authSvc.RequestPasswordReset(ctx, admin.Email); err != nil {
				log.Printf("bootstrap reset email failed: %v", err)
			}
		}
	}

	server := internalhttp.NewServer(cfg, store, sessions, authSvc, users, tagSvc)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("docentdispatch http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
