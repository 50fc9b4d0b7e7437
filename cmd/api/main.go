package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskhub.org/internal/auth"
	"taskhub.org/internal/config"
	"taskhub.org/internal/httpapi"
	"taskhub.org/internal/obs"
	"taskhub.org/internal/store/pg"
	"taskhub.org/internal/stream"
	"taskhub.org/internal/workspace"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	tokens, err := auth.NewTokens(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthAudience, cfg.AccessTTL())
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	// Postgres when a DSN is set, in-memory otherwise.
	var (
		db        *sql.DB
		userStore auth.Store = auth.NewMemoryStore()
		ws        workspace.Service
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = pgStore.DB()
		userStore = auth.NewPGStore(db)
		ws = pgStore
	} else {
		ws = workspace.NewInMemory()
	}

	authSvc, err := auth.NewService(userStore, tokens, cfg.RefreshTTL())
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, authSvc, ws, stream.New())
	api.SetRateLimit(cfg.RateBurst, cfg.RatePerSec)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting taskhub-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
