package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"awards/bot/internal/app"
	"awards/bot/internal/config"
	"awards/bot/internal/search"
	"awards/bot/internal/session"
	"awards/bot/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	var remote store.Remote
	switch cfg.StoreBackend {
	case "github":
		gh, err := store.NewGitHub(cfg.GitHubRepo, cfg.GitHubToken, cfg.DataPath, cfg.StoreTimeout)
		if err != nil {
			log.Fatalf("github store: %v", err)
		}
		remote = gh
	case "git":
		remote = store.NewGit(cfg.GitDir)
	case "postgres":
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("schema setup failed: %v", err)
		}
		remote = pg
	default:
		log.Fatalf("unknown store backend %q", cfg.StoreBackend)
	}
	store.RegisterMetrics()
	documentStore := store.New(remote)

	var sessions session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for cursor sessions")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		log.Printf("Using in-memory cursor sessions")
		sessions = session.NewMemory()
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.New(meiliClient)
	defer searchService.Close()

	service := app.New(cfg, documentStore, sessions, app.LogMessenger{}, searchService)
	if err := service.Ping(ctx); err != nil {
		log.Printf("WARNING: document store unreachable at startup: %v", err)
	}

	httpServer := app.NewHTTPServer(service)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("awards bot listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
