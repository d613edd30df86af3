package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/dukerupert/famlingo/internal/account"
	"github.com/dukerupert/famlingo/internal/backend"
	"github.com/dukerupert/famlingo/internal/catalog"
	"github.com/dukerupert/famlingo/internal/database"
	"github.com/dukerupert/famlingo/internal/handler"
	"github.com/dukerupert/famlingo/internal/logging"
	"github.com/dukerupert/famlingo/internal/remote"
	"github.com/dukerupert/famlingo/internal/review"
	"github.com/dukerupert/famlingo/internal/scheduler"
	"github.com/dukerupert/famlingo/internal/secret"
	"github.com/dukerupert/famlingo/internal/server"
	"github.com/dukerupert/famlingo/internal/store"
	"github.com/dukerupert/famlingo/internal/syncer"
	"github.com/dukerupert/famlingo/internal/tutor"
	"github.com/dukerupert/famlingo/internal/websocket"
)

var version = "dev"

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func remoteFactory(kind string) (remote.Factory, error) {
	switch kind {
	case "", "github":
		return remote.GitHubFactory(os.Getenv("FAMLINGO_GITHUB_URL")), nil
	case "s3":
		return remote.S3Factory(remote.S3Config{
			Endpoint:  os.Getenv("FAMLINGO_S3_ENDPOINT"),
			Bucket:    os.Getenv("FAMLINGO_S3_BUCKET"),
			Region:    os.Getenv("FAMLINGO_S3_REGION"),
			AccessKey: os.Getenv("FAMLINGO_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("FAMLINGO_S3_SECRET_KEY"),
			Key:       os.Getenv("FAMLINGO_S3_KEY"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown FAMLINGO_REMOTE %q", kind)
	}
}

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	logger := logging.Setup(logging.Config{
		Level: os.Getenv("FAMLINGO_LOG_LEVEL"),
		File:  os.Getenv("FAMLINGO_LOG_FILE"),
	})

	if err := run(logger); err != nil {
		logger.Error("famlingo exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) (err error) {
	port := env("FAMLINGO_PORT", "8090")

	db, err := database.Open(env("FAMLINGO_DB_PATH", "famlingo.db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	sealer := secret.New(os.Getenv("FAMLINGO_SECRET"))
	if !sealer.Enabled() {
		logger.Warn("FAMLINGO_SECRET not set, credentials stored unsealed")
	}

	state := store.NewStateStore(db, sealer)
	family := store.NewFamilyStore(state, logger)
	phrases := store.NewPhraseStore(db)
	queue := store.NewQueueStore(db)

	apiURL := env("FAMLINGO_API_URL", "http://localhost:3001")
	if saved, err := state.Get(store.KeyAPIURL); err == nil && saved != "" {
		apiURL = saved
	}
	client := backend.NewClient(backend.Config{BaseURL: apiURL}, state)
	accounts := account.NewService(client, state, family, logger)
	client.OnUnauthorized(accounts.Invalidate)

	remotes, err := remoteFactory(os.Getenv("FAMLINGO_REMOTE"))
	if err != nil {
		return err
	}

	hub := websocket.NewHub(logger, websocket.EntitySync)
	orchestrator := syncer.New(syncer.Config{}, syncer.Deps{
		State:   state,
		Family:  family,
		Phrases: phrases,
		Queue:   queue,
		Backend: client,
		Remotes: remotes,
		Logger:  logger,
	}, func(s syncer.Status) {
		hub.Broadcast(websocket.NewEvent(websocket.EntitySync, "status", "", s))
	})

	library := catalog.NewLibrary(catalog.Default(), phrases)
	sm2 := review.NewSM2(review.Config{})
	tutorClient := tutor.NewClient(tutor.Config{BaseURL: os.Getenv("FAMLINGO_DEEPSEEK_URL")}, func() (string, error) {
		return state.Get(store.KeyDeepSeekAPIKey)
	}, logger)

	srv := server.New(server.Handlers{
		Family:  handler.NewFamilyHandler(family, client, orchestrator, sm2, hub, logger),
		Phrase:  handler.NewPhraseHandler(orchestrator, library, family, sm2, hub, logger),
		Sync:    handler.NewSyncHandler(orchestrator, state, hub, logger),
		Account: handler.NewAccountHandler(accounts, client, state, hub, logger),
		Tutor:   handler.NewTutorHandler(tutorClient, state, logger),
	}, hub, version, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if _, err := orchestrator.InitializeDevice(initCtx); err != nil {
		logger.Warn("device initialization failed", "error", err)
	}
	cancel()

	sched := scheduler.New(scheduler.Config{
		SyncInterval:  envDuration("FAMLINGO_SYNC_INTERVAL", 15*time.Minute),
		DrainInterval: envDuration("FAMLINGO_DRAIN_INTERVAL", 2*time.Minute),
	}, orchestrator, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("famlingo running", "addr", "http://localhost:"+port, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return httpServer.Shutdown(shutdownCtx)
}
