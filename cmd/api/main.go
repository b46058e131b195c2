package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cycore-edu/cycore/backend/internal/config"
	"github.com/cycore-edu/cycore/backend/internal/handler"
	"github.com/cycore-edu/cycore/backend/internal/identity"
	"github.com/cycore-edu/cycore/backend/internal/logger"
	"github.com/cycore-edu/cycore/backend/internal/service/ai"
	"github.com/cycore-edu/cycore/backend/internal/service/chat"
	"github.com/cycore-edu/cycore/backend/internal/service/title"
	"github.com/cycore-edu/cycore/backend/internal/service/tutor"
	"github.com/cycore-edu/cycore/backend/internal/store"
	"github.com/cycore-edu/cycore/backend/internal/trigger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLog, err := logger.New(cfg.Log.Mode)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer appLog.Sync()

	if envErr != nil {
		appLog.Info("no .env file loaded, using process environment", "error", envErr)
	}

	repo, err := openStore(ctx, cfg.Store, appLog)
	if err != nil {
		appLog.Fatal("failed to open conversation store", "driver", cfg.Store.Driver, "error", err)
	}
	if repo != nil {
		defer repo.Close()
		appLog.Info("conversation store ready", "driver", cfg.Store.Driver)
	} else {
		appLog.Info("persistence disabled, conversations live in memory only")
	}

	gen, err := ai.New(ctx, cfg.AI, appLog)
	switch {
	case errors.Is(err, ai.ErrBackendUnavailable):
		appLog.Warn("no generation backend configured, tutor replies will report an error")
		gen = nil
	case err != nil:
		appLog.Warn("failed to initialize generation backend", "error", err)
		gen = nil
	}

	chatSvc := chat.NewService(repo, appLog)
	titleSvc := title.NewService(gen, appLog)
	tutorSvc := tutor.NewService(chatSvc, gen, titleSvc, appLog,
		tutor.WithStreaming(cfg.AI.StreamResponse),
		tutor.WithCoin(trigger.CoinFromSeed(cfg.Trigger.Seed)),
	)
	if cfg.Trigger.Seed != nil {
		appLog.Info("trigger coin seeded", "seed", *cfg.Trigger.Seed)
	}

	if cfg.Auth.JWTSecret == "" {
		appLog.Warn("JWT_SECRET not set, every caller is treated as a guest")
	}
	auth := identity.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.SecureCookie, appLog)

	router := handler.NewRouter(handler.Deps{
		Chat:           chatSvc,
		Tutor:          tutorSvc,
		Auth:           auth,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         healthCheck(repo),
		Log:            appLog,
	})

	startServer(ctx, cfg.Server, router, appLog)
}

// openStore returns nil when persistence is disabled.
func openStore(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (store.Repository, error) {
	if cfg.Driver == config.DriverNone {
		return nil, nil
	}

	cipher, err := store.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		return store.NewSQLite(cfg.SQLitePath, cipher, log)
	case config.DriverRedis:
		return store.NewRedis(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cipher, log)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func healthCheck(repo store.Repository) func(*http.Request) error {
	if repo == nil {
		return nil
	}
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		return repo.Ping(ctx)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *logger.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("CyCore backend listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatal("server error", "error", err)
	}
	log.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
