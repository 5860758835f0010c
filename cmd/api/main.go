package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cipherstudio/sandbox-backend/config"
	"github.com/cipherstudio/sandbox-backend/internal/api/http/middleware"
	"github.com/cipherstudio/sandbox-backend/internal/api/http/routes"
	"github.com/cipherstudio/sandbox-backend/internal/auth"
	authrepo "github.com/cipherstudio/sandbox-backend/internal/auth/repository"
	authsvc "github.com/cipherstudio/sandbox-backend/internal/auth/service"
	"github.com/cipherstudio/sandbox-backend/internal/auth/token"
	"github.com/cipherstudio/sandbox-backend/internal/bootstrap"
	"github.com/cipherstudio/sandbox-backend/internal/logging"
	"github.com/cipherstudio/sandbox-backend/internal/projects/intents"
	"github.com/cipherstudio/sandbox-backend/internal/projects/reconcile"
	projectrepo "github.com/cipherstudio/sandbox-backend/internal/projects/repository"
	projectsvc "github.com/cipherstudio/sandbox-backend/internal/projects/service"
)

const serviceName = "sandbox-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.Options{
		Level:   cfg.App.LogLevel,
		Format:  cfg.App.LogFormat,
		File:    cfg.App.LogFile,
		Service: serviceName,
		Version: cfg.App.Version,
	})
	bootstrap.SetGinMode(cfg.App.Environment)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbs, err := bootstrap.OpenDatabases(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer dbs.Close()

	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	blobs, closeBlobs, err := bootstrap.OpenBlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBlobs(); err != nil {
			logger.Warn("closing blob store", "error", err)
		}
	}()

	projectRepo := projectrepo.NewProjectRepository(dbs.SQL)
	fileRepo := projectrepo.NewFileRepository(dbs.SQL)
	journal := intents.NewLog(rdb)
	projectService := projectsvc.NewProjectService(projectRepo, fileRepo, blobs, journal)

	issuer := token.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	authService := authsvc.NewAuthService(authrepo.NewUserRepository(dbs.SQL), issuer)

	gate := auth.NewGate(issuer)
	if cfg.Auth.FirebaseCredentialsPath != "" {
		fb, err := auth.InitializeFirebase(ctx, cfg.Auth.FirebaseCredentialsPath)
		if err != nil {
			return err
		}
		gate = gate.WithFirebase(fb, authService)
		logger.Info("firebase sign-in enabled")
	}

	reconciler := reconcile.New(journal, projectRepo, fileRepo, blobs, cfg.Reconcile.StaleAfter)
	scheduler := reconcile.NewScheduler(reconciler, cfg.Reconcile.Schedule)
	if err := scheduler.Start(); err != nil {
		return err
	}

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: serviceName,
		Version:     cfg.App.Version,
		CORSOrigins: cfg.Server.CORSOrigins,
		DB:          dbs.Pool,
		Redis:       rdb,
		API: routes.APIDeps{
			Accounts:    authService,
			Projects:    projectService,
			Gate:        gate,
			AuthLimiter: middleware.NewIPRateLimiter(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.AuthBurst),
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "environment", cfg.App.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
