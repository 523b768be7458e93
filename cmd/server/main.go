package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/chatty-relay/backend/api/handlers"
	"github.com/chatty-relay/backend/internal/auth"
	"github.com/chatty-relay/backend/internal/config"
	"github.com/chatty-relay/backend/internal/db"
	"github.com/chatty-relay/backend/internal/repository"
	"github.com/chatty-relay/backend/internal/session"
	"github.com/chatty-relay/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := cfg.NewLogger()
	gin.SetMode(cfg.GinMode)

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	sessions := session.NewManager(repository.NewSessionRepository(database), log)
	sessions.Recover(context.Background())

	service := ws.NewService(ws.ServiceConfig{
		HistoryCapacity:  cfg.HistoryCapacity,
		DeliveryBuffer:   cfg.DeliveryBuffer,
		MaxContentLength: cfg.MaxContentLength,
	}, log)

	binder := auth.NewTokenBinder()
	supervisor := ws.NewSupervisor(service, binder, sessions, ws.SupervisorConfig{
		MaxMessageSize: cfg.MaxMessageSize,
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		PingPeriod:     cfg.PingPeriod(),
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		AllowedOrigins: cfg.AllowedOrigins,
	}, log)

	router := handlers.NewRouter(handlers.Deps{
		Service:    service,
		Supervisor: supervisor,
		Binder:     binder,
		Sessions:   sessions,
		Log:        log,
	})

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server running", "addr", "http://"+cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		service.Close()
		return err
	case sig := <-sigCh:
		log.Info("Shutting down server", "signal", sig.String())
	}

	// Hijacked connections are not tracked by Shutdown; closing the service
	// ends every live session with a normal close frame.
	service.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	log.Info("Server stopped")
	return nil
}
