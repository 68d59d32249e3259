// cmd/loanclub-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"loan-club/internal/api"
	"loan-club/internal/common/aws"
	"loan-club/internal/common/config"
	"loan-club/internal/common/logger"
	"loan-club/internal/common/observability"
	"loan-club/internal/lifecycle"
	"loan-club/internal/notify"
	"loan-club/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting loan club server...",
		zap.String("backend", cfg.Store.Backend),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init store backend with retry ---
	var backend *store.Backend
	err = retryWithBackoff(func() error {
		var err error
		backend, err = store.Open(ctx, cfg)
		return err
	}, 10, 2*time.Second, zapLog, "Store backend initialization")
	if err != nil {
		zapLog.Fatal("store backend failed after retries", zap.Error(err))
	}
	defer backend.Close()
	zapLog.Info("Store backend ready", zap.String("backend", backend.Gateway.Name()))

	st := store.New(backend.Gateway, store.Options{
		CreateIfMissing: cfg.Store.CreateIfMissing,
		Timeout:         config.GetDuration(cfg.Store.Timeout),
	}, log, obs)

	svc := lifecycle.NewService(lifecycle.ServiceDependencies{
		Store:    st,
		Notifier: buildNotifier(ctx, cfg, log, zapLog),
		Logger:   log,
	}, &lifecycle.Config{
		AdminSecret: cfg.Admin.Secret,
	})

	server := api.NewServer(api.Dependencies{
		Service: svc,
		Logger:  log,
		Ready:   backend.Ping,
	}, api.Config{
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server.Router(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}
	zapLog.Info("Loan club server stopped")
}

// buildNotifier returns nil when no channel is enabled.
func buildNotifier(ctx context.Context, cfg *config.Config, log logger.Logger, zapLog *zap.Logger) lifecycle.Notifier {
	nc := cfg.Notifications
	if !nc.Email.Enabled && !nc.SMS.Enabled {
		zapLog.Info("Decision notifications disabled")
		return nil
	}

	deps := notify.ServiceDependencies{Logger: log}
	notifyCfg := &notify.Config{
		EmailEnabled: nc.Email.Enabled,
		SMSEnabled:   nc.SMS.Enabled,
		Timeout:      config.GetDuration(nc.Timeout),
	}

	if nc.Email.Enabled {
		ses, err := aws.NewSESClient(ctx, nc.AWS.Region, nc.Email.FromEmail)
		if err != nil {
			zapLog.Warn("SES client unavailable, email notices disabled", zap.Error(err))
			notifyCfg.EmailEnabled = false
		} else {
			deps.Email = ses
		}
	}
	if nc.SMS.Enabled {
		sns, err := aws.NewSNSClient(ctx, nc.AWS.Region)
		if err != nil {
			zapLog.Warn("SNS client unavailable, SMS notices disabled", zap.Error(err))
			notifyCfg.SMSEnabled = false
		} else {
			deps.SMS = sns
		}
	}

	return notify.NewService(deps, notifyCfg)
}
