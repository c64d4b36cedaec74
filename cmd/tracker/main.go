package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/auth"
	"expensetracker/internal/backend"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	apphttp "expensetracker/internal/http"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	opts := []services.Option{services.WithLogger(logger)}
	if res.AMQP != nil {
		opts = append(opts, services.WithSyncPublisher(res.AMQP))
	}
	ledger := services.NewLedgerService(res.Store, res.Broker, opts...)

	issuer, err := auth.NewIssuer(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		logger.Error("Failed to create session issuer", applog.FieldError, err)
		os.Exit(1)
	}

	var verifiers auth.ChainVerifier
	if cfg.GoogleClientID != "" {
		verifiers = append(verifiers, auth.NewGoogleVerifier(cfg.GoogleClientID))
	}
	if cfg.AuthDevLogin {
		logger.Warn("Development sign-in is enabled, any user id is accepted")
		verifiers = append(verifiers, auth.DevVerifier{})
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Ledger:             ledger,
		Issuer:             issuer,
		Verifier:           verifiers,
		Ready:              res.Ping,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		GoogleClientID:     cfg.GoogleClientID,
		DevLogin:           cfg.AuthDevLogin,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting tracker server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"amqp", res.AMQP != nil,
			applog.FieldOperation, applog.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if res.Relay != nil {
		g.Go(func() error {
			// Without the relay only changes made through this process reach
			// its streams.
			if err := res.Relay(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Ledger change relay stopped", applog.FieldError, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
