package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pharmacare/go-session"
	"github.com/pharmacare/go-session/client"
	"github.com/pharmacare/go-session/gateway"
	"github.com/pharmacare/go-session/internal/config"
	"github.com/pharmacare/go-session/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pharmacare",
		Short: "PharmaCare portal gateway",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a bearer token against the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			baseURL, _ := cmd.Flags().GetString("base-url")
			if token == "" {
				return fmt.Errorf("--token is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if baseURL != "" {
				cfg.API.BaseURL = baseURL
			}

			logger, err := logging.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if exp, ok := session.TokenExpiry(token); ok {
				fmt.Printf("Token expires at: %s\n", exp.Format(time.RFC3339))
			}

			v := session.NewHTTPValidator(session.HTTPValidatorConfig{
				BaseURL: cfg.API.BaseURL,
				Logger:  logging.Named(logger, "validator"),
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.ValidateTimeout())
			defer cancel()

			res, err := v.Validate(ctx, token)
			if err != nil {
				return fmt.Errorf("validation failed: %s", session.ErrorMessage(err))
			}

			fmt.Printf("Kind:  %s\n", res.Kind)
			fmt.Printf("Shape: %s\n", res.Shape)
			fmt.Println(print.MaybePrettyJSON(res.User))
			return nil
		},
	}
	cmd.Flags().String("token", "", "Bearer token to validate")
	cmd.Flags().String("base-url", "", "Override API_BASE_URL")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	registry := gateway.NewRegistry(gateway.RegistryConfig{
		Store: backend.Store,
		Validator: session.NewHTTPValidator(session.HTTPValidatorConfig{
			BaseURL: cfg.API.BaseURL,
			Logger:  logging.Named(logger, "validator"),
		}),
		Logger:       logging.Named(logger, "session"),
		ActivitySink: session.LoggerActivitySink(logging.Named(logger, "activity")),
		Client: client.Config{
			BaseURL: cfg.API.BaseURL,
			Logger:  logging.Named(logger, "client"),
			Backoff: session.Backoff{
				MaxAttempts: cfg.Retry.MaxAttempts,
				BaseDelay:   cfg.Retry.BaseDelay(),
				MaxDelay:    cfg.Retry.MaxDelay(),
			},
		},
		ValidateTimeout: cfg.API.ValidateTimeout(),
	})

	controller := gateway.NewController(registry)
	controller.Logger = logging.Named(logger, "gateway")
	controller.CookieName = cfg.Session.CookieName
	controller.CookieSecure = cfg.Session.CookieSecure

	app, err := gateway.NewApp(controller)
	if err != nil {
		return err
	}

	go sweep(ctx, registry, backend, cfg.Store.TTL(), logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", zap.String("addr", cfg.App.Addr()), zap.String("store", cfg.Store.Driver))
		errCh <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func sweep(ctx context.Context, registry *gateway.Registry, backend *storeBackend, ttl time.Duration, logger *zap.Logger) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dropped := registry.Sweep(ttl)
			purged, err := backend.Purge(ctx, ttl)
			if err != nil {
				logger.Warn("purge idle session entries", zap.Error(err))
			}
			if dropped > 0 || purged > 0 {
				logger.Debug("swept idle sessions", zap.Int("dropped", dropped), zap.Int64("purged", purged))
			}
		}
	}
}
