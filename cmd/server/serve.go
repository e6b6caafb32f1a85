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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"certified/internal/access"
	"certified/internal/api"
	"certified/internal/config"
	"certified/internal/engine"
	"certified/internal/publish"
	"certified/internal/ratelimit"
	"certified/internal/session"
	"certified/internal/verify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the certified HTTP server",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return config.BindFlag(vcfg, config.KeyHTTPAddr, cmd.Flags(), "addr")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		signer, err := loadSigner(cfg, logger)
		if err != nil {
			return err
		}
		limiter, closeLimiter, err := buildLimiter(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeLimiter()

		if cfg.SessionSecret == "" {
			logger.Warn("session_secret is empty; the admin surface will answer 401 to everyone")
		}

		svc := publish.NewService(store, signer, logger)
		handler, err := api.NewServer(api.Deps{
			Log:     store,
			Service: svc,
			Checker: &verify.SignatureChecker{PublicKey: signer.PublicKey(), Artifacts: svc},
			Access: access.Config{
				Sessions:    session.NewJWT(cfg.SessionSecret),
				DevBypass:   cfg.AdminDevBypass,
				PreviewMode: cfg.PreviewMode,
				Limiter:     limiter,
			},
			Logger: logger,
		})
		if err != nil {
			return err
		}

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("%s certified listening on %s (log: %s)\n", colorInfo("→"), cfg.HTTPAddr, cfg.LogPath())
			fmt.Printf("%s signing public key %s\n", colorInfo("→"), signer.PublicKeyHex())
			serverErrors <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case <-ctx.Done():
			fmt.Printf("\n%s shutting down...\n", colorInfo("→"))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}
			fmt.Printf("%s shutdown complete\n", colorSuccess("✓"))
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*engine.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return engine.Open(ctx, engine.Config{
		Path:           cfg.LogPath(),
		EnqueueTimeout: cfg.EnqueueTimeout,
		MaxEnqueued:    cfg.MaxEnqueued,
		Fsync:          cfg.Fsync,
		Logger:         logger,
	})
}

func loadSigner(cfg config.Config, logger *zap.Logger) (*verify.Signer, error) {
	if cfg.SigningKey != "" {
		return verify.NewSignerFromSeedHex(cfg.SigningKey)
	}
	signer, err := verify.GenerateSigner()
	if err != nil {
		return nil, err
	}
	logger.Warn("signing_key not set; using an ephemeral key, signatures will not survive a restart",
		zap.String("public_key", signer.PublicKeyHex()))
	return signer, nil
}

// buildLimiter falls back to the in-process limiter when Redis is configured
// but unreachable.
func buildLimiter(ctx context.Context, cfg config.Config, logger *zap.Logger) (ratelimit.Limiter, func(), error) {
	noop := func() {}
	if cfg.RateLimit.Policy == nil {
		return nil, noop, nil
	}
	policy := *cfg.RateLimit.Policy

	if addr := cfg.RateLimit.RedisAddr; addr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		r, err := ratelimit.DialRedis(dialCtx, addr, policy)
		if err == nil {
			logger.Info("rate limiting via redis", zap.String("addr", addr))
			return r, func() { _ = r.Close() }, nil
		}
		logger.Warn("redis rate limiter unavailable, using in-process limiter", zap.Error(err))
	}

	m, err := ratelimit.NewMemory(policy)
	if err != nil {
		return nil, noop, err
	}
	return m, func() { _ = m.Close() }, nil
}
