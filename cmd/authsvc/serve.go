// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authsvc/internal/api"
	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/internal/auth/postgres"
	"github.com/holomush/authsvc/internal/config"
	"github.com/holomush/authsvc/internal/logging"
	"github.com/holomush/authsvc/internal/observability"
	"github.com/holomush/authsvc/internal/store"
	"github.com/holomush/authsvc/pkg/errutil"
)

const serviceName = "authsvc"

// userStore is an opened user repository and its lifecycle hooks.
type userStore struct {
	users auth.UserRepository
	ready observability.ReadinessChecker
	close func()
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// OpenStore connects the user repository.
	// Default: store.Connect with a postgres.UserRepository
	OpenStore func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*userStore, error)

	// LogOutput receives the process log.
	// Default: os.Stderr
	LogOutput io.Writer

	// OnReady is called with the bound API and metrics addresses once both
	// listeners accept connections. The metrics address is empty when disabled.
	OnReady func(apiAddr, metricsAddr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the authentication HTTP API and, unless metrics.addr is empty,
the metrics and health endpoints. The signing secret is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, nil)
		},
	}
}

func openPostgresStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*userStore, error) {
	pool, err := store.Connect(ctx, store.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		ConnectAttempts: cfg.Database.ConnectAttempts,
		Logger:          logger,
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // already coded
	}
	return &userStore{
		users: postgres.NewUserRepository(pool),
		ready: observability.PingReadiness(pool),
		close: pool.Close,
	}, nil
}

// runServe starts the API with injectable dependencies and blocks until ctx
// is cancelled, a shutdown signal arrives, or a listener fails.
func runServe(ctx context.Context, cfg *config.Config, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.OpenStore == nil {
		deps.OpenStore = openPostgresStore
	}
	if deps.LogOutput == nil {
		deps.LogOutput = os.Stderr
	}

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, deps.LogOutput)
	slog.SetDefault(logger)

	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Auth.Argon2.Params())
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	params := hasher.Params()
	logger.Info("password hasher configured",
		"algorithm", "argon2id",
		"memory_kib", params.Memory,
		"iterations", params.Iterations,
		"parallelism", params.Parallelism)

	tokens, err := auth.NewTokenService([]byte(cfg.Auth.SigningSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, err := deps.OpenStore(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open user store").Wrap(err)
	}
	defer users.close()
	logger.Info("connected to user store")

	obsServer := observability.NewServer(cfg.Metrics.Addr, users.ready, observability.WithServerLogger(logger))
	metrics := obsServer.Metrics()

	svc, err := auth.NewAuthService(users.users, hasher, tokens,
		auth.WithLogger(logger),
		auth.WithStoreTimeout(cfg.Auth.StoreTimeout),
		auth.WithRecorder(metrics.Auth),
	)
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewHandler(svc,
		api.WithLogger(logger),
		api.WithObserver(metrics.HTTP),
	).Router()

	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	httpSrv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		defer close(httpErrCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrCh <- serveErr
		}
	}()
	logger.Info("http server listening", "addr", listener.Addr().String())

	var obsErrCh <-chan error
	if cfg.Metrics.Addr != "" {
		obsErrCh, err = obsServer.Start()
		if err != nil {
			shutdown(logger, cfg, httpSrv, nil)
			return oops.With("operation", "start observability server").Wrap(err)
		}
	}

	if deps.OnReady != nil {
		deps.OnReady(listener.Addr().String(), obsServer.Addr())
	}
	logger.Info("authsvc ready", "addr", listener.Addr().String(), "token_ttl", cfg.Auth.TokenTTL.String())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx).Error())
	case serveErr := <-httpErrCh:
		runErr = oops.Code("HTTP_SERVE_FAILED").Wrap(serveErr)
	case obsErr := <-obsErrCh:
		runErr = oops.Code("OBSERVABILITY_SERVE_FAILED").Wrap(obsErr)
	}
	if runErr != nil {
		errutil.LogError(ctx, logger, "server failed", runErr)
	}

	shutdown(logger, cfg, httpSrv, obsServer)
	logger.Info("shutdown complete")
	return runErr
}

// shutdown drains the API first so in-flight requests still see a ready
// probe and a working store.
func shutdown(logger *slog.Logger, cfg *config.Config, httpSrv *http.Server, obsServer *observability.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
}
