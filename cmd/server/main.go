package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"battle-tracker/internal/aggregator"
	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"
	fxmodules "battle-tracker/internal/fx"
	"battle-tracker/internal/middleware"
	"battle-tracker/internal/poller"
	"battle-tracker/internal/server"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
		fx.Invoke(runPoller),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	snapshotServer *server.SnapshotServer,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           middleware.RequestID(logger)(c.Handler(snapshotServer.Routes())),
		ReadHeaderTimeout: constants.RequestTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}

func runPoller(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	p *poller.Poller,
	agg *aggregator.Aggregator,
	logger zerolog.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			restored, err := agg.Restore(startCtx)
			if err != nil {
				cancel()
				return fmt.Errorf("failed to restore aggregates: %w", err)
			}
			logger.Info().Int("battles", restored).Msg("starting poller")

			go func() {
				defer close(done)
				err := p.Run(ctx)
				if err == nil {
					return
				}
				exitCode := 1
				if errors.Is(err, poller.ErrFailureCeiling) {
					exitCode = 2
				}
				logger.Error().Err(err).Int("exit_code", exitCode).Msg("poller terminated")
				if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
					logger.Error().Err(err).Msg("failed to request shutdown")
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			p.Stop()
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				logger.Warn().Msg("poller did not stop before the shutdown deadline")
				return stopCtx.Err()
			}
		},
	})
}
