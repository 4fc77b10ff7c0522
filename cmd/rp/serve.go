package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/config"
	"github.com/alfredjeanlab/reg2progress/internal/events"
	"github.com/alfredjeanlab/reg2progress/internal/server"
	"github.com/alfredjeanlab/reg2progress/internal/store"
	"github.com/alfredjeanlab/reg2progress/internal/store/memory"
	"github.com/alfredjeanlab/reg2progress/internal/store/postgres"
	snapshot "github.com/alfredjeanlab/reg2progress/internal/sync"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the clinic tracker HTTP server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't build an API client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)
		ctx := context.Background()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if err := store.Seed(ctx, st, seed.Branches); err != nil {
			st.Close()
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (RP_NATS_URL not set)")
		}

		opts := []server.Option{
			server.WithLocation(cfg.Location),
			server.WithAttendees(seed.Attendees),
		}

		var scheduler *snapshot.Scheduler
		if cfg.SyncEnabled() {
			dests := snapshotDestinations(ctx, cfg, logger)
			if len(dests) > 0 {
				scheduler = snapshot.NewScheduler(st, dests, cfg.SyncInterval, logger)
				scheduler.Start()
				opts = append(opts, server.WithSnapshots(scheduler))
				logger.Info("snapshot scheduler started", "interval", cfg.SyncInterval)
			}
		}

		clinic := server.New(st, publisher, opts...)
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           clinic.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr, "timezone", cfg.Location.String())
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		// Stop after the HTTP server so the final writes are in the last snapshot.
		if scheduler != nil {
			scheduler.Stop()
			if err := scheduler.RunOnce(shutdownCtx); err != nil {
				logger.Error("final snapshot failed", "err", err)
			}
			logger.Info("snapshot scheduler stopped")
		}

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("RP_DATABASE_URL not set, data is kept in memory only")
		return memory.New(), nil
	}
	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres")
	return st, nil
}

func snapshotDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []snapshot.Destination {
	var dests []snapshot.Destination
	if cfg.SyncS3Bucket != "" {
		s3Dest, err := snapshot.NewS3Destination(ctx,
			cfg.SyncS3Bucket,
			cfg.SyncS3Key,
			cfg.SyncS3Region,
			cfg.SyncS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 snapshot destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("snapshot S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if cfg.SyncGitRepo != "" {
		dests = append(dests, snapshot.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("snapshot git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}
	return dests
}
