package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/italolelis/cedric/internal/cleanup"
	"github.com/italolelis/cedric/internal/config"
	"github.com/italolelis/cedric/internal/downloader"
	"github.com/italolelis/cedric/internal/http/rest"
	"github.com/italolelis/cedric/internal/logctx"
	"github.com/italolelis/cedric/internal/manifest"
	"github.com/italolelis/cedric/internal/notifier"
	"github.com/italolelis/cedric/internal/placement"
	"github.com/italolelis/cedric/internal/storage/disk"
	"github.com/italolelis/cedric/internal/storage/sqlite"
	"github.com/italolelis/cedric/internal/telemetry"
	"github.com/italolelis/cedric/internal/transfer"
	"github.com/italolelis/cedric/internal/transfer/httptransport"
	"github.com/italolelis/cedric/internal/transfer/putio"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		slog.Error("telemetry error", "err", err)
		os.Exit(1)
	}

	logger := logctx.NewLogger(os.Stdout, cfg.SlogLevel(), tel.LogHandler())
	slog.SetDefault(logger)

	logger.Info("cedric starting...", "log_level", cfg.LogLevel, "instance_id", telemetry.InstanceID())

	runErr := run(logctx.WithLogger(ctx, logger), cfg, tel)

	if err := tel.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown telemetry", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("fatal error", "err", runErr)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedDownloadRepository(database, tel)

	// =========================================================================
	// Start Transport
	httpTransport, err := buildTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer httpTransport.Close()

	// =========================================================================
	// Start Downloader
	root := cfg.DownloadsRoot()

	d := downloader.New(
		transfer.NewInstrumentedTransport(httpTransport, tel, "http"),
		placement.NewResolver(disk.New(root)),
		downloader.WithMaxParallel(cfg.Parallelism()),
		downloader.WithTelemetry(tel),
		downloader.WithLogger(logger),
	)

	ledger := sqlite.NewLedgerObserver(ctx, repo)
	d.Subscribe(ledger)

	// Close delivers the pending events, so the ledger stays subscribed until then.
	defer func() {
		d.Close()
		d.Unsubscribe(ledger)
	}()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("failed to start downloader: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// =========================================================================
	// Start Notification
	if cfg.DiscordWebhookURL != "" {
		dispatcher := notifier.NewDispatcher(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL))
		d.Subscribe(dispatcher.Observer())
		defer d.Unsubscribe(dispatcher.Observer())

		g.Go(func() error { return dispatcher.Run(ctx) })
	}

	// =========================================================================
	// Start Cleanup
	if cfg.KeepDownloadedFor > 0 {
		svc := cleanup.New(repo, d, cfg.KeepDownloadedFor)

		g.Go(func() error { return svc.Run(ctx, cfg.CleanupInterval) })
	}

	// =========================================================================
	// Start API Service
	if cfg.Web.Enabled {
		server := rest.NewServer(ctx, rest.ServerConfig{
			BindAddress:  cfg.Web.BindAddress,
			ReadTimeout:  cfg.Web.ReadTimeout,
			WriteTimeout: cfg.Web.WriteTimeout,
			IdleTimeout:  cfg.Web.IdleTimeout,
		}, rest.NewRouter(rest.NewDownloadsHandler(d), tel))

		g.Go(func() error {
			logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}

			return nil
		})

		g.Go(func() error {
			<-ctx.Done()

			logger.Info("start shutdown")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to gracefully shutdown the server", "err", err)

				if err = server.Close(); err != nil {
					return fmt.Errorf("could not stop server gracefully: %w", err)
				}
			}

			return nil
		})
	}

	// =========================================================================
	// Enqueue Manifest
	if cfg.ManifestPath != "" {
		enqueueManifest(ctx, d, cfg.ManifestPath)
	}

	logger.Info("waiting for downloads...",
		"downloads_dir", root,
		"max_parallel", cfg.Parallelism(),
		"retention", cfg.KeepDownloadedFor.String(),
	)

	g.Go(func() error {
		<-ctx.Done()

		return nil
	})

	return g.Wait()
}

func enqueueManifest(ctx context.Context, d *downloader.Downloader, path string) {
	logger := logctx.LoggerFromContext(ctx).With("path", path)

	resources, err := manifest.LoadFromFile(path)
	if err != nil {
		logger.Error("failed to load manifest", "err", err)

		return
	}

	if err := d.EnqueueMany(ctx, resources); err != nil {
		logger.Error("failed to enqueue manifest", "err", err)

		return
	}

	logger.Info("manifest enqueued", "resources", len(resources))
}

// buildTransport creates the HTTP transport, with put.io sources when a token is
// configured.
func buildTransport(ctx context.Context, cfg *config.Config) (*httptransport.Transport, error) {
	var opts []httptransport.Option

	if cfg.PutioToken != "" {
		resolver := putio.NewResolver(cfg.PutioToken, nil)

		if err := resolver.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("authentication error: %w", err)
		}

		opts = append(opts, httptransport.WithResolver(resolver))
	}

	return httptransport.New(httptransport.Config{
		RetryAttempts:    cfg.Transport.RetryAttempts,
		InitialBackoff:   cfg.Transport.InitialBackoff,
		MaxBackoff:       cfg.Transport.MaxBackoff,
		ProgressInterval: cfg.Transport.ProgressInterval,
		ResponseTimeout:  cfg.Transport.ResponseTimeout,
		StagingDir:       cfg.Transport.StagingDir,
	}, opts...), nil
}
