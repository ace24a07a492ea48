// Command objectmountd mounts an object storage backend as a local,
// write-back-cached FUSE filesystem.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/objectmount/objectmount/internal/cache"
	"github.com/objectmount/objectmount/internal/circuit"
	"github.com/objectmount/objectmount/internal/config"
	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/internal/connector/drive"
	"github.com/objectmount/objectmount/internal/connector/s3"
	"github.com/objectmount/objectmount/internal/fuseadapter"
	"github.com/objectmount/objectmount/internal/metrics"
	"github.com/objectmount/objectmount/internal/status"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "objectmountd <config.yaml>",
		Short: "Mount an object storage bucket as a local FUSE filesystem",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				configPath = args[0]
			}
			return run(cmd.Context(), configPath)
		},
	}
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg := config.NewDefault()
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.Global.LogLevel, cfg.Global.LogFormat)
	slog.SetDefault(logger)
	logger.Info("objectmountd starting", "mount_point", cfg.Mount.MountPoint, "backend", cfg.Backend.Kind)

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      cfg.Global.MetricsPort,
		Path:      "/metrics",
		Namespace: "objectmount",
	})
	if err != nil {
		return fmt.Errorf("build metrics collector: %w", err)
	}
	if err := collector.Start(ctx); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}
	defer collector.Stop(context.Background())

	backend, err := buildBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build backend connector: %w", err)
	}

	var breaker *circuit.CircuitBreaker
	if cfg.Network.CircuitBreaker.Enabled {
		wrapped := circuit.Wrap(backend, cfg.Backend.Kind, circuit.Config{
			ReadyToTrip: circuit.ReadyToTripAfter(uint32(cfg.Network.CircuitBreaker.FailureThreshold)),
			Timeout:     cfg.Network.CircuitBreaker.OpenTimeout,
		})
		breaker = wrapped.Breaker()
		backend = wrapped
	}

	cached, closeCache, err := buildCache(backend, cfg, logger, collector)
	if err != nil {
		return fmt.Errorf("build cache layer: %w", err)
	}
	defer closeCache(context.Background())

	var conn connector.Connector = cached
	if cfg.Status.Enabled {
		overlay := status.New(cached, cfg.Status.Prefix, cfg.Status.MaxLogEntries, logger)
		overlay.SetBreaker(breaker)
		conn = overlay
	}

	fsCfg := fuseadapter.Config{
		ReadOnly:    cfg.Mount.ReadOnly,
		AllowOther:  cfg.Mount.AllowOther,
		DefaultUID:  cfg.Mount.DefaultUID,
		DefaultGID:  cfg.Mount.DefaultGID,
		DefaultMode: cfg.Mount.DefaultMode,
		AttrTTL:     cfg.Mount.AttrTTL,
		EntryTTL:    cfg.Mount.EntryTTL,
	}
	switch cfg.Mount.Binding {
	case "cgofuse":
		return runCgoFuse(ctx, conn, fsCfg, cfg, logger)
	default:
		fsys := fuseadapter.New(conn, fsCfg, logger)
		fsys.SetMetrics(collector)
		return runGoFuse(ctx, fsys, cfg, logger)
	}
}

func buildBackend(ctx context.Context, cfg *config.Configuration, logger *slog.Logger) (connector.Connector, error) {
	switch cfg.Backend.Kind {
	case "s3":
		return s3.New(ctx, s3.Config{
			Bucket:                      cfg.Backend.S3.Bucket,
			Region:                      cfg.Backend.S3.Region,
			Endpoint:                    cfg.Backend.S3.Endpoint,
			ForcePathStyle:              cfg.Backend.S3.ForcePathStyle,
			UseAccelerate:               cfg.Backend.S3.UseAccelerate,
			UseDualStack:                cfg.Backend.S3.UseDualStack,
			EnableCargoShipOptimization: cfg.Backend.S3.EnableCargoShipOptimization,
		}, logger)
	case "drive":
		credentials, err := os.ReadFile(cfg.Backend.Drive.CredentialsFilePath)
		if err != nil {
			return nil, fmt.Errorf("read drive credentials: %w", err)
		}
		return drive.New(ctx, drive.Config{
			RootFolderID:    cfg.Backend.Drive.RootFolderID,
			CredentialsJSON: credentials,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown backend.kind %q", cfg.Backend.Kind)
	}
}

// buildCache wraps backend with the configured cache variant and
// returns a function to cleanly stop its background reconciler.
// collector may be nil; memory and filesystem variants wire it in for
// cache hit/miss and reconcile-pass instrumentation.
func buildCache(backend connector.Connector, cfg *config.Configuration, logger *slog.Logger, collector *metrics.Collector) (connector.Connector, func(context.Context), error) {
	switch cfg.Cache.Variant {
	case "memory":
		mc := cache.NewMemoryCache(backend, cache.MemoryCacheConfig{
			MaxEntries:      cfg.Cache.MaxEntries,
			MaxBytes:        int64(cfg.Cache.MaxBytes),
			FlushInterval:   cfg.Cache.ReconcileInterval,
			MetadataTTL:     cfg.Cache.MetadataTTL,
			ExcludePatterns: cfg.Cache.ExcludePatterns,
		}, logger)
		mc.SetMetrics(collector)
		return mc, mc.Close, nil
	case "filesystem":
		fc, err := cache.NewFilesystemCache(backend, cache.FilesystemCacheConfig{
			Directory:       cfg.Cache.FilesystemDir,
			FlushInterval:   cfg.Cache.ReconcileInterval,
			MetadataTTL:     cfg.Cache.MetadataTTL,
			ExcludePatterns: cfg.Cache.ExcludePatterns,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		fc.SetMetrics(collector)
		return fc, fc.Close, nil
	case "none":
		return cache.NewNoCache(backend), func(context.Context) {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache.variant %q", cfg.Cache.Variant)
	}
}

func runGoFuse(ctx context.Context, fsys *fuseadapter.FileSystem, cfg *config.Configuration, logger *slog.Logger) error {
	manager := fuseadapter.NewMountManager(fsys, cfg.Mount.MountPoint, logger)
	if err := manager.Mount(); err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	go waitForShutdown(ctx, logger, func() {
		if err := manager.Unmount(); err != nil {
			logger.Error("unmount failed", "error", err)
		}
	})

	manager.Wait()
	return nil
}

func runCgoFuse(ctx context.Context, conn connector.Connector, fsCfg fuseadapter.Config, cfg *config.Configuration, logger *slog.Logger) error {
	adapter := fuseadapter.NewCgoFuseAdapter(conn, fsCfg, logger)

	go waitForShutdown(ctx, logger, func() {
		adapter.Unmount()
	})

	adapter.Mount(ctx, cfg.Mount.MountPoint)
	return nil
}

func waitForShutdown(ctx context.Context, logger *slog.Logger, onShutdown func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}
	onShutdown()
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
