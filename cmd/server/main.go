package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "swarmstream/internal/api/http"
	"swarmstream/internal/app"
	"swarmstream/internal/domain"
	"swarmstream/internal/domain/ports"
	"swarmstream/internal/metrics"
	mongorepo "swarmstream/internal/repository/mongo"
	"swarmstream/internal/services/torrent/engine/anacrolix"
	"swarmstream/internal/telemetry"
	"swarmstream/internal/usecase"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "swarmstream")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "swarmstream"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("dataDir", cfg.TorrentDataDir),
		slog.String("seedDir", cfg.SeedDir),
		slog.Bool("autoSeed", cfg.AutoSeed),
		slog.Int64("seedGraceMs", cfg.SeedGraceMs),
	)

	for _, dir := range []string{cfg.TorrentDataDir, cfg.TorrentCacheDir, cfg.SeedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("directory create failed", slog.String("dir", dir), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	// Event history is an audit trail; the service runs fine without it, so
	// an unreachable Mongo downgrades to a warning instead of a crash.
	history := connectHistory(ctx, cfg, logger)

	engine, err := anacrolix.New(anacrolix.Config{
		DataDir:            cfg.TorrentDataDir,
		MaxConnsPerSession: cfg.MaxConnsPerSession,
		DownloadRateLimit:  cfg.DownloadRateLimitBytes,
		UploadRateLimit:    cfg.UploadRateLimitBytes,
	})
	if err != nil {
		logger.Error("torrent engine init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	lifecycle := usecase.NewLifecycle(engine, usecase.LifecycleConfig{
		GracePeriod:  time.Duration(cfg.SeedGraceMs) * time.Millisecond,
		DataDir:      cfg.TorrentDataDir,
		SeedDir:      cfg.SeedDir,
		KeepData:     cfg.KeepDownloadedData,
		KeepTorrents: cfg.KeepTorrentFiles,
	}, logger)
	var recorder ports.EventRecorder
	if history != nil {
		recorder = &meteredRecorder{next: history.repo}
		lifecycle.SetRecorder(recorder)
	}

	resolveUC := &usecase.ResolveMetadata{
		Resolver: &anacrolix.Resolver{ScratchDir: cfg.TorrentCacheDir},
		Timeout:  time.Duration(cfg.MetadataTimeoutMs) * time.Millisecond,
		CacheDir: cfg.TorrentCacheDir,
		Logger:   logger,
	}
	streamUC := &usecase.StreamTorrent{
		Engine:         engine,
		SeedDir:        cfg.SeedDir,
		ReadaheadBytes: cfg.ReadaheadBytes,
		Logger:         logger,
	}
	statsUC := &usecase.Stats{Engine: engine, Lifecycle: lifecycle, Logger: logger}

	// Re-admit surviving seeds in the background so the HTTP server starts
	// immediately. Every readmitted session gets a fresh grace period.
	if cfg.AutoSeed {
		reconcileUC := &usecase.ReconcileSeeds{
			Engine:    engine,
			Lifecycle: lifecycle,
			SeedDir:   cfg.SeedDir,
			Recorder:  recorder,
			Logger:    logger,
		}
		go func() {
			readmitted, failed := reconcileUC.Run(rootCtx)
			metrics.SeedsReconciledTotal.Add(float64(readmitted))
			metrics.SeedReconcileFailuresTotal.Add(float64(failed))
		}()
	}

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithResolveMetadata(resolveUC),
		apihttp.WithStats(statsUC),
		apihttp.WithStreamCounter(lifecycle),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithTorrentDirs(cfg.TorrentCacheDir, cfg.SeedDir),
	}
	if history != nil {
		serverOpts = append(serverOpts, apihttp.WithHistory(history.repo))
	}

	handler := apihttp.NewServer(streamUC, serverOpts...)

	go updateEngineMetrics(rootCtx, statsUC, lifecycle, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	lifecycle.Close()
	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := engine.Close(); err != nil {
		logger.Warn("engine close error", slog.String("error", err.Error()))
	}
	if history != nil {
		if err := history.disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

type historyStore struct {
	repo       *mongorepo.HistoryRepository
	disconnect func(context.Context) error
}

func connectHistory(ctx context.Context, cfg app.Config, logger *slog.Logger) *historyStore {
	client, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Warn("mongo connect failed, event history disabled", slog.String("error", err.Error()))
		return nil
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		logger.Warn("mongo ping failed, event history disabled", slog.String("error", err.Error()))
		_ = client.Disconnect(context.Background())
		return nil
	}

	repo := mongorepo.NewHistoryRepository(client, cfg.MongoDatabase, cfg.MongoCollection)
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}
	return &historyStore{repo: repo, disconnect: client.Disconnect}
}

// meteredRecorder counts teardown events on the way to the history store.
// Stream open/close counters live in the HTTP handler; only teardowns are
// invisible there.
type meteredRecorder struct {
	next *mongorepo.HistoryRepository
}

func (r *meteredRecorder) Record(ctx context.Context, ev domain.StreamEvent) error {
	if ev.Kind == domain.EventTeardown {
		metrics.TeardownsTotal.Inc()
	}
	return r.next.Record(ctx, ev)
}

func updateEngineMetrics(ctx context.Context, statsUC *usecase.Stats, lifecycle *usecase.Lifecycle, handler *apihttp.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := statsUC.List(ctx)
			if err != nil {
				continue
			}
			var dlTotal, ulTotal, peersTotal int64
			for _, st := range stats {
				dlTotal += st.DownloadSpeed
				ulTotal += st.UploadSpeed
				peersTotal += int64(st.Peers)
			}
			metrics.ActiveSessions.Set(float64(len(stats)))
			metrics.OpenStreams.Set(float64(lifecycle.TotalOpenStreams()))
			metrics.DownloadSpeedBytes.Set(float64(dlTotal))
			metrics.UploadSpeedBytes.Set(float64(ulTotal))
			metrics.PeersConnected.Set(float64(peersTotal))
			handler.BroadcastStats(stats)
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
