package usecase

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"swarmstream/internal/domain"
	"swarmstream/internal/domain/ports"
	"swarmstream/internal/torrentfile"
)

// ReconcileSeeds re-admits sessions for the seed files that survived the
// last shutdown. Every re-admitted session starts with zero consumers and a
// full grace period; sessions nobody opens within the grace are torn down
// and their seed files removed, so crash leftovers converge to the same end
// state a clean teardown would have produced.
type ReconcileSeeds struct {
	Engine    ports.Engine
	Lifecycle *Lifecycle
	SeedDir   string
	Recorder  ports.EventRecorder // optional; reconciled events for the history
	Logger    *slog.Logger
}

// Run scans the seed directory once. A file that fails to parse or open is
// logged and skipped; one bad seed never blocks the rest.
func (uc *ReconcileSeeds) Run(ctx context.Context) (readmitted, failed int) {
	logger := uc.logger()

	entries, err := os.ReadDir(uc.SeedDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("seed dir scan failed",
				slog.String("dir", uc.SeedDir),
				slog.String("error", err.Error()),
			)
		}
		return 0, 0
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".torrent") {
			continue
		}
		path := filepath.Join(uc.SeedDir, entry.Name())
		if err := uc.readmit(ctx, path); err != nil {
			failed++
			logger.Warn("seed readmit failed",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		readmitted++
	}

	logger.Info("seed reconcile complete",
		slog.String("dir", uc.SeedDir),
		slog.Int("readmitted", readmitted),
		slog.Int("failed", failed),
	)
	return readmitted, failed
}

func (uc *ReconcileSeeds) readmit(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	id, err := torrentfile.InfoHash(raw)
	if err != nil {
		return err
	}

	// Already tracked, typically from an earlier pass; leave its timer alone.
	if uc.Lifecycle.TeardownPending(id) || uc.Lifecycle.OpenStreams(id) > 0 {
		return nil
	}

	session, err := uc.Engine.Open(ctx, domain.TorrentSource{TorrentPath: path})
	if err != nil {
		return wrapEngine("open seed", err)
	}

	name := session.Name()
	if name == "" {
		name = torrentfile.DisplayName(raw)
	}
	uc.Lifecycle.ScheduleTeardown(ctx, id, name)
	uc.record(ctx, domain.StreamEvent{ID: id, Name: name, Kind: domain.EventReconciled, At: time.Now().UTC()})

	uc.logger().Info("seed readmitted",
		slog.String("id", string(id)),
		slog.String("name", name),
	)
	return nil
}

func (uc *ReconcileSeeds) record(ctx context.Context, ev domain.StreamEvent) {
	if uc.Recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := uc.Recorder.Record(recordCtx, ev); err != nil {
		uc.logger().Debug("event record failed",
			slog.String("id", string(ev.ID)),
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

func (uc *ReconcileSeeds) logger() *slog.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return slog.Default()
}
