package usecase

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"swarmstream/internal/domain"
	"swarmstream/internal/domain/ports"
)

const defaultResolveTimeout = 5 * time.Second

// ResolveMetadata races a metadata fetch against a fixed timeout. The probe
// is advisory: a torrent whose metadata does not arrive in time is reported
// as not found, never as an error, so callers can fall back to opening a
// full session and waiting there.
type ResolveMetadata struct {
	Resolver ports.MetadataResolver
	Timeout  time.Duration
	CacheDir string // raw metainfo archive, best effort; empty disables
	Logger   *slog.Logger
}

// Execute resolves metadata for src. found is false when the deadline won
// the race or the source had no resolvable metadata; err is reserved for
// failures other than the timeout.
func (uc *ResolveMetadata) Execute(ctx context.Context, src domain.TorrentSource) (domain.TorrentSummary, bool, error) {
	if uc.Resolver == nil {
		return domain.TorrentSummary{}, false, errors.New("metadata resolver not configured")
	}
	if src.IsZero() {
		return domain.TorrentSummary{}, false, errors.New("torrent source is required")
	}

	timeout := uc.Timeout
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	resolveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	summary, metainfo, err := uc.Resolver.Resolve(resolveCtx, src)
	elapsed := time.Since(started)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrNoMetadata) {
			uc.logger().Info("metadata resolve timed out",
				slog.Duration("elapsed", elapsed),
				slog.Duration("timeout", timeout),
			)
			return domain.TorrentSummary{}, false, nil
		}
		return domain.TorrentSummary{}, false, err
	}

	uc.logger().Info("metadata resolved",
		slog.String("id", string(summary.ID)),
		slog.String("name", summary.Name),
		slog.Duration("elapsed", elapsed),
	)
	uc.archive(summary, metainfo)
	return summary, true, nil
}

// archive persists the raw metainfo next to other cached copies. Failures
// are logged and swallowed; the resolve result is already in hand.
func (uc *ResolveMetadata) archive(summary domain.TorrentSummary, metainfo []byte) {
	if strings.TrimSpace(uc.CacheDir) == "" || len(metainfo) == 0 || summary.Name == "" {
		return
	}
	path := SeedFilePath(uc.CacheDir, summary.Name)
	if err := os.WriteFile(path, metainfo, 0o644); err != nil {
		uc.logger().Warn("metainfo cache write failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func (uc *ResolveMetadata) logger() *slog.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return slog.Default()
}
