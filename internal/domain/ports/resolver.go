package ports

import (
	"context"

	"swarmstream/internal/domain"
)

// MetadataResolver fetches torrent metadata without touching the streaming
// engine. The second return value is the raw bencoded metainfo (may be nil
// for implementations that cannot produce it). Implementations must respect
// the context deadline and clean up their own resources on both outcomes.
type MetadataResolver interface {
	Resolve(ctx context.Context, src domain.TorrentSource) (domain.TorrentSummary, []byte, error)
}
