package ports

import (
	"context"

	"swarmstream/internal/domain"
)

// Engine is the long-lived streaming swarm engine. Sessions are keyed by
// content id; Open on an already-tracked id returns the existing session, so
// two requests racing to add the same torrent never produce a duplicate.
type Engine interface {
	Open(ctx context.Context, src domain.TorrentSource) (Session, error)
	Get(ctx context.Context, id domain.ContentID) (Session, error)
	Drop(ctx context.Context, id domain.ContentID) error
	State(ctx context.Context, id domain.ContentID) (domain.SessionState, error)
	List(ctx context.Context) ([]domain.ContentID, error)
	Close() error
}
