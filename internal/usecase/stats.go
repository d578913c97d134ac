package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"swarmstream/internal/domain"
	"swarmstream/internal/domain/ports"
)

// StreamStats joins a session's transfer state with the lifecycle view of
// its consumers.
type StreamStats struct {
	domain.SessionState
	OpenStreams     int  `json:"openStreams"`
	TeardownPending bool `json:"teardownPending"`
}

type Stats struct {
	Engine    ports.Engine
	Lifecycle *Lifecycle
	Logger    *slog.Logger
}

// List returns stats for every live session, sorted by name for stable
// output.
func (uc *Stats) List(ctx context.Context) ([]StreamStats, error) {
	ids, err := uc.Engine.List(ctx)
	if err != nil {
		return nil, wrapEngine("list sessions", err)
	}

	stats := make([]StreamStats, 0, len(ids))
	for _, id := range ids {
		st, err := uc.Get(ctx, id)
		if err != nil {
			// Session dropped between List and State; skip it.
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Name != stats[j].Name {
			return stats[i].Name < stats[j].Name
		}
		return stats[i].ID < stats[j].ID
	})
	return stats, nil
}

// Get returns stats for a single session.
func (uc *Stats) Get(ctx context.Context, id domain.ContentID) (StreamStats, error) {
	state, err := uc.Engine.State(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return StreamStats{}, domain.ErrNotFound
		}
		return StreamStats{}, wrapEngine("session state", err)
	}
	return StreamStats{
		SessionState:    state,
		OpenStreams:     uc.Lifecycle.OpenStreams(id),
		TeardownPending: uc.Lifecycle.TeardownPending(id),
	}, nil
}
