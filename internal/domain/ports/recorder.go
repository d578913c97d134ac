package ports

import (
	"context"

	"swarmstream/internal/domain"
)

// EventRecorder is an optional sink for stream lifecycle events. Recording
// failures must never affect the lifecycle itself.
type EventRecorder interface {
	Record(ctx context.Context, ev domain.StreamEvent) error
}
