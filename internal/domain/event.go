package domain

import "time"

type EventKind string

const (
	EventStreamOpened EventKind = "stream_opened"
	EventStreamClosed EventKind = "stream_closed"
	EventTeardown     EventKind = "teardown"
	EventReconciled   EventKind = "reconciled"
)

// StreamEvent is one entry in the stream activity history.
type StreamEvent struct {
	ID          ContentID `json:"id"`
	Name        string    `json:"name"`
	Kind        EventKind `json:"kind"`
	OpenStreams int       `json:"openStreams"`
	At          time.Time `json:"at"`
}
