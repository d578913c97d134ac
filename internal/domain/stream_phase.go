package domain

import "errors"

// StreamPhase is the lifecycle state of a content id with respect to its
// consumers. It is distinct from anything the engine tracks: a session can
// keep downloading and seeding while Draining.
type StreamPhase string

const (
	PhaseActive   StreamPhase = "active"   // at least one open consumer stream
	PhaseDraining StreamPhase = "draining" // zero consumers, grace timer armed
	PhaseRemoved  StreamPhase = "removed"  // torn down (or never seen)
)

var ErrInvalidTransition = errors.New("invalid stream phase transition")

// validTransitions defines the adjacency list of allowed phase changes.
// Removed is terminal: a destroy in flight is a point of no return, and a
// later stream for the same id starts a fresh Active entry.
var validTransitions = map[StreamPhase][]StreamPhase{
	PhaseActive:   {PhaseDraining},
	PhaseDraining: {PhaseActive, PhaseRemoved},
	PhaseRemoved:  {},
}

// CanTransition reports whether a phase change is valid.
func CanTransition(from, to StreamPhase) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
