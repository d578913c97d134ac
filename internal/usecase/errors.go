package usecase

import (
	"errors"
	"fmt"
)

// ErrEngine marks failures coming out of the torrent engine so callers can
// map them to a transport status without inspecting engine internals.
var ErrEngine = errors.New("torrent engine error")

func wrapEngine(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrEngine, op, err)
}
