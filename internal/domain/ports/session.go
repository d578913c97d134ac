package ports

import "swarmstream/internal/domain"

type Session interface {
	ID() domain.ContentID
	Name() string
	Length() int64
	Ready() bool
	Files() []domain.FileRef
	SelectFile(index int) (domain.FileRef, error)
	NewReader(file domain.FileRef) (StreamReader, error)
	// Metainfo returns the session's raw bencoded metadata, suitable for
	// persisting as a seed file.
	Metainfo() ([]byte, error)
}
