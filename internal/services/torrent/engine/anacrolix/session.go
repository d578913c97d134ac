package anacrolix

import (
	"bytes"

	"github.com/anacrolix/torrent"

	"swarmstream/internal/domain"
	"swarmstream/internal/domain/ports"
)

type Session struct {
	engine  *Engine
	torrent *torrent.Torrent
	id      domain.ContentID
	files   []domain.FileRef
	ready   bool
}

func (s *Session) ID() domain.ContentID {
	return s.id
}

func (s *Session) Name() string {
	if s.torrent == nil {
		return ""
	}
	return s.torrent.Name()
}

func (s *Session) Length() int64 {
	if !s.Ready() {
		return 0
	}
	return s.torrent.Length()
}

func (s *Session) Ready() bool {
	if s.ready {
		return true
	}
	if s.torrent == nil {
		return false
	}
	select {
	case <-s.torrent.GotInfo():
		s.ready = true
		return true
	default:
		return false
	}
}

func (s *Session) Files() []domain.FileRef {
	// If metadata arrived since creation, refresh files.
	if !s.ready && s.Ready() {
		s.files = mapFiles(s.torrent)
	}
	return append([]domain.FileRef(nil), s.files...)
}

func (s *Session) SelectFile(index int) (domain.FileRef, error) {
	files := s.Files()
	if index < 0 || index >= len(files) {
		return domain.FileRef{}, ErrSessionNotFound
	}
	return files[index], nil
}

func (s *Session) NewReader(file domain.FileRef) (ports.StreamReader, error) {
	if s.torrent == nil || !s.Ready() {
		return nil, ErrSessionNotFound
	}
	files := s.torrent.Files()
	if file.Index < 0 || file.Index >= len(files) {
		return nil, ErrSessionNotFound
	}
	return files[file.Index].NewReader(), nil
}

func (s *Session) Metainfo() ([]byte, error) {
	if s.torrent == nil || !s.Ready() {
		return nil, domain.ErrNoMetadata
	}
	mi := s.torrent.Metainfo()
	var buf bytes.Buffer
	if err := mi.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
