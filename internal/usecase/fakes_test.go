package usecase

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"swarmstream/internal/domain"
	"swarmstream/internal/domain/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

type fakeEngine struct {
	mu       sync.Mutex
	sessions map[domain.ContentID]*fakeSession
	states   map[domain.ContentID]domain.SessionState
	dropped  []domain.ContentID
	openErr  error
	openFn   func(src domain.TorrentSource) (*fakeSession, error)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		sessions: make(map[domain.ContentID]*fakeSession),
		states:   make(map[domain.ContentID]domain.SessionState),
	}
}

func (f *fakeEngine) add(s *fakeSession) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.id] = s
	return s
}

func (f *fakeEngine) setState(st domain.SessionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[st.ID] = st
}

func (f *fakeEngine) droppedIDs() []domain.ContentID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ContentID(nil), f.dropped...)
}

func (f *fakeEngine) Open(ctx context.Context, src domain.TorrentSource) (ports.Session, error) {
	f.mu.Lock()
	openErr := f.openErr
	openFn := f.openFn
	f.mu.Unlock()
	if openErr != nil {
		return nil, openErr
	}
	if openFn != nil {
		s, err := openFn(src)
		if err != nil {
			return nil, err
		}
		return f.add(s), nil
	}
	return nil, domain.ErrNoMetadata
}

func (f *fakeEngine) Get(ctx context.Context, id domain.ContentID) (ports.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id.Normalize()]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEngine) Drop(ctx context.Context, id domain.ContentID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, id)
	if _, ok := f.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeEngine) State(ctx context.Context, id domain.ContentID) (domain.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.states[id.Normalize()]; ok {
		return st, nil
	}
	return domain.SessionState{}, domain.ErrNotFound
}

func (f *fakeEngine) List(ctx context.Context) ([]domain.ContentID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]domain.ContentID, 0, len(f.sessions))
	for id := range f.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeEngine) Close() error { return nil }

type fakeSession struct {
	id       domain.ContentID
	name     string
	length   int64
	files    []domain.FileRef
	metainfo []byte
	content  []byte
}

func (s *fakeSession) ID() domain.ContentID   { return s.id }
func (s *fakeSession) Name() string           { return s.name }
func (s *fakeSession) Length() int64          { return s.length }
func (s *fakeSession) Ready() bool            { return true }
func (s *fakeSession) Files() []domain.FileRef {
	return append([]domain.FileRef(nil), s.files...)
}

func (s *fakeSession) SelectFile(index int) (domain.FileRef, error) {
	if index < 0 || index >= len(s.files) {
		return domain.FileRef{}, domain.ErrNotFound
	}
	return s.files[index], nil
}

func (s *fakeSession) NewReader(file domain.FileRef) (ports.StreamReader, error) {
	if file.Index < 0 || file.Index >= len(s.files) {
		return nil, domain.ErrNotFound
	}
	return &fakeReader{Reader: bytes.NewReader(s.content)}, nil
}

func (s *fakeSession) Metainfo() ([]byte, error) {
	if s.metainfo == nil {
		return nil, domain.ErrNoMetadata
	}
	return s.metainfo, nil
}

type fakeReader struct {
	*bytes.Reader
	readahead int64
	closed    bool
}

func (r *fakeReader) SetReadahead(n int64) { r.readahead = n }
func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeResolver struct {
	summary  domain.TorrentSummary
	metainfo []byte
	err      error
	delay    time.Duration
}

func (r *fakeResolver) Resolve(ctx context.Context, src domain.TorrentSource) (domain.TorrentSummary, []byte, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return domain.TorrentSummary{}, nil, ctx.Err()
		}
	}
	if r.err != nil {
		return domain.TorrentSummary{}, nil, r.err
	}
	return r.summary, r.metainfo, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []domain.StreamEvent
	err    error
}

func (r *fakeRecorder) Record(ctx context.Context, ev domain.StreamEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRecorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]domain.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}
