package anacrolix

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"golang.org/x/time/rate"

	"swarmstream/internal/domain"
	"swarmstream/internal/domain/ports"
)

var ErrSessionNotFound = domain.ErrNotFound

// addTimeout caps the time we wait for the anacrolix client to accept a new
// torrent. AddMagnet can block on an internal client mutex when the client
// is busy (e.g. resolving metadata for another torrent).
const (
	addTimeout          = 10 * time.Second
	metadataWaitTimeout = 5 * time.Minute
)

type Config struct {
	DataDir            string
	MaxConnsPerSession int   // per-torrent peer connection cap; 0 = client default
	DownloadRateLimit  int64 // aggregate bytes/sec; 0 = unlimited
	UploadRateLimit    int64 // aggregate bytes/sec; 0 = unlimited
}

// Engine adapts the anacrolix client to the ports.Engine contract: one live
// session per content id, re-used by concurrent consumers.
type Engine struct {
	client   *torrent.Client
	mu       sync.RWMutex
	sessions map[domain.ContentID]*torrent.Torrent
	speedMu  sync.Mutex
	speeds   map[domain.ContentID]speedSample
}

func New(cfg Config) (*Engine, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	clientConfig.Seed = true
	if cfg.MaxConnsPerSession > 0 {
		clientConfig.EstablishedConnsPerTorrent = cfg.MaxConnsPerSession
	}
	if cfg.DownloadRateLimit > 0 {
		clientConfig.DownloadRateLimiter = rate.NewLimiter(rate.Limit(cfg.DownloadRateLimit), int(cfg.DownloadRateLimit))
	}
	if cfg.UploadRateLimit > 0 {
		clientConfig.UploadRateLimiter = rate.NewLimiter(rate.Limit(cfg.UploadRateLimit), int(cfg.UploadRateLimit))
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client), nil
}

func NewWithClient(client *torrent.Client) *Engine {
	return &Engine{
		client:   client,
		sessions: make(map[domain.ContentID]*torrent.Torrent),
		speeds:   make(map[domain.ContentID]speedSample),
	}
}

func (e *Engine) Open(ctx context.Context, src domain.TorrentSource) (ports.Session, error) {
	if e.client == nil {
		return nil, errors.New("torrent client not configured")
	}
	if src.IsZero() {
		return nil, errors.New("torrent source is required")
	}

	// Run AddMagnet / AddTorrentFromFile with a timeout so we never block
	// the HTTP handler indefinitely if the anacrolix client is busy.
	type addResult struct {
		t   *torrent.Torrent
		err error
	}
	ch := make(chan addResult, 1)
	go func() {
		var t *torrent.Torrent
		var err error
		if strings.TrimSpace(src.Magnet) != "" {
			t, err = e.client.AddMagnet(src.Magnet)
		} else {
			t, err = e.client.AddTorrentFromFile(src.TorrentPath)
		}
		ch <- addResult{t, err}
	}()

	var t *torrent.Torrent
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		t = res.t
	case <-time.After(addTimeout):
		// The goroutine may still complete the add after we return. Drop
		// the orphaned torrent once it surfaces.
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, errors.New("torrent client busy, try again later")
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, ctx.Err()
	}

	id := domain.ContentID(t.InfoHash().HexString()).Normalize()

	// If this torrent is already tracked, return the existing session so
	// racing requests for the same id share one swarm session.
	e.mu.Lock()
	existing, tracked := e.sessions[id]
	if !tracked {
		e.sessions[id] = t
	}
	e.mu.Unlock()
	if tracked {
		t = existing
	}

	waitCtx, cancel := context.WithTimeout(ctx, metadataWaitTimeout)
	defer cancel()

	select {
	case <-t.GotInfo():
		return &Session{engine: e, torrent: t, id: id, files: mapFiles(t), ready: true}, nil
	case <-waitCtx.Done():
		if !tracked {
			_ = e.Drop(ctx, id)
		}
		return nil, domain.ErrNoMetadata
	}
}

func (e *Engine) Get(ctx context.Context, id domain.ContentID) (ports.Session, error) {
	t := e.getTorrent(id.Normalize())
	if t == nil {
		return nil, ErrSessionNotFound
	}
	ready := torrentInfoReady(t)
	return &Session{engine: e, torrent: t, id: id.Normalize(), files: mapFiles(t), ready: ready}, nil
}

func (e *Engine) Drop(ctx context.Context, id domain.ContentID) error {
	id = id.Normalize()
	e.mu.Lock()
	t, ok := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()
	e.forgetSpeed(id)
	if !ok {
		return ErrSessionNotFound
	}
	if t != nil {
		t.Drop()
	}
	// Return memory to the OS promptly after dropping a session. Without
	// this, freed piece buffers can linger and OOM memory-constrained
	// deployments (Docker, NAS).
	freeOSMemory()
	return nil
}

func (e *Engine) State(ctx context.Context, id domain.ContentID) (domain.SessionState, error) {
	id = id.Normalize()
	t := e.getTorrent(id)
	if t == nil {
		return domain.SessionState{}, ErrSessionNotFound
	}

	stats := t.Stats()
	now := time.Now().UTC()

	if !torrentInfoReady(t) {
		return domain.SessionState{
			ID:        id,
			Name:      t.Name(),
			Peers:     stats.ActivePeers,
			UpdatedAt: now,
		}, nil
	}

	length := t.Length()
	completed := t.BytesCompleted()
	progress := float64(0)
	if length > 0 {
		progress = float64(completed) / float64(length)
	}
	downloadSpeed, uploadSpeed := e.sampleSpeed(id, stats, now)

	return domain.SessionState{
		ID:            id,
		Name:          t.Name(),
		Length:        length,
		Progress:      progress,
		Downloaded:    stats.BytesReadUsefulData.Int64(),
		Uploaded:      stats.BytesWrittenData.Int64(),
		Peers:         stats.ActivePeers,
		DownloadSpeed: downloadSpeed,
		UploadSpeed:   uploadSpeed,
		Files:         mapFiles(t),
		UpdatedAt:     now,
	}, nil
}

func (e *Engine) List(ctx context.Context) ([]domain.ContentID, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]domain.ContentID, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Engine) Close() error {
	if e.client == nil {
		return nil
	}
	errList := e.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (e *Engine) getTorrent(id domain.ContentID) *torrent.Torrent {
	e.mu.RLock()
	t := e.sessions[id]
	e.mu.RUnlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.Closed():
		_ = e.Drop(context.Background(), id)
		return nil
	default:
		return t
	}
}

func freeOSMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}

func mapFiles(t *torrent.Torrent) []domain.FileRef {
	if !torrentInfoReady(t) {
		return nil
	}
	files := t.Files()
	mapped := make([]domain.FileRef, 0, len(files))
	for i, f := range files {
		mapped = append(mapped, domain.FileRef{
			Index:          i,
			Path:           f.Path(),
			Length:         f.Length(),
			BytesCompleted: f.BytesCompleted(),
		})
	}
	return mapped
}

func torrentInfoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}

type speedSample struct {
	at           time.Time
	bytesRead    int64
	bytesWritten int64
}

func (e *Engine) sampleSpeed(id domain.ContentID, stats torrent.TorrentStats, now time.Time) (int64, int64) {
	currentRead := stats.BytesReadUsefulData.Int64()
	currentWritten := stats.BytesWrittenData.Int64()

	e.speedMu.Lock()
	defer e.speedMu.Unlock()

	prev, ok := e.speeds[id]
	e.speeds[id] = speedSample{
		at:           now,
		bytesRead:    currentRead,
		bytesWritten: currentWritten,
	}

	if !ok || prev.at.IsZero() {
		return 0, 0
	}

	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0, 0
	}

	deltaRead := currentRead - prev.bytesRead
	deltaWritten := currentWritten - prev.bytesWritten
	if deltaRead < 0 {
		deltaRead = 0
	}
	if deltaWritten < 0 {
		deltaWritten = 0
	}

	return int64(float64(deltaRead) / dt), int64(float64(deltaWritten) / dt)
}

func (e *Engine) forgetSpeed(id domain.ContentID) {
	e.speedMu.Lock()
	delete(e.speeds, id)
	e.speedMu.Unlock()
}
