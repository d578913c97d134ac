package usecase

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"swarmstream/internal/domain"
	"swarmstream/internal/domain/ports"
)

const defaultGracePeriod = 60 * time.Second

type LifecycleConfig struct {
	GracePeriod  time.Duration // delay after the last consumer disconnects; default 60s
	DataDir      string        // downloaded piece data, deleted on teardown unless KeepData
	SeedDir      string        // persisted <name>.torrent seed copies
	KeepData     bool
	KeepTorrents bool
}

// Lifecycle owns the per-content stream reference counts and grace-period
// teardown timers. All public operations are methods on one instance so
// tests can run several managers independently.
//
// Phase machine per content id:
//
//	Active (count > 0)  --last close-->  Draining (timer armed)
//	Draining  --open-->  Active (timer cancelled)
//	Draining  --timer fires-->  Removed (entry deleted, session destroyed)
//
// Removed is entered under the lock before the engine destroy call, so a
// destroy in flight is a point of no return: a racing StreamOpened starts a
// fresh Active entry and the caller opens a brand-new session.
type Lifecycle struct {
	engine   ports.Engine
	cfg      LifecycleConfig
	logger   *slog.Logger
	recorder ports.EventRecorder

	mu      sync.Mutex
	entries map[domain.ContentID]*streamEntry
	closed  bool
}

type streamEntry struct {
	name     string
	count    int
	phase    domain.StreamPhase
	timer    *time.Timer
	deadline time.Time
}

func NewLifecycle(engine ports.Engine, cfg LifecycleConfig, logger *slog.Logger) *Lifecycle {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		engine:  engine,
		cfg:     cfg,
		logger:  logger,
		entries: make(map[domain.ContentID]*streamEntry),
	}
}

// SetRecorder attaches an optional event sink. Recording failures are
// logged and never affect the lifecycle.
func (l *Lifecycle) SetRecorder(rec ports.EventRecorder) {
	l.recorder = rec
}

// StreamOpened registers one more open consumer stream for id and cancels a
// pending teardown unconditionally: an opened stream always wins over a
// scheduled teardown, however close its deadline.
func (l *Lifecycle) StreamOpened(ctx context.Context, id domain.ContentID, name string) {
	id = id.Normalize()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	e, ok := l.entries[id]
	if !ok {
		e = &streamEntry{phase: domain.PhaseActive}
		l.entries[id] = e
	}
	if name != "" {
		e.name = name
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
		e.deadline = time.Time{}
		e.phase = domain.PhaseActive
		l.logger.Info("teardown cancelled",
			slog.String("id", string(id)),
			slog.String("name", e.name),
		)
	}
	e.count++
	count := e.count
	name = e.name
	l.mu.Unlock()

	l.logger.Debug("stream opened",
		slog.String("id", string(id)),
		slog.String("name", name),
		slog.Int("openStreams", count),
	)
	l.record(ctx, domain.StreamEvent{ID: id, Name: name, Kind: domain.EventStreamOpened, OpenStreams: count, At: time.Now().UTC()})
}

// StreamClosed unregisters one consumer stream. When the count reaches zero
// a grace timer is armed, unless one is already pending; an existing timer's
// deadline is never extended or reset. A close with no live entry is clamped
// to zero but still drains, matching the observed behavior of counters that
// default an unknown id before decrementing.
func (l *Lifecycle) StreamClosed(ctx context.Context, id domain.ContentID) {
	id = id.Normalize()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	e, ok := l.entries[id]
	if !ok {
		l.logger.Warn("stream closed with no open streams", slog.String("id", string(id)))
		e = &streamEntry{phase: domain.PhaseActive}
		l.entries[id] = e
	}
	if e.count > 0 {
		e.count--
	} else if ok {
		l.logger.Warn("stream closed with count already zero", slog.String("id", string(id)))
	}
	count := e.count
	name := e.name
	armed := false
	if e.count == 0 && e.timer == nil {
		l.armLocked(id, e)
		armed = true
	}
	l.mu.Unlock()

	l.logger.Debug("stream closed",
		slog.String("id", string(id)),
		slog.String("name", name),
		slog.Int("openStreams", count),
		slog.Bool("teardownArmed", armed),
	)
	l.record(ctx, domain.StreamEvent{ID: id, Name: name, Kind: domain.EventStreamClosed, OpenStreams: count, At: time.Now().UTC()})
}

// ScheduleTeardown arms a grace timer for a session that has no consumers,
// creating the entry if needed. Used by the seed reconciler to give
// re-admitted sessions a fresh grace period. Arming is idempotent: a
// pending timer or an active stream makes this a no-op.
func (l *Lifecycle) ScheduleTeardown(ctx context.Context, id domain.ContentID, name string) {
	id = id.Normalize()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	e, ok := l.entries[id]
	if !ok {
		e = &streamEntry{name: name, phase: domain.PhaseActive}
		l.entries[id] = e
	}
	if e.name == "" {
		e.name = name
	}
	if e.count == 0 && e.timer == nil {
		l.armLocked(id, e)
	}
	l.mu.Unlock()
}

// OpenStreams returns the current open-stream count for id.
func (l *Lifecycle) OpenStreams(id domain.ContentID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[id.Normalize()]; ok {
		return e.count
	}
	return 0
}

// TeardownPending reports whether a grace timer is armed for id.
func (l *Lifecycle) TeardownPending(id domain.ContentID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id.Normalize()]
	return ok && e.timer != nil
}

// TeardownDeadline returns the armed timer's deadline, if any.
func (l *Lifecycle) TeardownDeadline(id domain.ContentID) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id.Normalize()]
	if !ok || e.timer == nil {
		return time.Time{}, false
	}
	return e.deadline, true
}

// Phase returns the lifecycle phase for id; absent ids report PhaseRemoved.
func (l *Lifecycle) Phase(id domain.ContentID) domain.StreamPhase {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[id.Normalize()]; ok {
		return e.phase
	}
	return domain.PhaseRemoved
}

// TotalOpenStreams sums open streams across all content ids.
func (l *Lifecycle) TotalOpenStreams() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, e := range l.entries {
		total += e.count
	}
	return total
}

// Close stops all pending timers. No teardowns fire after Close; shutdown
// cleanup is the engine's problem.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	for id, e := range l.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		delete(l.entries, id)
	}
}

// armLocked transitions the entry to Draining and starts the grace timer.
// Caller must hold l.mu and have checked count == 0 && timer == nil.
func (l *Lifecycle) armLocked(id domain.ContentID, e *streamEntry) {
	if !domain.CanTransition(e.phase, domain.PhaseDraining) && e.phase != domain.PhaseDraining {
		return
	}
	e.phase = domain.PhaseDraining
	e.deadline = time.Now().Add(l.cfg.GracePeriod)
	e.timer = time.AfterFunc(l.cfg.GracePeriod, func() {
		l.teardown(id)
	})
	l.logger.Info("teardown scheduled",
		slog.String("id", string(id)),
		slog.String("name", e.name),
		slog.Duration("grace", l.cfg.GracePeriod),
	)
}

// teardown runs when a grace timer fires. The entry is deleted before any
// engine call, so late StreamOpened calls for the same id never resurrect a
// half-destroyed session.
func (l *Lifecycle) teardown(id domain.ContentID) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok || e.count > 0 || e.phase != domain.PhaseDraining {
		// Cancelled or re-activated between fire and lock acquisition.
		l.mu.Unlock()
		return
	}
	e.phase = domain.PhaseRemoved
	e.timer = nil
	name := e.name
	delete(l.entries, id)
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	state, stateErr := l.engine.State(ctx, id)
	if stateErr == nil && name == "" {
		name = state.Name
	}

	if err := l.engine.Drop(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		l.logger.Warn("session destroy failed",
			slog.String("id", string(id)),
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	}

	if !l.cfg.KeepData && stateErr == nil {
		l.removeDataFiles(id, state.Files)
	}
	if !l.cfg.KeepTorrents {
		l.removeSeedFile(id, name)
	}

	l.logger.Info("session torn down",
		slog.String("id", string(id)),
		slog.String("name", name),
	)
	l.record(ctx, domain.StreamEvent{ID: id, Name: name, Kind: domain.EventTeardown, At: time.Now().UTC()})
}

// removeDataFiles deletes downloaded data under DataDir. Paths that would
// escape the data dir are rejected; all failures are logged and swallowed.
func (l *Lifecycle) removeDataFiles(id domain.ContentID, files []domain.FileRef) {
	baseDir := strings.TrimSpace(l.cfg.DataDir)
	if baseDir == "" {
		return
	}
	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		l.logger.Warn("data cleanup skipped", slog.String("id", string(id)), slog.String("error", err.Error()))
		return
	}
	baseAbs = filepath.Clean(baseAbs)

	for _, file := range files {
		if strings.TrimSpace(file.Path) == "" || filepath.IsAbs(file.Path) {
			l.logger.Warn("data cleanup: invalid file path",
				slog.String("id", string(id)),
				slog.String("path", file.Path),
			)
			continue
		}
		fullPath := filepath.Clean(filepath.Join(baseAbs, filepath.FromSlash(file.Path)))
		if fullPath == baseAbs || !strings.HasPrefix(fullPath, baseAbs+string(os.PathSeparator)) {
			l.logger.Warn("data cleanup: path escapes data dir",
				slog.String("id", string(id)),
				slog.String("path", file.Path),
			)
			continue
		}
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			l.logger.Warn("data cleanup failed",
				slog.String("id", string(id)),
				slog.String("path", file.Path),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (l *Lifecycle) removeSeedFile(id domain.ContentID, name string) {
	if strings.TrimSpace(l.cfg.SeedDir) == "" || strings.TrimSpace(name) == "" {
		return
	}
	path := SeedFilePath(l.cfg.SeedDir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("seed file cleanup failed",
			slog.String("id", string(id)),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Lifecycle) record(ctx context.Context, ev domain.StreamEvent) {
	if l.recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := l.recorder.Record(recordCtx, ev); err != nil {
		l.logger.Debug("event record failed",
			slog.String("id", string(ev.ID)),
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

// SeedFilePath derives the deterministic seed file location for a session's
// display name: <seedDir>/<name>.torrent, with path separators flattened so
// the name cannot address outside the seed dir.
func SeedFilePath(seedDir, name string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(name))
	return filepath.Join(seedDir, safe+".torrent")
}
