package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zeebo/bencode"

	"swarmstream/internal/domain"
	"swarmstream/internal/torrentfile"
)

func writeSeedFixture(t *testing.T, dir, name string, length int64) (string, domain.ContentID) {
	t.Helper()
	raw, err := bencode.EncodeBytes(map[string]interface{}{
		"announce": "http://tracker.example:6969/announce",
		"info": map[string]interface{}{
			"length":       length,
			"name":         name,
			"piece length": int64(16384),
			"pieces":       "01234567890123456789",
		},
	})
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	id, err := torrentfile.InfoHash(raw)
	if err != nil {
		t.Fatalf("fixture hash: %v", err)
	}
	path := filepath.Join(dir, name+".torrent")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	return path, id
}

func openFromSeedFile(t *testing.T) func(src domain.TorrentSource) (*fakeSession, error) {
	t.Helper()
	return func(src domain.TorrentSource) (*fakeSession, error) {
		raw, err := os.ReadFile(src.TorrentPath)
		if err != nil {
			return nil, err
		}
		id, err := torrentfile.InfoHash(raw)
		if err != nil {
			return nil, err
		}
		return &fakeSession{id: id, name: torrentfile.DisplayName(raw)}, nil
	}
}

func TestReconcileSeedsReadmitsValidSeeds(t *testing.T) {
	seedDir := t.TempDir()
	_, idA := writeSeedFixture(t, seedDir, "sintel.mp4", 129241752)
	_, idB := writeSeedFixture(t, seedDir, "big_buck_bunny.mkv", 725106140)
	if err := os.WriteFile(filepath.Join(seedDir, "broken.torrent"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(seedDir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := newFakeEngine()
	engine.openFn = openFromSeedFile(t)
	l := newTestLifecycle(t, engine, time.Hour)
	recorder := &fakeRecorder{}
	uc := &ReconcileSeeds{Engine: engine, Lifecycle: l, SeedDir: seedDir, Recorder: recorder, Logger: testLogger()}

	readmitted, failed := uc.Run(context.Background())
	if readmitted != 2 {
		t.Fatalf("readmitted = %d, want 2", readmitted)
	}
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	for _, id := range []domain.ContentID{idA, idB} {
		if !l.TeardownPending(id) {
			t.Fatalf("no grace timer armed for readmitted seed %s", id)
		}
		if l.OpenStreams(id) != 0 {
			t.Fatalf("readmitted seed %s has open streams", id)
		}
	}

	kinds := recorder.kinds()
	if len(kinds) != 2 {
		t.Fatalf("recorded %d events, want 2: %v", len(kinds), kinds)
	}
	seen := make(map[domain.ContentID]bool)
	for _, ev := range recorder.events {
		if ev.Kind != domain.EventReconciled {
			t.Fatalf("event kind = %q, want %q", ev.Kind, domain.EventReconciled)
		}
		if ev.Name == "" {
			t.Fatalf("reconciled event for %s has no name", ev.ID)
		}
		seen[ev.ID] = true
	}
	if !seen[idA] || !seen[idB] {
		t.Fatalf("reconciled events cover %v, want both seeds", seen)
	}
}

func TestReconcileSeedsFreshGraceOnRestart(t *testing.T) {
	seedDir := t.TempDir()
	seedPath, id := writeSeedFixture(t, seedDir, "sintel.mp4", 100)

	engine := newFakeEngine()
	engine.openFn = openFromSeedFile(t)
	l := newTestLifecycle(t, engine, 40*time.Millisecond)
	uc := &ReconcileSeeds{Engine: engine, Lifecycle: l, SeedDir: seedDir, Logger: testLogger()}
	l.cfg.SeedDir = seedDir

	uc.Run(context.Background())

	waitFor(t, time.Second, func() bool {
		return len(engine.droppedIDs()) == 1
	})
	if engine.droppedIDs()[0] != id {
		t.Fatalf("dropped %q, want %q", engine.droppedIDs()[0], id)
	}
	waitFor(t, time.Second, func() bool {
		_, err := os.Stat(seedPath)
		return os.IsNotExist(err)
	})
}

func TestReconcileSeedsSkipsTrackedSessions(t *testing.T) {
	seedDir := t.TempDir()
	_, id := writeSeedFixture(t, seedDir, "sintel.mp4", 100)

	engine := newFakeEngine()
	engine.openFn = openFromSeedFile(t)
	l := newTestLifecycle(t, engine, time.Hour)
	l.StreamOpened(context.Background(), id, "sintel.mp4")

	uc := &ReconcileSeeds{Engine: engine, Lifecycle: l, SeedDir: seedDir, Logger: testLogger()}
	readmitted, failed := uc.Run(context.Background())
	if readmitted != 0 || failed != 0 {
		t.Fatalf("readmitted=%d failed=%d, want 0/0 for tracked session", readmitted, failed)
	}
	if l.TeardownPending(id) {
		t.Fatal("reconcile armed a timer under an open stream")
	}
}

func TestReconcileSeedsMissingDir(t *testing.T) {
	engine := newFakeEngine()
	l := newTestLifecycle(t, engine, time.Hour)
	uc := &ReconcileSeeds{
		Engine:    engine,
		Lifecycle: l,
		SeedDir:   filepath.Join(t.TempDir(), "does-not-exist"),
		Logger:    testLogger(),
	}
	if readmitted, failed := uc.Run(context.Background()); readmitted != 0 || failed != 0 {
		t.Fatalf("readmitted=%d failed=%d, want 0/0", readmitted, failed)
	}
}
