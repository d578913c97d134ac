package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"swarmstream/internal/domain"
)

func streamableSession() *fakeSession {
	return &fakeSession{
		id:     testID,
		name:   "sintel.mp4",
		length: 21,
		files: []domain.FileRef{
			{Index: 0, Path: "sintel.mp4", Length: 21},
			{Index: 1, Path: "sample/sample.mp4", Length: 4},
		},
		metainfo: []byte("d4:infod4:name6:sintelee"),
		content:  []byte("pretend video payload"),
	}
}

func TestStreamTorrentReusesTrackedSession(t *testing.T) {
	engine := newFakeEngine()
	engine.add(streamableSession())
	uc := &StreamTorrent{Engine: engine, Logger: testLogger()}

	res, err := uc.Execute(context.Background(), testID, domain.TorrentSource{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer res.Reader.Close()

	if res.File.Path != "sintel.mp4" {
		t.Fatalf("file = %q, want sintel.mp4", res.File.Path)
	}
	payload, err := io.ReadAll(res.Reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(payload) != "pretend video payload" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestStreamTorrentPicksLargestFileByDefault(t *testing.T) {
	engine := newFakeEngine()
	engine.add(streamableSession())
	uc := &StreamTorrent{Engine: engine, Logger: testLogger()}

	res, err := uc.Execute(context.Background(), testID, domain.TorrentSource{}, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer res.Reader.Close()
	if res.File.Index != 0 {
		t.Fatalf("picked file %d, want largest (0)", res.File.Index)
	}
}

func TestStreamTorrentOpensWhenUntracked(t *testing.T) {
	engine := newFakeEngine()
	engine.openFn = func(src domain.TorrentSource) (*fakeSession, error) {
		if src.Magnet == "" {
			return nil, errors.New("expected magnet source")
		}
		return streamableSession(), nil
	}
	seedDir := t.TempDir()
	uc := &StreamTorrent{Engine: engine, SeedDir: seedDir, Logger: testLogger()}

	res, err := uc.Execute(context.Background(), "", domain.TorrentSource{Magnet: "magnet:?xt=urn:btih:" + string(testID)}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer res.Reader.Close()

	seedPath := SeedFilePath(seedDir, "sintel.mp4")
	raw, err := os.ReadFile(seedPath)
	if err != nil {
		t.Fatalf("seed copy not written: %v", err)
	}
	if string(raw) != "d4:infod4:name6:sintelee" {
		t.Fatal("seed copy differs from session metainfo")
	}
}

func TestStreamTorrentConfiguresReader(t *testing.T) {
	engine := newFakeEngine()
	engine.add(streamableSession())
	uc := &StreamTorrent{Engine: engine, ReadaheadBytes: 1 << 20, Logger: testLogger()}

	res, err := uc.Execute(context.Background(), testID, domain.TorrentSource{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer res.Reader.Close()

	reader := res.Reader.(*fakeReader)
	if reader.readahead != 1<<20 {
		t.Fatalf("readahead = %d, want %d", reader.readahead, 1<<20)
	}
}

func TestStreamTorrentUnknownIDWithoutSource(t *testing.T) {
	uc := &StreamTorrent{Engine: newFakeEngine(), Logger: testLogger()}
	_, err := uc.Execute(context.Background(), testID, domain.TorrentSource{}, 0)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStreamTorrentBadFileIndex(t *testing.T) {
	engine := newFakeEngine()
	engine.add(streamableSession())
	uc := &StreamTorrent{Engine: engine, Logger: testLogger()}

	_, err := uc.Execute(context.Background(), testID, domain.TorrentSource{}, 7)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStreamTorrentNoMetadataPassthrough(t *testing.T) {
	engine := newFakeEngine()
	engine.openErr = domain.ErrNoMetadata
	uc := &StreamTorrent{Engine: engine, Logger: testLogger()}

	_, err := uc.Execute(context.Background(), "", domain.TorrentSource{Magnet: "magnet:?xt=urn:btih:" + string(testID)}, 0)
	if !errors.Is(err, domain.ErrNoMetadata) {
		t.Fatalf("err = %v, want ErrNoMetadata", err)
	}
}
