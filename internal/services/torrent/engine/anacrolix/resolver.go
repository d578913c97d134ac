package anacrolix

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/anacrolix/torrent"

	"swarmstream/internal/domain"
)

// Resolver fetches torrent metadata with an ephemeral client per call,
// isolated from the long-lived streaming engine so that metadata-only
// lookups never count against its connection limits. The caller bounds the
// wait with the context deadline; on both outcomes the torrent is dropped
// and the client closed, and the double-destroy on shutdown is harmless.
type Resolver struct {
	ScratchDir string
}

func (r *Resolver) Resolve(ctx context.Context, src domain.TorrentSource) (domain.TorrentSummary, []byte, error) {
	if src.IsZero() {
		return domain.TorrentSummary{}, nil, domain.ErrNoMetadata
	}

	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = r.ScratchDir
	if cfg.DataDir == "" {
		cfg.DataDir = os.TempDir()
	}
	cfg.NoUpload = true
	cfg.ListenPort = 0

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return domain.TorrentSummary{}, nil, err
	}
	defer client.Close()

	var t *torrent.Torrent
	if strings.TrimSpace(src.Magnet) != "" {
		t, err = client.AddMagnet(src.Magnet)
	} else {
		t, err = client.AddTorrentFromFile(src.TorrentPath)
	}
	if err != nil {
		return domain.TorrentSummary{}, nil, err
	}
	defer t.Drop()

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		return domain.TorrentSummary{}, nil, ctx.Err()
	}

	summary := domain.TorrentSummary{
		ID:     domain.ContentID(t.InfoHash().HexString()).Normalize(),
		Name:   t.Name(),
		Length: t.Length(),
		Files:  mapFiles(t),
	}

	mi := t.Metainfo()
	var buf bytes.Buffer
	if err := mi.Write(&buf); err != nil {
		// Summary is still usable without the raw bytes.
		return summary, nil, nil
	}
	return summary, buf.Bytes(), nil
}
