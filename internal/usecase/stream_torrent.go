package usecase

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"swarmstream/internal/domain"
	"swarmstream/internal/domain/ports"
)

const defaultReadahead = 8 << 20 // 8 MiB

// StreamResult is an open, positioned stream over one file of a session.
// The caller owns the reader and must close it when the consumer goes away.
type StreamResult struct {
	Session ports.Session
	File    domain.FileRef
	Reader  ports.StreamReader
}

// StreamTorrent opens (or re-uses) a swarm session and hands back a seekable
// reader over one of its files. First-time opens also persist a seed copy of
// the metainfo so the session can be re-admitted after a restart.
type StreamTorrent struct {
	Engine         ports.Engine
	SeedDir        string
	ReadaheadBytes int64
	Logger         *slog.Logger
}

// Execute resolves the session by id when known, falling back to opening
// src. fileIndex selects the file to stream; a negative index picks the
// largest file, which for video torrents is the movie itself.
func (uc *StreamTorrent) Execute(ctx context.Context, id domain.ContentID, src domain.TorrentSource, fileIndex int) (StreamResult, error) {
	session, err := uc.session(ctx, id, src)
	if err != nil {
		return StreamResult{}, err
	}

	file, err := uc.pickFile(session, fileIndex)
	if err != nil {
		return StreamResult{}, err
	}

	uc.archiveSeed(session)

	reader, err := session.NewReader(file)
	if err != nil {
		return StreamResult{}, wrapEngine("new reader", err)
	}
	readahead := uc.ReadaheadBytes
	if readahead <= 0 {
		readahead = defaultReadahead
	}
	reader.SetReadahead(readahead)
	// The reader stays in blocking mode. A responsive reader returns EOF
	// when piece data is not yet available, which truncates io.Copy mid
	// stream; blocking until pieces arrive is what HTTP consumers expect.

	uc.logger().Info("stream prepared",
		slog.String("id", string(session.ID())),
		slog.String("name", session.Name()),
		slog.String("file", file.Path),
		slog.Int64("length", file.Length),
	)
	return StreamResult{Session: session, File: file, Reader: reader}, nil
}

func (uc *StreamTorrent) session(ctx context.Context, id domain.ContentID, src domain.TorrentSource) (ports.Session, error) {
	if id != "" {
		session, err := uc.Engine.Get(ctx, id)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, wrapEngine("get session", err)
		}
		if src.IsZero() {
			return nil, domain.ErrNotFound
		}
	}
	if src.IsZero() {
		return nil, errors.New("torrent source is required")
	}
	session, err := uc.Engine.Open(ctx, src)
	if err != nil {
		if errors.Is(err, domain.ErrNoMetadata) {
			return nil, domain.ErrNoMetadata
		}
		return nil, wrapEngine("open session", err)
	}
	return session, nil
}

func (uc *StreamTorrent) pickFile(session ports.Session, fileIndex int) (domain.FileRef, error) {
	if fileIndex >= 0 {
		file, err := session.SelectFile(fileIndex)
		if err != nil {
			return domain.FileRef{}, domain.ErrNotFound
		}
		return file, nil
	}
	files := session.Files()
	if len(files) == 0 {
		return domain.FileRef{}, domain.ErrNoMetadata
	}
	largest := files[0]
	for _, f := range files[1:] {
		if f.Length > largest.Length {
			largest = f
		}
	}
	return largest, nil
}

// archiveSeed writes <name>.torrent into the seed dir if it is not already
// there. Best effort: streaming works fine without the seed copy, the
// session just will not survive a restart.
func (uc *StreamTorrent) archiveSeed(session ports.Session) {
	if strings.TrimSpace(uc.SeedDir) == "" || strings.TrimSpace(session.Name()) == "" {
		return
	}
	path := SeedFilePath(uc.SeedDir, session.Name())
	if _, err := os.Stat(path); err == nil {
		return
	}
	metainfo, err := session.Metainfo()
	if err != nil {
		uc.logger().Debug("seed copy unavailable",
			slog.String("id", string(session.ID())),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := os.WriteFile(path, metainfo, 0o644); err != nil {
		uc.logger().Warn("seed copy write failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func (uc *StreamTorrent) logger() *slog.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return slog.Default()
}
