package domain

import "strings"

// TorrentSource identifies where a torrent's metadata comes from: a magnet
// URI or a .torrent file on disk. Exactly one should be set.
type TorrentSource struct {
	Magnet      string `json:"magnet,omitempty"`
	TorrentPath string `json:"torrentPath,omitempty"`
}

func (s TorrentSource) IsZero() bool {
	return strings.TrimSpace(s.Magnet) == "" && strings.TrimSpace(s.TorrentPath) == ""
}
