// Package torrentfile computes content identifiers from raw .torrent bytes
// without involving a swarm engine.
package torrentfile

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"

	"github.com/zeebo/bencode"

	"swarmstream/internal/domain"
)

var ErrMissingInfo = errors.New("missing info dictionary")

// InfoHash computes the BitTorrent infohash: the SHA-1 of the raw bencoded
// "info" value, returned as a lowercase hex ContentID. The raw sub-slice is
// hashed as-is, so the result matches what any compliant client derives for
// the same metadata.
func InfoHash(raw []byte) (domain.ContentID, error) {
	var meta struct {
		Info bencode.RawMessage `bencode:"info"`
	}
	if err := bencode.DecodeBytes(raw, &meta); err != nil {
		return "", err
	}
	if len(meta.Info) == 0 {
		return "", ErrMissingInfo
	}
	sum := sha1.Sum(meta.Info)
	return domain.ContentID(hex.EncodeToString(sum[:])), nil
}

// DisplayName returns the torrent's info.name, or "" when the metadata is
// malformed or has no name.
func DisplayName(raw []byte) string {
	var meta struct {
		Info struct {
			Name string `bencode:"name"`
		} `bencode:"info"`
	}
	if err := bencode.DecodeBytes(raw, &meta); err != nil {
		return ""
	}
	return meta.Info.Name
}
