package domain

import "strings"

// ContentID is the hex-encoded SHA-1 info hash of a torrent's bencoded
// "info" dictionary. It uniquely names a piece of swarm content regardless
// of where it is fetched from, and is the key for every session map.
type ContentID string

// Normalize lowercases the hex representation so ids from magnet links,
// torrent files and the engine compare equal.
func (id ContentID) Normalize() ContentID {
	return ContentID(strings.ToLower(strings.TrimSpace(string(id))))
}
