package torrentfile

import (
	"testing"

	"github.com/zeebo/bencode"
)

// buildTorrent encodes a minimal single-file torrent. bencode requires
// sorted dictionary keys, so encoding a map is canonical by construction.
func buildTorrent(t *testing.T, name string, length int64) []byte {
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
	return raw
}

func TestInfoHashDeterministic(t *testing.T) {
	raw := buildTorrent(t, "sintel.mp4", 129241752)

	first, err := InfoHash(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := InfoHash(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("hash not deterministic: %q vs %q", first, second)
	}
	if len(first) != 40 {
		t.Fatalf("expected 40 hex chars, got %d (%q)", len(first), first)
	}
	for _, c := range string(first) {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("non-lowercase-hex char %q in %q", c, first)
		}
	}
}

func TestInfoHashStableAcrossReencode(t *testing.T) {
	raw := buildTorrent(t, "big_buck_bunny.mkv", 725106140)

	original, err := InfoHash(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode into a generic structure and encode again; the canonical
	// encoding must reproduce the identifier.
	var decoded interface{}
	if err := bencode.DecodeBytes(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	reencoded, err := bencode.EncodeBytes(decoded)
	if err != nil {
		t.Fatalf("reencode: %v", err)
	}

	roundTripped, err := InfoHash(reencoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roundTripped != original {
		t.Fatalf("hash changed across decode/encode: %q vs %q", roundTripped, original)
	}
}

func TestInfoHashDiffersPerContent(t *testing.T) {
	a, err := InfoHash(buildTorrent(t, "a.mp4", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := InfoHash(buildTorrent(t, "b.mp4", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Fatal("different content produced identical identifiers")
	}
}

func TestInfoHashMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not a torrent at all")},
		{"no_info", mustEncode(t, map[string]interface{}{"announce": "http://x"})},
		{"truncated", buildTorrent(t, "x.mp4", 1)[:10]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := InfoHash(tt.raw); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	raw := buildTorrent(t, "sintel.mp4", 1)
	if got := DisplayName(raw); got != "sintel.mp4" {
		t.Fatalf("DisplayName = %q, want %q", got, "sintel.mp4")
	}
	if got := DisplayName([]byte("junk")); got != "" {
		t.Fatalf("DisplayName on junk = %q, want empty", got)
	}
}

func mustEncode(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := bencode.EncodeBytes(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}
