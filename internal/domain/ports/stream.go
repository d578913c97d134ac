package ports

import "io"

// StreamReader is a seekable view over one file of a session. Readers block
// until the backing piece data arrives; an early-return mode would truncate
// io.Copy for HTTP consumers.
type StreamReader interface {
	io.ReadSeekCloser
	SetReadahead(int64)
}
