package domain

// TorrentSummary is the result of a metadata-only resolve: enough to show a
// file picker without keeping a live session around.
type TorrentSummary struct {
	ID     ContentID `json:"id"`
	Name   string    `json:"name"`
	Length int64     `json:"length"`
	Files  []FileRef `json:"files"`
}
