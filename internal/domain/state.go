package domain

import "time"

// SessionState is a read-only snapshot of a live engine session.
type SessionState struct {
	ID            ContentID `json:"id"`
	Name          string    `json:"name"`
	Length        int64     `json:"length"`
	Progress      float64   `json:"progress"`
	Downloaded    int64     `json:"downloaded"`
	Uploaded      int64     `json:"uploaded"`
	Peers         int       `json:"peers"`
	DownloadSpeed int64     `json:"downloadSpeed"`
	UploadSpeed   int64     `json:"uploadSpeed"`
	Files         []FileRef `json:"files,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
