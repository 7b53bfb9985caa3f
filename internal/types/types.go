package types

import "time"

// FileCandidate is a file eligible for duplicate consideration after
// walk-time filtering.
type FileCandidate struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// ScanProgress represents scan progress for SSE updates
type ScanProgress struct {
	Progress       int
	Message        string
	TotalFiles     int64
	ProcessedFiles int64
	Status         string
}
