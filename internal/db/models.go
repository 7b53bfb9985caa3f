package db

import "time"

// FileHashKey identifies one cached digest. A file whose size or
// modification time changed no longer matches its cached row.
type FileHashKey struct {
	Path      string
	Size      int64
	ModTimeNs int64
	Algorithm string
}

// FileHash is a cached digest row
type FileHash struct {
	FileHashKey
	Digest string
	SeenAt time.Time
}
