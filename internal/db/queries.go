package db

import (
	"time"
)

// FileHash queries

// GetFileHash returns the cached digest for key. It returns sql.ErrNoRows on a
// miss, including when the file changed since it was cached. A hit refreshes
// seen_at so retention only drops entries no scan has used recently.
func (db *DB) GetFileHash(key FileHashKey) (string, error) {
	var digest string
	err := db.QueryRow(`
		SELECT digest FROM file_hashes
		WHERE path = ? AND algorithm = ? AND size = ? AND mod_time_ns = ?`,
		key.Path, key.Algorithm, key.Size, key.ModTimeNs,
	).Scan(&digest)
	if err != nil {
		return "", err
	}

	_, err = db.Exec(`
		UPDATE file_hashes SET seen_at = ?
		WHERE path = ? AND algorithm = ?`,
		time.Now().Unix(), key.Path, key.Algorithm,
	)
	return digest, err
}

// PutFileHash inserts or replaces the digest for key
func (db *DB) PutFileHash(key FileHashKey, digest string) error {
	_, err := db.Exec(`
		INSERT INTO file_hashes (path, size, mod_time_ns, algorithm, digest, seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, algorithm) DO UPDATE SET
			size = excluded.size,
			mod_time_ns = excluded.mod_time_ns,
			digest = excluded.digest,
			seen_at = excluded.seen_at`,
		key.Path, key.Size, key.ModTimeNs, key.Algorithm, digest, time.Now().Unix(),
	)
	return err
}

// ListFileHashes returns cached rows ordered by path
func (db *DB) ListFileHashes(limit, offset int) ([]*FileHash, error) {
	rows, err := db.Query(`
		SELECT path, size, mod_time_ns, algorithm, digest, seen_at
		FROM file_hashes ORDER BY path LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []*FileHash
	for rows.Next() {
		var h FileHash
		var seenAt int64
		if err := rows.Scan(&h.Path, &h.Size, &h.ModTimeNs, &h.Algorithm, &h.Digest, &seenAt); err != nil {
			return nil, err
		}
		h.SeenAt = time.Unix(seenAt, 0)
		hashes = append(hashes, &h)
	}
	return hashes, rows.Err()
}

// CountFileHashes returns the number of cached digests
func (db *DB) CountFileHashes() (int64, error) {
	var count int64
	err := db.QueryRow("SELECT COUNT(*) FROM file_hashes").Scan(&count)
	return count, err
}

// CleanupOldData removes digests not seen within the retention period and
// returns how many rows were deleted
func (db *DB) CleanupOldData(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := db.Exec("DELETE FROM file_hashes WHERE seen_at < ?", cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
