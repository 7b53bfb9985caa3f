// Package hasher computes streaming content digests for duplicate grouping.
package hasher

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/lyallcooper/toolbox/internal/types"
)

// blockSize is the read buffer size (64KB)
const blockSize = 64 * 1024

// Supported algorithms
const (
	AlgorithmMD5    = "md5"
	AlgorithmSHA256 = "sha256"
	AlgorithmXXHash = "xxhash"
)

// ErrSizeChanged is returned when a file no longer has the size it had at
// enumeration time.
var ErrSizeChanged = errors.New("file size changed since enumeration")

// Hasher computes a digest for a candidate file.
type Hasher interface {
	Hash(f *types.FileCandidate) (string, error)
}

// StreamHasher reads files in fixed-size blocks so memory use does not
// depend on file size.
type StreamHasher struct {
	algorithm string
	newHash   func() hash.Hash
}

// New returns a StreamHasher for the named algorithm.
func New(algorithm string) (*StreamHasher, error) {
	var fn func() hash.Hash
	switch algorithm {
	case AlgorithmMD5, "":
		algorithm = AlgorithmMD5
		fn = md5.New
	case AlgorithmSHA256:
		fn = sha256.New
	case AlgorithmXXHash:
		fn = func() hash.Hash { return xxhash.New() }
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}
	return &StreamHasher{algorithm: algorithm, newHash: fn}, nil
}

// Algorithm returns the algorithm name.
func (h *StreamHasher) Algorithm() string {
	return h.algorithm
}

// Hash digests the candidate and checks that the bytes read match the size
// recorded at enumeration time.
func (h *StreamHasher) Hash(f *types.FileCandidate) (string, error) {
	digest, n, err := h.HashFile(f.Path)
	if err != nil {
		return "", err
	}
	if n != f.Size {
		return "", fmt.Errorf("%s: %w (was %d, read %d)", f.Path, ErrSizeChanged, f.Size, n)
	}
	return digest, nil
}

// HashFile returns the hex digest of the file at path and the number of
// bytes read.
func (h *StreamHasher) HashFile(path string) (digest string, bytesRead int64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = file.Close() }()

	hasher := h.newHash()
	buf := make([]byte, blockSize)
	n, err := io.CopyBuffer(hasher, file, buf)
	if err != nil {
		return "", n, err
	}

	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}
