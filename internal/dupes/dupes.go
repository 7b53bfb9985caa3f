// Package dupes finds duplicate files under a directory by funnelling
// candidates through size, digest and byte-exact stages.
package dupes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lyallcooper/toolbox/internal/types"
)

// Detection methods
const (
	MethodSize    = "size"
	MethodHash    = "hash"
	MethodContent = "content"
)

// ErrInvalidRoot is returned when the scan root is missing, unreadable or
// not a directory.
var ErrInvalidRoot = errors.New("invalid scan root")

// MethodSet selects the stages a scan runs. Stages always run in the order
// size, hash, content regardless of how the set was built.
type MethodSet struct {
	Size    bool
	Hash    bool
	Content bool
}

// ParseMethods builds a MethodSet from method names. Names are
// case-insensitive; duplicates are ignored. An empty list or an unknown name
// is an error.
func ParseMethods(names []string) (MethodSet, error) {
	var m MethodSet
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case MethodSize:
			m.Size = true
		case MethodHash:
			m.Hash = true
		case MethodContent:
			m.Content = true
		default:
			return MethodSet{}, fmt.Errorf("unknown method %q (valid: size, hash, content)", name)
		}
	}
	if m.Empty() {
		return MethodSet{}, errors.New("at least one method is required")
	}
	return m, nil
}

// Empty reports whether no stage is selected.
func (m MethodSet) Empty() bool {
	return !m.Size && !m.Hash && !m.Content
}

// Names returns the selected methods in stage order.
func (m MethodSet) Names() []string {
	names := make([]string, 0, 3)
	if m.Size {
		names = append(names, MethodSize)
	}
	if m.Hash {
		names = append(names, MethodHash)
	}
	if m.Content {
		names = append(names, MethodContent)
	}
	return names
}

// String implements fmt.Stringer
func (m MethodSet) String() string {
	return strings.Join(m.Names(), ",")
}

// Params describes one scan
type Params struct {
	RootPath      string
	Recursive     bool
	IncludeHidden bool
	MinSize       int64
	Methods       MethodSet
}

// Group is a set of files judged to be copies of each other
type Group struct {
	SizeBytes        int64    `json:"size_bytes"`
	ContentHash      string   `json:"content_hash,omitempty"`
	Members          []string `json:"members"`
	WastedSpaceBytes int64    `json:"wasted_space_bytes"`
}

func newGroup(size int64, hash string, members []string) Group {
	return Group{
		SizeBytes:        size,
		ContentHash:      hash,
		Members:          members,
		WastedSpaceBytes: size * int64(len(members)-1),
	}
}

// Stats aggregates a scan's outcome
type Stats struct {
	TotalFiles         int64 `json:"total_files"`
	ProcessedFiles     int64 `json:"processed_files"`
	DuplicateSetCount  int64 `json:"duplicate_set_count"`
	DuplicateFileCount int64 `json:"duplicate_file_count"`
	WastedSpaceBytes   int64 `json:"wasted_space_bytes"`
	SkippedFiles       int64 `json:"skipped_files"`
}

// Result is the output of a completed scan
type Result struct {
	Groups []Group `json:"duplicate_groups"`
	Stats  Stats   `json:"stats"`
}

// Progress receives pipeline updates. Implementations must tolerate calls
// from the goroutine running the scan only.
type Progress interface {
	Report(p types.ScanProgress)
}

type nopProgress struct{}

func (nopProgress) Report(types.ScanProgress) {}
