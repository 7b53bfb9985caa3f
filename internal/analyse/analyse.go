// Package analyse computes summary statistics for a directory tree.
package analyse

import (
	"cmp"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lyallcooper/toolbox/internal/types"
	"github.com/lyallcooper/toolbox/internal/walker"
)

// NoExtension is the file type key for files without an extension
const NoExtension = "no extension"

// topN is the length of the largest and newest file lists
const topN = 10

// FileInfo describes one file in a listing
type FileInfo struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	SizeHuman    string `json:"size_human"`
	Modified     int64  `json:"modified"`
	ModifiedDate string `json:"modified_date"`
}

// DirectoryStats summarizes a directory
type DirectoryStats struct {
	TotalSize      int64          `json:"total_size"`
	TotalSizeHuman string         `json:"total_size_human"`
	FileCount      int            `json:"file_count"`
	DirCount       int64          `json:"dir_count"`
	FileTypes      map[string]int `json:"file_types"`
	LargestFiles   []FileInfo     `json:"largest_files"`
	NewestFiles    []FileInfo     `json:"newest_files"`
}

// ExtensionStat aggregates files sharing an extension
type ExtensionStat struct {
	Count          int    `json:"count"`
	TotalSize      int64  `json:"total_size"`
	TotalSizeHuman string `json:"total_size_human"`
	Percentage     string `json:"percentage"`
}

// ExtensionStats maps extension to its aggregate
type ExtensionStats struct {
	Extensions map[string]ExtensionStat `json:"extensions"`
}

// Directory walks root and summarizes what it finds
func Directory(root string, includeHidden, recursive bool) (*DirectoryStats, error) {
	res, err := walker.Walk(walker.Options{
		Root:          root,
		Recursive:     recursive,
		IncludeHidden: includeHidden,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	stats := &DirectoryStats{
		FileCount: len(res.Files),
		DirCount:  res.Dirs,
		FileTypes: make(map[string]int),
	}
	for _, f := range res.Files {
		stats.TotalSize += f.Size
		stats.FileTypes[Extension(f.Path)]++
	}
	stats.TotalSizeHuman = humanize.IBytes(uint64(stats.TotalSize))

	largest := slices.Clone(res.Files)
	slices.SortStableFunc(largest, func(a, b *types.FileCandidate) int {
		return cmp.Compare(b.Size, a.Size)
	})
	stats.LargestFiles = fileInfos(largest)

	newest := slices.Clone(res.Files)
	slices.SortStableFunc(newest, func(a, b *types.FileCandidate) int {
		return b.ModTime.Compare(a.ModTime)
	})
	stats.NewestFiles = fileInfos(newest)

	return stats, nil
}

// Extensions counts files and bytes per extension. Hidden files are included.
func Extensions(root string, recursive bool) (*ExtensionStats, error) {
	res, err := walker.Walk(walker.Options{
		Root:          root,
		Recursive:     recursive,
		IncludeHidden: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	counts := make(map[string]int)
	sizes := make(map[string]int64)
	for _, f := range res.Files {
		ext := Extension(f.Path)
		counts[ext]++
		sizes[ext] += f.Size
	}

	out := &ExtensionStats{Extensions: make(map[string]ExtensionStat, len(counts))}
	for ext, n := range counts {
		out.Extensions[ext] = ExtensionStat{
			Count:          n,
			TotalSize:      sizes[ext],
			TotalSizeHuman: humanize.IBytes(uint64(sizes[ext])),
			Percentage:     fmt.Sprintf("%.1f%%", float64(n)/float64(len(res.Files))*100),
		}
	}
	return out, nil
}

// Extension returns the lowercased extension of path without its dot
func Extension(path string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(path)))
	if ext == "" || ext == "." || ext == filepath.Base(path) {
		return NoExtension
	}
	return ext[1:]
}

func fileInfos(files []*types.FileCandidate) []FileInfo {
	files = files[:min(len(files), topN)]
	infos := make([]FileInfo, 0, len(files))
	for _, f := range files {
		infos = append(infos, FileInfo{
			Name:         filepath.Base(f.Path),
			Path:         f.Path,
			Size:         f.Size,
			SizeHuman:    humanize.IBytes(uint64(f.Size)),
			Modified:     f.ModTime.Unix(),
			ModifiedDate: f.ModTime.Local().Format(time.DateTime),
		})
	}
	return infos
}
