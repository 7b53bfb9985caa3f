// Package walker enumerates candidate files under a root directory.
//
// Recursive walks use fastwalk so large trees are listed in parallel; the
// result is sorted by path afterwards so callers always see the same order
// for the same tree.
package walker

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/lyallcooper/toolbox/internal/types"
)

// HiddenPrefix marks a hidden path segment on every platform.
const HiddenPrefix = "."

// Options configures a walk
type Options struct {
	Root          string
	Recursive     bool
	IncludeHidden bool
	MinSize       int64 // Files smaller than this are dropped
	Workers       int   // fastwalk workers (0 = NumCPU)
}

// Result holds the candidates found by a walk
type Result struct {
	Files   []*types.FileCandidate
	Dirs    int64 // Directories visited below the root
	Skipped int64 // Entries that could not be read or stat'ed
}

// Walk enumerates regular files under opts.Root. Entries that cannot be read
// are skipped and counted; only a failure to open the root itself is
// returned as an error.
func Walk(opts Options) (*Result, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	w := &walk{opts: opts, root: root, result: &Result{}}
	if opts.Recursive {
		err = w.recursive()
	} else {
		err = w.flat()
	}
	if err != nil {
		return nil, err
	}

	slices.SortFunc(w.result.Files, func(a, b *types.FileCandidate) int {
		return strings.Compare(a.Path, b.Path)
	})
	return w.result, nil
}

type walk struct {
	opts   Options
	root   string
	mu     sync.Mutex
	result *Result
}

// flat lists only the direct children of the root.
func (w *walk) flat() error {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !w.opts.IncludeHidden && IsHidden(entry.Name()) {
			continue
		}
		if entry.IsDir() {
			w.result.Dirs++
			continue
		}
		w.visitFile(filepath.Join(w.root, entry.Name()), entry)
	}
	return nil
}

func (w *walk) recursive() error {
	workers := w.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	conf := fastwalk.Config{Follow: false, NumWorkers: workers}

	// fastwalk calls walkFn concurrently; visitFile and the counters below
	// take w.mu.
	walkFn := func(path string, d fs.DirEntry, err error) error {
		if path == w.root {
			return err
		}
		if err != nil {
			w.skip(path, err)
			if d != nil && d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		if !w.opts.IncludeHidden && w.hiddenBelowRoot(path) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			w.mu.Lock()
			w.result.Dirs++
			w.mu.Unlock()
			return nil
		}

		w.visitFile(path, d)
		return nil
	}

	return fastwalk.Walk(&conf, w.root, walkFn)
}

// visitFile stats a non-directory entry and records it if it qualifies.
// Symlinks are followed; dangling links and anything that is not a regular
// file once resolved are dropped.
func (w *walk) visitFile(path string, d fs.DirEntry) {
	var info fs.FileInfo
	var err error
	if d.Type()&fs.ModeSymlink != 0 {
		info, err = os.Stat(path)
	} else {
		info, err = d.Info()
	}
	if err != nil {
		w.skip(path, err)
		return
	}
	if !info.Mode().IsRegular() || info.Size() < w.opts.MinSize {
		return
	}

	w.mu.Lock()
	w.result.Files = append(w.result.Files, &types.FileCandidate{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
	w.mu.Unlock()
}

func (w *walk) skip(path string, err error) {
	log.Printf("walker: skipping %s: %v", path, err)
	w.mu.Lock()
	w.result.Skipped++
	w.mu.Unlock()
}

// hiddenBelowRoot reports whether any segment of path below the walk root is
// hidden. The root's own name is never considered.
func (w *walk) hiddenBelowRoot(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return IsHidden(filepath.Base(path))
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if IsHidden(part) {
			return true
		}
	}
	return false
}

// IsHidden reports whether a single path segment is hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, HiddenPrefix) && name != "." && name != ".."
}
