package dupes

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/lyallcooper/toolbox/internal/compare"
	"github.com/lyallcooper/toolbox/internal/hasher"
	"github.com/lyallcooper/toolbox/internal/types"
	"github.com/lyallcooper/toolbox/internal/walker"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"
)

// Comparator reports whether two files are byte-identical. Errors should
// carry the failing path as an *fs.PathError.
type Comparator func(a, b string) (bool, error)

// Finder runs the duplicate pipeline
type Finder struct {
	hasher  hasher.Hasher
	compare Comparator
	workers int
}

// NewFinder returns a Finder hashing with h and running up to workers hash
// or compare operations at once (0 = NumCPU).
func NewFinder(h hasher.Hasher, workers int) *Finder {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Finder{hasher: h, compare: compare.Identical, workers: workers}
}

// WithComparator replaces the byte-exact comparator.
func (f *Finder) WithComparator(c Comparator) *Finder {
	f.compare = c
	return f
}

// bucket is an intermediate set of candidates sharing a partition key.
type bucket struct {
	hash  string
	files []*types.FileCandidate
}

// scan holds the working state of a single Find call.
type scan struct {
	*Finder
	params   Params
	progress Progress
	percent  int
	total    int64
	skipped  atomic.Int64
}

// Find walks params.RootPath and returns its duplicate groups. It blocks
// until the scan is done. Files that fail to read are skipped and counted;
// only an unusable root or a cancelled context returns an error.
func (f *Finder) Find(ctx context.Context, params Params, progress Progress) (*Result, error) {
	if progress == nil {
		progress = nopProgress{}
	}
	if params.Methods.Empty() {
		return nil, fmt.Errorf("no detection method selected")
	}

	info, err := os.Stat(params.RootPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, params.RootPath)
	}

	s := &scan{Finder: f, params: params, progress: progress}
	s.report("Listing files...")

	walked, err := walker.Walk(walker.Options{
		Root:          params.RootPath,
		Recursive:     params.Recursive,
		IncludeHidden: params.IncludeHidden,
		MinSize:       params.MinSize,
		Workers:       f.workers,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	s.skipped.Add(walked.Skipped)
	s.total = int64(len(walked.Files))

	result := &Result{Groups: []Group{}}
	if s.total == 0 {
		result.Stats = s.stats(nil)
		return result, nil
	}
	s.report(fmt.Sprintf("Analysing %d files...", s.total))

	buckets := s.partitionBySize(walked.Files)

	if params.Methods.Hash {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buckets = s.refineByHash(buckets)
	}

	if params.Methods.Content {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buckets, err = s.verifyContent(ctx, buckets)
		if err != nil {
			return nil, err
		}
	}

	result.Groups = s.groups(buckets)
	result.Stats = s.stats(result.Groups)
	return result, nil
}

// partitionBySize buckets candidates by size, or returns one bucket holding
// every candidate when the size stage is off. Buckets of one are dropped.
func (s *scan) partitionBySize(files []*types.FileCandidate) []bucket {
	if !s.params.Methods.Size {
		s.advance(s.total)
		if len(files) < 2 {
			return nil
		}
		return []bucket{{files: files}}
	}

	bySize := make(map[int64][]*types.FileCandidate)
	for i, file := range files {
		bySize[file.Size] = append(bySize[file.Size], file)
		s.advance(int64(i + 1))
	}

	sizes := make([]int64, 0, len(bySize))
	for size, members := range bySize {
		if len(members) >= 2 {
			sizes = append(sizes, size)
		}
	}
	slices.Sort(sizes)

	buckets := make([]bucket, 0, len(sizes))
	for _, size := range sizes {
		buckets = append(buckets, bucket{files: bySize[size]})
	}
	return buckets
}

// refineByHash splits every bucket by (digest, size). Keying on size as well
// keeps groups size-uniform when the size stage did not run.
func (s *scan) refineByHash(buckets []bucket) []bucket {
	var count int
	for _, b := range buckets {
		count += len(b.files)
	}
	s.report(fmt.Sprintf("Computing hashes for %d files...", count))

	type key struct {
		hash string
		size int64
	}

	digests := make([][]string, len(buckets))
	p := pool.New().WithMaxGoroutines(s.workers)
	for i, b := range buckets {
		digests[i] = make([]string, len(b.files))
		for j, file := range b.files {
			p.Go(func() {
				digest, err := s.hasher.Hash(file)
				if err != nil {
					log.Printf("dupes: skipping %s: %v", file.Path, err)
					s.skipped.Add(1)
					return
				}
				digests[i][j] = digest
			})
		}
	}
	p.Wait()

	var refined []bucket
	for i, b := range buckets {
		subs := make(map[key][]*types.FileCandidate)
		var order []key
		for j, file := range b.files {
			digest := digests[i][j]
			if digest == "" {
				continue
			}
			k := key{hash: digest, size: file.Size}
			if _, ok := subs[k]; !ok {
				order = append(order, k)
			}
			subs[k] = append(subs[k], file)
		}
		for _, k := range order {
			if len(subs[k]) >= 2 {
				refined = append(refined, bucket{hash: k.hash, files: subs[k]})
			}
		}
	}
	return refined
}

// verifyContent splits every bucket into classes of byte-identical files.
// Buckets are processed concurrently; classes of one are dropped.
func (s *scan) verifyContent(ctx context.Context, buckets []bucket) ([]bucket, error) {
	s.report(fmt.Sprintf("Verifying content of %d groups...", len(buckets)))

	split := make([][]bucket, len(buckets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, b := range buckets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			classes, dropped := partitionIdentical(b.files, s.compare)
			s.skipped.Add(int64(dropped))
			for _, class := range classes {
				if len(class) >= 2 {
					split[i] = append(split[i], bucket{hash: b.hash, files: class})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var verified []bucket
	for _, bs := range split {
		verified = append(verified, bs...)
	}
	return verified, nil
}

// groups turns surviving buckets into sorted output groups.
func (s *scan) groups(buckets []bucket) []Group {
	groups := make([]Group, 0, len(buckets))
	for _, b := range buckets {
		seen := make(map[string]bool, len(b.files))
		members := make([]string, 0, len(b.files))
		for _, file := range b.files {
			if seen[file.Path] {
				continue
			}
			seen[file.Path] = true
			members = append(members, file.Path)
		}
		if len(members) < 2 {
			continue
		}
		slices.Sort(members)
		groups = append(groups, newGroup(b.files[0].Size, b.hash, members))
	}

	slices.SortFunc(groups, func(a, b Group) int {
		if c := cmp.Compare(b.WastedSpaceBytes, a.WastedSpaceBytes); c != 0 {
			return c
		}
		return strings.Compare(a.Members[0], b.Members[0])
	})
	return groups
}

func (s *scan) stats(groups []Group) Stats {
	st := Stats{
		TotalFiles:        s.total,
		ProcessedFiles:    s.total,
		DuplicateSetCount: int64(len(groups)),
		SkippedFiles:      s.skipped.Load(),
	}
	for _, g := range groups {
		st.DuplicateFileCount += int64(len(g.Members))
		st.WastedSpaceBytes += g.WastedSpaceBytes
	}
	return st
}

// advance reports stage-one progress after processed candidates. Progress
// is capped at 99 until the scan completes and only reported when the
// percentage moves.
func (s *scan) advance(processed int64) {
	pct := min(int(processed*100/s.total), 99)
	if pct == s.percent && processed != s.total {
		return
	}
	s.percent = pct
	s.progress.Report(types.ScanProgress{
		Progress:       pct,
		Message:        fmt.Sprintf("Analysing %d files...", s.total),
		TotalFiles:     s.total,
		ProcessedFiles: processed,
	})
}

func (s *scan) report(message string) {
	s.progress.Report(types.ScanProgress{
		Progress:       s.percent,
		Message:        message,
		TotalFiles:     s.total,
		ProcessedFiles: s.total,
	})
}
