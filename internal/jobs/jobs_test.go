package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lyallcooper/toolbox/internal/dupes"
	"github.com/lyallcooper/toolbox/internal/hasher"
	"github.com/lyallcooper/toolbox/internal/types"
)

// mockFinder implements Finder for testing
type mockFinder struct {
	mu sync.Mutex

	// Configurable responses
	result  *dupes.Result
	err     error
	panicOn bool
	updates []types.ScanProgress
	block   chan struct{}

	// Track calls
	calls int
}

func (m *mockFinder) Find(ctx context.Context, params dupes.Params, progress dupes.Progress) (*dupes.Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	for _, u := range m.updates {
		progress.Report(u)
	}
	if m.panicOn {
		panic("boom")
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func sampleResult() *dupes.Result {
	return &dupes.Result{
		Groups: []dupes.Group{{SizeBytes: 5, Members: []string{"/a", "/b"}, WastedSpaceBytes: 5}},
		Stats: dupes.Stats{
			TotalFiles:         3,
			ProcessedFiles:     3,
			DuplicateSetCount:  1,
			DuplicateFileCount: 2,
			WastedSpaceBytes:   5,
		},
	}
}

func testParams() dupes.Params {
	return dupes.Params{RootPath: "/data", Methods: dupes.MethodSet{Size: true, Hash: true}}
}

func newTestRegistry(f Finder) *Registry {
	return NewRegistry(NewMemoryStore(), f, NewPoolExecutor(2))
}

func waitTerminal(t *testing.T, r *Registry, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := r.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if job.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("scan %s did not finish", id)
	return nil
}

// ============================================================================
// Registry Tests
// ============================================================================

func TestSubmit_Synchronous(t *testing.T) {
	r := newTestRegistry(&mockFinder{result: sampleResult()})

	id, err := r.Submit(testParams(), false)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !strings.HasPrefix(id, "scan_") {
		t.Errorf("unexpected id format: %s", id)
	}

	job, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", job.Status)
	}
	if job.Progress != 100 {
		t.Errorf("Progress = %d, want 100", job.Progress)
	}
	if len(job.DuplicateGroups) != 1 || job.Stats.DuplicateSetCount != 1 {
		t.Errorf("results not stored: %+v", job)
	}
	if job.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if job.RootPath != "/data" || strings.Join(job.Methods, ",") != "size,hash" {
		t.Errorf("params not recorded: %s %v", job.RootPath, job.Methods)
	}
}

func TestSubmit_BackgroundReturnsImmediately(t *testing.T) {
	f := &mockFinder{result: sampleResult(), block: make(chan struct{})}
	r := newTestRegistry(f)

	id, err := r.Submit(testParams(), true)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	job, err := r.Get(id)
	if err != nil {
		t.Fatalf("id must be valid immediately: %v", err)
	}
	if job.Status != StatusRunning {
		t.Errorf("Status = %s, want running", job.Status)
	}

	close(f.block)
	job = waitTerminal(t, r, id)
	if job.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", job.Status)
	}
}

func TestSubmit_FailedScan(t *testing.T) {
	r := newTestRegistry(&mockFinder{err: dupes.ErrInvalidRoot})

	id, err := r.Submit(testParams(), false)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	job, _ := r.Get(id)
	if job.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", job.Status)
	}
	if job.Error == "" {
		t.Error("Error should be populated")
	}
	if len(job.DuplicateGroups) != 0 {
		t.Error("failed scan must not carry results")
	}
}

func TestSubmit_PanicMarksFailed(t *testing.T) {
	r := newTestRegistry(&mockFinder{panicOn: true})

	id, err := r.Submit(testParams(), true)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	job := waitTerminal(t, r, id)
	if job.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.Error, "boom") {
		t.Errorf("Error = %q, want panic value", job.Error)
	}
}

func TestGet_NotFound(t *testing.T) {
	r := newTestRegistry(&mockFinder{})
	if _, err := r.Get("scan_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_ReturnsSnapshot(t *testing.T) {
	r := newTestRegistry(&mockFinder{result: sampleResult()})
	id, _ := r.Submit(testParams(), false)

	job, _ := r.Get(id)
	job.Status = StatusFailed
	job.DuplicateGroups[0] = dupes.Group{}

	again, _ := r.Get(id)
	if again.Status != StatusCompleted {
		t.Error("mutating a snapshot changed the stored record")
	}
	if again.DuplicateGroups[0].SizeBytes != 5 {
		t.Error("mutating snapshot groups changed the stored record")
	}
}

func TestReporter_ProgressNeverMovesBackward(t *testing.T) {
	f := &mockFinder{
		result: sampleResult(),
		updates: []types.ScanProgress{
			{Progress: 10, Message: "a"},
			{Progress: 40, Message: "b"},
			{Progress: 20, Message: "c"},
			{Progress: 150, Message: "d"},
		},
	}
	r := newTestRegistry(f)
	id, _ := r.Submit(testParams(), true)

	ch := r.Subscribe(id)
	defer r.Unsubscribe(id, ch)

	job := waitTerminal(t, r, id)
	if job.Progress != 100 {
		t.Errorf("final progress = %d, want 100", job.Progress)
	}
}

func TestReporter_Updates(t *testing.T) {
	store := NewMemoryStore()
	r := NewRegistry(store, &mockFinder{}, NewPoolExecutor(1))
	job := &Job{ID: "scan_x", Status: StatusRunning}
	if err := store.Create(job); err != nil {
		t.Fatal(err)
	}
	rep := &Reporter{registry: r, id: "scan_x"}

	steps := []struct {
		in   int
		want int
	}{{5, 5}, {50, 50}, {30, 50}, {120, 99}, {0, 99}}
	for _, s := range steps {
		rep.Report(types.ScanProgress{Progress: s.in, Message: "step", TotalFiles: 10, ProcessedFiles: 4})
		got, _ := store.Get("scan_x")
		if got.Progress != s.want {
			t.Errorf("after %d: progress = %d, want %d", s.in, got.Progress, s.want)
		}
	}

	got, _ := store.Get("scan_x")
	if got.Message != "step" || got.Stats.TotalFiles != 10 || got.Stats.ProcessedFiles != 4 {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestSubscribe_ReceivesCompletion(t *testing.T) {
	f := &mockFinder{result: sampleResult(), block: make(chan struct{})}
	r := newTestRegistry(f)
	id, _ := r.Submit(testParams(), true)

	ch := r.Subscribe(id)
	close(f.block)

	var last *types.ScanProgress
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				if last == nil || last.Status != string(StatusCompleted) {
					t.Errorf("last event = %+v, want completed", last)
				}
				return
			}
			last = p
		case <-timeout:
			t.Fatal("subscriber channel never closed")
		}
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	r := newTestRegistry(&mockFinder{})
	ch := r.Subscribe("scan_a")
	r.Unsubscribe("scan_a", ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	// Second close must be harmless
	r.closeSubscribers("scan_a")
}

func TestPrune(t *testing.T) {
	store := NewMemoryStore()
	r := NewRegistry(store, &mockFinder{}, NewPoolExecutor(1))
	now := time.Now()
	r.now = func() time.Time { return now }

	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)
	for _, j := range []*Job{
		{ID: "old_done", Status: StatusCompleted, CompletedAt: &old},
		{ID: "old_failed", Status: StatusFailed, CompletedAt: &old},
		{ID: "recent", Status: StatusCompleted, CompletedAt: &recent},
		{ID: "running", Status: StatusRunning, CreatedAt: old},
	} {
		if err := store.Create(j); err != nil {
			t.Fatal(err)
		}
	}

	if removed := r.Prune(24 * time.Hour); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	for _, id := range []string{"recent", "running"} {
		if _, err := r.Get(id); err != nil {
			t.Errorf("%s should survive: %v", id, err)
		}
	}
	for _, id := range []string{"old_done", "old_failed"} {
		if _, err := r.Get(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s should be pruned", id)
		}
	}
}

func TestShutdown_CancelsBackgroundScans(t *testing.T) {
	f := &mockFinder{block: make(chan struct{})}
	r := newTestRegistry(f)
	id, _ := r.Submit(testParams(), true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	job, _ := r.Get(id)
	if job.Status != StatusFailed {
		t.Errorf("Status = %s, want failed after shutdown", job.Status)
	}
}

func TestConcurrentScans(t *testing.T) {
	r := newTestRegistry(&mockFinder{
		result:  sampleResult(),
		updates: []types.ScanProgress{{Progress: 10}, {Progress: 60}},
	})

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.Submit(testParams(), true)
			if err != nil {
				t.Errorf("Submit failed: %v", err)
				return
			}
			ids[i] = id
			// Poll while the scan runs
			for j := 0; j < 10; j++ {
				if _, err := r.Get(id); err != nil {
					t.Errorf("Get failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %s", id)
		}
		seen[id] = true
		if job := waitTerminal(t, r, id); job.Status != StatusCompleted {
			t.Errorf("%s: Status = %s", id, job.Status)
		}
	}

	jobs, _ := r.List()
	if len(jobs) != n {
		t.Errorf("List returned %d jobs, want %d", len(jobs), n)
	}
}

func TestPoolExecutor_Limit(t *testing.T) {
	e := NewPoolExecutor(2)
	var mu sync.Mutex
	running, peak := 0, 0

	for i := 0; i < 8; i++ {
		e.Submit(func() {
			mu.Lock()
			running++
			peak = max(peak, running)
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		})
	}

	if err := e.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

// ============================================================================
// End-to-end with the real pipeline
// ============================================================================

func TestRegistry_RealScan(t *testing.T) {
	root := t.TempDir()
	for name, content := range map[string]string{"a.txt": "hello", "b.txt": "hello", "c.txt": "world"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	h, _ := hasher.New(hasher.AlgorithmMD5)
	r := newTestRegistry(dupes.NewFinder(h, 2))

	id, err := r.Submit(dupes.Params{RootPath: root, Methods: dupes.MethodSet{Size: true, Hash: true}}, true)
	if err != nil {
		t.Fatal(err)
	}

	job := waitTerminal(t, r, id)
	if job.Status != StatusCompleted {
		t.Fatalf("Status = %s (%s)", job.Status, job.Error)
	}
	if job.Stats.DuplicateFileCount != 2 || job.Stats.WastedSpaceBytes != 5 {
		t.Errorf("unexpected stats: %+v", job.Stats)
	}

	id, _ = r.Submit(dupes.Params{RootPath: filepath.Join(root, "missing"), Methods: dupes.MethodSet{Size: true}}, false)
	if job, _ := r.Get(id); job.Status != StatusFailed {
		t.Errorf("missing root: Status = %s, want failed", job.Status)
	}
}
