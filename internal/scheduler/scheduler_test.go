package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lyallcooper/toolbox/internal/config"
	"github.com/lyallcooper/toolbox/internal/db"
	"github.com/lyallcooper/toolbox/internal/dupes"
)

// mockScanner implements Scanner for testing
type mockScanner struct {
	mu        sync.Mutex
	submitted []dupes.Params
	pruned    []time.Duration
}

func (m *mockScanner) Submit(params dupes.Params, background bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, params)
	return "scan_test", nil
}

func (m *mockScanner) Prune(olderThan time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = append(m.pruned, olderThan)
	return 1
}

func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestNew(t *testing.T) {
	scanner := &mockScanner{}
	s, err := New(scanner, Options{Scans: []config.ScheduledScan{{Cron: "0 3 * * *", Path: "/data"}}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if s.scanner != scanner {
		t.Error("scheduler.scanner not set correctly")
	}
	if s.running {
		t.Error("scheduler should not be running initially")
	}
	// One scan plus housekeeping
	if len(s.entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(s.entries))
	}
}

func TestNewInvalidCron(t *testing.T) {
	_, err := New(&mockScanner{}, Options{Scans: []config.ScheduledScan{{Cron: "invalid cron", Path: "/data"}}})
	if err == nil {
		t.Error("New should fail with invalid cron expression")
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(&mockScanner{}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	// Start scheduler
	s.Start()

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running {
		t.Error("scheduler should be running after Start")
	}

	// Double start should be idempotent
	s.Start()

	// Stop scheduler
	s.Stop()

	s.mu.RLock()
	running = s.running
	s.mu.RUnlock()

	if running {
		t.Error("scheduler should not be running after Stop")
	}

	// Double stop should be safe
	s.Stop()
}

func TestCheckJobs_RunsDueScans(t *testing.T) {
	scanner := &mockScanner{}
	s, err := New(scanner, Options{Scans: []config.ScheduledScan{
		{Cron: "0 * * * *", Path: "/hourly"},
		{Cron: "0 0 1 1 *", Path: "/yearly"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	// Advance the clock past the next hourly run but not the yearly one
	now := time.Now()
	s.now = func() time.Time { return now.Add(61 * time.Minute) }
	for _, e := range s.entries {
		if e.name == "scan /yearly" {
			e.nextRun = now.Add(24 * time.Hour)
		}
	}

	s.checkJobs(context.Background())
	s.wg.Wait()

	scanner.mu.Lock()
	defer scanner.mu.Unlock()
	if len(scanner.submitted) != 1 {
		t.Fatalf("expected 1 scan, got %d", len(scanner.submitted))
	}
	p := scanner.submitted[0]
	if p.RootPath != "/hourly" || !p.Recursive || !p.Methods.Size || !p.Methods.Hash || p.MinSize != scheduledMinSize {
		t.Errorf("unexpected params: %+v", p)
	}

	for _, e := range s.entries {
		if e.name == "scan /hourly" && !e.nextRun.After(s.now()) {
			t.Error("next run should be rescheduled into the future")
		}
	}
}

func TestCheckJobs_CancelledContext(t *testing.T) {
	scanner := &mockScanner{}
	s, err := New(scanner, Options{Scans: []config.ScheduledScan{{Cron: "* * * * *", Path: "/data"}}})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	s.now = func() time.Time { return now.Add(2 * time.Minute) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.checkJobs(ctx)
	s.wg.Wait()

	if len(scanner.submitted) != 0 {
		t.Error("no scan should start after cancellation")
	}
}

func TestHousekeeping(t *testing.T) {
	database := testDB(t)
	key := db.FileHashKey{Path: "/old", Size: 1, ModTimeNs: 1, Algorithm: "md5"}
	if err := database.PutFileHash(key, "digest"); err != nil {
		t.Fatal(err)
	}
	old := time.Now().AddDate(0, 0, -90).Unix()
	if _, err := database.Exec("UPDATE file_hashes SET seen_at = ?", old); err != nil {
		t.Fatal(err)
	}

	scanner := &mockScanner{}
	s, err := New(scanner, Options{Cache: database, CacheRetentionDays: 30, JobRetention: 24 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	s.housekeeping(context.Background())

	count, err := database.CountFileHashes()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("stale digest not removed, %d rows left", count)
	}
	if len(scanner.pruned) != 1 || scanner.pruned[0] != 24*time.Hour {
		t.Errorf("pruned = %v", scanner.pruned)
	}
}

func TestHousekeeping_RetentionDisabled(t *testing.T) {
	scanner := &mockScanner{}
	s, err := New(scanner, Options{})
	if err != nil {
		t.Fatal(err)
	}

	s.housekeeping(context.Background())
	if len(scanner.pruned) != 0 {
		t.Error("jobs must not be pruned when retention is disabled")
	}
}

func TestNextRun(t *testing.T) {
	s, err := New(&mockScanner{}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cron    string
		wantErr bool
	}{
		{"every minute", "* * * * *", false},
		{"every hour", "0 * * * *", false},
		{"daily at 3am", "0 3 * * *", false},
		{"weekly", "0 0 * * 0", false},
		{"descriptor", "@daily", false},
		{"six fields", "0 0 3 * * *", true},
		{"garbage", "not a cron", true},
	}

	from := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := s.NextRun(tt.cron, from)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NextRun(%q) error = %v, wantErr %v", tt.cron, err, tt.wantErr)
			}
			if err == nil && !next.After(from) {
				t.Errorf("NextRun(%q) = %v, want after %v", tt.cron, next, from)
			}
		})
	}
}
