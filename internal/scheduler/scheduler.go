// Package scheduler runs recurring duplicate scans and periodic
// housekeeping of the digest cache and finished scan records.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lyallcooper/toolbox/internal/config"
	"github.com/lyallcooper/toolbox/internal/db"
	"github.com/lyallcooper/toolbox/internal/dupes"
	"github.com/robfig/cron/v3"
)

// housekeepingCron is when cache and job retention sweeps run
const housekeepingCron = "@daily"

// Defaults for scheduled scans
const scheduledMinSize = 1024

// Scanner submits scans and prunes finished ones
type Scanner interface {
	Submit(params dupes.Params, background bool) (string, error)
	Prune(olderThan time.Duration) int
}

// Options configures the scheduler
type Options struct {
	Scans              []config.ScheduledScan
	Cache              *db.DB // nil skips cache cleanup
	CacheRetentionDays int
	JobRetention       time.Duration // 0 keeps finished scans
}

// entry is one scheduled task
type entry struct {
	name     string
	schedule cron.Schedule
	nextRun  time.Time
	run      func(ctx context.Context)
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	scanner Scanner
	opts    Options
	parser  cron.Parser
	now     func() time.Time

	mu       sync.RWMutex
	entries  []*entry
	running  bool
	stopChan chan struct{}
	cancel   context.CancelFunc // Cancel function for running jobs
	wg       sync.WaitGroup     // Tracks spawned job goroutines
}

// New creates a scheduler. Invalid cron expressions are rejected.
func New(scanner Scanner, opts Options) (*Scheduler, error) {
	s := &Scheduler{
		scanner: scanner,
		opts:    opts,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:     time.Now,
	}

	for _, sc := range opts.Scans {
		path := sc.Path
		if err := s.add("scan "+path, sc.Cron, func(ctx context.Context) { s.runScan(ctx, path) }); err != nil {
			return nil, err
		}
	}
	if err := s.add("housekeeping", housekeepingCron, s.housekeeping); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) add(name, expr string, run func(ctx context.Context)) error {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", expr, name, err)
	}
	s.entries = append(s.entries, &entry{
		name:     name,
		schedule: schedule,
		nextRun:  schedule.Next(s.now()),
		run:      run,
	})
	return nil
}

// NextRun returns when expr next fires after from
func (s *Scheduler) NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})

	// Create cancellable context for all spawned jobs
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	log.Printf("scheduler: started with %d scheduled scans", len(s.opts.Scans))
	go s.run(ctx, s.stopChan)
}

// Stop stops the scheduler and waits for running jobs to complete
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)

	// Cancel all running job contexts
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	// Wait for all spawned job goroutines to finish
	s.wg.Wait()
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.checkJobs(ctx)
		}
	}
}

// checkJobs starts every entry that is due and schedules its next run
func (s *Scheduler) checkJobs(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !now.Before(e.nextRun) {
			due = append(due, e)
			e.nextRun = e.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if ctx.Err() != nil {
				log.Printf("scheduler: %s cancelled before start", e.name)
				return
			}
			e.run(ctx)
		}()
	}
}

// runScan submits a background scan of path
func (s *Scheduler) runScan(ctx context.Context, path string) {
	id, err := s.scanner.Submit(dupes.Params{
		RootPath:  path,
		Recursive: true,
		MinSize:   scheduledMinSize,
		Methods:   dupes.MethodSet{Size: true, Hash: true},
	}, true)
	if err != nil {
		log.Printf("scheduler: failed to start scan of %s: %v", path, err)
		return
	}
	log.Printf("scheduler: started scan %s of %s", id, path)
}

// housekeeping drops stale cache entries and old scan records
func (s *Scheduler) housekeeping(ctx context.Context) {
	if s.opts.Cache != nil && s.opts.CacheRetentionDays > 0 {
		deleted, err := s.opts.Cache.CleanupOldData(s.opts.CacheRetentionDays)
		if err != nil {
			log.Printf("scheduler: cache cleanup failed: %v", err)
		} else if deleted > 0 {
			log.Printf("scheduler: removed %d stale cached digests", deleted)
		}
	}

	if s.opts.JobRetention > 0 {
		if removed := s.scanner.Prune(s.opts.JobRetention); removed > 0 {
			log.Printf("scheduler: pruned %d finished scans", removed)
		}
	}
}
