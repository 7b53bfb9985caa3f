package jobs

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lyallcooper/toolbox/internal/dupes"
	"github.com/lyallcooper/toolbox/internal/types"
)

// Finder runs the duplicate pipeline
type Finder interface {
	Find(ctx context.Context, params dupes.Params, progress dupes.Progress) (*dupes.Result, error)
}

// subscriber wraps a channel with safe close handling
type subscriber struct {
	ch     chan *types.ScanProgress
	closed bool
}

func (sub *subscriber) close() {
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

func (sub *subscriber) send(progress *types.ScanProgress) bool {
	if sub.closed {
		return false
	}
	select {
	case sub.ch <- progress:
		return true
	default:
		return false
	}
}

// Registry creates scan jobs, runs them and answers status queries
type Registry struct {
	store    Store
	finder   Finder
	executor Executor

	// Cancelled on Shutdown so background scans stop early
	ctx    context.Context
	cancel context.CancelFunc

	// SSE subscribers, guarded by subMu for sends and closes alike
	subMu       sync.Mutex
	subscribers map[string][]*subscriber

	now func() time.Time
}

// NewRegistry creates a registry
func NewRegistry(store Store, finder Finder, executor Executor) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		store:       store,
		finder:      finder,
		executor:    executor,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[string][]*subscriber),
		now:         time.Now,
	}
}

// Submit creates a running job for params. With background set the scan is
// handed to the executor and Submit returns at once; otherwise it runs
// before Submit returns. Either way the id is valid for Get immediately.
func (r *Registry) Submit(params dupes.Params, background bool) (string, error) {
	id := newID()
	message := "Starting scan"
	if background {
		message = "Queued"
	}

	job := &Job{
		ID:              id,
		RootPath:        params.RootPath,
		Methods:         params.Methods.Names(),
		Status:          StatusRunning,
		Message:         message,
		DuplicateGroups: []dupes.Group{},
		CreatedAt:       r.now(),
		params:          params,
	}
	if err := r.store.Create(job); err != nil {
		return "", fmt.Errorf("failed to create scan: %w", err)
	}

	if background {
		r.executor.Submit(func() { r.run(id, params) })
	} else {
		r.run(id, params)
	}
	return id, nil
}

// Get returns a snapshot of the job
func (r *Registry) Get(id string) (*Job, error) {
	return r.store.Get(id)
}

// List returns all jobs, newest first
func (r *Registry) List() ([]*Job, error) {
	return r.store.List()
}

// run executes the pipeline for one job. It never panics: a failure of any
// kind ends up on the job record.
func (r *Registry) run(id string, params dupes.Params) {
	defer r.closeSubscribers(id)
	defer func() {
		if p := recover(); p != nil {
			log.Printf("jobs: scan %s panicked: %v\n%s", id, p, debug.Stack())
			r.fail(id, fmt.Errorf("internal error: %v", p))
		}
	}()

	log.Printf("jobs: scan %s started: path=%s methods=%s", id, params.RootPath, params.Methods)
	start := r.now()

	result, err := r.finder.Find(r.ctx, params, &Reporter{registry: r, id: id})
	if err != nil {
		log.Printf("jobs: scan %s failed: %v", id, err)
		r.fail(id, err)
		return
	}

	job, err := r.store.Update(id, func(j *Job) {
		now := r.now()
		j.Status = StatusCompleted
		j.Progress = 100
		j.Message = fmt.Sprintf("Scan complete: %d duplicate sets found", result.Stats.DuplicateSetCount)
		j.DuplicateGroups = result.Groups
		j.Stats = result.Stats
		j.CompletedAt = &now
	})
	if err != nil {
		log.Printf("jobs: scan %s finished but record is gone: %v", id, err)
		return
	}
	log.Printf("jobs: scan %s completed in %s: %d sets, %d files skipped",
		id, r.now().Sub(start).Round(time.Millisecond), result.Stats.DuplicateSetCount, result.Stats.SkippedFiles)
	r.broadcast(id, snapshot(job))
}

func (r *Registry) fail(id string, err error) {
	job, uerr := r.store.Update(id, func(j *Job) {
		now := r.now()
		j.Status = StatusFailed
		j.Message = "Scan failed"
		j.Error = err.Error()
		j.DuplicateGroups = []dupes.Group{}
		j.CompletedAt = &now
	})
	if uerr != nil {
		return
	}
	r.broadcast(id, snapshot(job))
}

// Prune removes terminal jobs that completed more than olderThan ago and
// returns how many were removed. Running jobs are never removed.
func (r *Registry) Prune(olderThan time.Duration) int {
	jobs, err := r.store.List()
	if err != nil {
		log.Printf("jobs: prune failed: %v", err)
		return 0
	}

	cutoff := r.now().Add(-olderThan)
	removed := 0
	for _, job := range jobs {
		if !job.Terminal() || job.CompletedAt == nil || job.CompletedAt.After(cutoff) {
			continue
		}
		if err := r.store.Delete(job.ID); err == nil {
			removed++
		}
	}
	return removed
}

// Shutdown cancels running scans and waits for background work to stop
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cancel()
	return r.executor.Wait(ctx)
}

// Subscribe subscribes to progress updates for a scan. The channel is
// closed when the scan reaches a terminal status.
func (r *Registry) Subscribe(id string) chan *types.ScanProgress {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	sub := &subscriber{
		ch: make(chan *types.ScanProgress, 10),
	}
	r.subscribers[id] = append(r.subscribers[id], sub)
	return sub.ch
}

// Unsubscribe removes a subscriber
func (r *Registry) Unsubscribe(id string, ch chan *types.ScanProgress) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	subs := r.subscribers[id]
	for i, sub := range subs {
		if sub.ch == ch {
			r.subscribers[id] = append(subs[:i], subs[i+1:]...)
			sub.close()
			break
		}
	}

	if len(r.subscribers[id]) == 0 {
		delete(r.subscribers, id)
	}
}

// broadcast sends progress to all subscribers, dropping it for any whose
// buffer is full
func (r *Registry) broadcast(id string, progress *types.ScanProgress) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for _, sub := range r.subscribers[id] {
		sub.send(progress)
	}
}

// closeSubscribers closes all subscriber channels for a scan
func (r *Registry) closeSubscribers(id string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for _, sub := range r.subscribers[id] {
		sub.close()
	}
	delete(r.subscribers, id)
}

// newID returns a unique, time-ordered scan identifier
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "scan_" + uuid.NewString()
	}
	return "scan_" + id.String()
}
