package jobs

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned for unknown scan identifiers
	ErrNotFound = errors.New("scan not found")
	// ErrExists is returned when creating a job whose id is taken
	ErrExists = errors.New("scan already exists")
)

// Store persists job records. Implementations must be safe for concurrent
// use and must return copies so callers never share a record with a writer.
type Store interface {
	Create(job *Job) error
	Get(id string) (*Job, error)
	// Update applies fn to the stored record under the store's lock and
	// returns a copy of the result.
	Update(id string, fn func(*Job)) (*Job, error)
	List() ([]*Job, error)
	Delete(id string) error
}

// MemoryStore keeps jobs in a map for the life of the process
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create inserts a new job
func (s *MemoryStore) Create(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrExists
	}
	s.jobs[job.ID] = job.clone()
	return nil
}

// Get returns a copy of the job
func (s *MemoryStore) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.clone(), nil
}

// Update mutates the job in place
func (s *MemoryStore) Update(id string, fn func(*Job)) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	fn(job)
	return job.clone(), nil
}

// List returns copies of all jobs, newest first
func (s *MemoryStore) List() ([]*Job, error) {
	s.mu.RLock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b *Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return jobs, nil
}

// Delete removes a job
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}
