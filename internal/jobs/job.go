// Package jobs tracks duplicate scans from submission to a terminal status
// and runs them inline or in the background.
package jobs

import (
	"slices"
	"time"

	"github.com/lyallcooper/toolbox/internal/dupes"
)

// Status represents a scan job's state
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is the status record of one scan
type Job struct {
	ID              string        `json:"scan_id"`
	RootPath        string        `json:"directory_path"`
	Methods         []string      `json:"methods"`
	Status          Status        `json:"status"`
	Progress        int           `json:"progress"`
	Message         string        `json:"message"`
	Error           string        `json:"error,omitempty"`
	DuplicateGroups []dupes.Group `json:"duplicate_groups"`
	Stats           dupes.Stats   `json:"stats"`
	CreatedAt       time.Time     `json:"created_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`

	params dupes.Params
}

// Terminal reports whether the job has finished
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Params returns the parameters the job was submitted with
func (j *Job) Params() dupes.Params {
	return j.params
}

// clone returns a copy safe to hand to readers. Groups are never mutated
// after completion, so only the slice headers are copied.
func (j *Job) clone() *Job {
	c := *j
	c.Methods = slices.Clone(j.Methods)
	c.DuplicateGroups = slices.Clone(j.DuplicateGroups)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
