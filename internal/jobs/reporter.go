package jobs

import (
	"github.com/lyallcooper/toolbox/internal/types"
)

// Reporter writes pipeline progress into a job record and fans it out to
// subscribers. Progress never moves backward.
type Reporter struct {
	registry *Registry
	id       string
}

// Report implements dupes.Progress
func (r *Reporter) Report(p types.ScanProgress) {
	job, err := r.registry.store.Update(r.id, func(j *Job) {
		if j.Terminal() {
			return
		}
		j.Progress = min(max(j.Progress, p.Progress), 99)
		j.Message = p.Message
		j.Stats.TotalFiles = p.TotalFiles
		j.Stats.ProcessedFiles = p.ProcessedFiles
	})
	if err != nil {
		return
	}
	r.registry.broadcast(r.id, snapshot(job))
}

// snapshot converts a job record to a progress event
func snapshot(j *Job) *types.ScanProgress {
	return &types.ScanProgress{
		Progress:       j.Progress,
		Message:        j.Message,
		TotalFiles:     j.Stats.TotalFiles,
		ProcessedFiles: j.Stats.ProcessedFiles,
		Status:         string(j.Status),
	}
}
