package handlers

import (
	"fmt"
	"net/http"

	"github.com/lyallcooper/toolbox/internal/dupes"
	"github.com/lyallcooper/toolbox/internal/jobs"
)

// Defaults applied when a scan request omits a field
const (
	defaultMinSize      = 1024
	defaultQuickMinSize = 10 * 1024
)

var defaultMethods = []string{dupes.MethodSize, dupes.MethodHash}

// ScanRequest is the body of POST /api/v1/duplicate/scan
type ScanRequest struct {
	DirectoryPath string     `json:"directory_path"`
	Recursive     *bool      `json:"recursive"`
	IncludeHidden bool       `json:"include_hidden"`
	MinSize       *sizeParam `json:"min_size"`
	Methods       []string   `json:"methods"`
	Background    *bool      `json:"background"`
}

// ScanResponse acknowledges a submitted scan
type ScanResponse struct {
	ScanID  string `json:"scan_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JobResponse is a job record with display sizes
type JobResponse struct {
	*jobs.Job
	WastedSpaceHuman string `json:"wasted_space_human"`
}

// ScanSummary is a job listed without its groups
type ScanSummary struct {
	ScanID        string      `json:"scan_id"`
	DirectoryPath string      `json:"directory_path"`
	Status        string      `json:"status"`
	Progress      int         `json:"progress"`
	Message       string      `json:"message"`
	Stats         dupes.Stats `json:"stats"`
}

func newJobResponse(job *jobs.Job) JobResponse {
	return JobResponse{Job: job, WastedSpaceHuman: formatBytes(job.Stats.WastedSpaceBytes)}
}

// StartScan handles POST /api/v1/duplicate/scan
func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	dir, err := h.resolveDirectory(req.DirectoryPath)
	if err != nil {
		writeError(w, err)
		return
	}

	names := req.Methods
	if names == nil {
		names = defaultMethods
	}
	methods, err := dupes.ParseMethods(names)
	if err != nil {
		writeError(w, errorf(http.StatusBadRequest, "%v", err))
		return
	}

	params := dupes.Params{
		RootPath:      dir,
		Recursive:     req.Recursive == nil || *req.Recursive,
		IncludeHidden: req.IncludeHidden,
		MinSize:       defaultMinSize,
		Methods:       methods,
	}
	if req.MinSize != nil {
		params.MinSize = int64(*req.MinSize)
	}
	background := req.Background == nil || *req.Background

	id, err := h.registry.Submit(params, background)
	if err != nil {
		writeError(w, err)
		return
	}

	job, err := h.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScanResponse{
		ScanID:  id,
		Status:  string(job.Status),
		Message: fmt.Sprintf("Scan started on %s", dir),
	})
}

// QuickScan handles POST /api/v1/duplicate/quick_scan. It runs a size and
// hash scan synchronously and returns the finished job.
func (h *Handler) QuickScan(w http.ResponseWriter, r *http.Request) {
	dir, err := h.resolveDirectory(r.URL.Query().Get("directory_path"))
	if err != nil {
		writeError(w, err)
		return
	}

	recursive, err := queryBool(r, "recursive", true)
	if err != nil {
		writeError(w, err)
		return
	}

	minSize := int64(defaultQuickMinSize)
	if raw := r.URL.Query().Get("min_size"); raw != "" {
		if minSize, err = parseSizeWithError(raw); err != nil {
			writeError(w, errorf(http.StatusBadRequest, "%v", err))
			return
		}
	}

	id, err := h.registry.Submit(dupes.Params{
		RootPath:  dir,
		Recursive: recursive,
		MinSize:   minSize,
		Methods:   dupes.MethodSet{Size: true, Hash: true},
	}, false)
	if err != nil {
		writeError(w, err)
		return
	}

	job, err := h.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

// ScanStatus handles GET /api/v1/duplicate/status/{scan_id}
func (h *Handler) ScanStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("scan_id")
	job, err := h.registry.Get(id)
	if err != nil {
		writeError(w, fmt.Errorf("scan %s: %w", id, err))
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

// ListScans handles GET /api/v1/duplicate/scans
func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	all, err := h.registry.List()
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]ScanSummary, 0, len(all))
	for _, job := range all {
		summaries = append(summaries, ScanSummary{
			ScanID:        job.ID,
			DirectoryPath: job.RootPath,
			Status:        string(job.Status),
			Progress:      job.Progress,
			Message:       job.Message,
			Stats:         job.Stats,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}
