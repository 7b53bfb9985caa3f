package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lyallcooper/toolbox/internal/jobs"
	"github.com/lyallcooper/toolbox/internal/types"
)

// ScanProgressData is sent via SSE during scans
type ScanProgressData struct {
	Progress       int    `json:"progress"`
	Message        string `json:"message"`
	TotalFiles     int64  `json:"total_files"`
	ProcessedFiles int64  `json:"processed_files"`
	Status         string `json:"status"`
}

// ScanProgressSSE handles GET /api/v1/duplicate/status/{scan_id}/events
func (h *Handler) ScanProgressSSE(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("scan_id")
	if _, err := h.registry.Get(id); err != nil {
		writeError(w, fmt.Errorf("scan %s: %w", id, err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errorf(http.StatusInternalServerError, "SSE not supported"))
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Subscribe before reading state so no terminal update is missed
	updates := h.registry.Subscribe(id)
	defer h.registry.Unsubscribe(id, updates)

	// Send initial state
	job, err := h.registry.Get(id)
	if err != nil {
		return
	}
	sendProgress(w, flusher, &types.ScanProgress{
		Progress:       job.Progress,
		Message:        job.Message,
		TotalFiles:     job.Stats.TotalFiles,
		ProcessedFiles: job.Stats.ProcessedFiles,
		Status:         string(job.Status),
	})
	if job.Terminal() {
		sendComplete(w, flusher, string(job.Status))
		return
	}

	// Listen for updates
	for {
		select {
		case <-r.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				// Channel closed, report the final state
				status := string(jobs.StatusCompleted)
				if job, err := h.registry.Get(id); err == nil {
					status = string(job.Status)
				}
				sendComplete(w, flusher, status)
				return
			}
			sendProgress(w, flusher, update)
			if update.Status != string(jobs.StatusRunning) {
				sendComplete(w, flusher, update.Status)
				return
			}
		}
	}
}

func sendProgress(w http.ResponseWriter, flusher http.Flusher, p *types.ScanProgress) {
	sendEvent(w, flusher, "progress", ScanProgressData{
		Progress:       p.Progress,
		Message:        p.Message,
		TotalFiles:     p.TotalFiles,
		ProcessedFiles: p.ProcessedFiles,
		Status:         p.Status,
	})
}

func sendComplete(w http.ResponseWriter, flusher http.Flusher, status string) {
	sendEvent(w, flusher, "complete", map[string]string{"status": status})
}

// sendEvent writes one SSE frame with a JSON payload
func sendEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
