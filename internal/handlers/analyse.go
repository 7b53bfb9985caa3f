package handlers

import (
	"net/http"

	"github.com/lyallcooper/toolbox/internal/analyse"
)

// AnalyseRequest is the body of POST /api/v1/analyse/directory
type AnalyseRequest struct {
	DirectoryPath string `json:"directory_path"`
	IncludeHidden bool   `json:"include_hidden"`
	Recursive     bool   `json:"recursive"`
}

// AnalyseDirectory handles POST /api/v1/analyse/directory
func (h *Handler) AnalyseDirectory(w http.ResponseWriter, r *http.Request) {
	var req AnalyseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	dir, err := h.resolveDirectory(req.DirectoryPath)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := analyse.Directory(dir, req.IncludeHidden, req.Recursive)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ExtensionStats handles GET /api/v1/analyse/extensions/{path...}
func (h *Handler) ExtensionStats(w http.ResponseWriter, r *http.Request) {
	dir, err := h.resolveDirectory("/" + r.PathValue("path"))
	if err != nil {
		writeError(w, err)
		return
	}

	recursive, err := queryBool(r, "recursive", false)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := analyse.Extensions(dir, recursive)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
