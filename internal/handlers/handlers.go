package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lyallcooper/toolbox/internal/config"
	"github.com/lyallcooper/toolbox/internal/db"
	"github.com/lyallcooper/toolbox/internal/jobs"
	"github.com/lyallcooper/toolbox/internal/pathutil"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// Handler holds all HTTP handlers
type Handler struct {
	cfg      *config.Config
	registry *jobs.Registry
	cache    *db.DB // nil when the digest cache is disabled
	started  time.Time
}

// New creates a new Handler
func New(cfg *config.Config, registry *jobs.Registry, cache *db.DB) *Handler {
	return &Handler{
		cfg:      cfg,
		registry: registry,
		cache:    cache,
		started:  time.Now(),
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /health", h.Health)

	// Duplicate detection
	mux.HandleFunc("POST /api/v1/duplicate/scan", h.StartScan)
	mux.HandleFunc("POST /api/v1/duplicate/quick_scan", h.QuickScan)
	mux.HandleFunc("GET /api/v1/duplicate/scans", h.ListScans)
	mux.HandleFunc("GET /api/v1/duplicate/status/{scan_id}", h.ScanStatus)
	mux.HandleFunc("GET /api/v1/duplicate/status/{scan_id}/events", h.ScanProgressSSE)
	mux.HandleFunc("GET /api/v1/duplicate/health", h.serviceHealth("duplicate_detection"))

	// Directory analysis
	mux.HandleFunc("POST /api/v1/analyse/directory", h.AnalyseDirectory)
	mux.HandleFunc("GET /api/v1/analyse/extensions/{path...}", h.ExtensionStats)
	mux.HandleFunc("GET /api/v1/analyse/health", h.serviceHealth("analyse"))
}

// Root handles GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Toolbox API"})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"uptime":         time.Since(h.started).Round(time.Second).String(),
		"hash_algorithm": h.cfg.HashAlgorithm,
	}
	if h.cache != nil {
		if n, err := h.cache.CountFileHashes(); err == nil {
			resp["cached_digests"] = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) serviceHealth(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": service})
	}
}

// apiError is an error with an HTTP status
type apiError struct {
	status int
	detail string
}

func (e *apiError) Error() string { return e.detail }

func errorf(status int, format string, args ...any) *apiError {
	return &apiError{status: status, detail: fmt.Sprintf(format, args...)}
}

// resolveDirectory sanitizes raw and checks it is an allowed, readable
// directory
func (h *Handler) resolveDirectory(raw string) (string, error) {
	dir := pathutil.Sanitize(raw)
	if dir == "" {
		return "", errorf(http.StatusBadRequest, "directory_path is required")
	}
	dir = pathutil.Abs(dir)
	if !h.cfg.IsPathAllowed(dir) {
		return "", errorf(http.StatusForbidden, "directory %s is outside the allowed paths", dir)
	}
	if !pathutil.IsValidDirectory(dir) {
		return "", errorf(http.StatusNotFound, "directory %s does not exist or is not accessible", dir)
	}
	return dir, nil
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("handlers: failed to encode response: %v", err)
	}
}

// writeError maps err to a status code and writes {"detail": ...}
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.status
	case errors.Is(err, jobs.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.Printf("handlers: %v", err)
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

// decodeJSON reads a JSON request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errorf(http.StatusBadRequest, "invalid request body: %v", err)
	}
	return nil
}

// queryBool parses a boolean query parameter, returning def when absent
func queryBool(r *http.Request, key string, def bool) (bool, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, errorf(http.StatusBadRequest, "invalid %s: %q", key, val)
	}
	return b, nil
}

// sizeParam is a byte count given either as a JSON number or a
// human-readable string such as "10 KiB"
type sizeParam int64

func (s *sizeParam) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		if n < 0 {
			return fmt.Errorf("size cannot be negative: %d", n)
		}
		*s = sizeParam(n)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("size must be a number or string")
	}
	n, err := parseSizeWithError(str)
	if err != nil {
		return err
	}
	*s = sizeParam(n)
	return nil
}

// parseSizeWithError parses a human-readable size string to bytes
func parseSizeWithError(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("size cannot be negative: %q", s)
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return int64(n), nil
}

// formatBytes renders a byte count for display
func formatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
