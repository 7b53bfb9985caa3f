// Package pathutil normalizes user-supplied directory paths.
package pathutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lyallcooper/toolbox/internal/config"
)

var unsafeChars = strings.NewReplacer(
	"<", "_",
	">", "_",
	`"`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// Sanitize expands ~, cleans the path and replaces characters that are
// unsafe in file names with an underscore
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return unsafeChars.Replace(config.ExpandPath(raw))
}

// IsValidDirectory reports whether path is an existing, readable directory
func IsValidDirectory(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	return err == nil || errors.Is(err, io.EOF)
}

// Abs returns the absolute form of a sanitized path
func Abs(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
