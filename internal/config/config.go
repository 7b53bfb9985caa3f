package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// ScheduledScan is a recurring background scan
type ScheduledScan struct {
	Cron string // 5-field cron expression
	Path string
}

// Config holds all application configuration
type Config struct {
	Port               int
	BindAddress        string
	AllowedPaths       []string // Empty = unrestricted
	HashAlgorithm      string
	HashCachePath      string // Empty disables the digest cache
	CacheRetentionDays int
	ScanWorkers        int
	MaxConcurrentScans int
	JobRetentionHours  int // 0 keeps finished scans for the process lifetime
	ScheduledScans     []ScheduledScan
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:               getEnvInt("TOOLBOX_PORT", 8000),
		BindAddress:        getEnv("TOOLBOX_BIND_ADDRESS", ""),
		AllowedPaths:       getEnvPaths("TOOLBOX_ALLOWED_PATHS"),
		HashAlgorithm:      getEnv("TOOLBOX_HASH_ALGORITHM", "md5"),
		HashCachePath:      ExpandPath(getEnv("TOOLBOX_HASH_CACHE", "")),
		CacheRetentionDays: getEnvInt("TOOLBOX_CACHE_RETENTION_DAYS", 30),
		ScanWorkers:        getEnvInt("TOOLBOX_SCAN_WORKERS", runtime.NumCPU()),
		MaxConcurrentScans: getEnvInt("TOOLBOX_MAX_CONCURRENT_SCANS", 4),
		JobRetentionHours:  getEnvInt("TOOLBOX_JOB_RETENTION_HOURS", 0),
	}

	scans, err := ParseScheduledScans(getEnv("TOOLBOX_SCHEDULED_SCANS", ""))
	if err != nil {
		log.Printf("config: ignoring TOOLBOX_SCHEDULED_SCANS: %v", err)
	}
	cfg.ScheduledScans = scans

	return cfg
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

// ParseScheduledScans parses "cron=path[;cron=path...]"
func ParseScheduledScans(s string) ([]ScheduledScan, error) {
	var scans []ScheduledScan
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		expr, path, ok := strings.Cut(entry, "=")
		expr, path = strings.TrimSpace(expr), strings.TrimSpace(path)
		if !ok || expr == "" || path == "" {
			return nil, fmt.Errorf("invalid entry %q, want cron=path", entry)
		}
		scans = append(scans, ScheduledScan{Cron: expr, Path: ExpandPath(path)})
	}
	return scans, nil
}

// ExpandPath expands a leading ~ to the home directory and cleans the path
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(path)
}

// IsPathAllowed reports whether path lies within one of the allowed roots
func (c *Config) IsPathAllowed(path string) bool {
	if len(c.AllowedPaths) == 0 {
		return true
	}

	path = filepath.Clean(path)
	for _, allowed := range c.AllowedPaths {
		allowed = filepath.Clean(allowed)
		if path == allowed {
			return true
		}
		prefix := allowed
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvPaths parses a comma-separated path list, expanding ~
func getEnvPaths(key string) []string {
	var paths []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, ExpandPath(p))
		}
	}
	return paths
}
