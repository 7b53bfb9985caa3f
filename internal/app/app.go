// Package app provides shared application initialization logic used by the
// serve and scan commands.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lyallcooper/toolbox/internal/config"
	"github.com/lyallcooper/toolbox/internal/db"
	"github.com/lyallcooper/toolbox/internal/dupes"
	"github.com/lyallcooper/toolbox/internal/handlers"
	"github.com/lyallcooper/toolbox/internal/hasher"
	"github.com/lyallcooper/toolbox/internal/jobs"
	"github.com/lyallcooper/toolbox/internal/scheduler"
)

// shutdownTimeout bounds how long Cleanup waits for running scans
const shutdownTimeout = 10 * time.Second

// ServerConfig contains options for creating the application server.
type ServerConfig struct {
	// Config is the loaded configuration. If nil, config.Load() is used.
	Config *config.Config

	// Version string for display.
	Version string

	// Commit hash for display.
	Commit string
}

// Server wraps the HTTP server and associated resources.
type Server struct {
	HTTP      *http.Server
	Config    *config.Config
	Cache     *db.DB
	Registry  *jobs.Registry
	Scheduler *scheduler.Scheduler
}

// OpenCache opens the digest cache at path. An empty path disables caching
// and returns nil.
func OpenCache(path string) (*db.DB, error) {
	if path == "" {
		return nil, nil
	}
	cache, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hash cache: %w", err)
	}
	return cache, nil
}

// NewFinder builds the duplicate pipeline from configuration
func NewFinder(cfg *config.Config, cache *db.DB) (*dupes.Finder, error) {
	h, err := hasher.New(cfg.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	return dupes.NewFinder(hasher.NewCached(h, cache), cfg.ScanWorkers), nil
}

// CreateServer initializes all application components and returns a Server.
// Call Server.Cleanup() when done to release resources.
func CreateServer(cfg ServerConfig) (*Server, error) {
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = config.Load()
	}

	log.Printf("toolbox %s starting...", buildVersionString(cfg.Version, cfg.Commit))
	log.Printf("  Address: %s", appCfg.Addr())
	log.Printf("  Hash algorithm: %s", appCfg.HashAlgorithm)
	log.Printf("  Scan workers: %d, concurrent scans: %d", appCfg.ScanWorkers, appCfg.MaxConcurrentScans)
	if len(appCfg.AllowedPaths) > 0 {
		log.Printf("  Allowed paths: %s", strings.Join(appCfg.AllowedPaths, ", "))
	}

	cache, err := OpenCache(appCfg.HashCachePath)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		log.Printf("  Hash cache: %s (retention: %d days)", appCfg.HashCachePath, appCfg.CacheRetentionDays)
	}

	finder, err := NewFinder(appCfg, cache)
	if err != nil {
		closeCache(cache)
		return nil, err
	}

	registry := jobs.NewRegistry(jobs.NewMemoryStore(), finder, jobs.NewPoolExecutor(appCfg.MaxConcurrentScans))

	sched, err := scheduler.New(registry, scheduler.Options{
		Scans:              appCfg.ScheduledScans,
		Cache:              cache,
		CacheRetentionDays: appCfg.CacheRetentionDays,
		JobRetention:       time.Duration(appCfg.JobRetentionHours) * time.Hour,
	})
	if err != nil {
		closeCache(cache)
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	sched.Start()

	// Set up HTTP server
	mux := http.NewServeMux()
	handlers.New(appCfg, registry, cache).RegisterRoutes(mux)

	server := &http.Server{
		Addr:         appCfg.Addr(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE and synchronous scans
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		HTTP:      server,
		Config:    appCfg,
		Cache:     cache,
		Registry:  registry,
		Scheduler: sched,
	}, nil
}

// Cleanup releases all resources held by the server.
func (s *Server) Cleanup() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.Registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.Registry.Shutdown(ctx); err != nil {
			log.Printf("Shutdown: scans still running: %v", err)
		}
		cancel()
	}
	closeCache(s.Cache)
}

func closeCache(cache *db.DB) {
	if cache != nil {
		cache.Close()
	}
}

func buildVersionString(version, commit string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	shortCommit := commit
	if len(shortCommit) > 7 {
		shortCommit = shortCommit[:7]
	}
	if shortCommit == "" {
		shortCommit = "unknown"
	}
	return version + "-" + shortCommit
}
