// Package app provides shared application initialization logic used by both
// the server (Docker/CLI) and desktop (Wails) entry points.
package app

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lyallcooper/treescan/internal/config"
	"github.com/lyallcooper/treescan/internal/db"
	"github.com/lyallcooper/treescan/internal/handlers"
	"github.com/lyallcooper/treescan/internal/scheduler"
	"github.com/lyallcooper/treescan/internal/services"
	"github.com/lyallcooper/treescan/internal/tree"
)

// ServerConfig contains options for creating the application server.
type ServerConfig struct {
	// Port to listen on. If 0, uses config default.
	Port int

	// Version string for display.
	Version string

	// Commit hash for display.
	Commit string

	// WebFS contains the web assets under static/.
	WebFS fs.FS

	// BindAddress is the address to bind to. Defaults to "" (all interfaces).
	// Use "127.0.0.1" for desktop mode to only allow local connections.
	BindAddress string

	// DisableCSRF disables CSRF protection. Use for desktop mode where
	// the server only accepts local connections and CSRF isn't a concern.
	DisableCSRF bool
}

// Server wraps the HTTP server and associated resources.
type Server struct {
	HTTP      *http.Server
	Config    *config.Config
	Database  *db.DB
	Scanner   *services.Scanner
	Scheduler *scheduler.Scheduler

	csrfCancel context.CancelFunc
}

// CreateServer initializes all application components and returns a Server.
// Call Server.Cleanup() when done to release resources.
func CreateServer(cfg ServerConfig) (*Server, error) {
	appCfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Override port if specified
	if cfg.Port > 0 {
		appCfg.Port = cfg.Port
	}

	log.Printf("treescan starting...")
	log.Printf("  Database: %s (%s)", appCfg.DBPath, appCfg.DBDriver)
	log.Printf("  Root: %s", appCfg.RootPath)
	log.Printf("  Port: %d", appCfg.Port)

	database, err := db.OpenWithDriver(appCfg.DBDriver, appCfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Load retention from DB if not set via env var or config file
	appCfg.RetentionDays = handlers.RetentionDays(appCfg.RetentionDays, appCfg.RetentionDaysFromEnv, database.GetSetting)
	log.Printf("  Retention: %d days", appCfg.RetentionDays)

	processor, err := newProcessor(appCfg.ProcessCommand)
	if err != nil {
		database.Close()
		return nil, err
	}

	lister := tree.OSLister{ShowHidden: appCfg.ShowHidden}
	scanner, err := services.NewScanner(database, appCfg.RootPath, lister, processor)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize scanner: %w", err)
	}

	sched, err := scheduler.New(database, scanner, appCfg.ScanSchedule)
	if err != nil {
		scanner.Close()
		database.Close()
		return nil, err
	}
	sched.Start()

	versionStr := buildVersionString(cfg.Version, cfg.Commit)

	h, err := handlers.New(database, appCfg, scanner, cfg.WebFS, versionStr, cfg.DisableCSRF)
	if err != nil {
		sched.Stop()
		scanner.Close()
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	csrfCtx, csrfCancel := context.WithCancel(context.Background())
	handlers.StartCSRFCleanup(csrfCtx)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.BindAddress, appCfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	// End open SSE streams when shutdown begins
	baseCtx, baseCancel := context.WithCancel(context.Background())
	server.BaseContext = func(net.Listener) context.Context { return baseCtx }
	server.RegisterOnShutdown(baseCancel)

	return &Server{
		HTTP:       server,
		Config:     appCfg,
		Database:   database,
		Scanner:    scanner,
		Scheduler:  sched,
		csrfCancel: csrfCancel,
	}, nil
}

// newProcessor returns the external command processor if one is configured,
// otherwise the built-in hasher
func newProcessor(command string) (services.Processor, error) {
	if command == "" {
		log.Printf("  Processor: sha256")
		return services.NewHashProcessor(), nil
	}

	proc, err := services.NewCommandProcessor(command)
	if err != nil {
		return nil, err
	}
	if err := proc.CheckInstalled(); err != nil {
		log.Printf("Warning: process command not found: %v", err)
	}
	log.Printf("  Processor: %s", command)
	return proc, nil
}

// Cleanup releases all resources held by the server. Any running scan is
// stopped after its current item.
func (s *Server) Cleanup() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.Scanner != nil {
		s.Scanner.Close()
	}
	if s.csrfCancel != nil {
		s.csrfCancel()
	}
	if s.Database != nil {
		s.Database.Close()
	}
}

// StartCleanupLoop starts a background goroutine that periodically cleans up old data.
// Returns a cancel function and a done channel.
func (s *Server) StartCleanupLoop() (cancel func(), done <-chan struct{}) {
	cleanupDone := make(chan struct{})
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())

	go func() {
		defer close(cleanupDone)
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		// Trim history left over from previous runs
		s.cleanup()

		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()

	return cleanupCancel, cleanupDone
}

func (s *Server) cleanup() {
	days := handlers.RetentionDays(s.Config.RetentionDays, s.Config.RetentionDaysFromEnv, s.Database.GetSetting)
	log.Printf("Running cleanup (retention: %d days)", days)
	if err := s.Database.CleanupOldData(days); err != nil {
		log.Printf("Cleanup error: %v", err)
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
