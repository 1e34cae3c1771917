// FleetMaster Server - central controller for a fleet of remote device agents.
// Tracks reachability, dispatches and queues operator commands, ingests agent
// telemetry and media, and serves read-only views of each agent's data.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/kardianos/service"

	"fleetmaster/config"
	"fleetmaster/fleet"
	"fleetmaster/logger"
	"fleetmaster/storage"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "dev"     // Semantic version (e.g., "0.1.0")
	BuildTime = "unknown" // Build timestamp
	GitCommit = "unknown" // Git commit hash
	BuildType = "dev"     // "dev" or "release"
)

var (
	serverLogger *logger.Logger
	serverStore  storage.Store
	fleetManager *fleet.Manager
)

var cliFlags struct {
	configPath string
	port       int
	dbPath     string
	logLevel   string
}

func main() {
	svcFlag := flag.String("service", "", "Service control: install, uninstall, start, stop, restart, run")
	flag.StringVar(&cliFlags.configPath, "config", "", "Config file path (default: platform search paths)")
	flag.IntVar(&cliFlags.port, "port", 0, "HTTP port (overrides config)")
	flag.StringVar(&cliFlags.dbPath, "db", "", "SQLite database path (overrides config)")
	flag.StringVar(&cliFlags.logLevel, "log-level", "", "Log level (error, warn, info, debug, trace)")
	flag.Parse()

	log.Printf("FleetMaster Server %s", Version)
	log.Printf("Build: %s, Commit: %s, Type: %s", BuildTime, GitCommit, BuildType)
	log.Printf("Go: %s, OS: %s, Arch: %s", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	if *svcFlag != "" {
		handleServiceCommand(*svcFlag)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runServer(ctx)
}

// runServer is the shared entry point for foreground and service operation.
// It blocks until ctx is cancelled.
func runServer(ctx context.Context) {
	cfg, err := LoadConfig(cliFlags.configPath)
	if err != nil {
		logFatal("Failed to load configuration", "error", err)
	}
	if cliFlags.port != 0 {
		cfg.Server.Port = cliFlags.port
	}
	if cliFlags.dbPath != "" {
		cfg.Database.Path = cliFlags.dbPath
	}
	if cliFlags.logLevel != "" {
		cfg.Logging.Level = cliFlags.logLevel
	}

	dataDir, derr := config.GetDataDirectory(!service.Interactive())
	if derr != nil {
		logWarn("Failed to resolve data directory, using system default", "error", derr)
		dataDir = filepath.Dir(storage.GetDefaultDBPath())
	}
	if cfg.Database.EffectiveDriver() == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(dataDir, "fleetmaster.db")
	}

	logDir := filepath.Join(dataDir, "logs")
	serverLogger = logger.New(logger.ParseLevel(cfg.Logging.Level), logDir, 1000)
	defer serverLogger.Close()
	storage.SetLogger(serverLogger)

	logInfo("Server starting", "version", Version, "driver", cfg.Database.EffectiveDriver())

	serverStore, err = storage.NewStore(&cfg.Database)
	if err != nil {
		logFatal("Failed to initialize database", "error", err)
	}
	defer serverStore.Close()

	blobs, err := fleet.NewDirBlobStore(cfg.downloadsDir(dataDir))
	if err != nil {
		logFatal("Failed to initialize downloads directory", "error", err)
	}
	logInfo("Media downloads directory", "path", blobs.Root())

	fleetManager = fleet.NewManager(serverStore, blobs, serverLogger, fleet.Config{
		PollInterval:         time.Duration(cfg.Fleet.LocationPollIntervalSeconds) * time.Second,
		MaxConcurrentUploads: cfg.Fleet.MaxConcurrentUploads,
		MinAgentVersion:      cfg.Fleet.MinAgentVersion,
	})
	defer fleetManager.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: setupRoutes(fleetManager),
	}

	go func() {
		<-ctx.Done()
		logInfo("Shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logWarn("HTTP server shutdown error", "error", err)
		}
	}()

	logInfo("Server ready to accept agent connections", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logFatal("HTTP server failed", "error", err)
	}
	logInfo("Server stopped")
}
