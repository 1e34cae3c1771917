package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface
type program struct {
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	svcLogger service.Logger
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("FleetMaster Server service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)

	if p.svcLogger != nil {
		p.svcLogger.Info("FleetMaster Server service running")
	}

	runServer(p.ctx)

	if p.svcLogger != nil {
		p.svcLogger.Info("FleetMaster Server service stopping")
	}
}

func (p *program) Stop(s service.Service) error {
	if p.svcLogger != nil {
		p.svcLogger.Info("FleetMaster Server service stop requested")
	}

	if p.cancel != nil {
		p.cancel()
	}

	// Wait for run() to finish with timeout
	timeout := time.After(30 * time.Second)
	select {
	case <-p.done:
		if p.svcLogger != nil {
			p.svcLogger.Info("FleetMaster Server service stopped gracefully")
		}
	case <-timeout:
		if p.svcLogger != nil {
			p.svcLogger.Warning("FleetMaster Server service stopped with timeout")
		}
	}

	return nil
}

// getServiceConfig returns the service configuration for the current platform
func getServiceConfig() *service.Config {
	var workingDir string
	switch runtime.GOOS {
	case "windows":
		workingDir = filepath.Join(os.Getenv("ProgramData"), "FleetMaster", "server")
	case "darwin":
		workingDir = "/Library/Application Support/FleetMaster/server"
	default:
		workingDir = "/var/lib/fleetmaster/server"
	}

	return &service.Config{
		Name:             "FleetMasterServer",
		DisplayName:      "FleetMaster Server",
		Description:      "FleetMaster central controller. Tracks agent reachability, dispatches and queues commands, and ingests agent telemetry.",
		WorkingDirectory: workingDir,
		Arguments:        []string{"--service", "run"},
		Option: service.KeyValue{
			// Windows service options
			"StartType":              "automatic",
			"DelayedAutoStart":       true,
			"Dependencies":           "",
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",
			"OnFailureResetPeriod":   30,

			// Linux systemd options
			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",
			"KillMode":          "mixed",
			"KillSignal":        "SIGTERM",
			"SendSIGKILL":       true,

			// macOS launchd options
			"RunAtLoad":     true,
			"KeepAlive":     true,
			"SessionCreate": false,
		},
	}
}

// setupServiceDirectories creates necessary directories for service operation
func setupServiceDirectories() error {
	var dirs []string
	var configPath string

	switch runtime.GOOS {
	case "windows":
		baseDir := filepath.Join(os.Getenv("ProgramData"), "FleetMaster")
		serverDir := filepath.Join(baseDir, "server")
		dirs = []string{
			baseDir,
			serverDir,
			filepath.Join(serverDir, "logs"),
			filepath.Join(serverDir, "downloads"),
		}
		configPath = filepath.Join(serverDir, configFileName)
	case "darwin":
		baseDir := "/Library/Application Support/FleetMaster"
		serverDir := filepath.Join(baseDir, "server")
		dirs = []string{
			baseDir,
			serverDir,
			filepath.Join(serverDir, "logs"),
			filepath.Join(serverDir, "downloads"),
		}
		configPath = filepath.Join(serverDir, configFileName)
	default: // Linux
		dirs = []string{
			"/var/lib/fleetmaster",
			"/var/lib/fleetmaster/server",
			"/var/lib/fleetmaster/server/downloads",
			"/var/log/fleetmaster/server",
			"/etc/fleetmaster",
		}
		configPath = filepath.Join("/etc/fleetmaster", configFileName)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				fmt.Printf("Configuration already exists at: %s\n", configPath)
			} else {
				return fmt.Errorf("failed to generate default config at %s: %w", configPath, err)
			}
		} else {
			fmt.Printf("Generated default configuration at: %s\n", configPath)
		}
	} else {
		fmt.Printf("Configuration already exists at: %s\n", configPath)
	}

	return nil
}

// handleServiceCommand runs a service control action and exits.
func handleServiceCommand(cmd string) {
	prg := &program{}
	svc, err := service.New(prg, getServiceConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create service: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "run":
		if err := svc.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Service run failed: %v\n", err)
			os.Exit(1)
		}
	case "install":
		if err := setupServiceDirectories(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to prepare service directories: %v\n", err)
			os.Exit(1)
		}
		if status, _ := svc.Status(); status != service.StatusUnknown {
			if status == service.StatusRunning {
				_ = svc.Stop()
				time.Sleep(2 * time.Second)
			}
			if err := svc.Uninstall(); err != nil && !strings.Contains(err.Error(), "marked for deletion") {
				fmt.Fprintf(os.Stderr, "Failed to remove existing service: %v\n", err)
				os.Exit(1)
			}
			time.Sleep(500 * time.Millisecond)
		}
		if err := svc.Install(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to install service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service installed")
	case "uninstall":
		if status, _ := svc.Status(); status == service.StatusRunning {
			_ = svc.Stop()
			time.Sleep(2 * time.Second)
		}
		if err := svc.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to uninstall service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service uninstalled")
	case "start":
		if err := svc.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service started")
	case "stop":
		if err := svc.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stop service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service stopped")
	case "restart":
		if err := svc.Restart(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to restart service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service restarted")
	default:
		fmt.Fprintf(os.Stderr, "Unknown service command: %s\n", cmd)
		fmt.Fprintln(os.Stderr, "Valid commands: install, uninstall, start, stop, restart, run")
		os.Exit(1)
	}
}
