// harnessd is the multi-tenant development harness control plane. It supervises
// PTY-backed agent sessions and multiplexes their output, lifecycle events,
// and workspace metadata to clients over the stream protocol.
//
// Usage:
//
//	harnessd gateway start [--port P] [--config-dir DIR]
//	harnessd gateway stop [--force] [--config-dir DIR]
//	harnessd gateway status [--config-dir DIR]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/devharness/harnessd/pkg/api"
	"github.com/devharness/harnessd/pkg/config"
	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/gateway"
	"github.com/devharness/harnessd/pkg/session"
	"github.com/devharness/harnessd/pkg/store"
	"github.com/devharness/harnessd/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if len(os.Args) < 3 || os.Args[1] != "gateway" {
		usage()
		os.Exit(2)
	}

	switch os.Args[2] {
	case "start":
		os.Exit(runStart(os.Args[3:]))
	case "stop":
		os.Exit(runStop(os.Args[3:]))
	case "status":
		os.Exit(runStatus(os.Args[3:]))
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s gateway <start|stop|status> [flags]\n", filepath.Base(os.Args[0]))
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configDir := fs.String("config-dir", getEnv("CONFIG_DIR", "."), "Path to configuration directory")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err == nil {
		slog.Info("Loaded environment", "path", envPath)
	}

	return config.Initialize(*configDir)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("gateway start", flag.ExitOnError)
	port := fs.Int("port", 0, "Control-plane port (overrides config)")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		return 1
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	token := cfg.Server.Token
	if token == "" {
		token = uuid.New().String()
		slog.Info("Generated auth token, clients read it from the gateway record")
	}

	// Refuse to double-start against a live daemon.
	if rec, err := gateway.ReadRecord(cfg.Server.RuntimeDir); err == nil && processAlive(rec.PID) {
		slog.Error("Gateway already running", "pid", rec.PID, "port", rec.Port)
		return 1
	}

	slog.Info("Starting harnessd",
		"version", version.Full(),
		"port", cfg.Server.Port,
		"runtime_dir", cfg.Server.RuntimeDir)

	mux := events.NewMultiplexer(
		events.WithRetention(cfg.Stream.Retention),
		events.WithQueueDepth(cfg.Stream.QueueDepth),
	)
	st := store.New(store.WithPublisher(mux))

	agents := make(map[string]session.AgentCommand, len(cfg.Agents))
	for name, a := range cfg.Agents {
		agents[name] = session.AgentCommand{
			Command:    a.Command,
			Args:       a.Args,
			Env:        a.Env,
			Cols:       a.Cols,
			Rows:       a.Rows,
			TerminalFg: a.TerminalFg,
			TerminalBg: a.TerminalBg,
		}
	}
	planner := session.NewCommandPlanner(agents)
	registry := session.NewRegistry(planner, session.PayloadReducer{}, st, session.Config{
		RingBytes:     cfg.Session.RingBytes,
		ExitRetention: cfg.Session.ExitRetention,
		DefaultCols:   cfg.Session.DefaultCols,
		DefaultRows:   cfg.Session.DefaultRows,
	})

	gw := gateway.NewServer(st, registry, mux, token)

	var listener net.Listener
	if cfg.Server.UnixSocket != "" {
		os.Remove(cfg.Server.UnixSocket)
		listener, err = net.Listen("unix", cfg.Server.UnixSocket)
	} else {
		listener, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	}
	if err != nil {
		slog.Error("Failed to listen", "error", err)
		return 1
	}

	rec := gateway.Record{
		PID:       os.Getpid(),
		Port:      cfg.Server.Port,
		AuthToken: token,
		StartedAt: time.Now().UTC(),
		Version:   version.Full(),
	}
	if err := gateway.WriteRecord(cfg.Server.RuntimeDir, rec); err != nil {
		slog.Error("Failed to write gateway record", "error", err)
		listener.Close()
		return 1
	}

	errCh := make(chan error, 1)
	go func() {
		if err := gw.Serve(listener); err != nil {
			errCh <- err
		}
	}()

	var httpServer *api.Server
	if cfg.HTTP.Enabled {
		httpServer = api.NewServer(gw, registry, mux)
		go func() {
			if err := httpServer.Start(cfg.HTTP.Port); err != nil {
				slog.Error("HTTP bridge error", "error", err)
				errCh <- err
			}
		}()
	}

	slog.Info("harnessd started", "port", cfg.Server.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
		exitCode = 1
	}

	gw.Shutdown(cfg.Server.ShutdownGrace)

	if httpServer != nil {
		httpCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(httpCtx); err != nil {
			slog.Error("HTTP bridge shutdown error", "error", err)
		}
		cancel()
	}

	if err := gateway.RemoveRecord(cfg.Server.RuntimeDir); err != nil {
		slog.Error("Failed to remove gateway record", "error", err)
	}
	if cfg.Server.UnixSocket != "" {
		os.Remove(cfg.Server.UnixSocket)
	}

	slog.Info("Shutdown complete")
	return exitCode
}

func runStop(args []string) int {
	fs := flag.NewFlagSet("gateway stop", flag.ExitOnError)
	force := fs.Bool("force", false, "Kill instead of terminate")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		return 1
	}

	rec, err := gateway.ReadRecord(cfg.Server.RuntimeDir)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Println("gateway is not running")
		return 1
	}
	if err != nil {
		slog.Error("Failed to read gateway record", "error", err)
		return 1
	}
	if !processAlive(rec.PID) {
		fmt.Println("gateway is not running (removing stale record)")
		gateway.RemoveRecord(cfg.Server.RuntimeDir)
		return 1
	}

	sig := syscall.SIGTERM
	if *force {
		sig = syscall.SIGKILL
	}
	if err := syscall.Kill(rec.PID, sig); err != nil {
		slog.Error("Failed to signal gateway", "pid", rec.PID, "error", err)
		return 1
	}

	// The daemon removes its own record on clean exit; wait for it to die.
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(rec.PID) {
			// A SIGKILLed daemon never cleans up its own record.
			gateway.RemoveRecord(cfg.Server.RuntimeDir)
			fmt.Println("gateway stopped")
			return 0
		}
		time.Sleep(200 * time.Millisecond)
	}
	slog.Error("Gateway did not exit in time", "pid", rec.PID)
	return 1
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("gateway status", flag.ExitOnError)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		return 1
	}

	rec, err := gateway.ReadRecord(cfg.Server.RuntimeDir)
	if err != nil || !processAlive(rec.PID) {
		fmt.Println("gateway status: stopped")
		return 0
	}
	fmt.Println("gateway status: running")
	return 0
}

// processAlive probes a pid with signal 0. EPERM still means the process
// exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
