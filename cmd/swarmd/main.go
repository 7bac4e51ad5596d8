// Command swarmd runs an agent swarm from a configuration file and serves the
// HTTP control API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/aiswarm/orchestrator/config"
	"github.com/aiswarm/orchestrator/internal/version"
	"github.com/aiswarm/orchestrator/server"
	"github.com/aiswarm/orchestrator/swarm"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath   string
		logLevel     string
		addr         string
		instructions string
		verbose      bool
		showVersion  bool
	)
	fs := pflag.NewFlagSet("swarmd", pflag.ContinueOnError)
	fs.StringVarP(&configPath, "config", "c", "swarm.yaml", "path to the config file (.yaml, .toml, .json, .jsonc)")
	fs.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	fs.StringVar(&addr, "addr", "", "listen address (overrides config)")
	fs.StringVarP(&instructions, "run", "r", "", "instructions to send to the entry-point agents on start")
	fs.BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level=debug")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("swarmd %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.Prepare(cfg); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("starting swarmd",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("config", configPath))

	sys := swarm.New(cfg, logger)
	defer sys.Close()
	if err := sys.Initialize(); err != nil {
		// Agents that failed are logged and skipped; the rest keep running.
		logger.Error("initialization incomplete", slog.Any("err", err))
	}

	srv := server.New(cfg.Server, sys, sys.Events(), version.Version, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if instructions != "" {
		if _, err := sys.Run(ctx, instructions); err != nil {
			logger.Error("run failed", slog.Any("err", err))
		}
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop", slog.Any("err", err))
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
