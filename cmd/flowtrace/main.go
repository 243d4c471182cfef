// Package main implements the flowtrace command. It validates flowtrace
// configuration, explains the error mappings it declares and raises synthetic
// failures to check that reports reach NATS.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/flowtrace/config"
	"github.com/c360/flowtrace/report"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "flowtrace"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	cancel()
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv getenvFunc) error {
	cliCfg, err := parseFlags(args, getenv, stderr)
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	switch {
	case cliCfg.ShowVersion:
		_, err := fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return err
	case cliCfg.ShowHelp:
		return flag.ErrHelp
	case cliCfg.ShowSchema:
		_, err := stdout.Write(config.Schema())
		return err
	}

	logger := setupLogger(stderr, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPath, getenv)
	if err != nil {
		return err
	}
	logger.Info("Configuration is valid",
		"config_path", cliCfg.ConfigPath,
		"application_id", cfg.ApplicationID,
		"error_types", len(cfg.ErrorTypes),
		"components", len(cfg.Components))

	if cliCfg.Explain {
		if err := explain(stdout, cfg); err != nil {
			return fmt.Errorf("explain configuration: %w", err)
		}
	}

	if cliCfg.ProbeType == "" {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, cliCfg.ProbeTimeout)
	defer cancel()

	publisher, closeFn, err := connectPublisher(probeCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	rep, err := runProbe(probeCtx, cfg, cliCfg.ProbeType, cliCfg.Component, publisher, logger)
	if printErr := printReport(stdout, rep); printErr != nil && err == nil {
		err = printErr
	}
	return err
}

// loadConfig loads configuration from the specified file path
func loadConfig(path string, getenv getenvFunc) (*config.Config, error) {
	loader := config.NewLoader(config.WithLookupEnv(func(key string) (string, bool) {
		v := getenv(key)
		return v, v != ""
	}))
	cfg, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// connectPublisher dials NATS when a report URL is configured. Without one
// reports are only logged.
func connectPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (report.Publisher, func(), error) {
	if cfg.Report.NATSURL == "" {
		logger.Info("No report NATS URL configured, reports are only logged")
		return nil, func() {}, nil
	}

	opts := []report.ConnOption{report.WithConnLogger(logger)}
	if cfg.Report.ClientName != "" {
		opts = append(opts, report.WithName(cfg.Report.ClientName))
	}
	if cfg.Report.Timeout > 0 {
		opts = append(opts, report.WithTimeout(cfg.Report.Timeout))
	}
	conn := report.NewConn(cfg.Report.NATSURL, opts...)
	if err := conn.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return conn, func() {
		if err := conn.Close(); err != nil {
			logger.Warn("Failed to close NATS connection", "error", err)
		}
	}, nil
}
