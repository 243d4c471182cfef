package main

import (
	"flag"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath   string
	LogLevel     string
	LogFormat    string
	Debug        bool
	ProbeType    string
	Component    string
	ProbeTimeout time.Duration
	ShowSchema   bool
	Explain      bool
	ShowVersion  bool
	ShowHelp     bool
}

type getenvFunc func(string) string

func parseFlags(args []string, getenv getenvFunc, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigPath, "config",
		envOr(getenv, "FLOWTRACE_CONFIG", "flowtrace.yaml"),
		"Path to configuration file (env: FLOWTRACE_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		envOr(getenv, "FLOWTRACE_CONFIG", "flowtrace.yaml"),
		"Path to configuration file (env: FLOWTRACE_CONFIG)")
	fs.StringVar(&cfg.LogLevel, "log-level",
		envOr(getenv, "FLOWTRACE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: FLOWTRACE_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		envOr(getenv, "FLOWTRACE_LOG_FORMAT", "json"),
		"Log format: json, text (env: FLOWTRACE_LOG_FORMAT)")
	fs.BoolVar(&cfg.Debug, "debug",
		envBool(getenv, "FLOWTRACE_DEBUG", false),
		"Enable debug logging (env: FLOWTRACE_DEBUG)")
	fs.StringVar(&cfg.ProbeType, "probe", "",
		"Raise a synthetic failure of this error type, print its report and publish it")
	fs.StringVar(&cfg.Component, "component", "core:probe",
		"Component kind (namespace:name) the probe failure is raised in")
	fs.DurationVar(&cfg.ProbeTimeout, "probe-timeout", 10*time.Second,
		"Time allowed for connecting and publishing the probe report")
	fs.BoolVar(&cfg.ShowSchema, "schema", false, "Print the configuration JSON schema and exit")
	fs.BoolVar(&cfg.Explain, "explain", false, "Print declared error types and component mappings")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	fs.Usage = func() { printDetailedHelp(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if cfg.ShowHelp {
		fs.Usage()
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp || cfg.ShowSchema {
		return nil
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ProbeTimeout <= 0 {
		return fmt.Errorf("invalid probe timeout: %s", cfg.ProbeTimeout)
	}
	return nil
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - pipeline failure resolution and flow tracing

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Validate a configuration
  %[1]s --config=flowtrace.yaml

  # Show how each component maps error types
  %[1]s --config=flowtrace.yaml --explain

  # Raise an HTTP:TIMEOUT failure in http:request and publish its report
  %[1]s --config=flowtrace.yaml --probe=HTTP:TIMEOUT --component=http:request

Version: %[2]s
Build: %[3]s
`, appName, Version, BuildTime)
}

func envOr(getenv getenvFunc, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(getenv getenvFunc, key string, defaultValue bool) bool {
	if value := getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
