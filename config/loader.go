package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/c360/flowtrace/errors"
)

// DefaultEnvPrefix prefixes the environment variables read by a Loader
const DefaultEnvPrefix = "FLOWTRACE"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers    []string
	envPrefix string
	lookupEnv func(string) (string, bool)
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithEnvPrefix changes the prefix of the override variables
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithLookupEnv replaces os.LookupEnv, mainly for tests
func WithLookupEnv(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) { l.lookupEnv = fn }
}

// NewLoader creates a new configuration loader
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		envPrefix: DefaultEnvPrefix,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges all layers, checks the result against the schema, applies
// environment overrides and validates the final configuration.
func (l *Loader) Load() (*Config, error) {
	merged := map[string]any{}
	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		merged = deepMergeMaps(merged, raw)
	}

	if err := ValidateDocument(merged); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if len(merged) > 0 {
		data, err := yaml.Marshal(merged)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged layers")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
				"Loader", "Load", "decode merged layers")
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrParsingFailed, err)
	}
	if err := validateDepth(raw, 0); err != nil {
		return nil, err
	}
	removeNilValues(raw)
	return raw, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		// Lists are replaced, never concatenated
		result[k] = v
	}
	return result
}

// removeNilValues recursively removes nil values from a map
func removeNilValues(m map[string]any) {
	for k, v := range m {
		if v == nil {
			delete(m, k)
		} else if nested, ok := v.(map[string]any); ok {
			removeNilValues(nested)
		}
	}
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	if val, ok := l.env("APPLICATION_ID"); ok {
		if err := validateEnvVar(l.envPrefix+"_APPLICATION_ID", val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "application id")
		}
		cfg.ApplicationID = val
	}

	if val, ok := l.env("ENABLED"); ok {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s_ENABLED=%q", errors.ErrInvalidConfig, l.envPrefix, val),
				"Loader", "applyEnvOverrides", "enabled")
		}
		cfg.FlowTrace.Enabled = enabled
	}

	if val, ok := l.env("NATS_URL"); ok {
		if err := validateEnvVar(l.envPrefix+"_NATS_URL", val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "nats url")
		}
		cfg.Report.NATSURL = val
	}
	return nil
}

func (l *Loader) env(name string) (string, bool) {
	val, ok := l.lookupEnv(l.envPrefix + "_" + name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

// Load reads a single configuration file with the default loader
func Load(path string) (*Config, error) {
	return NewLoader().LoadFile(path)
}

// SaveToFile writes the configuration as YAML
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "marshal config")
	}
	if err := safeWriteFile(path, data); err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "write config")
	}
	return nil
}
