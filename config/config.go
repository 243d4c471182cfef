package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/errormapping"
	"github.com/c360/flowtrace/errors"
	"github.com/c360/flowtrace/errortype"
	"github.com/c360/flowtrace/flowtrace"
)

// Config is the complete application configuration
type Config struct {
	ApplicationID string                     `yaml:"application_id" json:"application_id"`
	FlowTrace     FlowTraceConfig            `yaml:"flow_trace" json:"flow_trace"`
	ErrorTypes    []ErrorTypeConfig          `yaml:"error_types,omitempty" json:"error_types,omitempty"`
	Components    map[string]ComponentConfig `yaml:"components,omitempty" json:"components,omitempty"`
	Report        ReportConfig               `yaml:"report,omitempty" json:"report,omitempty"`
}

// FlowTraceConfig configures call-stack tracking
type FlowTraceConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	MaxIdle          time.Duration `yaml:"max_idle" json:"max_idle"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	MaxDepth         int           `yaml:"max_depth" json:"max_depth"`
	ViolationLogRate float64       `yaml:"violation_log_rate" json:"violation_log_rate"`
}

// ErrorTypeConfig declares an application error type. Parent defaults to CORE:ANY
// and must be a core type or declared earlier in the list.
type ErrorTypeConfig struct {
	Type   string `yaml:"type" json:"type"`
	Parent string `yaml:"parent,omitempty" json:"parent,omitempty"`
}

// ComponentConfig holds the settings of one component kind, keyed by its
// "namespace:name" identifier
type ComponentConfig struct {
	ErrorMappings []MappingConfig `yaml:"error_mappings,omitempty" json:"error_mappings,omitempty"`
}

// MappingConfig is one error mapping rule. Exactly one of Source and
// Expression is set.
type MappingConfig struct {
	Source     string `yaml:"source,omitempty" json:"source,omitempty"`
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
	Target     string `yaml:"target" json:"target"`
}

// ReportConfig configures failure report publishing. An empty NATSURL
// disables publishing. PublishAttempts bounds how often a report is published
// when publishing fails transiently.
type ReportConfig struct {
	NATSURL         string        `yaml:"nats_url,omitempty" json:"nats_url,omitempty"`
	ClientName      string        `yaml:"client_name,omitempty" json:"client_name,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	PublishAttempts int           `yaml:"publish_attempts,omitempty" json:"publish_attempts,omitempty"`
}

// DefaultConfig returns a working configuration
func DefaultConfig() *Config {
	ft := flowtrace.DefaultConfig()
	return &Config{
		ApplicationID: ft.ApplicationID,
		FlowTrace: FlowTraceConfig{
			Enabled:          ft.Enabled,
			MaxIdle:          ft.MaxIdle,
			CleanupInterval:  ft.CleanupInterval,
			MaxDepth:         ft.MaxDepth,
			ViolationLogRate: ft.ViolationLogRate,
		},
		Report: ReportConfig{
			ClientName:      "flowtrace",
			Timeout:         5 * time.Second,
			PublishAttempts: 3,
		},
	}
}

// ManagerConfig returns the call-stack manager settings
func (c *Config) ManagerConfig() flowtrace.Config {
	return flowtrace.Config{
		ApplicationID:    c.ApplicationID,
		Enabled:          c.FlowTrace.Enabled,
		MaxIdle:          c.FlowTrace.MaxIdle,
		CleanupInterval:  c.FlowTrace.CleanupInterval,
		MaxDepth:         c.FlowTrace.MaxDepth,
		ViolationLogRate: c.FlowTrace.ViolationLogRate,
	}
}

// BuildRepository declares the configured error types on top of the core ones
func (c *Config) BuildRepository() (*errortype.Repository, error) {
	repo := errortype.NewRepository()
	for i, decl := range c.ErrorTypes {
		if _, err := repo.RegisterString(decl.Type, decl.Parent); err != nil {
			return nil, errors.Wrap(err, "Config", "BuildRepository", fmt.Sprintf("declare error_types[%d]", i))
		}
	}
	return repo, nil
}

// Mappings builds the error mapping table of the component kind id. A kind
// without configuration has no mappings.
func (c *Config) Mappings(repo *errortype.Repository, id component.Identifier) (errormapping.Table, error) {
	for key, cc := range c.Components {
		kid, err := component.ParseIdentifier(key)
		if err != nil {
			return nil, errors.Wrap(err, "Config", "Mappings", "parse component key")
		}
		if kid == id {
			return cc.table(repo, key)
		}
	}
	return nil, nil
}

// ComponentMappings builds the mapping tables of every configured component kind
func (c *Config) ComponentMappings(repo *errortype.Repository) (map[component.Identifier]errormapping.Table, error) {
	out := make(map[component.Identifier]errormapping.Table, len(c.Components))
	for key, cc := range c.Components {
		id, err := component.ParseIdentifier(key)
		if err != nil {
			return nil, errors.Wrap(err, "Config", "ComponentMappings", "parse component key")
		}
		table, err := cc.table(repo, key)
		if err != nil {
			return nil, err
		}
		out[id] = table
	}
	return out, nil
}

func (cc ComponentConfig) table(repo *errortype.Repository, key string) (errormapping.Table, error) {
	table := make(errormapping.Table, 0, len(cc.ErrorMappings))
	for i, mc := range cc.ErrorMappings {
		rule, err := mc.rule(repo)
		if err != nil {
			return nil, errors.Wrap(err, "Config", "Mappings",
				fmt.Sprintf("build components[%s].error_mappings[%d]", key, i))
		}
		table = append(table, rule)
	}
	return table, nil
}

func (mc MappingConfig) rule(repo *errortype.Repository) (errormapping.Rule, error) {
	var (
		source errormapping.Matcher
		err    error
	)
	switch {
	case mc.Source != "" && mc.Expression != "":
		return errormapping.Rule{}, errors.WrapInvalid(errors.ErrInvalidMapping, "Config", "Mappings", "source and expression are exclusive")
	case mc.Expression != "":
		source, err = errormapping.Expression(mc.Expression)
	default:
		source, err = errormapping.ParseMatcher(repo, mc.Source)
	}
	if err != nil {
		return errormapping.Rule{}, err
	}

	target, ok := repo.LookupString(mc.Target)
	if !ok {
		return errormapping.Rule{}, errors.WrapInvalid(
			fmt.Errorf("%w: target %s", errors.ErrUnknownErrorType, mc.Target),
			"Config", "Mappings", "target lookup")
	}
	return errormapping.NewRule(source, target)
}

// Validate checks the configuration for errors. Every declared type, mapping
// and expression is built once so that mistakes surface at load time.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ApplicationID) == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: application_id is required", errors.ErrMissingConfig),
			"Config", "Validate", "application_id")
	}
	if err := c.ManagerConfig().Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "flow_trace")
	}
	if c.Report.PublishAttempts < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: report publish attempts %d is negative", errors.ErrInvalidConfig, c.Report.PublishAttempts),
			"Config", "Validate", "report")
	}
	if c.Report.Timeout < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: report timeout %s is negative", errors.ErrInvalidConfig, c.Report.Timeout),
			"Config", "Validate", "report")
	}

	repo, err := c.BuildRepository()
	if err != nil {
		return err
	}
	if _, err := c.ComponentMappings(repo); err != nil {
		return err
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// Use JSON marshaling/unmarshaling for deep copy
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "SafeConfig", "Update", "validate config")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}
