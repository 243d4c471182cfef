package flowtrace

import (
	"fmt"
	"time"

	"github.com/c360/flowtrace/errors"
)

// Config controls call-stack tracking
type Config struct {
	// ApplicationID is rendered in every component reference
	ApplicationID string
	// Enabled turns tracking on. A disabled manager ignores every notification.
	Enabled bool
	// MaxIdle evicts stacks not touched for this long. Zero disables eviction.
	MaxIdle time.Duration
	// CleanupInterval is how often idle stacks are looked for
	CleanupInterval time.Duration
	// MaxDepth caps stored frames per stack. Deeper entries are only counted.
	// Zero means unbounded.
	MaxDepth int
	// ViolationLogRate is the number of protocol-violation warnings logged per
	// second. Zero silences them.
	ViolationLogRate float64
}

// DefaultConfig returns a working configuration
func DefaultConfig() Config {
	return Config{
		ApplicationID:    "app",
		Enabled:          true,
		MaxIdle:          10 * time.Minute,
		CleanupInterval:  time.Minute,
		MaxDepth:         512,
		ViolationLogRate: 5,
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.ApplicationID == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: application id is required", errors.ErrInvalidConfig),
			"flowtrace", "Validate", "application id")
	}
	if c.MaxIdle < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max idle %s is negative", errors.ErrInvalidConfig, c.MaxIdle),
			"flowtrace", "Validate", "max idle")
	}
	if c.MaxIdle > 0 && c.CleanupInterval <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: cleanup interval must be positive when max idle is set", errors.ErrInvalidConfig),
			"flowtrace", "Validate", "cleanup interval")
	}
	if c.MaxDepth < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max depth %d is negative", errors.ErrInvalidConfig, c.MaxDepth),
			"flowtrace", "Validate", "max depth")
	}
	if c.ViolationLogRate < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: violation log rate %v is negative", errors.ErrInvalidConfig, c.ViolationLogRate),
			"flowtrace", "Validate", "violation log rate")
	}
	return nil
}
