package polling

import (
	"fmt"
	"time"
)

// Defaults for a polling session.
const (
	DefaultInitialInterval = 2 * time.Second
	DefaultMaxInterval     = 15 * time.Second
	DefaultMaxAttempts     = 200
)

// Config bounds a polling session. Zero fields take the defaults.
type Config struct {
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval"`
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"`
}

// DefaultConfig returns 2s doubling to 15s over at most 200 attempts.
func DefaultConfig() Config {
	return Config{
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxAttempts:     DefaultMaxAttempts,
	}
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Validate rejects negative values and a cap below the initial interval.
func (c Config) Validate() error {
	if c.InitialInterval < 0 || c.MaxInterval < 0 || c.MaxAttempts < 0 {
		return fmt.Errorf("polling values must not be negative")
	}
	if c.InitialInterval > 0 && c.MaxInterval > 0 && c.MaxInterval < c.InitialInterval {
		return fmt.Errorf("polling max interval %s is below initial interval %s", c.MaxInterval, c.InitialInterval)
	}
	return nil
}

// Budget is the total time spent waiting if every attempt is used.
func (c Config) Budget() time.Duration {
	c = c.WithDefaults()
	b := NewBackoff(c)
	var total time.Duration
	for i := 0; i < c.MaxAttempts; i++ {
		total += b.Next()
	}
	return total
}

// Backoff yields a non-decreasing sequence of intervals starting at
// InitialInterval, doubling each step and capped at MaxInterval.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

// NewBackoff starts a sequence for cfg.
func NewBackoff(cfg Config) *Backoff {
	cfg = cfg.WithDefaults()
	b := &Backoff{initial: cfg.InitialInterval, max: cfg.MaxInterval}
	b.Reset()
	return b
}

// Next returns the current interval and advances the sequence.
func (b *Backoff) Next() time.Duration {
	current := b.next
	if b.next < b.max {
		b.next *= 2
		if b.next > b.max {
			b.next = b.max
		}
	}
	return current
}

// Reset restarts the sequence at the initial interval.
func (b *Backoff) Reset() {
	b.next = b.initial
	if b.next > b.max {
		b.next = b.max
	}
}
