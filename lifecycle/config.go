package lifecycle

import (
	"fmt"
	"time"
)

const (
	DEFAULTPROBEATTEMPTS  = 20
	DEFAULTSAMPLECOUNT    = 60
	DEFAULTAUTOCLEANDAYS  = 1
	DEFAULTRETRYDELAY     = time.Second
	DEFAULTSAMPLEINTERVAL = time.Second
	DEFAULTIDLEDURATION   = 60 * time.Second
)

// Config holds startup constants. Nothing is changed while running
type Config struct {
	ProbeAttempts       int
	TransportRetryDelay time.Duration
	ProbeRetryDelay     time.Duration
	SampleCount         int
	SampleInterval      time.Duration
	IdleDuration        time.Duration
	AutoCleanDays       uint8
}

func DefaultConfig() Config {
	return Config{
		ProbeAttempts:       DEFAULTPROBEATTEMPTS,
		TransportRetryDelay: DEFAULTRETRYDELAY,
		ProbeRetryDelay:     DEFAULTRETRYDELAY,
		SampleCount:         DEFAULTSAMPLECOUNT,
		SampleInterval:      DEFAULTSAMPLEINTERVAL,
		IdleDuration:        DEFAULTIDLEDURATION,
		AutoCleanDays:       DEFAULTAUTOCLEANDAYS,
	}
}

func (p Config) Validate() error {
	if p.ProbeAttempts < 1 {
		return fmt.Errorf("%w: probe attempts %v", ErrInvalidConfig, p.ProbeAttempts)
	}
	if p.SampleCount < 1 {
		return fmt.Errorf("%w: sample count %v", ErrInvalidConfig, p.SampleCount)
	}
	if p.TransportRetryDelay < 0 || p.ProbeRetryDelay < 0 || p.SampleInterval < 0 || p.IdleDuration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	return nil
}

type Option func(*Config)

func WithProbeAttempts(n int) Option {
	return func(c *Config) { c.ProbeAttempts = n }
}

func WithRetryDelays(transport, probe time.Duration) Option {
	return func(c *Config) {
		c.TransportRetryDelay = transport
		c.ProbeRetryDelay = probe
	}
}

func WithSampleWindow(count int, interval time.Duration) Option {
	return func(c *Config) {
		c.SampleCount = count
		c.SampleInterval = interval
	}
}

func WithIdleDuration(d time.Duration) Option {
	return func(c *Config) { c.IdleDuration = d }
}

func WithAutoCleanDays(days uint8) Option {
	return func(c *Config) { c.AutoCleanDays = days }
}
