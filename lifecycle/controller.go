/*
Device lifecycle controller

Opens transport (retries forever), probes sensor (bounded), fetches
identity once and then runs duty cycle of measuring and idling until
context is cancelled. Every failure is handled according to policy table
*/
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"sps30"
)

var (
	ErrProbeFailed   = errors.New("sensor did not respond to probe")
	ErrInvalidConfig = errors.New("invalid lifecycle configuration")
)

type Transport interface {
	Open() error
	Close() error
}

// Driver is satisfied by *sps30.Device
type Driver interface {
	Probe() error
	ReadVersion() (sps30.VersionInfo, error)
	ReadSerial() (sps30.SerialNumber, error)
	SetAutoCleanInterval(days uint8) error
	StartMeasurement() error
	ReadMeasurement() (sps30.Measurement, sps30.DeviceState, error)
	StopMeasurement() error
	Sleep() error
	WakeUp() error
}

// Sleeper is satisfied by clock.Clock
type Sleeper interface {
	Sleep(d time.Duration)
}

type State int

const (
	StateAwaitingTransport State = iota
	StateProbing
	StateReady
	StateMeasuring
	StateIdle
	StateTerminated
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateAwaitingTransport:
		return "awaiting-transport"
	case StateProbing:
		return "probing"
	case StateReady:
		return "ready"
	case StateMeasuring:
		return "measuring"
	case StateIdle:
		return "idle"
	case StateTerminated:
		return "terminated"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Identity is fetched once. Version gates sleep and wake-up
type Identity struct {
	Version      sps30.VersionInfo
	VersionKnown bool
	Serial       sps30.SerialNumber
}

func (p Identity) SupportsSleep() bool {
	return p.VersionKnown && p.Version.SupportsSleep()
}

type Controller struct {
	transport Transport
	driver    Driver
	sleeper   Sleeper
	sink      Sink
	log       logrus.FieldLogger
	metrics   *Metrics
	cfg       Config

	mu         sync.RWMutex
	state      State
	identity   Identity
	current    sps30.Measurement
	hasCurrent bool
}

type Dependencies struct {
	Transport Transport
	Driver    Driver
	Sleeper   Sleeper
	Sink      Sink
	Log       logrus.FieldLogger //Optional, standard logger by default
	Metrics   *Metrics           //Optional
}

func NewController(deps Dependencies, opts ...Option) (*Controller, error) {
	if deps.Transport == nil || deps.Driver == nil || deps.Sleeper == nil || deps.Sink == nil {
		return nil, fmt.Errorf("%w: transport, driver, sleeper and sink are required", ErrInvalidConfig)
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Controller{
		transport: deps.Transport,
		driver:    deps.Driver,
		sleeper:   deps.Sleeper,
		sink:      deps.Sink,
		log:       log,
		metrics:   deps.Metrics,
		cfg:       cfg,
		identity:  Identity{Serial: sps30.NewSerialNumber(nil)},
	}, nil
}

func (p *Controller) Config() Config {
	return p.cfg
}

func (p *Controller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Controller) Identity() Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

// Current returns latest successful reading. False if nothing read yet
func (p *Controller) Current() (sps30.Measurement, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.hasCurrent
}

func (p *Controller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.metrics.setState(s)
	p.log.WithField("state", s.String()).Debug("lifecycle state changed")
}

func (p *Controller) retryDelay(op Operation) time.Duration {
	if op == OpOpenTransport {
		return p.cfg.TransportRetryDelay
	}
	return p.cfg.ProbeRetryDelay
}

/*
attempt runs fn under policy of op. Returned error is the last failure.
Only unbounded retry looks at context, nothing is open yet while it runs
*/
func (p *Controller) attempt(ctx context.Context, op Operation, fn func() error) error {
	policy := PolicyOf(op)
	maxAttempts := 1
	switch policy {
	case RetryBounded:
		maxAttempts = p.cfg.ProbeAttempts
	case RetryUnbounded:
		maxAttempts = 0
	}

	for attempt := 1; ; attempt++ {
		if op == OpProbe {
			p.metrics.probeAttempt()
		}
		err := fn()
		if err == nil {
			return nil
		}
		p.metrics.failure(op)

		entry := p.log.WithFields(logrus.Fields{"operation": op.String(), "attempt": attempt}).WithError(err)
		if policy == RetryBounded {
			entry = entry.WithField("max", maxAttempts)
		}
		var execErr *sps30.ExecutionError
		if errors.As(err, &execErr) {
			entry = entry.WithField("code", fmt.Sprintf("0x%02X", execErr.Code))
		}

		switch policy {
		case LogOnly:
			entry.Warn("operation failed")
			return err
		case Fatal:
			entry.Error("operation failed")
			return err
		}

		if 0 < maxAttempts && maxAttempts <= attempt {
			entry.Error("retries exhausted")
			return err
		}
		entry.Warn("operation failed, retrying")
		if policy == RetryUnbounded && ctx.Err() != nil {
			return ctx.Err()
		}
		p.sleeper.Sleep(p.retryDelay(op))
	}
}

// Run blocks. Returns nil when context is cancelled, error wrapping ErrProbeFailed if sensor never responded
func (p *Controller) Run(ctx context.Context) (err error) {
	p.setState(StateAwaitingTransport)
	if errOpen := p.attempt(ctx, OpOpenTransport, p.transport.Open); errOpen != nil {
		p.setState(StateStopped)
		if ctx.Err() != nil {
			return nil
		}
		return errOpen
	}
	p.log.Info("transport opened")

	defer func() {
		errClose := p.attempt(ctx, OpCloseTransport, p.transport.Close)
		if errClose != nil {
			err = multierr.Append(err, fmt.Errorf("closing transport: %w", errClose))
		}
	}()

	p.setState(StateProbing)
	if errProbe := p.attempt(ctx, OpProbe, p.driver.Probe); errProbe != nil {
		p.setState(StateTerminated)
		return fmt.Errorf("%w after %v attempts: %w", ErrProbeFailed, p.cfg.ProbeAttempts, errProbe)
	}
	p.setState(StateReady)
	p.log.Info("sensor responded to probe")

	p.fetchMetadata(ctx)

	for {
		p.cycle(ctx)
		if ctx.Err() != nil { //Only safe point, sensor is awake and not measuring
			p.setState(StateStopped)
			p.log.Info("duty cycle stopped")
			return nil
		}
	}
}

func (p *Controller) fetchMetadata(ctx context.Context) {
	identity := Identity{Serial: sps30.NewSerialNumber(nil)}

	errVersion := p.attempt(ctx, OpReadVersion, func() error {
		ver, err := p.driver.ReadVersion()
		if err != nil {
			return err
		}
		identity.Version = ver
		identity.VersionKnown = true
		return nil
	})
	if errVersion != nil {
		p.log.Warn("firmware version unknown, sleep and wake-up disabled")
	}

	_ = p.attempt(ctx, OpReadSerial, func() error {
		serial, err := p.driver.ReadSerial()
		if err != nil {
			return err
		}
		identity.Serial = serial
		return nil
	})

	p.mu.Lock()
	p.identity = identity
	p.mu.Unlock()

	fields := logrus.Fields{"serial": identity.Serial.Display()}
	if identity.VersionKnown {
		fields["version"] = identity.Version.String()
	}
	p.log.WithFields(fields).Info("sensor identity")

	_ = p.attempt(ctx, OpSetAutoClean, func() error {
		return p.driver.SetAutoCleanInterval(p.cfg.AutoCleanDays)
	})
}

func (p *Controller) cycle(ctx context.Context) {
	p.setState(StateMeasuring)
	_ = p.attempt(ctx, OpStartMeasurement, p.driver.StartMeasurement)

	for i := 0; i < p.cfg.SampleCount; i++ {
		p.sample(ctx)
		p.sleeper.Sleep(p.cfg.SampleInterval)
	}

	_ = p.attempt(ctx, OpStopMeasurement, p.driver.StopMeasurement)
	p.setState(StateIdle)

	sleepCapable := p.Identity().SupportsSleep()
	if sleepCapable {
		_ = p.attempt(ctx, OpSleep, p.driver.Sleep)
	}
	p.sleeper.Sleep(p.cfg.IdleDuration)
	if sleepCapable {
		_ = p.attempt(ctx, OpWakeUp, p.driver.WakeUp)
	}
}

func (p *Controller) sample(ctx context.Context) {
	var (
		m     sps30.Measurement
		state sps30.DeviceState
	)
	errRead := p.attempt(ctx, OpReadMeasurement, func() error {
		var err error
		m, state, err = p.driver.ReadMeasurement()
		return err
	})
	if errRead != nil {
		return
	}
	if state.Degraded() {
		p.log.WithFields(logrus.Fields{
			"operation": OpReadMeasurement.String(),
			"code":      fmt.Sprintf("0x%02X", state.Code()),
		}).Warn("sensor reports device error state, reading may be inaccurate")
	}

	p.mu.Lock()
	p.current = m
	p.hasCurrent = true
	serial := p.identity.Serial
	p.mu.Unlock()

	p.metrics.reading(m, state.Degraded())
	p.sink.Emit(sps30.FormatReading(serial, m))
}
