package lifecycle

import (
	"errors"
	"sync"
	"time"

	"sps30"
)

var errFake = errors.New("fake failure")

type fakeTransport struct {
	openFailures int
	opens        int
	closes       int
	closeErr     error
}

func (p *fakeTransport) Open() error {
	p.opens++
	if p.opens <= p.openFailures {
		return errFake
	}
	return nil
}

func (p *fakeTransport) Close() error {
	p.closes++
	return p.closeErr
}

// fakeDriver records every call by operation name
type fakeDriver struct {
	calls []string

	probeFailures int //-1 fails forever
	probes        int

	version    sps30.VersionInfo
	versionErr error
	serial     []byte
	serialErr  error

	autoCleanDays uint8
	autoCleanErr  error
	startErr      error
	stopErr       error
	sleepErr      error
	wakeErr       error

	reads      int
	readErrAt  map[int]error //By read index, starting from 1
	degradedAt map[int]bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		version:    sps30.VersionInfo{FirmwareMajor: 2, FirmwareMinor: 2, HardwareRevision: 7, SHDLCMajor: 2},
		serial:     []byte("F00DCAFE\x00"),
		readErrAt:  map[int]error{},
		degradedAt: map[int]bool{},
	}
}

func (p *fakeDriver) Probe() error {
	p.calls = append(p.calls, OpProbe.String())
	p.probes++
	if p.probeFailures < 0 || p.probes <= p.probeFailures {
		return sps30.ErrTimeout
	}
	return nil
}

func (p *fakeDriver) ReadVersion() (sps30.VersionInfo, error) {
	p.calls = append(p.calls, OpReadVersion.String())
	return p.version, p.versionErr
}

func (p *fakeDriver) ReadSerial() (sps30.SerialNumber, error) {
	p.calls = append(p.calls, OpReadSerial.String())
	if p.serialErr != nil {
		return sps30.SerialNumber{}, p.serialErr
	}
	return sps30.NewSerialNumber(p.serial), nil
}

func (p *fakeDriver) SetAutoCleanInterval(days uint8) error {
	p.calls = append(p.calls, OpSetAutoClean.String())
	p.autoCleanDays = days
	return p.autoCleanErr
}

func (p *fakeDriver) StartMeasurement() error {
	p.calls = append(p.calls, OpStartMeasurement.String())
	return p.startErr
}

func (p *fakeDriver) ReadMeasurement() (sps30.Measurement, sps30.DeviceState, error) {
	p.calls = append(p.calls, OpReadMeasurement.String())
	p.reads++
	if err, found := p.readErrAt[p.reads]; found {
		return sps30.Measurement{}, 0, err
	}
	m := sps30.Measurement{Mc1p0: 1, Mc2p5: 2.5, Mc4p0: 4, Mc10p0: 10, Nc0p5: 0.5, Nc1p0: 1, Nc2p5: 2.5, Nc4p0: 4, Nc10p0: 10, TypicalParticleSize: float32(p.reads)}
	var state sps30.DeviceState
	if p.degradedAt[p.reads] {
		state = sps30.STATE_DEVICEERRORFLAG
	}
	return m, state, nil
}

func (p *fakeDriver) StopMeasurement() error {
	p.calls = append(p.calls, OpStopMeasurement.String())
	return p.stopErr
}

func (p *fakeDriver) Sleep() error {
	p.calls = append(p.calls, OpSleep.String())
	return p.sleepErr
}

func (p *fakeDriver) WakeUp() error {
	p.calls = append(p.calls, OpWakeUp.String())
	return p.wakeErr
}

func (p *fakeDriver) count(op Operation) int {
	n := 0
	for _, c := range p.calls {
		if c == op.String() {
			n++
		}
	}
	return n
}

// fakeSleeper does not sleep, just records
type fakeSleeper struct {
	mu      sync.Mutex
	sleeps  []time.Duration
	onSleep func(d time.Duration)
}

func (p *fakeSleeper) Sleep(d time.Duration) {
	p.mu.Lock()
	p.sleeps = append(p.sleeps, d)
	p.mu.Unlock()
	if p.onSleep != nil {
		p.onSleep(d)
	}
}

func (p *fakeSleeper) count(d time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.sleeps {
		if s == d {
			n++
		}
	}
	return n
}
