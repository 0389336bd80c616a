package sim

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"sync"
	"time"

	"sps30"
)

type SensorState int

const (
	StateIdle SensorState = iota
	StateMeasuring
	StateSleeping
)

func (s SensorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMeasuring:
		return "measuring"
	case StateSleeping:
		return "sleeping"
	}
	return "unknown"
}

type Status struct {
	State              string            `json:"state"`
	RxFrameCounter     int               `json:"rxFrameCounter"`
	TxFrameCounter     int               `json:"txFrameCounter"`
	MeasurementCounter int               `json:"measurementCounter"`
	WakePulseCounter   int               `json:"wakePulseCounter"`
	OpenCounter        int               `json:"openCounter"`
	BurnEventCounter   int               `json:"burnEventCounter"` //How many persistent save events happened
	Current            sps30.Measurement `json:"current"`
}

var ErrSimulatedOpen = errors.New("simulated open failure")

/*
Sensor reacts to MOSI frames like SPS30 would. It is also sps30.Conn so
driver and controller can be run against it without any serial port
*/
type Sensor struct {
	mu          sync.Mutex
	model       Model
	status      Status
	state       SensorState
	opened      bool
	outputQueue []sps30.Frame
	rnd         *rand.Rand
	now         func() time.Time
}

var _ sps30.Conn = (*Sensor)(nil)

// ratios to pm2.5 mass concentration for the derived channels
var channelRatios = [9]float64{0.8, 1, 1.1, 1.15, 6.0, 7.0, 7.2, 7.25, 7.3}

func NewSensor(model Model) *Sensor {
	return &Sensor{
		model: model,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
}

func (p *Sensor) Model() Model {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model
}

func (p *Sensor) SetModel(model Model) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = model
}

func (p *Sensor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := p.status
	result.State = p.state.String()
	return result
}

func (p *Sensor) State() SensorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Sensor) measure() sps30.Measurement {
	pm25 := p.model.Pm25.Calc(p.now(), p.rnd)
	v := [9]float32{}
	for i, ratio := range channelRatios {
		v[i] = float32(pm25 * ratio)
	}
	return sps30.Measurement{
		Mc1p0: v[0], Mc2p5: v[1], Mc4p0: v[2], Mc10p0: v[3],
		Nc0p5: v[4], Nc1p0: v[5], Nc2p5: v[6], Nc4p0: v[7], Nc10p0: v[8],
		TypicalParticleSize: float32(p.model.TypicalSize),
	}
}

// React returns nil when sensor does not answer at all
func (p *Sensor) React(request sps30.Frame) *sps30.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.RxFrameCounter++
	reply := p.reactToFrame(request)
	if reply != nil {
		p.status.TxFrameCounter++
	}
	return reply
}

func (p *Sensor) reactToFrame(request sps30.Frame) *sps30.Frame {
	if request.FromDevice || p.model.Faults.Silent {
		return nil
	}
	if p.state == StateSleeping && request.Command != sps30.CMD_WAKEUP {
		return nil //UART is off while sleeping
	}

	var flags byte
	if p.model.Faults.DeviceError {
		flags = sps30.STATE_DEVICEERRORFLAG
	}
	ok := func(data ...byte) *sps30.Frame {
		f := sps30.NewReplyFrame(request.Command, flags, data...)
		return &f
	}
	fail := func(code byte) *sps30.Frame {
		f := sps30.NewReplyFrame(request.Command, flags|code)
		return &f
	}
	hasSleep := 2 <= p.model.Firmware.Major

	switch request.Command {
	case sps30.CMD_STARTMEASUREMENT:
		if len(request.Data) != 2 {
			return fail(sps30.ERR_WRONGDATALENGTH)
		}
		if request.Data[0] != 0x01 || request.Data[1] != 0x03 {
			return fail(sps30.ERR_ILLEGALPARAMETER)
		}
		if p.state != StateIdle {
			return fail(sps30.ERR_NOTALLOWEDINSTATE)
		}
		p.state = StateMeasuring
		return ok()

	case sps30.CMD_STOPMEASUREMENT:
		if p.state != StateMeasuring {
			return fail(sps30.ERR_NOTALLOWEDINSTATE)
		}
		p.state = StateIdle
		return ok()

	case sps30.CMD_READMEASUREMENT:
		if p.state != StateMeasuring {
			return fail(sps30.ERR_NOTALLOWEDINSTATE)
		}
		if 0 < p.model.Faults.ReadFailures {
			p.model.Faults.ReadFailures--
			return ok() //No new data
		}
		m := p.measure()
		p.status.Current = m
		p.status.MeasurementCounter++
		return ok(m.ToBytes()...)

	case sps30.CMD_SLEEP:
		if !hasSleep {
			return fail(sps30.ERR_UNKNOWNCOMMAND)
		}
		if p.state != StateIdle {
			return fail(sps30.ERR_NOTALLOWEDINSTATE)
		}
		p.state = StateSleeping
		return ok()

	case sps30.CMD_WAKEUP:
		if !hasSleep {
			return fail(sps30.ERR_UNKNOWNCOMMAND)
		}
		if p.state == StateSleeping {
			p.state = StateIdle
		}
		return ok()

	case sps30.CMD_AUTOCLEANINTERVAL:
		switch {
		case len(request.Data) == 1 && request.Data[0] == 0:
			return ok(binary.BigEndian.AppendUint32(nil, p.model.AutoCleanInterval)...)
		case len(request.Data) == 5 && request.Data[0] == 0:
			p.model.AutoCleanInterval = binary.BigEndian.Uint32(request.Data[1:5])
			p.status.BurnEventCounter++ //Important to count memory wear out
			return ok()
		}
		return fail(sps30.ERR_WRONGDATALENGTH)

	case sps30.CMD_DEVICEINFO:
		if len(request.Data) != 1 {
			return fail(sps30.ERR_WRONGDATALENGTH)
		}
		switch request.Data[0] {
		case sps30.DEVICEINFO_PRODUCTTYPE:
			return ok(append([]byte(p.model.ProductType), 0)...)
		case sps30.DEVICEINFO_SERIALNUMBER:
			if 0 < p.model.Faults.ProbeFailures {
				p.model.Faults.ProbeFailures--
				return nil
			}
			return ok(append([]byte(p.model.Serial), 0)...)
		}
		return fail(sps30.ERR_ILLEGALPARAMETER)

	case sps30.CMD_READVERSION:
		if 0 < p.model.Faults.VersionFailures {
			p.model.Faults.VersionFailures--
			return nil
		}
		fw := p.model.Firmware
		return ok(fw.Major, fw.Minor, 0, fw.HardwareRevision, 0, fw.SHDLCMajor, fw.SHDLCMinor)

	case sps30.CMD_READSTATUSREGISTER:
		if len(request.Data) != 1 {
			return fail(sps30.ERR_WRONGDATALENGTH)
		}
		reg := p.model.Faults.StatusRegister
		if request.Data[0] == 1 {
			p.model.Faults.StatusRegister = 0
		}
		return ok(append(binary.BigEndian.AppendUint32(nil, reg), 0)...)

	case sps30.CMD_STARTFANCLEANING:
		if p.state != StateMeasuring {
			return fail(sps30.ERR_NOTALLOWEDINSTATE)
		}
		return ok()

	case sps30.CMD_RESET:
		p.state = StateIdle
		return ok()
	}
	return fail(sps30.ERR_UNKNOWNCOMMAND)
}

/*
sps30.Conn implementation. Replies are queued in-process
*/

func (p *Sensor) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if 0 < p.model.Faults.OpenFailures {
		p.model.Faults.OpenFailures--
		return ErrSimulatedOpen
	}
	p.opened = true
	p.status.OpenCounter++
	return nil
}

func (p *Sensor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.opened {
		return sps30.ErrPortClosed
	}
	p.opened = false
	p.outputQueue = nil
	return nil
}

func (p *Sensor) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

func (p *Sensor) SendBytes(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.opened {
		return sps30.ErrPortClosed
	}
	for _, b := range data {
		if b == sps30.WAKEUPPULSE {
			p.status.WakePulseCounter++
		}
	}
	return nil
}

func (p *Sensor) Send(frame sps30.Frame) error {
	if !p.IsOpen() {
		return sps30.ErrPortClosed
	}
	reply := p.React(frame)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputQueue = nil
	if reply != nil {
		p.outputQueue = append(p.outputQueue, *reply)
	}
	return nil
}

func (p *Sensor) Receive() (*sps30.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.opened {
		return nil, sps30.ErrPortClosed
	}
	if len(p.outputQueue) == 0 {
		return nil, nil
	}
	result := p.outputQueue[0]
	p.outputQueue = p.outputQueue[1:]
	return &result, nil
}
