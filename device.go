package sps30

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const (
	TIMEOUTRESPONSE = 500 //Command is sent, how long wait sensor response (ms)
	POLLINTERVAL    = 5   //Granularity while waiting response (ms)
	WAKEUPPULSE     = 0xFF
	SECONDSPERDAY   = 24 * 60 * 60
)

/*
Device is SPS30 driver over Conn. Every call is a single synchronous
request/response exchange and Device keeps no state about the sensor
*/
type Device struct {
	conn            Conn
	responseTimeout time.Duration
	pollInterval    time.Duration
}

type DeviceOption func(*Device)

func WithResponseTimeout(timeout time.Duration) DeviceOption {
	return func(p *Device) {
		p.responseTimeout = timeout
	}
}

func NewDevice(conn Conn, opts ...DeviceOption) *Device {
	result := &Device{
		conn:            conn,
		responseTimeout: TIMEOUTRESPONSE * time.Millisecond,
		pollInterval:    POLLINTERVAL * time.Millisecond,
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

// execute sends command and waits matching reply. State byte errors are returned as *ExecutionError
func (p *Device) execute(command byte, data ...byte) (Frame, error) {
	if err := p.conn.Send(NewCommandFrame(command, data...)); err != nil {
		return Frame{}, fmt.Errorf("sending %v: %w", CommandName(command), err)
	}

	tStart := time.Now()
	for time.Since(tStart) < p.responseTimeout {
		reply, err := p.conn.Receive()
		if errors.Is(err, ErrInvalidReply) { //Line noise, wait for proper reply
			continue
		}
		if err != nil {
			return Frame{}, fmt.Errorf("receiving %v reply: %w", CommandName(command), err)
		}
		if reply == nil {
			time.Sleep(p.pollInterval)
			continue
		}
		if reply.Command != command || reply.Address != DEVICEADDRESS { //Ignore other stuff. Late replies etc...
			continue
		}
		if reply.ErrorCode() != 0 {
			return *reply, &ExecutionError{Command: command, Code: reply.ErrorCode()}
		}
		return *reply, nil
	}
	return Frame{}, fmt.Errorf("%v: %w", CommandName(command), ErrTimeout)
}

// Probe checks that sensor responds. Sensor might be sleeping, so wake up is tried first. Wake up failure is reported only together with failing read
func (p *Device) Probe() error {
	errWake := p.WakeUp()
	_, err := p.ReadSerial()
	if err != nil {
		return multierr.Append(err, errWake)
	}
	return nil
}

func (p *Device) ReadVersion() (VersionInfo, error) {
	reply, err := p.execute(CMD_READVERSION)
	if err != nil {
		return VersionInfo{}, err
	}
	if len(reply.Data) != 7 {
		return VersionInfo{}, fmt.Errorf("%w: version data length %v", ErrInvalidReply, len(reply.Data))
	}
	return VersionInfo{
		FirmwareMajor:    reply.Data[0],
		FirmwareMinor:    reply.Data[1],
		HardwareRevision: reply.Data[3],
		SHDLCMajor:       reply.Data[5],
		SHDLCMinor:       reply.Data[6],
	}, nil
}

func (p *Device) ReadSerial() (SerialNumber, error) {
	reply, err := p.execute(CMD_DEVICEINFO, DEVICEINFO_SERIALNUMBER)
	if err != nil {
		return SerialNumber{}, err
	}
	return NewSerialNumber(reply.Data), nil
}

func (p *Device) ReadProductType() (string, error) {
	reply, err := p.execute(CMD_DEVICEINFO, DEVICEINFO_PRODUCTTYPE)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(reply.Data), "\x00"), nil
}

func (p *Device) SetAutoCleanInterval(days uint8) error {
	data := binary.BigEndian.AppendUint32([]byte{0x00}, uint32(days)*SECONDSPERDAY)
	_, err := p.execute(CMD_AUTOCLEANINTERVAL, data...)
	return err
}

func (p *Device) ReadAutoCleanInterval() (time.Duration, error) {
	reply, err := p.execute(CMD_AUTOCLEANINTERVAL, 0x00)
	if err != nil {
		return 0, err
	}
	if len(reply.Data) != 4 {
		return 0, fmt.Errorf("%w: auto clean interval length %v", ErrInvalidReply, len(reply.Data))
	}
	return time.Duration(binary.BigEndian.Uint32(reply.Data)) * time.Second, nil
}

// StartMeasurement selects big endian float output
func (p *Device) StartMeasurement() error {
	_, err := p.execute(CMD_STARTMEASUREMENT, 0x01, 0x03)
	return err
}

func (p *Device) StopMeasurement() error {
	_, err := p.execute(CMD_STOPMEASUREMENT)
	return err
}

/*
ReadMeasurement returns non-zero DeviceState when sensor flags its error
state. Measurement is still valid then, but accuracy might be reduced
*/
func (p *Device) ReadMeasurement() (Measurement, DeviceState, error) {
	reply, err := p.execute(CMD_READMEASUREMENT)
	if err != nil {
		return Measurement{}, 0, err
	}
	if len(reply.Data) == 0 {
		return Measurement{}, 0, ErrNoNewData
	}
	m := Measurement{}
	if err := m.FromBytes(reply.Data); err != nil {
		return Measurement{}, 0, err
	}
	return m, DeviceState(reply.State), nil
}

func (p *Device) Sleep() error {
	_, err := p.execute(CMD_SLEEP)
	return err
}

// WakeUp needs a falling edge on RX before the command, 0xFF does that
func (p *Device) WakeUp() error {
	if err := p.conn.SendBytes([]byte{WAKEUPPULSE}); err != nil {
		return fmt.Errorf("wake-up pulse: %w", err)
	}
	_, err := p.execute(CMD_WAKEUP)
	return err
}

func (p *Device) ReadStatusRegister(clear bool) (StatusRegister, error) {
	var clearByte byte
	if clear {
		clearByte = 1
	}
	reply, err := p.execute(CMD_READSTATUSREGISTER, clearByte)
	if err != nil {
		return 0, err
	}
	if len(reply.Data) != 5 {
		return 0, fmt.Errorf("%w: status register length %v", ErrInvalidReply, len(reply.Data))
	}
	return StatusRegister(binary.BigEndian.Uint32(reply.Data[0:4])), nil
}

func (p *Device) StartFanCleaning() error {
	_, err := p.execute(CMD_STARTFANCLEANING)
	return err
}

func (p *Device) Reset() error {
	_, err := p.execute(CMD_RESET)
	return err
}
