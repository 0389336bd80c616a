package sps30

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode"
)

const (
	MaxSerialLen    = 32 //Serial buffer size of the sensor
	UnknownSerial   = "Unknown s/n"
	MEASUREMENTSIZE = 40 //10 big endian floats
)

// Measurement is one reading. Mass concentrations in µg/m³, number concentrations in #/cm³, size in µm
type Measurement struct {
	Mc1p0               float32 `json:"pm1.0" yaml:"pm1.0"`
	Mc2p5               float32 `json:"pm2.5" yaml:"pm2.5"`
	Mc4p0               float32 `json:"pm4.0" yaml:"pm4.0"`
	Mc10p0              float32 `json:"pm10.0" yaml:"pm10.0"`
	Nc0p5               float32 `json:"nc0.5" yaml:"nc0.5"`
	Nc1p0               float32 `json:"nc1.0" yaml:"nc1.0"`
	Nc2p5               float32 `json:"nc2.5" yaml:"nc2.5"`
	Nc4p0               float32 `json:"nc4.0" yaml:"nc4.0"`
	Nc10p0              float32 `json:"nc10.0" yaml:"nc10.0"`
	TypicalParticleSize float32 `json:"typical-size" yaml:"typical-size"`
}

// FieldNames is the fixed output order of measurement fields
var FieldNames = []string{"pm1.0", "pm2.5", "pm4.0", "pm10.0", "nc0.5", "nc1.0", "nc2.5", "nc4.0", "nc10.0", "typical-size"}

// Values in FieldNames order
func (p *Measurement) Values() []float32 {
	return []float32{p.Mc1p0, p.Mc2p5, p.Mc4p0, p.Mc10p0, p.Nc0p5, p.Nc1p0, p.Nc2p5, p.Nc4p0, p.Nc10p0, p.TypicalParticleSize}
}

func (p *Measurement) ToBytes() []byte {
	result := make([]byte, 0, MEASUREMENTSIZE)
	for _, v := range p.Values() {
		result = binary.BigEndian.AppendUint32(result, math.Float32bits(v))
	}
	return result
}

func (p *Measurement) FromBytes(data []byte) error {
	if len(data) != MEASUREMENTSIZE {
		return fmt.Errorf("%w: measurement size %v, expected %v", ErrInvalidReply, len(data), MEASUREMENTSIZE)
	}
	f := func(i int) float32 {
		return math.Float32frombits(binary.BigEndian.Uint32(data[i*4 : i*4+4]))
	}
	*p = Measurement{
		Mc1p0: f(0), Mc2p5: f(1), Mc4p0: f(2), Mc10p0: f(3),
		Nc0p5: f(4), Nc1p0: f(5), Nc2p5: f(6), Nc4p0: f(7), Nc10p0: f(8),
		TypicalParticleSize: f(9),
	}
	return nil
}

type VersionInfo struct {
	FirmwareMajor    uint8
	FirmwareMinor    uint8
	HardwareRevision uint8
	SHDLCMajor       uint8
	SHDLCMinor       uint8
}

// SupportsSleep reports whether firmware has sleep and wake-up commands
func (p VersionInfo) SupportsSleep() bool {
	return 2 <= p.FirmwareMajor
}

func (p VersionInfo) String() string {
	return fmt.Sprintf("FW: %v.%v HW: %v, SHDLC: %v.%v", p.FirmwareMajor, p.FirmwareMinor, p.HardwareRevision, p.SHDLCMajor, p.SHDLCMinor)
}

// DeviceState is the state byte of an otherwise successful reply. Non-zero means readings may not be accurate
type DeviceState byte

func (s DeviceState) Degraded() bool {
	return s != 0
}

func (s DeviceState) Code() uint8 {
	return uint8(s)
}

type StatusRegister uint32

func (s StatusRegister) FanSpeedWarning() bool { return s&(1<<21) != 0 }
func (s StatusRegister) LaserError() bool      { return s&(1<<5) != 0 }
func (s StatusRegister) FanError() bool        { return s&(1<<4) != 0 }

func (s StatusRegister) String() string {
	toks := []string{}
	if s.FanSpeedWarning() {
		toks = append(toks, "fan speed out of range")
	}
	if s.LaserError() {
		toks = append(toks, "laser failure")
	}
	if s.FanError() {
		toks = append(toks, "fan failure")
	}
	if len(toks) == 0 {
		return "ok"
	}
	return strings.Join(toks, ", ")
}

/*
SerialNumber is bounded text. The bound is enforced here when driver
data is ingested, users of the value never need to clamp
*/
type SerialNumber struct {
	value string
}

func NewSerialNumber(raw []byte) SerialNumber {
	b := strings.Builder{}
	for _, c := range raw {
		if c == 0 || MaxSerialLen <= b.Len() {
			break
		}
		if c < unicode.MaxASCII && unicode.IsPrint(rune(c)) {
			b.WriteByte(c)
		}
	}
	return SerialNumber{value: strings.TrimSpace(b.String())}
}

func (s SerialNumber) String() string {
	return s.value
}

func (s SerialNumber) IsEmpty() bool {
	return len(s.value) == 0
}

// Display never returns empty text
func (s SerialNumber) Display() string {
	if s.IsEmpty() {
		return UnknownSerial
	}
	return s.value
}

// FormatReading renders one output line (without newline)
func FormatReading(sn SerialNumber, m Measurement) string {
	toks := []string{sn.Display()}
	for i, v := range m.Values() {
		toks = append(toks, fmt.Sprintf("%v:%0.2f", FieldNames[i], v))
	}
	return strings.Join(toks, " ")
}
