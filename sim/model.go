/*
Sensor model

Model is loaded from disk and manipulated by user while simulator is running.
Faults allow acting as faulty sensor (or comm link) when needed
*/

package sim

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Model struct {
	Firmware          FirmwareModel `yaml:"firmware" json:"firmware"`
	Serial            string        `yaml:"serial" json:"serial"`
	ProductType       string        `yaml:"productType" json:"productType"`
	AutoCleanInterval uint32        `yaml:"autoCleanInterval" json:"autoCleanInterval"` //seconds
	Pm25              SignalModel   `yaml:"pm25" json:"pm25"`                           //Other channels are derived from this
	TypicalSize       float64       `yaml:"typicalSize" json:"typicalSize"`             //µm
	Faults            FaultModel    `yaml:"faults" json:"faults"`
}

type FirmwareModel struct {
	Major            uint8 `yaml:"major" json:"major"`
	Minor            uint8 `yaml:"minor" json:"minor"`
	HardwareRevision uint8 `yaml:"hardwareRevision" json:"hardwareRevision"`
	SHDLCMajor       uint8 `yaml:"shdlcMajor" json:"shdlcMajor"`
	SHDLCMinor       uint8 `yaml:"shdlcMinor" json:"shdlcMinor"`
}

// FaultModel counters are consumed, each failure decrements
type FaultModel struct {
	OpenFailures    int    `yaml:"openFailures" json:"openFailures"`       //Open() fails
	ProbeFailures   int    `yaml:"probeFailures" json:"probeFailures"`     //serial number requests not answered
	VersionFailures int    `yaml:"versionFailures" json:"versionFailures"` //version requests not answered
	ReadFailures    int    `yaml:"readFailures" json:"readFailures"`       //reads answered without data
	DeviceError     bool   `yaml:"deviceError" json:"deviceError"`         //error flag set on replies
	StatusRegister  uint32 `yaml:"statusRegister" json:"statusRegister"`
	Silent          bool   `yaml:"silent" json:"silent"` //RX disconnected, nothing is answered
}

type SignalModel struct {
	Noise     float64 `yaml:"noise" json:"noise"` //in range [value-noise, value+noise]
	Offset    float64 `yaml:"offset" json:"offset"`
	Period    int64   `yaml:"period" json:"period"` //In milliseconds, sine period
	Phase     int64   `yaml:"phase" json:"phase"`   //In milliseconds.
	Amplitude float64 `yaml:"amplitude" json:"amplitude"`
}

func DefaultModel() Model {
	return Model{
		Firmware:          FirmwareModel{Major: 2, Minor: 2, HardwareRevision: 7, SHDLCMajor: 2, SHDLCMinor: 0},
		Serial:            "8A1B2C3D4E5F6A7B",
		ProductType:       "00080000",
		AutoCleanInterval: 4 * 24 * 60 * 60,
		Pm25:              SignalModel{Offset: 12, Amplitude: 4, Period: 10 * 60 * 1000},
		TypicalSize:       0.55,
	}
}

func (p *SignalModel) Calc(t time.Time, rnd *rand.Rand) float64 {
	wave := 0.0
	if p.Period != 0 {
		ms := t.UnixNano() / int64(time.Millisecond)
		angle := 2.0 * math.Pi * float64((ms+p.Phase)%p.Period) / float64(p.Period)
		wave = math.Sin(angle) * p.Amplitude
	}
	noise := 0.0
	if 0 < p.Noise {
		noise = (rnd.Float64()*2.0 - 1.0) * p.Noise
	}
	return math.Max(0, noise+wave+p.Offset)
}

func LoadModel(fname string) (Model, error) {
	byt, errRead := os.ReadFile(fname)
	if errRead != nil {
		return Model{}, fmt.Errorf("model reading error %w", errRead)
	}
	result := DefaultModel()
	if err := yaml.Unmarshal(byt, &result); err != nil {
		return Model{}, fmt.Errorf("error parsing model from %v: %w", fname, err)
	}
	return result, nil
}

// SaveModel writes temporary file first so a crash never leaves half written model
func SaveModel(fname string, model Model) error {
	byt, err := yaml.Marshal(model)
	if err != nil {
		return err
	}
	tmpName := fname + ".tmp"
	f, err := os.Create(tmpName)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, errW := f.Write(byt); errW != nil {
		return errW
	}
	if syncErr := f.Sync(); syncErr != nil {
		return syncErr
	}
	f.Close()

	return os.Rename(tmpName, fname)
}
