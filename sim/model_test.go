package sim

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelSaveLoad(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "model.yaml")
	model := DefaultModel()
	model.Serial = "TESTSERIAL"
	model.Faults.ProbeFailures = 3

	require.NoError(t, SaveModel(fname, model))
	_, errStat := os.Stat(fname + ".tmp")
	assert.True(t, os.IsNotExist(errStat), "temporary file left behind")

	loaded, err := LoadModel(fname)
	require.NoError(t, err)
	assert.Equal(t, model, loaded)
}

func TestModelLoadPartialKeepsDefaults(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(fname, []byte("firmware:\n  major: 1\n"), 0644))

	loaded, err := LoadModel(fname)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), loaded.Firmware.Major)
	assert.Equal(t, DefaultModel().Serial, loaded.Serial)
}

func TestModelLoadErrors(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	fname := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(fname, []byte("firmware: [\n"), 0644))
	_, err = LoadModel(fname)
	assert.Error(t, err)
}

func TestSignalModel(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	flat := SignalModel{Offset: 5}
	assert.Equal(t, 5.0, flat.Calc(time.Now(), rnd))

	noisy := SignalModel{Offset: 5, Noise: 1}
	for i := 0; i < 100; i++ {
		v := noisy.Calc(time.Now(), rnd)
		assert.True(t, 4 <= v && v <= 6, "out of noise range %v", v)
	}

	//Sine peak at quarter period
	wave := SignalModel{Offset: 10, Amplitude: 2, Period: 4000, Phase: 1000}
	assert.InDelta(t, 12.0, wave.Calc(time.UnixMilli(0), rnd), 0.0001)

	assert.Zero(t, (&SignalModel{Offset: -3}).Calc(time.Now(), rnd), "concentration never negative")
}
