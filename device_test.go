package sps30_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"sps30"
	"sps30/sim"
)

func openSimDevice(t *testing.T, model sim.Model) (*sps30.Device, *sim.Sensor) {
	t.Helper()
	sensor := sim.NewSensor(model)
	require.NoError(t, sensor.Open())
	t.Cleanup(func() { sensor.Close() })
	return sps30.NewDevice(sensor, sps30.WithResponseTimeout(30*time.Millisecond)), sensor
}

func TestDeviceInfo(t *testing.T) {
	dev, _ := openSimDevice(t, sim.DefaultModel())

	require.NoError(t, dev.Probe())

	ver, err := dev.ReadVersion()
	require.NoError(t, err)
	assert.Equal(t, uint8(2), ver.FirmwareMajor)
	assert.Equal(t, uint8(7), ver.HardwareRevision)
	assert.True(t, ver.SupportsSleep())

	serial, err := dev.ReadSerial()
	require.NoError(t, err)
	assert.Equal(t, "8A1B2C3D4E5F6A7B", serial.Display())

	productType, err := dev.ReadProductType()
	require.NoError(t, err)
	assert.Equal(t, "00080000", productType)
}

func TestDeviceMeasurementCycle(t *testing.T) {
	model := sim.DefaultModel()
	model.Faults.ReadFailures = 1
	dev, sensor := openSimDevice(t, model)

	require.NoError(t, dev.StartMeasurement())
	_, _, err := dev.ReadMeasurement()
	assert.ErrorIs(t, err, sps30.ErrNoNewData)

	m, state, err := dev.ReadMeasurement()
	require.NoError(t, err)
	assert.False(t, state.Degraded())
	assert.Equal(t, sensor.Status().Current, m)

	require.NoError(t, dev.StopMeasurement())
	require.NoError(t, dev.Sleep())
	assert.Equal(t, sim.StateSleeping, sensor.State())
	require.NoError(t, dev.WakeUp())
	assert.Equal(t, sim.StateIdle, sensor.State())
	assert.Equal(t, 1, sensor.Status().WakePulseCounter)
}

func TestDeviceExecutionError(t *testing.T) {
	dev, _ := openSimDevice(t, sim.DefaultModel())

	err := dev.StopMeasurement() //Not measuring
	var execErr *sps30.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, byte(sps30.ERR_NOTALLOWEDINSTATE), execErr.Code)
	assert.Equal(t, byte(sps30.CMD_STOPMEASUREMENT), execErr.Command)
}

func TestDeviceDegradedState(t *testing.T) {
	model := sim.DefaultModel()
	model.Faults.DeviceError = true
	model.Faults.StatusRegister = 1 << 21
	dev, _ := openSimDevice(t, model)

	require.NoError(t, dev.StartMeasurement())
	_, state, err := dev.ReadMeasurement()
	require.NoError(t, err)
	assert.True(t, state.Degraded())

	reg, err := dev.ReadStatusRegister(true)
	require.NoError(t, err)
	assert.True(t, reg.FanSpeedWarning())
	assert.False(t, reg.LaserError())
}

func TestDeviceTimeout(t *testing.T) {
	model := sim.DefaultModel()
	model.Faults.Silent = true
	dev, _ := openSimDevice(t, model)

	assert.ErrorIs(t, dev.Probe(), sps30.ErrTimeout)
	_, err := dev.ReadVersion()
	assert.ErrorIs(t, err, sps30.ErrTimeout)
}

func TestDeviceWakeUpErrorJoined(t *testing.T) {
	model := sim.DefaultModel()
	model.Faults.Silent = true
	dev, _ := openSimDevice(t, model)

	errs := multierr.Errors(dev.Probe())
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], sps30.ErrTimeout)
	assert.ErrorIs(t, errs[1], sps30.ErrTimeout)
	assert.Contains(t, errs[1].Error(), sps30.CommandName(sps30.CMD_WAKEUP))
}

func TestDeviceProbeWakesSleepingSensor(t *testing.T) {
	dev, sensor := openSimDevice(t, sim.DefaultModel())
	require.NoError(t, dev.Sleep())
	require.NoError(t, dev.Probe())
	assert.Equal(t, sim.StateIdle, sensor.State())
}

func TestDeviceOldFirmwareProbe(t *testing.T) {
	model := sim.DefaultModel()
	model.Firmware.Major = 1
	dev, _ := openSimDevice(t, model)

	require.NoError(t, dev.Probe(), "failing wake-up is ignored")
	assert.Error(t, dev.Sleep())
}

func TestDeviceAutoClean(t *testing.T) {
	dev, sensor := openSimDevice(t, sim.DefaultModel())
	require.NoError(t, dev.SetAutoCleanInterval(1))
	interval, err := dev.ReadAutoCleanInterval()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, interval)
	assert.Equal(t, uint32(sps30.SECONDSPERDAY), sensor.Model().AutoCleanInterval)
}

func TestDeviceClosedConn(t *testing.T) {
	sensor := sim.NewSensor(sim.DefaultModel())
	dev := sps30.NewDevice(sensor)
	_, err := dev.ReadVersion()
	assert.ErrorIs(t, err, sps30.ErrPortClosed)
}
