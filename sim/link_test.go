package sim

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sps30"
)

func readReply(t *testing.T, conn net.Conn) *sps30.Frame {
	t.Helper()
	acc := sps30.NewFrameAccumulator(true)
	buf := make([]byte, 64)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		acc.Add(buf[0:n])
		f, errParse := acc.Next()
		require.NoError(t, errParse)
		if f != nil {
			return f
		}
	}
}

func TestLinkAnswersOverStream(t *testing.T) {
	host, device := net.Pipe()
	link := NewLink(device, NewSensor(DefaultModel()))
	seen := []byte{}
	link.OnFrame = func(request sps30.Frame, reply *sps30.Frame) {
		seen = append(seen, request.Command)
	}

	done := make(chan error, 1)
	go func() {
		done <- link.Run()
	}()

	//Wake-up pulse in front is line noise for framing
	_, err := host.Write(append([]byte{sps30.WAKEUPPULSE}, sps30.NewCommandFrame(sps30.CMD_DEVICEINFO, sps30.DEVICEINFO_SERIALNUMBER).ToBytes()...))
	require.NoError(t, err)
	reply := readReply(t, host)
	assert.Equal(t, "8A1B2C3D4E5F6A7B", sps30.NewSerialNumber(reply.Data).String())

	_, err = host.Write([]byte{0x7E, 0x00, 0x01, 0x00, 0x00, 0x7E}) //Bad checksum, ignored
	require.NoError(t, err)
	_, err = host.Write(sps30.NewCommandFrame(sps30.CMD_STARTMEASUREMENT, 0x01, 0x03).ToBytes())
	require.NoError(t, err)
	reply = readReply(t, host)
	assert.Equal(t, byte(sps30.CMD_STARTMEASUREMENT), reply.Command)

	require.NoError(t, host.Close())
	select {
	case errRun := <-done:
		assert.NoError(t, errRun)
	case <-time.After(2 * time.Second):
		t.Fatal("link did not stop after port close")
	}
	assert.Equal(t, 1, link.InvalidFrames)
	assert.Equal(t, []byte{sps30.CMD_DEVICEINFO, sps30.CMD_STARTMEASUREMENT}, seen)
}

func TestLinkWithoutPort(t *testing.T) {
	link := Link{Sensor: NewSensor(DefaultModel())}
	assert.Error(t, link.Run())
}
