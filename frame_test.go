package sps30

import (
	"bytes"
	"errors"
	"testing"
)

// Frames from datasheet examples and from a raw capture. These "nail down" the codec to something real
func TestFrameConversionsFromDoc(t *testing.T) {
	cases := []struct {
		name  string
		frame Frame
		want  []byte
	}{
		{"start measurement", NewCommandFrame(CMD_STARTMEASUREMENT, 0x01, 0x03), []byte{0x7E, 0x00, 0x00, 0x02, 0x01, 0x03, 0xF9, 0x7E}},
		{"stop measurement", NewCommandFrame(CMD_STOPMEASUREMENT), []byte{0x7E, 0x00, 0x01, 0x00, 0xFE, 0x7E}},
		{"read measurement", NewCommandFrame(CMD_READMEASUREMENT), []byte{0x7E, 0x00, 0x03, 0x00, 0xFC, 0x7E}},
		{"product type", NewCommandFrame(CMD_DEVICEINFO, DEVICEINFO_PRODUCTTYPE), []byte{0x7E, 0x00, 0xD0, 0x01, 0x00, 0x2E, 0x7E}},
		{"read version", NewCommandFrame(CMD_READVERSION), []byte{0x7E, 0x00, 0xD1, 0x00, 0x2E, 0x7E}},
		//0x11 is XON and gets stuffed
		{"wake up", NewCommandFrame(CMD_WAKEUP), []byte{0x7E, 0x00, 0x7D, 0x31, 0x00, 0xEE, 0x7E}},
	}
	for _, c := range cases {
		got := c.frame.ToBytes()
		if !bytes.Equal(got, c.want) {
			t.Errorf("%v: got %X want %X", c.name, got, c.want)
		}
	}
}

func TestFrameReplyRoundTrip(t *testing.T) {
	//Data holds every byte value needing escape
	reply := NewReplyFrame(CMD_READVERSION, STATE_DEVICEERRORFLAG, 0x7E, 0x7D, 0x11, 0x13, 0x02)
	raw := reply.ToBytes()
	if bytes.Count(raw, []byte{FRAMEDELIMITER}) != 2 {
		t.Fatalf("delimiter inside frame body %X", raw)
	}

	parsed := Frame{}
	if err := parsed.FromBytes(append([]byte{0xFF, 0x00}, raw...), true); err != nil {
		t.Fatalf("parse failed %v", err)
	}
	if parsed.Command != CMD_READVERSION || !bytes.Equal(parsed.Data, reply.Data) {
		t.Errorf("invalid reply %v", parsed.String())
	}
	if !parsed.DeviceErrorFlag() || parsed.ErrorCode() != 0 {
		t.Errorf("state not parsed %02X", parsed.State)
	}
}

func TestFrameInvalid(t *testing.T) {
	good := NewReplyFrame(CMD_STOPMEASUREMENT, 0).ToBytes()

	badChecksum := append([]byte{}, good...)
	badChecksum[len(badChecksum)-2]++
	f := Frame{}
	if err := f.FromBytes(badChecksum, true); err == nil {
		t.Errorf("checksum error not detected")
	}

	if err := f.FromBytes(good[0:len(good)-1], true); err == nil {
		t.Errorf("unterminated frame accepted")
	}

	//MISO frame parsed as MOSI has wrong length field position
	if err := f.FromBytes(good, false); err == nil {
		t.Errorf("direction mismatch not detected")
	}

	if err := f.FromBytes([]byte{0x7E, 0x00, 0x7D, 0x01, 0x00, 0x7E}, false); err == nil {
		t.Errorf("invalid escape accepted")
	}
}

func TestFrameAccumulator(t *testing.T) {
	acc := NewFrameAccumulator(true)
	first := NewReplyFrame(CMD_STARTMEASUREMENT, 0).ToBytes()
	second := NewReplyFrame(CMD_DEVICEINFO, 0, []byte("8A1B2C3D4E5F6A7B\x00")...).ToBytes()

	stream := append([]byte{0x01, 0x02}, first...)
	stream = append(stream, second...)

	//Feed in small chunks like a slow serial line would
	frames := []*Frame{}
	for i := 0; i < len(stream); i += 3 {
		end := i + 3
		if len(stream) < end {
			end = len(stream)
		}
		acc.Add(stream[i:end])
		for {
			f, err := acc.Next()
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if f == nil {
				break
			}
			frames = append(frames, f)
		}
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames got %v", len(frames))
	}
	if frames[0].Command != CMD_STARTMEASUREMENT || frames[1].Command != CMD_DEVICEINFO {
		t.Errorf("wrong frames %v %v", frames[0], frames[1])
	}
}

func TestFrameAccumulatorRecovers(t *testing.T) {
	acc := NewFrameAccumulator(true)
	corrupted := NewReplyFrame(CMD_STOPMEASUREMENT, 0).ToBytes()
	corrupted[3] = 0x05 //state changed, checksum no longer matches
	acc.Add(corrupted)
	acc.Add(NewReplyFrame(CMD_SLEEP, 0).ToBytes())

	_, err := acc.Next()
	if !errors.Is(err, ErrInvalidReply) {
		t.Fatalf("corrupted frame not reported: %v", err)
	}
	f, err := acc.Next()
	if err != nil || f == nil {
		t.Fatalf("did not recover after corrupted frame: %v", err)
	}
	if f.Command != CMD_SLEEP {
		t.Errorf("unexpected command %v", f.String())
	}
}

// Encoding works on constructor results directly and never modifies the frame being encoded
func TestFrameToBytesOnValue(t *testing.T) {
	want := []byte{0x7E, 0x00, 0x01, 0x00, 0xFE, 0x7E}
	if got := NewCommandFrame(CMD_STOPMEASUREMENT).ToBytes(); !bytes.Equal(got, want) {
		t.Errorf("got %X want %X", got, want)
	}

	long := NewCommandFrame(CMD_READVERSION, make([]byte, MAXDATALEN+45)...)
	raw := long.ToBytes()
	if len(long.Data) != MAXDATALEN+45 {
		t.Errorf("caller frame was cut to %v bytes", len(long.Data))
	}
	if len(raw) != 1+3+MAXDATALEN+1+1 || raw[3] != MAXDATALEN {
		t.Fatalf("oversized frame encoded as %v bytes, LEN=%v", len(raw), raw[3])
	}
	parsed := Frame{}
	if err := parsed.FromBytes(raw, false); err != nil {
		t.Fatalf("cut frame does not parse %v", err)
	}
	if len(parsed.Data) != MAXDATALEN {
		t.Errorf("parsed %v bytes of data", len(parsed.Data))
	}
}
