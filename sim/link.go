/*
Link

This handles simulator side of serial link. Reads MOSI frames from
port, lets Sensor react and writes replies back.

Ignores all invalid communication. Like the real sensor does
*/
package sim

import (
	"errors"
	"fmt"
	"io"
	"os"

	"sps30"
)

type Link struct {
	Port   io.ReadWriter
	Sensor *Sensor

	OnFrame        func(request sps30.Frame, reply *sps30.Frame) //Optional, for printout
	OnInvalidFrame func(err error)
	InvalidFrames  int
}

func NewLink(port io.ReadWriter, sensor *Sensor) *Link {
	return &Link{Port: port, Sensor: sensor}
}

// Run blocks until port is closed (nil) or fails
func (p *Link) Run() error {
	if p.Port == nil {
		return fmt.Errorf("serial port not initialized")
	}
	if p.Sensor == nil {
		return fmt.Errorf("sensor not initialized")
	}
	acc := sps30.NewFrameAccumulator(false)
	respbuf := make([]byte, 256)

	for {
		nRecieved, errRead := p.Port.Read(respbuf)
		if 0 < nRecieved {
			acc.Add(respbuf[0:nRecieved])
			if errHandle := p.handleFrames(acc); errHandle != nil {
				return errHandle
			}
		}
		if errRead != nil {
			if errors.Is(errRead, io.EOF) || errors.Is(errRead, io.ErrClosedPipe) || errors.Is(errRead, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("error reading err=%w", errRead)
		}
	}
}

func (p *Link) handleFrames(acc *sps30.FrameAccumulator) error {
	for {
		request, parseErr := acc.Next()
		if parseErr != nil {
			p.InvalidFrames++
			if p.OnInvalidFrame != nil {
				p.OnInvalidFrame(parseErr)
			}
			continue
		}
		if request == nil {
			return nil
		}
		reply := p.Sensor.React(*request)
		if p.OnFrame != nil {
			p.OnFrame(*request, reply)
		}
		if reply == nil {
			continue
		}
		payload := reply.ToBytes()
		n, wErr := p.Port.Write(payload)
		if wErr != nil {
			return fmt.Errorf("error writing to serial port %w", wErr)
		}
		if n != len(payload) {
			return fmt.Errorf("was not able to write frame in one call %v out of %v", n, len(payload))
		}
	}
}
