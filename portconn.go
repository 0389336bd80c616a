//go:build !linux

package sps30

import (
	"fmt"

	"go.bug.st/serial"
)

// PortConn is the portable transport for platforms without termios code
type PortConn struct {
	portName string
	config   PortConfig
	port     serial.Port
	acc      *FrameAccumulator
	readBuf  []byte
}

var _ Conn = (*PortConn)(nil)

func NewSerialConn(portName string, opts ...Option) (Conn, error) {
	return NewPortConn(portName, opts...)
}

func NewPortConn(portName string, opts ...Option) (*PortConn, error) {
	config, err := buildPortConfig(opts)
	if err != nil {
		return nil, err
	}
	return &PortConn{
		portName: portName,
		config:   config,
		acc:      NewFrameAccumulator(true),
		readBuf:  make([]byte, 256),
	}, nil
}

func (p *PortConn) Open() error {
	if p.port != nil {
		return nil
	}
	mode := &serial.Mode{
		BaudRate: p.config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(p.portName, mode)
	if err != nil {
		return fmt.Errorf("serial device %v open error: %w", p.portName, err)
	}
	if err := port.SetReadTimeout(p.config.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("setting read timeout: %w", err)
	}
	p.port = port
	p.acc.Reset()
	return nil
}

func (p *PortConn) Close() error {
	if p.port == nil {
		return ErrPortClosed
	}
	err := p.port.Close()
	p.port = nil
	return err
}

func (p *PortConn) SendBytes(data []byte) error {
	if p.port == nil {
		return ErrPortClosed
	}
	_, err := p.port.Write(data)
	return err
}

func (p *PortConn) Send(frame Frame) error {
	if p.port == nil {
		return ErrPortClosed
	}
	p.acc.Reset()
	if err := p.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("flushing input: %w", err)
	}
	_, err := p.port.Write(frame.ToBytes())
	return err
}

func (p *PortConn) Receive() (*Frame, error) {
	if p.port == nil {
		return nil, ErrPortClosed
	}
	if frame, err := p.acc.Next(); frame != nil || err != nil {
		return frame, err
	}
	nReceived, errRead := p.port.Read(p.readBuf)
	if errRead != nil {
		return nil, fmt.Errorf("error reading: %w", errRead)
	}
	if nReceived < 1 {
		return nil, nil
	}
	p.acc.Add(p.readBuf[0:nReceived])
	return p.acc.Next()
}
