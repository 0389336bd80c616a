//go:build linux

package sps30

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hjkoskel/listserialports"
	"golang.org/x/sys/unix"
)

type LinuxConn struct {
	deviceportName string
	config         PortConfig
	f              *os.File
	acc            *FrameAccumulator
	readBuf        []byte
}

var _ Conn = (*LinuxConn)(nil)

var linuxBauds = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// NewSerialConn picks platform implementation
func NewSerialConn(deviceportName string, opts ...Option) (Conn, error) {
	return NewLinuxConn(deviceportName, opts...)
}

// NewLinuxConn does not touch the device yet. Call Open (and retry it) when ready
func NewLinuxConn(deviceportName string, opts ...Option) (*LinuxConn, error) {
	config, err := buildPortConfig(opts)
	if err != nil {
		return nil, err
	}
	return &LinuxConn{
		deviceportName: deviceportName,
		config:         config,
		acc:            NewFrameAccumulator(true),
		readBuf:        make([]byte, 256),
	}, nil
}

func (p *LinuxConn) Open() error {
	if p.f != nil {
		return nil
	}

	//TESTED with socat -d -d pty,raw,echo=0 pty,raw,echo=0
	if !strings.HasPrefix(p.deviceportName, "/dev/pts") { //Avoid issues with testing with socat
		portUsedByPids, _, errPortDetect := listserialports.FileIsInUseByPids(p.deviceportName)
		if errPortDetect != nil {
			return fmt.Errorf("serial port %v error: %w", p.deviceportName, errPortDetect)
		}
		if 0 < len(portUsedByPids) {
			return fmt.Errorf("%w: %v (by PID %#v)", ErrPortInUse, p.deviceportName, portUsedByPids)
		}
	}

	f, errOpen := os.OpenFile(p.deviceportName, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0666)
	if errOpen != nil {
		return fmt.Errorf("serial device %v open error: %w", p.deviceportName, errOpen)
	}
	fd := int(f.Fd())
	if err := configureTermios(fd, p.config); err != nil {
		f.Close()
		return err
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		f.Close()
		return fmt.Errorf("setting nonblock: %w", err)
	}
	p.f = f
	p.acc.Reset()
	return nil
}

// configureTermios sets raw 8N1 with VMIN=0 and VTIME read timeout
func configureTermios(fd int, config PortConfig) error {
	baud, found := linuxBauds[config.BaudRate]
	if !found {
		return ErrInvalidBaud
	}
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}
	t.Iflag = unix.IGNPAR
	t.Oflag = 0
	t.Lflag = 0
	t.Cflag = unix.CREAD | unix.CLOCAL | unix.CS8 | baud
	t.Ispeed = baud
	t.Ospeed = baud
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = uint8(config.ReadTimeout / (100 * time.Millisecond)) //Deciseconds

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}
	return nil
}

func (p *LinuxConn) Close() error {
	if p.f == nil {
		return ErrPortClosed
	}
	err := p.f.Close()
	p.f = nil
	return err
}

func (p *LinuxConn) SendBytes(data []byte) error {
	if p.f == nil {
		return ErrPortClosed
	}
	_, err := p.f.Write(data)
	return err
}

// Send drops everything received so far. Only reply to this frame is interesting
func (p *LinuxConn) Send(frame Frame) error {
	if p.f == nil {
		return ErrPortClosed
	}
	p.acc.Reset()
	if err := unix.IoctlSetInt(int(p.f.Fd()), unix.TCFLSH, unix.TCIFLUSH); err != nil {
		return fmt.Errorf("flushing input: %w", err)
	}
	_, err := p.f.Write(frame.ToBytes())
	return err
}

func (p *LinuxConn) Receive() (*Frame, error) {
	if p.f == nil {
		return nil, ErrPortClosed
	}
	if frame, err := p.acc.Next(); frame != nil || err != nil {
		return frame, err
	}

	nReceived, errRead := p.f.Read(p.readBuf)
	if errRead != nil && errRead != io.EOF { //Something more bad than eof happened
		return nil, fmt.Errorf("error reading: %w", errRead)
	}
	if nReceived < 1 {
		return nil, nil
	}
	p.acc.Add(p.readBuf[0:nReceived])
	return p.acc.Next()
}
