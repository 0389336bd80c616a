/*
Conn
is connection for writing and reading frames from serial line

This is interface. Different implementations are made for linux, other
platforms (go.bug.st/serial) and for the in-process simulator
*/
package sps30

type Conn interface {
	Open() error //Can be retried after failure
	Send(frame Frame) error
	SendBytes(data []byte) error //Raw bytes, like wake-up pulse
	Receive() (*Frame, error)    //Return immediately. nil if not yet complete frame
	Close() error
}
