package sps30

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout       = errors.New("timeout waiting for sensor response")
	ErrPortClosed    = errors.New("serial port is closed")
	ErrPortInUse     = errors.New("serial port already in use")
	ErrInvalidConfig = errors.New("invalid serial configuration")
	ErrInvalidBaud   = errors.New("invalid baud rate")
	ErrNoNewData     = errors.New("no new measurement available")
	ErrInvalidReply  = errors.New("invalid reply from sensor")
)

// ExecutionError is reported by the sensor in the state byte of a reply
type ExecutionError struct {
	Command byte
	Code    byte
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("sensor command %v failed with state 0x%02X (%v)", CommandName(e.Command), e.Code, executionErrorText(e.Code))
}

func executionErrorText(code byte) string {
	switch code {
	case ERR_WRONGDATALENGTH:
		return "wrong data length"
	case ERR_UNKNOWNCOMMAND:
		return "unknown command"
	case ERR_NOACCESSRIGHT:
		return "no access right"
	case ERR_ILLEGALPARAMETER:
		return "illegal command parameter"
	case ERR_ARGUMENTOUTOFRANGE:
		return "argument out of range"
	case ERR_NOTALLOWEDINSTATE:
		return "command not allowed in current state"
	}
	return "unknown error"
}
