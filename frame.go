/*
For packing and unpacking SHDLC frames of the SPS30 UART interface

MOSI (host -> sensor):  7E ADR CMD LEN DATA... CHK 7E
MISO (sensor -> host):  7E ADR CMD STATE LEN DATA... CHK 7E

Everything between the delimiters is byte-stuffed. CHK is the inverted
least significant byte of the sum of ADR..DATA (before stuffing).
*/

package sps30

import (
	"fmt"
	"strings"
)

const (
	FRAMEDELIMITER = 0x7E
	FRAMEESCAPE    = 0x7D
	ESCAPEXOR      = 0x20
	MAXDATALEN     = 255
	DEVICEADDRESS  = 0x00 //SPS30 is always at 0 on UART
)

const (
	CMD_STARTMEASUREMENT    = 0x00
	CMD_STOPMEASUREMENT     = 0x01
	CMD_READMEASUREMENT     = 0x03
	CMD_SLEEP               = 0x10 //firmware >=2.0
	CMD_WAKEUP              = 0x11 //firmware >=2.0
	CMD_STARTFANCLEANING    = 0x56
	CMD_AUTOCLEANINTERVAL   = 0x80
	CMD_DEVICEINFO          = 0xD0
	CMD_READVERSION         = 0xD1
	CMD_READSTATUSREGISTER  = 0xD2
	CMD_RESET               = 0xD3
	DEVICEINFO_PRODUCTTYPE  = 0x00
	DEVICEINFO_SERIALNUMBER = 0x03
)

// State byte of a MISO frame
const (
	STATE_DEVICEERRORFLAG = 0x80 //Data still valid. Details in status register
	STATE_ERRORMASK       = 0x7F

	ERR_WRONGDATALENGTH    = 0x01
	ERR_UNKNOWNCOMMAND     = 0x02
	ERR_NOACCESSRIGHT      = 0x03
	ERR_ILLEGALPARAMETER   = 0x04
	ERR_ARGUMENTOUTOFRANGE = 0x28
	ERR_NOTALLOWEDINSTATE  = 0x43
)

// Frame is one SHDLC frame. Data is limited to MAXDATALEN bytes on the wire, ToBytes drops anything past that
type Frame struct {
	Address    byte
	Command    byte
	State      byte //Only on MISO frames
	Data       []byte
	FromDevice bool //MISO frame
}

func NewCommandFrame(command byte, data ...byte) Frame {
	return Frame{Address: DEVICEADDRESS, Command: command, Data: data}
}

func NewReplyFrame(command byte, state byte, data ...byte) Frame {
	return Frame{Address: DEVICEADDRESS, Command: command, State: state, Data: data, FromDevice: true}
}

func (p *Frame) header() []byte {
	if p.FromDevice {
		return []byte{p.Address, p.Command, p.State, byte(len(p.Data))}
	}
	return []byte{p.Address, p.Command, byte(len(p.Data))}
}

func (p *Frame) CalcChecksum() byte {
	var sum byte
	for _, b := range p.header() {
		sum += b
	}
	for _, b := range p.Data {
		sum += b
	}
	return ^sum
}

func (p *Frame) ErrorCode() byte {
	return p.State & STATE_ERRORMASK
}

func (p *Frame) DeviceErrorFlag() bool {
	return p.State&STATE_DEVICEERRORFLAG != 0
}

func stuff(b byte) []byte {
	switch b {
	case FRAMEDELIMITER, FRAMEESCAPE, 0x11, 0x13:
		return []byte{FRAMEESCAPE, b ^ ESCAPEXOR}
	}
	return []byte{b}
}

/*
ToBytes encodes frame. LEN is a single byte so only first MAXDATALEN bytes of Data are sent.
Cut happens on the copy, frame itself is left as it was
*/
func (p Frame) ToBytes() []byte {
	if MAXDATALEN < len(p.Data) {
		p.Data = p.Data[0:MAXDATALEN]
	}
	raw := append(p.header(), p.Data...)
	raw = append(raw, p.CalcChecksum())

	result := []byte{FRAMEDELIMITER}
	for _, b := range raw {
		result = append(result, stuff(b)...)
	}
	return append(result, FRAMEDELIMITER)
}

// trims line noise away
func trimToFrameStart(input []byte) []byte {
	for i, v := range input {
		if v == FRAMEDELIMITER {
			return input[i:]
		}
	}
	return []byte{}
}

func unstuff(content []byte) ([]byte, error) {
	result := make([]byte, 0, len(content))
	for i := 0; i < len(content); i++ {
		b := content[i]
		if b != FRAMEESCAPE {
			result = append(result, b)
			continue
		}
		if len(content) <= i+1 {
			return nil, fmt.Errorf("escape at end of frame")
		}
		i++
		switch content[i] {
		case 0x5E, 0x5D, 0x31, 0x33:
			result = append(result, content[i]^ESCAPEXOR)
		default:
			return nil, fmt.Errorf("invalid escape sequence 7D %02X", content[i])
		}
	}
	return result, nil
}

// FromBytes parses one frame. Leading noise before start delimiter is ignored
func (p *Frame) FromBytes(arr []byte, fromDevice bool) error {
	arr = trimToFrameStart(arr)
	if len(arr) < 2 {
		return fmt.Errorf("no frame in data")
	}
	end := -1
	for i := 1; i < len(arr); i++ {
		if arr[i] == FRAMEDELIMITER {
			end = i
			break
		}
	}
	if end < 0 {
		return fmt.Errorf("frame not terminated")
	}
	content, errUnstuff := unstuff(arr[1:end])
	if errUnstuff != nil {
		return errUnstuff
	}

	headerLen := 3
	if fromDevice {
		headerLen = 4
	}
	if len(content) < headerLen+1 {
		return fmt.Errorf("invalid frame size %v", len(content))
	}
	dataLen := int(content[headerLen-1])
	if len(content) != headerLen+dataLen+1 {
		return fmt.Errorf("length field %v does not match frame size %v", dataLen, len(content))
	}

	p.FromDevice = fromDevice
	p.Address = content[0]
	p.Command = content[1]
	p.State = 0
	if fromDevice {
		p.State = content[2]
	}
	p.Data = append([]byte{}, content[headerLen:headerLen+dataLen]...)

	checksum := content[len(content)-1]
	if checksum != p.CalcChecksum() {
		return fmt.Errorf("checksum error got %02X expected %02X", checksum, p.CalcChecksum())
	}
	return nil
}

var commandNames = map[byte]string{
	CMD_STARTMEASUREMENT:   "start",
	CMD_STOPMEASUREMENT:    "stop",
	CMD_READMEASUREMENT:    "read",
	CMD_SLEEP:              "sleep",
	CMD_WAKEUP:             "wakeup",
	CMD_STARTFANCLEANING:   "fanclean",
	CMD_AUTOCLEANINTERVAL:  "autoclean",
	CMD_DEVICEINFO:         "deviceinfo",
	CMD_READVERSION:        "version",
	CMD_READSTATUSREGISTER: "status",
	CMD_RESET:              "reset",
}

func CommandName(command byte) string {
	name, found := commandNames[command]
	if !found {
		return fmt.Sprintf("0x%02X", command)
	}
	return name
}

func (p *Frame) String() string {
	dir := "mosi"
	if p.FromDevice {
		dir = "miso"
	}
	toks := []string{fmt.Sprintf("<SHDLC:%v:%v", dir, CommandName(p.Command))}
	if p.FromDevice {
		toks = append(toks, fmt.Sprintf("state=%02X", p.State))
	}
	toks = append(toks, fmt.Sprintf("data=%X>", p.Data))
	return strings.Join(toks, " ")
}

/*
FrameAccumulator collects bytes from a stream and cuts complete frames out of it.
Shared by every Conn implementation and by the simulator link
*/
type FrameAccumulator struct {
	buf        []byte
	fromDevice bool //What kind of frames are expected
}

func NewFrameAccumulator(fromDevice bool) *FrameAccumulator {
	return &FrameAccumulator{fromDevice: fromDevice}
}

func (p *FrameAccumulator) Add(data []byte) {
	p.buf = append(p.buf, data...)
}

func (p *FrameAccumulator) Reset() {
	p.buf = p.buf[:0]
}

// Next returns nil frame if there is no complete frame yet. Broken frames are reported as ErrInvalidReply
func (p *FrameAccumulator) Next() (*Frame, error) {
	for {
		p.buf = trimToFrameStart(p.buf)
		if len(p.buf) < 2 {
			return nil, nil
		}
		end := -1
		for i := 1; i < len(p.buf); i++ {
			if p.buf[i] == FRAMEDELIMITER {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, nil
		}
		if end == 1 { //Previous frame end or noise, next delimiter starts frame
			p.buf = p.buf[1:]
			continue
		}
		result := Frame{}
		parseErr := result.FromBytes(p.buf[0:end+1], p.fromDevice)
		if parseErr != nil {
			p.buf = p.buf[end:] //Delimiter might be start of next one
			return nil, fmt.Errorf("%w: %w", ErrInvalidReply, parseErr)
		}
		p.buf = p.buf[end+1:]
		return &result, nil
	}
}
