package process

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/ircctl/internal/protocol"
	"github.com/fxamacker/cbor/v2"
)

const (
	ProtocolVersion uint8 = 1
	// MaxFrame bounds one encoded frame body.
	MaxFrame = 64 * 1024
)

var (
	ErrFrameTooLarge = errors.New("process: frame too large")
	ErrBadVersion    = errors.New("process: unsupported protocol version")
	ErrUnexpected    = errors.New("process: unexpected frame")
)

type FrameType uint8

const (
	FrameHello FrameType = iota + 1
	FrameManifest
	FrameMessage
	FrameReply
	FrameInitialize
	FrameClose
	FrameAck
	FrameLookup
	FrameValue
)

func (t FrameType) String() string {
	switch t {
	case FrameHello:
		return "hello"
	case FrameManifest:
		return "manifest"
	case FrameMessage:
		return "message"
	case FrameReply:
		return "reply"
	case FrameInitialize:
		return "initialize"
	case FrameClose:
		return "close"
	case FrameAck:
		return "ack"
	case FrameLookup:
		return "lookup"
	case FrameValue:
		return "value"
	default:
		return fmt.Sprintf("frame(%d)", uint8(t))
	}
}

// Capability names advertised in a manifest.
const (
	CapInitialize = "initialize"
	CapClose      = "close"
)

// WireMessage is a protocol.Message on the plugin wire.
type WireMessage struct {
	Prefix  string `cbor:"1,keyasint,omitempty"`
	Command string `cbor:"2,keyasint"`
	Params  string `cbor:"3,keyasint,omitempty"`
}

func toWire(m protocol.Message) WireMessage {
	return WireMessage{Prefix: m.Prefix, Command: m.Command, Params: m.Params}
}

func (w WireMessage) Message() protocol.Message {
	return protocol.Message{Prefix: w.Prefix, Command: w.Command, Params: w.Params}
}

// Frame is one host/plugin exchange unit. Fields are used per Type.
type Frame struct {
	Version      uint8          `cbor:"0,keyasint"`
	Type         FrameType      `cbor:"1,keyasint"`
	ID           string         `cbor:"2,keyasint,omitempty"`
	Command      string         `cbor:"3,keyasint,omitempty"`
	Capabilities []string       `cbor:"4,keyasint,omitempty"`
	Message      *WireMessage   `cbor:"5,keyasint,omitempty"`
	Replies      []WireMessage  `cbor:"6,keyasint,omitempty"`
	Stop         bool           `cbor:"7,keyasint,omitempty"`
	Error        string         `cbor:"8,keyasint,omitempty"`
	Nick         string         `cbor:"9,keyasint,omitempty"`
	Channel      string         `cbor:"10,keyasint,omitempty"`
	Owner        string         `cbor:"11,keyasint,omitempty"`
	Counters     map[string]int `cbor:"12,keyasint,omitempty"`
	Name         string         `cbor:"13,keyasint,omitempty"`
	Value        int            `cbor:"14,keyasint,omitempty"`
}

// WriteFrame writes a 4-byte big-endian length followed by the CBOR body.
func WriteFrame(w io.Writer, f Frame) error {
	f.Version = ProtocolVersion
	body, err := cbor.Marshal(f)
	if err != nil {
		return fmt.Errorf("process: encode %s: %w", f.Type, err)
	}
	if len(body) > MaxFrame {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(body), MaxFrame)
	}
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(body)))
	copy(buf[4:], body)
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) (Frame, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lengthBuf[:])
	if n > MaxFrame {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, MaxFrame)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	var f Frame
	if err := cbor.Unmarshal(body, &f); err != nil {
		return Frame{}, fmt.Errorf("process: decode frame: %w", err)
	}
	if f.Version != ProtocolVersion {
		return Frame{}, fmt.Errorf("%w: %d", ErrBadVersion, f.Version)
	}
	return f, nil
}
