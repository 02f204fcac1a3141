package protocol

import (
	"fmt"
	"strings"
)

const (
	// MaxLineLength bounds one serialized line, terminator included.
	MaxLineLength = 512
	Terminator    = "\r\n"
	PrefixMarker  = ':'
)

// Message is one protocol line split into its three fields.
// An empty field is absent. Prefix keeps its leading marker.
type Message struct {
	Prefix  string
	Command string
	Params  string
}

// NewMessage joins params with single spaces, mirroring how handlers build
// replies such as NewMessage("", "PRIVMSG", "#chan", ":hello").
func NewMessage(prefix, command string, params ...string) Message {
	return Message{
		Prefix:  prefix,
		Command: command,
		Params:  strings.Join(params, " "),
	}
}

// Parse splits one raw line into a Message. A trailing terminator is ignored.
func Parse(line []byte) (Message, error) {
	return ParseString(string(line))
}

func ParseString(line string) (Message, error) {
	line = trimTerminator(line)
	if strings.Trim(line, separators) == "" {
		return Message{}, fmt.Errorf("%w: %w", ErrParse, ErrEmptyLine)
	}

	rest := strings.TrimLeft(line, separators)
	var msg Message
	tok, rest := nextToken(rest)
	if tok[0] == PrefixMarker {
		msg.Prefix = tok
		rest = strings.TrimLeft(rest, separators)
		tok, rest = nextToken(rest)
		if tok == "" {
			return Message{}, fmt.Errorf("%w: %w: prefix %q", ErrParse, ErrMissingCommand, msg.Prefix)
		}
	}
	msg.Command = tok
	msg.Params = rest
	return msg, nil
}

// separators split tokens. Params after the command are kept verbatim.
const separators = " \t"

// nextToken returns the token up to the first separator and the text after
// that single separator.
func nextToken(s string) (string, string) {
	i := strings.IndexAny(s, separators)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

func trimTerminator(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// Serialize renders m as a terminated wire line. Nothing is returned when
// the line would exceed MaxLineLength.
func Serialize(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	n := m.Len()
	if n > MaxLineLength {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrLineTooLong, n, MaxLineLength)
	}

	buf := make([]byte, 0, n)
	if m.Prefix != "" {
		buf = append(buf, m.Prefix...)
		buf = append(buf, ' ')
	}
	buf = append(buf, m.Command...)
	if m.Params != "" {
		buf = append(buf, ' ')
		buf = append(buf, m.Params...)
	}
	buf = append(buf, Terminator...)
	return buf, nil
}

// MarshalText implements encoding.TextMarshaler.
func (m Message) MarshalText() ([]byte, error) {
	return Serialize(m)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Message) UnmarshalText(b []byte) error {
	parsed, err := Parse(b)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Len is the serialized length of m, terminator included.
func (m Message) Len() int {
	n := len(m.Command) + len(Terminator)
	if m.Prefix != "" {
		n += len(m.Prefix) + 1
	}
	if m.Params != "" {
		n += len(m.Params) + 1
	}
	return n
}

// Validate checks that m would parse back to the same fields.
func (m Message) Validate() error {
	if m.Command == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidMessage)
	}
	if strings.ContainsAny(m.Command, " \t\r\n\x00") || m.Command[0] == PrefixMarker {
		return fmt.Errorf("%w: command %q", ErrInvalidMessage, m.Command)
	}
	if m.Prefix != "" {
		if m.Prefix[0] != PrefixMarker || len(m.Prefix) == 1 || strings.ContainsAny(m.Prefix, " \t\r\n\x00") {
			return fmt.Errorf("%w: prefix %q", ErrInvalidMessage, m.Prefix)
		}
	}
	if strings.ContainsAny(m.Params, "\r\n\x00") {
		return fmt.Errorf("%w: params contain a line break or NUL", ErrInvalidMessage)
	}
	return nil
}

func (m Message) String() string {
	b, err := Serialize(m)
	if err != nil {
		return fmt.Sprintf("%s %s %s", m.Prefix, m.Command, m.Params)
	}
	return strings.TrimSuffix(string(b), Terminator)
}

// Nick is the name part of a ":nick!user@host" prefix.
func (m Message) Nick() string {
	p := strings.TrimPrefix(m.Prefix, string(PrefixMarker))
	if i := strings.IndexAny(p, "!@"); i >= 0 {
		p = p[:i]
	}
	return p
}

// Target is the first parameter, e.g. the channel of "#chan :hello".
func (m Message) Target() string {
	tok, _ := nextToken(m.Params)
	return tok
}

// Text is the trailing parameter with its marker removed.
func (m Message) Text() string {
	if strings.HasPrefix(m.Params, string(PrefixMarker)) {
		return m.Params[1:]
	}
	if i := strings.Index(m.Params, " :"); i >= 0 {
		return m.Params[i+2:]
	}
	_, rest := nextToken(m.Params)
	return rest
}
