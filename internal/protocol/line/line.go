package line

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/ircctl/internal/protocol"
)

var (
	ErrLineTooLong = errors.New("line: exceeds maximum length")
	ErrTruncated   = errors.New("line: stream ended mid-line")
	ErrShortWrite  = errors.New("line: write made no progress")
)

// Limits constrains line read memory use.
type Limits struct {
	MaxLineBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxLineBytes: protocol.MaxLineLength}
}

// Reader yields newline-terminated lines no longer than Limits.MaxLineBytes.
type Reader struct {
	br     *bufio.Reader
	limits Limits
}

func NewReader(r io.Reader, limits Limits) *Reader {
	if limits.MaxLineBytes <= 0 {
		limits = DefaultLimits()
	}
	return &Reader{
		br:     bufio.NewReaderSize(r, limits.MaxLineBytes),
		limits: limits,
	}
}

// ReadLine returns one line including its terminator. io.EOF is returned
// only when the stream ends on a line boundary. An over-long line is
// consumed up to its newline and reported as ErrLineTooLong.
func (r *Reader) ReadLine() ([]byte, error) {
	b, err := r.br.ReadSlice('\n')
	switch {
	case err == nil:
		return bytes.Clone(b), nil
	case errors.Is(err, bufio.ErrBufferFull):
		return nil, r.discardRest()
	case errors.Is(err, io.EOF):
		if len(b) == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(b))
	default:
		return nil, err
	}
}

func (r *Reader) discardRest() error {
	for {
		_, err := r.br.ReadSlice('\n')
		if err == nil {
			return fmt.Errorf("%w: limit %d bytes", ErrLineTooLong, r.limits.MaxLineBytes)
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: over-long line", ErrTruncated)
			}
			return err
		}
	}
}

// WriteLine writes all of b, retrying short writes.
func WriteLine(w io.Writer, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := w.Write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, ErrShortWrite
		}
	}
	return total, nil
}
