package award

import (
	"bufio"
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
)

// LineReader reassembles newline-delimited records from a byte stream that
// may deliver them in arbitrary fragments.
type LineReader struct {
	r     *bufio.Reader
	max   int
	lines int
}

// NewLineReader reads records of at most maxBytes from r.
func NewLineReader(r io.Reader, maxBytes int) *LineReader {
	if maxBytes <= 0 {
		maxBytes = defaultMaxLineBytes
	}
	return &LineReader{r: bufio.NewReader(r), max: maxBytes}
}

// Next returns the next non-blank record without its line terminator. A
// final record without a trailing newline is returned before io.EOF.
// ErrLineTooLong reports a discarded oversize record; reading may continue.
func (l *LineReader) Next() ([]byte, error) {
	for {
		line, err := l.read()
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			return nil, err
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}
		l.lines++
		return line, nil
	}
}

// Lines is the number of records returned so far.
func (l *LineReader) Lines() int { return l.lines }

func (l *LineReader) read() ([]byte, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := l.r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > l.max+1 {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case err == nil:
			if tooLong {
				return nil, ErrLineTooLong
			}
			return buf[:len(buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			if tooLong {
				return nil, ErrLineTooLong
			}
			return buf, err
		}
	}
}
