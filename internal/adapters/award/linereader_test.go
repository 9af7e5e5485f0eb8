package award

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/cockroachdb/errors"
	. "github.com/smartystreets/goconvey/convey"
)

// chunkReader returns its input in fixed fragments regardless of line
// boundaries.
type chunkReader struct {
	chunks []string
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func readAll(lr *LineReader) ([]string, error) {
	var out []string
	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, string(line))
	}
}

func TestLineReader(t *testing.T) {
	Convey("Given records split across reads", t, func() {
		r := &chunkReader{chunks: []string{`{"a":`, `1}` + "\n" + `{"b"`, `:2}` + "\n"}}
		lines, err := readAll(NewLineReader(r, 0))

		Convey("Then each record is reassembled", func() {
			So(err, ShouldBeNil)
			So(lines, ShouldResemble, []string{`{"a":1}`, `{"b":2}`})
		})
	})

	Convey("Given a one-byte-at-a-time reader", t, func() {
		src := "x\r\n\n  \ny\r\nlast"
		lines, err := readAll(NewLineReader(iotest.OneByteReader(strings.NewReader(src)), 0))

		Convey("Then CRLF is stripped, blanks skipped and the final record kept", func() {
			So(err, ShouldBeNil)
			So(lines, ShouldResemble, []string{"x", "y", "last"})
		})
	})

	Convey("Given an oversize record between valid ones", t, func() {
		src := "ok\n" + strings.Repeat("z", 64) + "\nfine\n"
		lr := NewLineReader(strings.NewReader(src), 16)

		Convey("Then it is reported and reading continues", func() {
			first, err := lr.Next()
			So(err, ShouldBeNil)
			So(string(first), ShouldEqual, "ok")

			_, err = lr.Next()
			So(errors.Is(err, ErrLineTooLong), ShouldBeTrue)

			next, err := lr.Next()
			So(err, ShouldBeNil)
			So(string(next), ShouldEqual, "fine")
			So(lr.Lines(), ShouldEqual, 2)
		})
	})

	Convey("Given a failing reader", t, func() {
		boom := errors.New("connection reset")
		lr := NewLineReader(iotest.ErrReader(boom), 0)

		Convey("Then the read error is returned", func() {
			_, err := lr.Next()
			So(errors.Is(err, boom), ShouldBeTrue)
		})
	})

	Convey("Given an empty stream", t, func() {
		_, err := NewLineReader(strings.NewReader(""), 0).Next()
		So(errors.Is(err, io.EOF), ShouldBeTrue)
	})
}
