package backend

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrLineTooLong is returned by LineReader.Next for a line longer than its
// limit. The line has been consumed and the next call continues after it.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// LineReader splits an event stream into lines, like bufio.Scanner, but
// survives a line over the size limit: that line is skipped instead of ending
// the stream.
type LineReader struct {
	r   *bufio.Reader
	max int
	buf []byte
}

// NewLineReader reads r through a buffer of bufSize bytes and accepts lines of
// up to max bytes.
func NewLineReader(r io.Reader, bufSize, max int) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, bufSize), max: max}
}

// Next returns the next line without its line ending. The slice is only valid
// until the next call. It returns io.EOF once the stream is exhausted; a final
// line without a trailing newline is still returned first.
func (l *LineReader) Next() ([]byte, error) {
	l.buf = l.buf[:0]
	oversized := false
	for {
		chunk, err := l.r.ReadSlice('\n')
		if !oversized {
			if len(l.buf)+len(bytes.TrimRight(chunk, "\r\n")) > l.max {
				oversized = true
				l.buf = l.buf[:0]
			} else {
				l.buf = append(l.buf, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil:
		case errors.Is(err, io.EOF) && (len(l.buf) > 0 || oversized):
		default:
			return nil, err
		}

		if oversized {
			return nil, ErrLineTooLong
		}
		return bytes.TrimRight(l.buf, "\r\n"), nil
	}
}
