package backend

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, lr *LineReader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			return lines
		}
		if errors.Is(err, ErrLineTooLong) {
			lines = append(lines, "<too long>")
			continue
		}
		require.NoError(t, err)
		lines = append(lines, string(line))
	}
}

func TestLineReader_SplitsLines(t *testing.T) {
	lr := NewLineReader(strings.NewReader("a\r\n\nbc\nlast"), 16, 64)
	assert.Equal(t, []string{"a", "", "bc", "last"}, readLines(t, lr))
}

func TestLineReader_SkipsOversizedLine(t *testing.T) {
	long := strings.Repeat("x", 100)
	lr := NewLineReader(strings.NewReader("before\n"+long+"\nafter\n"), 16, 32)
	assert.Equal(t, []string{"before", "<too long>", "after"}, readLines(t, lr))
}

func TestLineReader_OversizedFinalLine(t *testing.T) {
	lr := NewLineReader(strings.NewReader("ok\n"+strings.Repeat("y", 50)), 16, 32)
	assert.Equal(t, []string{"ok", "<too long>"}, readLines(t, lr))
}

func TestLineReader_LineAtLimit(t *testing.T) {
	exact := strings.Repeat("z", 32)
	lr := NewLineReader(strings.NewReader(exact+"\r\n"), 16, 32)
	assert.Equal(t, []string{exact}, readLines(t, lr))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestLineReader_ReadError(t *testing.T) {
	_, err := NewLineReader(failingReader{}, 16, 32).Next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.NotErrorIs(t, err, ErrLineTooLong)
}
