package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader 按固定大小切分输出，模拟任意的网络分块
type chunkReader struct {
	data string
	size int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, io.EOF
	}
	n := r.size
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func feedAll(input string, size int) ([]string, string) {
	var ra Reassembler
	var lines []string
	for start := 0; start < len(input); start += size {
		end := start + size
		if end > len(input) {
			end = len(input)
		}
		lines = append(lines, ra.Feed([]byte(input[start:end]))...)
	}
	return lines, ra.Rest()
}

func TestReassembler_ConcatenationInvariant(t *testing.T) {
	inputs := []string{
		"",
		"no terminator",
		"a\nb\nc",
		"data: {\"content\":\"x\"}\n\ndata: [DONE]\n\n",
		"\n\n\n",
		"line with crlf\r\nnext\r\n",
		"ünïcödé\nçhunks\nsplit",
	}

	for _, input := range inputs {
		for size := 1; size <= len(input)+1; size++ {
			lines, rest := feedAll(input, size)

			var rebuilt strings.Builder
			for _, line := range lines {
				rebuilt.WriteString(line)
				rebuilt.WriteString(LineTerminator)
			}
			rebuilt.WriteString(rest)

			assert.Equal(t, input, rebuilt.String(), "input=%q size=%d", input, size)
		}
	}
}

func TestReassembler_SpanningLineEmittedOnce(t *testing.T) {
	var ra Reassembler

	assert.Empty(t, ra.Feed([]byte("data: {\"con")))
	assert.Empty(t, ra.Feed([]byte("tent\":\"hel")))
	assert.Equal(t, []string{`data: {"content":"hello"}`}, ra.Feed([]byte("lo\"}\n")))
	assert.Equal(t, "", ra.Rest())

	assert.Equal(t, []string{"", "tail"}, ra.Feed([]byte("\ntail\npartial")))
	assert.Equal(t, "partial", ra.Rest())
}

func TestReassembler_CRLFSplitMidTerminator(t *testing.T) {
	var ra Reassembler

	assert.Empty(t, ra.Feed([]byte("first\r")))
	assert.Equal(t, []string{"first\r"}, ra.Feed([]byte("\nsecond")))
	assert.Equal(t, "second", ra.Rest())
}

func TestLines(t *testing.T) {
	input := "one\ntwo\n\nthree\nleftover"
	for _, size := range []int{1, 2, 3, 7, 100} {
		var got []string
		for line, err := range Lines(&chunkReader{data: input, size: size}) {
			require.NoError(t, err)
			got = append(got, line)
		}
		assert.Equal(t, []string{"one", "two", "", "three"}, got, "size=%d", size)
	}
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "ok\npart"), nil
	}
	return 0, errors.New("连接中断")
}

func TestLines_PropagatesReadError(t *testing.T) {
	var got []string
	var gotErr error
	for line, err := range Lines(&failingReader{}) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, line)
	}
	assert.Equal(t, []string{"ok"}, got)
	assert.EqualError(t, gotErr, "连接中断")
}

func TestLines_StopEarly(t *testing.T) {
	count := 0
	for range Lines(strings.NewReader("a\nb\nc\n")) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}
