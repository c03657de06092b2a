package source

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// maxLineBytes caps a line. Longer lines are dropped up to the next newline.
const maxLineBytes = 4096

// lineReader assembles lines from a reader that may return partial data,
// zero-length reads (serial timeouts) or timeout errors.
type lineReader struct {
	r       io.Reader
	buf     []byte
	pending []byte

	// discarding is set while skipping the rest of an overlong line.
	discarding bool

	// classify maps a read error to ErrTimeout, ErrClosed or itself.
	classify func(error) error
}

func newLineReader(r io.Reader, classify func(error) error) *lineReader {
	if classify == nil {
		classify = classifyEOF
	}
	return &lineReader{
		r:        r,
		buf:      make([]byte, 256),
		classify: classify,
	}
}

func (l *lineReader) readLine() (string, error) {
	for {
		if line, ok, err := l.next(); err != nil || ok {
			return line, err
		}

		n, err := l.r.Read(l.buf)
		l.pending = append(l.pending, l.buf[:n]...)
		if err != nil {
			err = l.classify(err)
			if errors.Is(err, ErrTimeout) || errors.Is(err, ErrClosed) {
				if line, ok, nerr := l.next(); nerr != nil || ok {
					return line, nerr
				}
			}
			if errors.Is(err, ErrClosed) && len(l.pending) > 0 && !l.discarding {
				// Final unterminated line
				line := trimLine(l.pending)
				l.pending = nil
				return line, nil
			}
			return "", err
		}
		if n == 0 {
			return "", ErrTimeout
		}
	}
}

// next pops one complete line from pending. It returns ErrLineTooLong once
// per overlong line and skips the rest of it.
func (l *lineReader) next() (string, bool, error) {
	i := bytes.IndexByte(l.pending, '\n')
	if l.discarding {
		if i < 0 {
			l.pending = l.pending[:0]
			return "", false, nil
		}
		l.discarding = false
		l.pending = l.pending[i+1:]
		i = bytes.IndexByte(l.pending, '\n')
	}

	if i < 0 {
		if len(l.pending) > maxLineBytes {
			l.pending = l.pending[:0]
			l.discarding = true
			return "", false, ErrLineTooLong
		}
		return "", false, nil
	}

	raw := l.pending[:i]
	l.pending = l.pending[i+1:]
	if len(raw) > maxLineBytes {
		return "", false, ErrLineTooLong
	}
	return trimLine(raw), true, nil
}

func trimLine(b []byte) string {
	return strings.TrimRight(string(b), "\r")
}

func classifyEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	return err
}
