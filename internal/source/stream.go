package source

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// StreamSource reads lines from a byte stream such as stdin or a TCP socket.
type StreamSource struct {
	rc io.ReadCloser
	lr *lineReader

	// Set for pumped streams only.
	results chan readResult
	eof     chan struct{}
	timeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

type readResult struct {
	line string
	err  error
}

// NewStream wraps rc. Reads block until data or end of stream.
func NewStream(rc io.ReadCloser) *StreamSource {
	s := &StreamSource{
		rc:     rc,
		closed: make(chan struct{}),
	}
	s.lr = newLineReader(rc, s.classify)
	return s
}

// NewPumpedStream reads rc on a background goroutine so that Close returns
// ErrClosed to a waiting ReadLine even when the underlying read cannot be
// interrupted, as with a blocking file descriptor. ReadLine returns
// ErrTimeout after readTimeout without a line. The reading goroutine exits
// once the stream ends or the read in flight at Close returns.
func NewPumpedStream(rc io.ReadCloser, readTimeout time.Duration) *StreamSource {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	s := NewStream(rc)
	s.results = make(chan readResult)
	s.eof = make(chan struct{})
	s.timeout = readTimeout
	go s.pump()
	return s
}

// NewStdin reads lines from the process's standard input.
func NewStdin(readTimeout time.Duration) *StreamSource {
	return NewPumpedStream(os.Stdin, readTimeout)
}

func (s *StreamSource) pump() {
	defer close(s.eof)
	for {
		line, err := s.lr.readLine()
		if errors.Is(err, ErrTimeout) {
			continue
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		select {
		case s.results <- readResult{line: line, err: err}:
		case <-s.closed:
			return
		}
	}
}

// deadlineConn re-arms the read deadline before every read so that a silent
// peer surfaces as ErrTimeout.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

// DialTCP connects to addr and reads lines with a per-read timeout.
func DialTCP(addr string, readTimeout time.Duration) (*StreamSource, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewStream(deadlineConn{Conn: conn, timeout: readTimeout}), nil
}

// ReadLine implements Source.
func (s *StreamSource) ReadLine() (string, error) {
	select {
	case <-s.closed:
		return "", ErrClosed
	default:
	}
	if s.results == nil {
		return s.lr.readLine()
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-s.closed:
		return "", ErrClosed
	case r := <-s.results:
		return r.line, r.err
	case <-s.eof:
		return "", ErrClosed
	case <-timer.C:
		return "", ErrTimeout
	}
}

// Close implements Source.
func (s *StreamSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.rc.Close()
	})
	return err
}

func (s *StreamSource) classify(err error) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
		return ErrClosed
	}
	return classifyEOF(err)
}
