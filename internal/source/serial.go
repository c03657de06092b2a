package source

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialSource reads lines from a serial port.
type SerialSource struct {
	port serial.Port
	lr   *lineReader

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenSerial opens name at baud 8N1 with DTR and RTS asserted.
// Reads block for at most readTimeout before returning ErrTimeout.
func OpenSerial(name string, baud int, readTimeout time.Duration, logger *slog.Logger) (*SerialSource, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		if ports, lerr := serial.GetPortsList(); lerr == nil {
			logger.Warn("serial port unavailable", "port", name, "available", ports)
		}
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}

	// Many USB bridges only start talking once DTR/RTS are up
	if err := port.SetDTR(true); err != nil {
		logger.Debug("set DTR failed", "port", name, "error", err)
	}
	if err := port.SetRTS(true); err != nil {
		logger.Debug("set RTS failed", "port", name, "error", err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		logger.Debug("reset input buffer failed", "port", name, "error", err)
	}

	s := &SerialSource{
		port:   port,
		closed: make(chan struct{}),
	}
	s.lr = newLineReader(port, s.classify)
	return s, nil
}

// ReadLine implements Source.
func (s *SerialSource) ReadLine() (string, error) {
	select {
	case <-s.closed:
		return "", ErrClosed
	default:
	}
	return s.lr.readLine()
}

// Close implements Source.
func (s *SerialSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.port.Close()
	})
	return err
}

func (s *SerialSource) classify(err error) error {
	var perr *serial.PortError
	if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
		return ErrClosed
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	return classifyEOF(err)
}
