// Package source provides line-oriented sensor transports: serial ports,
// TCP sockets, stdin and MQTT topics.
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sweeney/presence-meter/internal/mqtt"
)

var (
	// ErrTimeout is returned by ReadLine when no complete line arrived within the read timeout.
	// Callers should simply retry.
	ErrTimeout = errors.New("source: read timeout")

	// ErrClosed is returned once the source has been closed or reached end of stream.
	ErrClosed = errors.New("source: closed")

	// ErrLineTooLong is returned once for each line longer than 4096 bytes.
	// The line is dropped; reading continues after its newline.
	ErrLineTooLong = errors.New("source: line too long, dropped")
)

// Source yields text lines without their terminators.
type Source interface {
	// ReadLine blocks until a line, a timeout (ErrTimeout), a dropped
	// overlong line (ErrLineTooLong) or close (ErrClosed).
	ReadLine() (string, error)
	Close() error
}

// Kind names a transport.
type Kind string

const (
	KindSerial Kind = "serial"
	KindTCP    Kind = "tcp"
	KindStdin  Kind = "stdin"
	KindMQTT   Kind = "mqtt"
)

// ParseKind validates a transport name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindSerial, KindTCP, KindStdin, KindMQTT:
		return k, nil
	}
	return "", fmt.Errorf("unknown source %q (want serial, tcp, stdin or mqtt)", s)
}

// Config selects and configures a transport.
type Config struct {
	Kind        Kind
	Port        string // serial device
	Baud        int
	TCPAddr     string
	MQTTTopic   string
	ReadTimeout time.Duration
}

// DefaultReadTimeout bounds each blocking read so callers can observe cancellation.
const DefaultReadTimeout = time.Second

// Open opens the configured transport. sub is only used for KindMQTT.
func Open(cfg Config, sub mqtt.Subscriber, logger *slog.Logger) (Source, error) {
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	switch cfg.Kind {
	case KindSerial:
		return OpenSerial(cfg.Port, cfg.Baud, timeout, logger)
	case KindTCP:
		return DialTCP(cfg.TCPAddr, timeout)
	case KindStdin:
		return NewStdin(timeout), nil
	case KindMQTT:
		if sub == nil {
			return nil, errors.New("mqtt source requires a broker connection")
		}
		return SubscribeMQTT(sub, cfg.MQTTTopic, timeout)
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Kind)
}
