package source

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/presence-meter/internal/mqtt"
)

// MQTTSource turns messages on a topic into lines. A payload may carry
// several newline-separated lines.
type MQTTSource struct {
	lines   chan string
	timeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// lineBacklog bounds lines waiting for the reader; older lines are dropped first.
const lineBacklog = 1024

// SubscribeMQTT subscribes to topic on sub.
func SubscribeMQTT(sub mqtt.Subscriber, topic string, readTimeout time.Duration) (*MQTTSource, error) {
	if topic == "" {
		return nil, fmt.Errorf("mqtt source: empty topic")
	}
	s := &MQTTSource{
		lines:   make(chan string, lineBacklog),
		timeout: readTimeout,
		closed:  make(chan struct{}),
	}
	if err := sub.Subscribe(topic, 0, s.handle); err != nil {
		return nil, fmt.Errorf("mqtt source: %w", err)
	}
	return s, nil
}

func (s *MQTTSource) handle(msg mqtt.Message) {
	for _, line := range strings.Split(string(msg.Payload()), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		s.push(line)
	}
}

func (s *MQTTSource) push(line string) {
	for {
		select {
		case <-s.closed:
			return
		case s.lines <- line:
			return
		default:
		}
		// Full: drop the oldest line and retry
		select {
		case <-s.lines:
		default:
		}
	}
}

// ReadLine implements Source.
func (s *MQTTSource) ReadLine() (string, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-s.closed:
		return "", ErrClosed
	case line := <-s.lines:
		return line, nil
	case <-timer.C:
		return "", ErrTimeout
	}
}

// Close implements Source. The subscription itself is owned by the client.
func (s *MQTTSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
