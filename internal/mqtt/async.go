package mqtt

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/presence-meter/internal/logic"
)

// DefaultQueueSize bounds events waiting to be handed to the broker client.
const DefaultQueueSize = 512

// DefaultDrainTimeout bounds how long Close waits for queued events.
const DefaultDrainTimeout = 5 * time.Second

var (
	// ErrQueueFull is returned when an event is dropped because the queue is full.
	ErrQueueFull = errors.New("mqtt: publish queue full, event dropped")

	// ErrPublisherClosed is returned for events published after Close.
	ErrPublisherClosed = errors.New("mqtt: publisher closed")
)

type publishJob struct {
	kind string
	send func() error
}

// AsyncPublisher queues events and publishes them through the wrapped
// Publisher on a single background goroutine, preserving order. Publish
// calls never wait on the broker; failures are logged by the worker.
type AsyncPublisher struct {
	next         Publisher
	logger       *slog.Logger
	drainTimeout time.Duration

	mu     sync.Mutex
	closed bool
	jobs   chan publishJob
	done   chan struct{}
}

// NewAsyncPublisher starts the worker. queueSize <= 0 uses DefaultQueueSize.
func NewAsyncPublisher(next Publisher, queueSize int, logger *slog.Logger) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	p := &AsyncPublisher{
		next:         next,
		logger:       logger,
		drainTimeout: DefaultDrainTimeout,
		jobs:         make(chan publishJob, queueSize),
		done:         make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for job := range p.jobs {
		if err := job.send(); err != nil {
			p.logger.Warn("mqtt publish failed", "event", job.kind, "error", err)
		}
	}
}

func (p *AsyncPublisher) enqueue(job publishJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// PublishTrigger implements Publisher.
func (p *AsyncPublisher) PublishTrigger(t logic.Trigger) error {
	return p.enqueue(publishJob{kind: "trigger", send: func() error { return p.next.PublishTrigger(t) }})
}

// PublishLevel implements Publisher.
func (p *AsyncPublisher) PublishLevel(e logic.LevelEvent) error {
	return p.enqueue(publishJob{kind: "level", send: func() error { return p.next.PublishLevel(e) }})
}

// PublishSystem implements Publisher.
func (p *AsyncPublisher) PublishSystem(event SystemEvent) error {
	return p.enqueue(publishJob{kind: event.Event, send: func() error { return p.next.PublishSystem(event) }})
}

// Pending reports how many events are waiting for the worker.
func (p *AsyncPublisher) Pending() int {
	return len(p.jobs)
}

// Close stops accepting events, waits up to the drain timeout for queued
// events to go out, then closes the wrapped Publisher.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(p.drainTimeout):
		p.logger.Warn("mqtt publish queue not drained", "pending", p.Pending())
	}
	return p.next.Close()
}
