package mqtt

import (
	"sync"

	"github.com/sweeney/presence-meter/internal/logic"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	// Triggers and TriggerPayloads contain published triggers.
	Triggers        []logic.Trigger
	TriggerPayloads [][]byte

	// Levels and LevelPayloads contain published level events.
	Levels        []logic.LevelEvent
	LevelPayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishTrigger and PublishLevel.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishTrigger records the trigger.
func (f *FakePublisher) PublishTrigger(t logic.Trigger) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatTriggerPayload(t)
	if err != nil {
		return err
	}
	f.Triggers = append(f.Triggers, t)
	f.TriggerPayloads = append(f.TriggerPayloads, payload)
	return nil
}

// PublishLevel records the level event.
func (f *FakePublisher) PublishLevel(e logic.LevelEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatLevelPayload(e)
	if err != nil {
		return err
	}
	f.Levels = append(f.Levels, e)
	f.LevelPayloads = append(f.LevelPayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}

// FakeClient is an in-memory Subscriber.
type FakeClient struct {
	mu       sync.Mutex
	handlers map[string]MessageHandler

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error
}

// NewFakeClient creates a FakeClient with no subscriptions.
func NewFakeClient() *FakeClient {
	return &FakeClient{handlers: make(map[string]MessageHandler)}
}

// Subscribe records handler for the exact topic.
func (c *FakeClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if c.SubscribeError != nil {
		return c.SubscribeError
	}
	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()
	return nil
}

// Deliver calls the handler subscribed to topic. It reports whether one existed.
func (c *FakeClient) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(fakeMessage{topic: topic, payload: payload})
	return true
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }
