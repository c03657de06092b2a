package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/presence-meter/internal/logic"
)

// DefaultBufferSize is how many messages are kept while the broker is unreachable.
const DefaultBufferSize = 256

const publishTimeout = 5 * time.Second

// Options configure a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string // generated when empty
	Topics     Topics
	BufferSize int
}

// NewClientID returns a unique client id such as "presence-meter-6f1c...".
func NewClientID() string {
	return "presence-meter-" + uuid.NewString()
}

// RealPublisher publishes to an actual MQTT broker. It connects in the
// background, buffers messages while disconnected and replays them on
// (re)connect. It also serves subscriptions, which are restored after reconnects.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger *slog.Logger

	mu            sync.Mutex
	buffer        *ringBuffer
	subs          map[string]subscription
	everConnected bool
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// NewRealPublisher creates a publisher for the given broker and starts connecting.
// It returns immediately; messages are buffered until the connection is up.
func NewRealPublisher(opts Options, logger *slog.Logger) *RealPublisher {
	if opts.ClientID == "" {
		opts.ClientID = NewClientID()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Topics == (Topics{}) {
		opts.Topics = NewTopics(DefaultTopicPrefix)
	}

	p := &RealPublisher{
		topics: opts.Topics,
		logger: logger,
		buffer: newRingBuffer(opts.BufferSize),
		subs:   make(map[string]subscription),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetMaxReconnectInterval(30*time.Second).
		SetWill(opts.Topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		}).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			logger.Info("mqtt reconnecting")
		})

	p.client = paho.NewClient(co)
	p.client.Connect()
	logger.Info("mqtt connecting", "broker", opts.Broker, "client_id", opts.ClientID)
	return p
}

// onConnect replays buffered messages, restores subscriptions and announces reconnects.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everConnected
	p.everConnected = true
	pending, dropped := p.buffer.drainAll()
	subs := make(map[string]subscription, len(p.subs))
	for topic, s := range p.subs {
		subs[topic] = s
	}
	p.mu.Unlock()

	p.logger.Info("mqtt connected", "reconnect", reconnect, "buffered", len(pending), "dropped", dropped)

	for topic, s := range subs {
		if err := p.subscribe(topic, s); err != nil {
			p.logger.Warn("mqtt resubscribe failed", "topic", topic, "error", err)
		}
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		pending = append([]bufferedMsg{{topic: p.topics.System, payload: payload, qos: 1}}, pending...)
	}

	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.logger.Warn("mqtt replay failed", "topic", m.topic, "error", err)
		}
	}
}

// PublishTrigger implements Publisher (QoS 0, not retained).
func (p *RealPublisher) PublishTrigger(t logic.Trigger) error {
	payload, err := FormatTriggerPayload(t)
	if err != nil {
		return fmt.Errorf("format trigger payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.Triggers, payload: payload})
}

// PublishLevel implements Publisher (QoS 1, not retained).
func (p *RealPublisher) PublishLevel(e logic.LevelEvent) error {
	payload, err := FormatLevelPayload(e)
	if err != nil {
		return fmt.Errorf("format level payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.Levels, payload: payload, qos: 1})
}

// PublishSystem implements Publisher (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.bufferMsg(m)
		return nil
	}
	if err := p.send(m); err != nil {
		p.bufferMsg(m)
		return err
	}
	return nil
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) bufferMsg(m bufferedMsg) {
	p.mu.Lock()
	firstDrop := p.buffer.push(m)
	n := p.buffer.len()
	p.mu.Unlock()
	if firstDrop {
		p.logger.Warn("mqtt buffer full, dropping oldest", "capacity", n)
	}
}

// Subscribe implements Subscriber. The subscription is restored after reconnects.
func (p *RealPublisher) Subscribe(topic string, qos byte, handler MessageHandler) error {
	s := subscription{qos: qos, handler: handler}
	p.mu.Lock()
	p.subs[topic] = s
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		// onConnect will subscribe
		p.logger.Info("mqtt subscription deferred until connected", "topic", topic)
		return nil
	}
	return p.subscribe(topic, s)
}

func (p *RealPublisher) subscribe(topic string, s subscription) error {
	token := p.client.Subscribe(topic, s.qos, func(_ paho.Client, msg paho.Message) {
		s.handler(msg)
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	p.logger.Info("mqtt subscribed", "topic", topic)
	return nil
}

// IsConnected implements ConnectionStatus.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second grace period
	return nil
}
