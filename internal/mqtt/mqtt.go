// Package mqtt provides MQTT publishing and subscribing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/sweeney/presence-meter/internal/logic"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "presence/meter"

// Topics are the topics events are published on.
type Topics struct {
	Triggers string
	Levels   string
	System   string
}

// NewTopics derives the topic set from a prefix such as "presence/meter".
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Triggers: prefix + "/triggers",
		Levels:   prefix + "/levels",
		System:   prefix + "/system",
	}
}

// Publisher publishes events to MQTT.
// Errors are reported but must not crash the process.
type Publisher interface {
	// PublishTrigger sends an accepted presence trigger.
	PublishTrigger(t logic.Trigger) error

	// PublishLevel sends a level controller event.
	PublishLevel(e logic.LevelEvent) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Message is a received MQTT message.
type Message interface {
	Topic() string
	Payload() []byte
}

// MessageHandler is a callback for incoming messages.
type MessageHandler func(Message)

// Subscriber delivers messages published on a topic.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// TriggerPayload is the JSON envelope for trigger events.
type TriggerPayload struct {
	Trigger TriggerInner `json:"trigger"`
}

// TriggerInner contains the trigger details.
type TriggerInner struct {
	Timestamp  string   `json:"timestamp"`
	Sensor     string   `json:"sensor"`
	DistanceCm *float64 `json:"distance_cm,omitempty"`
	Legacy     bool     `json:"legacy,omitempty"`
	Any        bool     `json:"any"`
}

// FormatTriggerPayload creates the JSON payload for a trigger.
// Legacy triggers carry no distance.
func FormatTriggerPayload(t logic.Trigger) ([]byte, error) {
	inner := TriggerInner{
		Timestamp: formatTime(t.Time),
		Sensor:    t.SensorID,
		Legacy:    t.Legacy,
		Any:       t.Any,
	}
	if !t.Legacy && !math.IsNaN(t.DistanceCm) && !math.IsInf(t.DistanceCm, 0) {
		d := math.Round(t.DistanceCm*100) / 100
		inner.DistanceCm = &d
	}
	return json.Marshal(TriggerPayload{Trigger: inner})
}

// LevelPayload is the JSON envelope for level controller events.
type LevelPayload struct {
	Level LevelInner `json:"level"`
}

// LevelInner contains the level event details. Fields not relevant to
// the event type are omitted.
type LevelInner struct {
	Timestamp string `json:"timestamp"`
	Indicator string `json:"indicator"`
	Event     string `json:"event"`
	Prev      *int   `json:"prev,omitempty"`
	Index     *int   `json:"index,omitempty"`
	Direction string `json:"direction,omitempty"`
	Active    *bool  `json:"active,omitempty"`
	Cue       string `json:"cue,omitempty"`
}

// FormatLevelPayload creates the JSON payload for a level event.
func FormatLevelPayload(e logic.LevelEvent) ([]byte, error) {
	inner := LevelInner{
		Timestamp: formatTime(e.Timestamp),
		Indicator: e.Indicator,
		Event:     string(e.Type),
		Cue:       e.Cue,
	}
	switch e.Type {
	case logic.EventLevelChanged:
		prev, idx := e.Prev, e.Index
		inner.Prev = &prev
		inner.Index = &idx
		inner.Direction = string(e.Direction)
	case logic.EventHoldAtMax:
		idx := e.Index
		inner.Index = &idx
	case logic.EventLockoutChanged, logic.EventHoldPhaseChanged:
		active := e.Active
		inner.Active = &active
	}
	return json.Marshal(LevelPayload{Level: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: formatTime(event.Timestamp),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// formatTime uses millisecond precision; triggers can be closer than a second apart.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Discard is a Publisher that drops everything. Used when no broker is configured.
var Discard Publisher = discard{}

type discard struct{}

func (discard) PublishTrigger(logic.Trigger) error  { return nil }
func (discard) PublishLevel(logic.LevelEvent) error { return nil }
func (discard) PublishSystem(SystemEvent) error     { return nil }
func (discard) Close() error                        { return nil }
