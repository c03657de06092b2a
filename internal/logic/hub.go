package logic

import (
	"strings"
	"sync"
)

// TriggerSource is the event source level controllers subscribe to.
type TriggerSource interface {
	// SubscribeAny registers fn for "any" triggers and returns its unsubscribe func.
	SubscribeAny(fn func(Trigger)) (unsubscribe func())
	// SubscribeSensor registers fn for triggers of one sensor (case-insensitive).
	SubscribeSensor(sensorID string, fn func(Trigger)) (unsubscribe func())
}

type subscription struct {
	id     uint64
	sensor string // lowercased; empty for "any"
	fn     func(Trigger)
}

// TriggerHub fans triggers out to subscribers. Safe for concurrent subscribe
// and unsubscribe; handlers run on the publishing goroutine.
type TriggerHub struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
}

// SubscribeAny implements TriggerSource.
func (h *TriggerHub) SubscribeAny(fn func(Trigger)) func() {
	return h.add("", fn)
}

// SubscribeSensor implements TriggerSource.
func (h *TriggerHub) SubscribeSensor(sensorID string, fn func(Trigger)) func() {
	return h.add(strings.ToLower(sensorID), fn)
}

func (h *TriggerHub) add(sensor string, fn func(Trigger)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscription{id: id, sensor: sensor, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *TriggerHub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of active subscriptions.
func (h *TriggerHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers t to the per-sensor channel and, when t.Any is set, to the "any" channel.
// Per-sensor subscribers are called before "any" subscribers.
func (h *TriggerHub) Publish(t Trigger) {
	h.mu.Lock()
	subs := make([]subscription, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	sensor := strings.ToLower(t.SensorID)
	if !t.Legacy {
		for _, s := range subs {
			if s.sensor != "" && s.sensor == sensor {
				s.fn(t)
			}
		}
	}
	if t.Any {
		for _, s := range subs {
			if s.sensor == "" {
				s.fn(t)
			}
		}
	}
}
