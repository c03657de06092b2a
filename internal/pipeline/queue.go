// Package pipeline connects line sources to the presence logic: an ingestion
// goroutine parses lines into a queue, and the processing goroutine drains it
// once per tick.
package pipeline

import (
	"sync"
	"time"

	"github.com/sweeney/presence-meter/internal/logic"
)

// ItemKind identifies what a queued item carries.
type ItemKind int

const (
	ItemReading ItemKind = iota
	ItemLegacy
	ItemPulse
	ItemSetLevel
)

func (k ItemKind) String() string {
	switch k {
	case ItemReading:
		return "reading"
	case ItemLegacy:
		return "legacy"
	case ItemPulse:
		return "pulse"
	case ItemSetLevel:
		return "set-level"
	}
	return "unknown"
}

// Item is one unit of work handed from producers to the processing goroutine.
type Item struct {
	Kind    ItemKind
	Reading logic.Reading // ItemReading only
	Time    time.Time     // arrival time
	Origin  string        // producer, for logs ("serial", "http", "button", ...)

	// ItemSetLevel only; an empty Indicator addresses every controller.
	Indicator string
	Index     int
}

// Queue is an unbounded, ordered, multi-producer single-consumer hand-off.
type Queue struct {
	mu    sync.Mutex
	items []Item
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends items in order. Safe for concurrent use.
func (q *Queue) Push(items ...Item) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()
}

// Drain removes and returns everything queued so far, oldest first.
func (q *Queue) Drain() []Item {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PushPulse queues a manual presence pulse.
func (q *Queue) PushPulse(now time.Time, origin string) {
	q.Push(Item{Kind: ItemPulse, Time: now, Origin: origin})
}

// PushSetLevel queues an instant level jump for one indicator (or all when empty).
func (q *Queue) PushSetLevel(now time.Time, indicator string, index int, origin string) {
	q.Push(Item{Kind: ItemSetLevel, Time: now, Indicator: indicator, Index: index, Origin: origin})
}
