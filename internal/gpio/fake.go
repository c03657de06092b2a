package gpio

import (
	"errors"
	"sync"
)

// FakeButton is a test double that returns scripted button states.
type FakeButton struct {
	// Samples contains scripted states. Each call to Pressed() consumes the
	// next one; the last is repeated once exhausted.
	Samples []bool

	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Pressed()
	ReadError error
}

// NewFakeButton creates a FakeButton with the given samples.
func NewFakeButton(samples ...bool) *FakeButton {
	return &FakeButton{Samples: samples}
}

// Pressed returns the next scripted sample.
func (f *FakeButton) Pressed() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// Close marks the button as closed.
func (f *FakeButton) Close() error {
	f.Closed = true
	return nil
}

// FakeLED records every state it is set to. Safe for concurrent use.
type FakeLED struct {
	mu     sync.Mutex
	states []bool
	closed bool

	// SetError, if set, will be returned by Set()
	SetError error
}

// NewFakeLED creates a FakeLED that is off.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

// Set records on.
func (f *FakeLED) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.mu.Lock()
	f.states = append(f.states, on)
	f.mu.Unlock()
	return nil
}

// States returns a copy of every state set so far.
func (f *FakeLED) States() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.states))
	copy(out, f.states)
	return out
}

// On reports the most recent state (false if never set).
func (f *FakeLED) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states) > 0 && f.states[len(f.states)-1]
}

// Close marks the LED as closed.
func (f *FakeLED) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeLED) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
