package source

import "sync"

// FakeRead is one scripted ReadLine result.
type FakeRead struct {
	Line string
	Err  error
}

// FakeSource replays scripted reads, then reports ErrClosed.
type FakeSource struct {
	mu     sync.Mutex
	reads  []FakeRead
	closed bool

	// Reads counts ReadLine calls.
	Reads int
}

// NewFakeSource creates a FakeSource that returns lines in order.
func NewFakeSource(lines ...string) *FakeSource {
	f := &FakeSource{}
	for _, l := range lines {
		f.reads = append(f.reads, FakeRead{Line: l})
	}
	return f
}

// Script appends reads to replay.
func (f *FakeSource) Script(reads ...FakeRead) {
	f.mu.Lock()
	f.reads = append(f.reads, reads...)
	f.mu.Unlock()
}

// ReadLine implements Source.
func (f *FakeSource) ReadLine() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.closed || len(f.reads) == 0 {
		return "", ErrClosed
	}
	r := f.reads[0]
	f.reads = f.reads[1:]
	return r.Line, r.Err
}

// Close implements Source.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeSource) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
