package gpio

import (
	"errors"
	"sync"
)

// Write records a single Set call on a FakeWriter.
type Write struct {
	Pin int
	On  bool
}

// FakeWriter is a test double that records output levels and can be scripted
// to fail.
type FakeWriter struct {
	mu sync.Mutex

	// Levels holds the last successfully written level per pin.
	Levels map[int]bool

	// Writes records every successful Set call in order.
	Writes []Write

	// Attempts counts Set calls per pin, including failed ones.
	Attempts map[int]int

	// Failures is the number of upcoming Set calls per pin that will fail.
	// A negative value makes the pin fail forever.
	Failures map[int]int

	// WriteError is returned for scripted failures. Defaults to ErrFakeWrite.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// ErrFakeWrite is the default scripted write failure.
var ErrFakeWrite = errors.New("fake gpio write failure")

// NewFakeWriter creates a FakeWriter with all pins LOW.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{
		Levels:   make(map[int]bool),
		Attempts: make(map[int]int),
		Failures: make(map[int]int),
	}
}

// FailNext makes the next n Set calls on pin fail. n < 0 fails forever.
func (f *FakeWriter) FailNext(pin, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Failures[pin] = n
}

// Set records the level, or returns the scripted error.
func (f *FakeWriter) Set(pin int, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Attempts[pin]++

	if n := f.Failures[pin]; n != 0 {
		if n > 0 {
			f.Failures[pin] = n - 1
		}
		if f.WriteError != nil {
			return f.WriteError
		}
		return ErrFakeWrite
	}

	f.Levels[pin] = on
	f.Writes = append(f.Writes, Write{Pin: pin, On: on})
	return nil
}

// Level returns the last written level of pin (false if never written).
func (f *FakeWriter) Level(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Levels[pin]
}

// WriteCount returns the number of successful writes to pin.
func (f *FakeWriter) WriteCount(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.Writes {
		if w.Pin == pin {
			n++
		}
	}
	return n
}

// Close drives all known pins LOW and marks the writer closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pin := range f.Levels {
		f.Levels[pin] = false
	}
	f.Closed = true
	return nil
}

// Reset clears recorded writes and scripted failures.
func (f *FakeWriter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Levels = make(map[int]bool)
	f.Attempts = make(map[int]int)
	f.Failures = make(map[int]int)
	f.Writes = nil
	f.WriteError = nil
	f.Closed = false
}
