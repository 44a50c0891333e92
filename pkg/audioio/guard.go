package audioio

import (
	"errors"
	"sync"
)

// ErrDeviceBusy is returned by Acquire while another owner holds the device.
var ErrDeviceBusy = errors.New("audioio: capture device busy")

// Guard enforces exclusive ownership of the capture device. The wake-word
// listener and an active recording session must never hold the microphone
// at the same time; whichever wants it must wait for the other to release.
type Guard struct {
	mu    sync.Mutex
	owner string
	held  int64 // total acquisitions, for leak checks in tests
	open  int64 // currently held (0 or 1)
}

// NewGuard creates a device guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Acquire takes exclusive ownership of the device for the named owner.
// Returns ErrDeviceBusy if another owner currently holds it.
func (g *Guard) Acquire(owner string) (*Lease, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open > 0 {
		return nil, ErrDeviceBusy
	}

	g.owner = owner
	g.open = 1
	g.held++
	return &Lease{guard: g}, nil
}

// Owner returns the current owner name, or "" when the device is free.
func (g *Guard) Owner() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open == 0 {
		return ""
	}
	return g.owner
}

// OpenHandles returns the number of currently held leases (0 or 1).
// Tests compare this against a baseline to prove cleanup on every path.
func (g *Guard) OpenHandles() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Lease represents a held device acquisition. Release is idempotent.
type Lease struct {
	once  sync.Once
	guard *Guard
}

// Release returns the device to the guard.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.guard.mu.Lock()
		l.guard.open = 0
		l.guard.owner = ""
		l.guard.mu.Unlock()
	})
}
