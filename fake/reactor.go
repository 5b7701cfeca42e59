// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"fmt"
	"sync"
	"time"

	"github.com/momentics/wsreactor/api"
)

// Registration is the reactor's current view of one descriptor.
type Registration struct {
	Token    api.Token
	Interest api.Interest
}

// Call records a single reactor operation.
type Call struct {
	Op       string // "register", "reregister" or "deregister"
	FD       int
	Token    api.Token
	Interest api.Interest
}

// Reactor is an in-memory api.Reactor. Events are injected by the test
// with Push and handed out by Wait in order.
type Reactor struct {
	mu      sync.Mutex
	regs    map[int]Registration
	calls   []Call
	pending []api.Event
	closed  bool

	// FailOn makes the named operation return an error.
	FailOn map[string]error
}

var _ api.Reactor = (*Reactor)(nil)

// NewReactor returns an empty fake reactor.
func NewReactor() *Reactor {
	return &Reactor{regs: make(map[int]Registration)}
}

func (r *Reactor) record(c Call) error {
	r.calls = append(r.calls, c)
	if err, ok := r.FailOn[c.Op]; ok {
		return err
	}
	return nil
}

func (r *Reactor) Register(fd int, token api.Token, interest api.Interest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(Call{Op: "register", FD: fd, Token: token, Interest: interest}); err != nil {
		return err
	}
	if _, ok := r.regs[fd]; ok {
		return fmt.Errorf("fake reactor: fd %d already registered", fd)
	}
	r.regs[fd] = Registration{Token: token, Interest: interest}
	return nil
}

func (r *Reactor) Reregister(fd int, token api.Token, interest api.Interest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(Call{Op: "reregister", FD: fd, Token: token, Interest: interest}); err != nil {
		return err
	}
	if _, ok := r.regs[fd]; !ok {
		return fmt.Errorf("fake reactor: fd %d not registered", fd)
	}
	r.regs[fd] = Registration{Token: token, Interest: interest}
	return nil
}

func (r *Reactor) Deregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(Call{Op: "deregister", FD: fd}); err != nil {
		return err
	}
	delete(r.regs, fd)
	return nil
}

// Wait drains injected events. It never blocks.
func (r *Reactor) Wait(events []api.Event, _ time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, api.ErrTransportClosed
	}
	n := copy(events, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *Reactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Push queues events for the next Wait.
func (r *Reactor) Push(events ...api.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, events...)
}

// Lookup returns the registration for fd.
func (r *Reactor) Lookup(fd int) (Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[fd]
	return reg, ok
}

// Calls returns a copy of the recorded operations.
func (r *Reactor) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// ResetCalls clears the recorded operations.
func (r *Reactor) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Closed reports whether Close was called.
func (r *Reactor) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
