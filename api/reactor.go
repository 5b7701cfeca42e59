// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for the readiness-based IO reactor
// that multiplexes every connection on a single event loop.

package api

import (
	"fmt"
	"strings"
	"time"
)

// Token is an opaque connection handle. The low 32 bits hold a slot index,
// the high 32 bits hold the slot generation.
type Token uint64

// ListenerToken is reserved for the listening socket. Slot tables never hand it out.
const ListenerToken Token = 0

// NewToken packs a slot index and generation.
func NewToken(index, gen uint32) Token {
	return Token(uint64(gen)<<32 | uint64(index))
}

// Index returns the slot index.
func (t Token) Index() uint32 { return uint32(t) }

// Generation returns the slot generation.
func (t Token) Generation() uint32 { return uint32(t >> 32) }

func (t Token) String() string {
	if t == ListenerToken {
		return "listener"
	}
	return fmt.Sprintf("%d.%d", t.Index(), t.Generation())
}

// Interest is the set of readiness conditions a registration asks for.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

// Has reports whether all bits of o are set.
func (i Interest) Has(o Interest) bool { return i&o == o && o != 0 }

func (i Interest) String() string {
	var parts []string
	if i.Has(Readable) {
		parts = append(parts, "readable")
	}
	if i.Has(Writable) {
		parts = append(parts, "writable")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Readiness is the set of conditions reported by the reactor for one event.
type Readiness uint8

const (
	ReadyRead Readiness = 1 << iota
	ReadyWrite
	// ReadyError covers socket errors and hang-ups.
	ReadyError
)

func (r Readiness) Readable() bool { return r&ReadyRead != 0 }
func (r Readiness) Writable() bool { return r&ReadyWrite != 0 }
func (r Readiness) Failed() bool   { return r&ReadyError != 0 }

// Event encapsulates one readiness notification.
type Event struct {
	Token     Token
	Readiness Readiness
}

// Reactor is an edge-triggered, one-shot readiness notifier. After an event
// is delivered for a registration, nothing more is reported for it until
// Reregister is called.
type Reactor interface {
	// Register adds fd with the given token and interest.
	Register(fd int, token Token, interest Interest) error

	// Reregister re-arms fd, replacing its interest set.
	Reregister(fd int, token Token, interest Interest) error

	// Deregister removes fd.
	Deregister(fd int) error

	// Wait blocks for at most timeout (negative blocks forever) and fills events.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Close releases the poller backend.
	Close() error
}
