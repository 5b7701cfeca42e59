//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor. Every registration is edge-triggered and
// one-shot: after an event is delivered the fd stays silent until rearmed.

package reactor

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/wsreactor/api"
)

// linuxReactor is an epoll-based event reactor.
type linuxReactor struct {
	epfd int
	raw  []unix.EpollEvent
}

// New constructs the platform reactor.
func New() (api.Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.Wrap(api.ErrCodeIO, "epoll_create1", err)
	}
	return &linuxReactor{epfd: epfd}, nil
}

func epollEvent(token api.Token, interest api.Interest) *unix.EpollEvent {
	ev := &unix.EpollEvent{
		Events: unix.EPOLLET | unix.EPOLLONESHOT,
		// The kernel hands the 64-bit data word back verbatim; Fd and Pad
		// are its low and high halves.
		Fd:  int32(uint32(token)),
		Pad: int32(uint32(token >> 32)),
	}
	if interest.Has(api.Readable) {
		ev.Events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest.Has(api.Writable) {
		ev.Events |= unix.EPOLLOUT
	}
	return ev
}

func (r *linuxReactor) ctl(op, fd int, token api.Token, interest api.Interest) error {
	if fd < 0 {
		return api.Wrap(api.ErrCodeInvalidArgument, "bad descriptor", api.ErrInvalidArgument)
	}
	var ev *unix.EpollEvent
	if op != unix.EPOLL_CTL_DEL {
		ev = epollEvent(token, interest)
	}
	if err := unix.EpollCtl(r.epfd, op, fd, ev); err != nil {
		return api.Wrap(api.ErrCodeIO, fmt.Sprintf("epoll_ctl(op=%d, fd=%d)", op, fd), err)
	}
	return nil
}

// Register adds fd with the given interest.
func (r *linuxReactor) Register(fd int, token api.Token, interest api.Interest) error {
	return r.ctl(unix.EPOLL_CTL_ADD, fd, token, interest)
}

// Reregister rearms fd. The kernel re-evaluates readiness on MOD, so an
// edge that arrived while the fd was disarmed is reported again.
func (r *linuxReactor) Reregister(fd int, token api.Token, interest api.Interest) error {
	return r.ctl(unix.EPOLL_CTL_MOD, fd, token, interest)
}

// Deregister removes fd.
func (r *linuxReactor) Deregister(fd int) error {
	return r.ctl(unix.EPOLL_CTL_DEL, fd, 0, 0)
}

// Wait blocks up to timeout and fills events. A negative timeout blocks
// indefinitely. An interrupted wait reports zero events.
func (r *linuxReactor) Wait(events []api.Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if cap(r.raw) < len(events) {
		r.raw = make([]unix.EpollEvent, len(events))
	}
	raw := r.raw[:len(events)]

	ms := -1
	if timeout >= 0 {
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	n, err := unix.EpollWait(r.epfd, raw, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, api.Wrap(api.ErrCodeIO, "epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		e := raw[i]
		var ready api.Readiness
		if e.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLPRI) != 0 {
			ready |= api.ReadyRead
		}
		if e.Events&unix.EPOLLOUT != 0 {
			ready |= api.ReadyWrite
		}
		if e.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			ready |= api.ReadyError
		}
		events[i] = api.Event{
			Token:     api.Token(uint64(uint32(e.Pad))<<32 | uint64(uint32(e.Fd))),
			Readiness: ready,
		}
	}
	return n, nil
}

// Close closes the epoll instance.
func (r *linuxReactor) Close() error {
	return unix.Close(r.epfd)
}
