// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/momentics/wsreactor/api"
)

// Socket is an in-memory api.Socket. Inbound data is supplied with Feed;
// everything written is collected and available via Output.
type Socket struct {
	mu       sync.Mutex
	fd       int
	remote   string
	in       bytes.Buffer
	out      bytes.Buffer
	eof      bool
	closed   bool
	readErr  error
	writeErr error

	// writeBudget limits how many bytes Write accepts before reporting
	// api.ErrWouldBlock. Negative means unlimited.
	writeBudget int
	readCalls   int
}

var _ api.Socket = (*Socket)(nil)

// NewSocket returns an open fake socket with the given descriptor number.
func NewSocket(fd int) *Socket {
	return &Socket{fd: fd, remote: fmt.Sprintf("fake:%d", fd), writeBudget: -1}
}

// Feed appends inbound bytes.
func (s *Socket) Feed(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in.Write(p)
}

// FeedEOF makes Read report io.EOF once buffered bytes are consumed.
func (s *Socket) FeedEOF() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eof = true
}

// FailRead makes the next Read calls fail with err.
func (s *Socket) FailRead(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// FailWrite makes the next Write calls fail with err.
func (s *Socket) FailWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// SetWriteBudget allows n more bytes to be written before Write blocks.
// Negative removes the limit.
func (s *Socket) SetWriteBudget(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeBudget = n
}

func (s *Socket) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readCalls++
	if s.closed {
		return 0, api.ErrTransportClosed
	}
	if s.readErr != nil {
		return 0, s.readErr
	}
	if s.in.Len() == 0 {
		if s.eof {
			return 0, io.EOF
		}
		return 0, api.ErrWouldBlock
	}
	return s.in.Read(p)
}

func (s *Socket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, api.ErrTransportClosed
	}
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	n := len(p)
	if s.writeBudget >= 0 {
		if s.writeBudget == 0 {
			return 0, api.ErrWouldBlock
		}
		if n > s.writeBudget {
			n = s.writeBudget
		}
		s.writeBudget -= n
	}
	s.out.Write(p[:n])
	return n, nil
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return api.ErrTransportClosed
	}
	s.closed = true
	return nil
}

func (s *Socket) FD() int            { return s.fd }
func (s *Socket) RemoteAddr() string { return s.remote }

// Output returns a copy of everything written so far.
func (s *Socket) Output() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.out.Bytes()...)
}

// TakeOutput returns and clears everything written so far.
func (s *Socket) TakeOutput() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := append([]byte(nil), s.out.Bytes()...)
	s.out.Reset()
	return b
}

// Unread returns the number of inbound bytes not yet read.
func (s *Socket) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in.Len()
}

// ReadCalls returns how many times Read was called.
func (s *Socket) ReadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCalls
}

// Closed reports whether Close was called.
func (s *Socket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Listener is an in-memory api.Listener handing out queued sockets.
type Listener struct {
	mu      sync.Mutex
	fd      int
	pending []*Socket
	closed  bool
	err     error
}

var _ api.Listener = (*Listener)(nil)

// NewListener returns a listener with the given descriptor number.
func NewListener(fd int) *Listener {
	return &Listener{fd: fd}
}

// Enqueue makes sockets available to Accept.
func (l *Listener) Enqueue(socks ...*Socket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, socks...)
}

// FailAccept makes Accept return err until cleared with nil.
func (l *Listener) FailAccept(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Pending returns the number of queued sockets.
func (l *Listener) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Listener) Accept() (api.Socket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, api.ErrTransportClosed
	}
	if l.err != nil {
		return nil, l.err
	}
	if len(l.pending) == 0 {
		return nil, api.ErrWouldBlock
	}
	s := l.pending[0]
	l.pending = l.pending[1:]
	return s, nil
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *Listener) FD() int      { return l.fd }
func (l *Listener) Addr() string { return fmt.Sprintf("fake-listener:%d", l.fd) }

// Closed reports whether Close was called.
func (l *Listener) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
