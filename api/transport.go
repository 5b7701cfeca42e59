// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines non-blocking socket abstractions used by the event loop.

package api

// Socket abstracts a non-blocking stream connection. Read and Write never
// suspend the caller: they return ErrWouldBlock when no progress is possible.
// Read returns io.EOF once the peer has closed its side.
type Socket interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error

	// FD returns the OS-level descriptor registered with the reactor.
	FD() int

	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string
}

// Listener abstracts a non-blocking listening socket.
type Listener interface {
	// Accept returns ErrWouldBlock when no connection is pending.
	Accept() (Socket, error)
	Close() error
	FD() int
	Addr() string
}
