// internal/transport/transport_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux non-blocking TCP listener and stream sockets on raw descriptors.

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/momentics/wsreactor/api"
)

// DefaultBacklog is used when Listen is given a non-positive backlog.
const DefaultBacklog = 1024

// Listener is a non-blocking listening TCP socket.
type Listener struct {
	fd   int
	addr string
}

var _ api.Listener = (*Listener)(nil)

// Listen binds a non-blocking TCP listener on addr ("host:port").
// Port 0 picks an ephemeral port; Addr reports the bound one.
func Listen(addr string, backlog int) (*Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, api.Wrap(api.ErrCodeInvalidArgument, "resolve listen address", err).
			WithContext("addr", addr)
	}
	family, sa := sockaddrFor(tcpAddr)
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, api.Wrap(api.ErrCodeIO, "socket create", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, api.Wrap(api.ErrCodeIO, "setsockopt SO_REUSEADDR", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, api.Wrap(api.ErrCodeIO, "bind", err).WithContext("addr", addr)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, api.Wrap(api.ErrCodeIO, "listen", err).WithContext("addr", addr)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, api.Wrap(api.ErrCodeIO, "getsockname", err)
	}
	return &Listener{fd: fd, addr: formatSockaddr(bound)}, nil
}

func sockaddrFor(a *net.TCPAddr) (int, unix.Sockaddr) {
	if ip4 := a.IP.To4(); ip4 != nil || a.IP == nil {
		sa := &unix.SockaddrInet4{Port: a.Port}
		if ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: a.Port}
	copy(sa.Addr[:], a.IP.To16())
	if a.Zone != "" {
		if ifi, err := net.InterfaceByName(a.Zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return unix.AF_INET6, sa
}

func formatSockaddr(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	default:
		return fmt.Sprintf("%v", sa)
	}
}

// Accept returns the next pending connection, or api.ErrWouldBlock.
func (l *Listener) Accept() (api.Socket, error) {
	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EAGAIN):
				return nil, api.ErrWouldBlock
			case errors.Is(err, unix.ECONNABORTED):
				// Peer gave up while queued; try the next one.
				continue
			}
			return nil, api.Wrap(api.ErrCodeIO, "accept4", err)
		}
		_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		return &Socket{fd: nfd, remote: formatSockaddr(sa)}, nil
	}
}

// Close closes the listening descriptor.
func (l *Listener) Close() error {
	if l.fd < 0 {
		return api.ErrTransportClosed
	}
	err := unix.Close(l.fd)
	l.fd = -1
	return err
}

// FD returns the listening descriptor.
func (l *Listener) FD() int { return l.fd }

// Addr returns the bound address.
func (l *Listener) Addr() string { return l.addr }

// Socket is a connected non-blocking TCP stream.
type Socket struct {
	fd     int
	remote string
}

var _ api.Socket = (*Socket)(nil)

// Read reads into p. Zero bytes from the kernel means the peer closed.
func (s *Socket) Read(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, api.ErrTransportClosed
	}
	for {
		n, err := unix.Read(s.fd, p)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				return 0, api.ErrWouldBlock
			}
			return 0, err
		}
		if n == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes as much of p as the kernel accepts.
func (s *Socket) Write(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, api.ErrTransportClosed
	}
	for {
		n, err := unix.Write(s.fd, p)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				return 0, api.ErrWouldBlock
			}
			return 0, err
		}
		return n, nil
	}
}

// Close closes the descriptor. Closing twice reports api.ErrTransportClosed.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return api.ErrTransportClosed
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

func (s *Socket) FD() int            { return s.fd }
func (s *Socket) RemoteAddr() string { return s.remote }
