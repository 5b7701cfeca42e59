// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/momentics/wsreactor/api"
	"github.com/momentics/wsreactor/protocol"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr        string        // TCP bind address, e.g. "127.0.0.1:9001"
	Backlog           int           // listen(2) backlog
	ReadBufferSize    int           // bytes requested per read call
	MaxFramePayload   int64         // largest accepted frame payload
	MaxHandshakeSize  int           // largest accepted request header block
	MaxQueuedMessages int           // outbound queue depth that pauses reading
	MaxConnections    int           // 0 = unlimited
	IdleTimeout       time.Duration // 0 = never time out
	PollTimeout       time.Duration // upper bound on one reactor wait
	MaxEvents         int           // events fetched per reactor wait
	AcceptRate        float64       // accepted sockets per second, 0 = unlimited
	AcceptBurst       int           // token bucket size for AcceptRate
	PinCPU            int           // CPU for the event loop thread, -1 = unpinned

	// RejectFailedHandshakes writes a 4xx status line before dropping a
	// connection whose upgrade request was refused.
	RejectFailedHandshakes bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:             "127.0.0.1:9001",
		Backlog:                1024,
		ReadBufferSize:         16 * 1024,
		MaxFramePayload:        protocol.DefaultMaxFramePayload,
		MaxHandshakeSize:       protocol.MaxHandshakeHeadersSize,
		MaxQueuedMessages:      64,
		MaxConnections:         0,
		IdleTimeout:            0,
		PollTimeout:            100 * time.Millisecond,
		MaxEvents:              128,
		AcceptRate:             0,
		AcceptBurst:            64,
		PinCPU:                 -1,
		RejectFailedHandshakes: false,
	}
}

func invalid(format string, args ...any) error {
	return api.Wrap(api.ErrCodeInvalidArgument, fmt.Sprintf(format, args...), api.ErrInvalidArgument)
}

// Validate reports every field that is out of range.
func (c *Config) Validate() error {
	var err error
	if c.ListenAddr == "" {
		err = multierr.Append(err, invalid("listen address is empty"))
	}
	if c.Backlog < 0 {
		err = multierr.Append(err, invalid("backlog %d is negative", c.Backlog))
	}
	if c.ReadBufferSize <= 0 {
		err = multierr.Append(err, invalid("read buffer size %d must be positive", c.ReadBufferSize))
	}
	if c.MaxFramePayload <= 0 {
		err = multierr.Append(err, invalid("max frame payload %d must be positive", c.MaxFramePayload))
	}
	if c.MaxHandshakeSize <= 0 {
		err = multierr.Append(err, invalid("max handshake size %d must be positive", c.MaxHandshakeSize))
	}
	if c.MaxQueuedMessages <= 0 {
		err = multierr.Append(err, invalid("max queued messages %d must be positive", c.MaxQueuedMessages))
	}
	if c.MaxConnections < 0 {
		err = multierr.Append(err, invalid("max connections %d is negative", c.MaxConnections))
	}
	if c.IdleTimeout < 0 {
		err = multierr.Append(err, invalid("idle timeout %s is negative", c.IdleTimeout))
	}
	if c.PollTimeout <= 0 {
		err = multierr.Append(err, invalid("poll timeout %s must be positive", c.PollTimeout))
	}
	if c.MaxEvents <= 0 {
		err = multierr.Append(err, invalid("max events %d must be positive", c.MaxEvents))
	}
	if c.AcceptRate < 0 {
		err = multierr.Append(err, invalid("accept rate %g is negative", c.AcceptRate))
	}
	if c.AcceptRate > 0 && c.AcceptBurst <= 0 {
		err = multierr.Append(err, invalid("accept burst %d must be positive when accept rate is set", c.AcceptBurst))
	}
	if c.PinCPU < -1 {
		err = multierr.Append(err, invalid("pin cpu %d is out of range", c.PinCPU))
	}
	return err
}
