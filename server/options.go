// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/wsreactor/api"
	"github.com/momentics/wsreactor/control"
	"github.com/momentics/wsreactor/protocol"
)

// options collects collaborators injected into the Server and Dispatcher.
type options struct {
	logger    *zap.Logger
	metrics   *control.Metrics
	probes    *control.DebugProbes
	reactor   api.Reactor
	listener  api.Listener
	digest    protocol.KeyDigest
	newParser func(maxSize int) protocol.HeaderParser
	now       func() time.Time
}

func defaultOptions() options {
	return options{
		logger: zap.NewNop(),
		digest: protocol.SHA1Digest{},
		newParser: func(maxSize int) protocol.HeaderParser {
			return protocol.NewRequestParser(maxSize)
		},
		now: time.Now,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Option customizes server initialization.
type Option func(*options)

// WithLogger sets the structured logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDebugProbes registers the dispatcher's state probe with dp.
func WithDebugProbes(dp *control.DebugProbes) Option {
	return func(o *options) {
		o.probes = dp
	}
}

// WithReactor replaces the platform reactor. The server takes ownership.
func WithReactor(r api.Reactor) Option {
	return func(o *options) {
		o.reactor = r
	}
}

// WithListener replaces the TCP listener created from Config.ListenAddr.
// The server takes ownership.
func WithListener(l api.Listener) Option {
	return func(o *options) {
		o.listener = l
	}
}

// WithKeyDigest replaces the SHA-1 digest used for Sec-WebSocket-Accept.
func WithKeyDigest(d protocol.KeyDigest) Option {
	return func(o *options) {
		if d != nil {
			o.digest = d
		}
	}
}

// WithParserFactory replaces the request header parser. The factory is
// called once per accepted connection with Config.MaxHandshakeSize.
func WithParserFactory(fn func(maxSize int) protocol.HeaderParser) Option {
	return func(o *options) {
		if fn != nil {
			o.newParser = fn
		}
	}
}

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
