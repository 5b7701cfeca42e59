// File: server/server.go
// Package server implements the event loop, connection acceptor, and
// graceful shutdown for the wsreactor echo server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/wsreactor/affinity"
	"github.com/momentics/wsreactor/api"
	"github.com/momentics/wsreactor/internal/transport"
	"github.com/momentics/wsreactor/reactor"
)

var ErrAlreadyRunning = errors.New("server already running")

// minSweepInterval bounds how often idle connections are scanned and how
// long a paused listener waits before it is re-armed.
const minSweepInterval = 50 * time.Millisecond

// Server owns the reactor, the listener and the dispatcher. A single
// goroutine running Serve drives all of them.
type Server struct {
	cfg      *Config
	log      *zap.Logger
	now      func() time.Time
	reactor  api.Reactor
	listener api.Listener
	disp     *Dispatcher
	running  atomic.Bool
}

// New validates cfg and wires the reactor, listener and dispatcher.
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	r := o.reactor
	if r == nil {
		var err error
		if r, err = reactor.New(); err != nil {
			return nil, err
		}
	}
	l := o.listener
	if l == nil {
		tl, err := transport.Listen(cfg.ListenAddr, cfg.Backlog)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		l = tl
	}

	return &Server{
		cfg:      cfg,
		log:      o.logger,
		now:      o.now,
		reactor:  r,
		listener: l,
		disp:     NewDispatcher(cfg, r, l, opts...),
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string { return s.listener.Addr() }

// Dispatcher exposes the connection dispatcher.
func (s *Server) Dispatcher() *Dispatcher { return s.disp }

// Serve runs the event loop until ctx is done, then shuts every connection
// down and releases the listener and reactor. It returns nil on
// cancellation and the failure otherwise.
func (s *Server) Serve(ctx context.Context) (err error) {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		s.disp.Shutdown()
		err = multierr.Combine(err, s.listener.Close(), s.reactor.Close())
		s.log.Info("server stopped", zap.Error(err))
	}()

	// The loop owns one OS thread for its lifetime.
	release, err := affinity.PinEventLoop(s.cfg.PinCPU)
	if err != nil {
		return fmt.Errorf("pin event loop: %w", err)
	}
	defer release()

	if err := s.disp.Start(); err != nil {
		return err
	}

	sweepEvery := s.cfg.IdleTimeout / 4
	if sweepEvery < minSweepInterval {
		sweepEvery = minSweepInterval
	}
	lastSweep := s.now()

	events := make([]api.Event, s.cfg.MaxEvents)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := s.reactor.Wait(events, s.cfg.PollTimeout)
		if err != nil {
			return fmt.Errorf("reactor wait: %w", err)
		}
		for i := 0; i < n; i++ {
			s.disp.HandleEvent(events[i])
		}

		if now := s.now(); now.Sub(lastSweep) >= sweepEvery {
			s.disp.ResumeAccept()
			if swept := s.disp.Sweep(now); swept > 0 {
				s.log.Debug("idle sweep", zap.Int("closed", swept))
			}
			lastSweep = now
		}
	}
}
