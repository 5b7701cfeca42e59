// File: server/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Routes reactor events to connections and owns the connection registry.

package server

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/momentics/wsreactor/api"
	"github.com/momentics/wsreactor/control"
	"github.com/momentics/wsreactor/internal/session"
	"github.com/momentics/wsreactor/pool"
	"github.com/momentics/wsreactor/protocol"
)

// Dispatcher accepts connections and routes readiness to them. All methods
// except the debug probe must be called from the event loop goroutine.
type Dispatcher struct {
	reactor  api.Reactor
	listener api.Listener
	conns    *session.Table[*Conn]
	env      *connEnv
	states   stateCounts

	log       *zap.Logger
	metrics   *control.Metrics
	limiter   *rate.Limiter
	newParser func(maxSize int) protocol.HeaderParser

	maxConns     int
	maxHandshake int
	idleTimeout  time.Duration

	// acceptPaused is set after a hard accept error; the listener stays
	// disarmed until ResumeAccept.
	acceptPaused bool
}

// NewDispatcher builds a dispatcher over an existing reactor and listener.
// WithReactor and WithListener are ignored here.
func NewDispatcher(cfg *Config, r api.Reactor, l api.Listener, opts ...Option) *Dispatcher {
	o := buildOptions(opts)
	d := &Dispatcher{
		reactor:      r,
		listener:     l,
		conns:        session.NewTable[*Conn](cfg.MaxConnections),
		log:          o.logger,
		metrics:      o.metrics,
		newParser:    o.newParser,
		maxConns:     cfg.MaxConnections,
		maxHandshake: cfg.MaxHandshakeSize,
		idleTimeout:  cfg.IdleTimeout,
	}
	if cfg.AcceptRate > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst)
	}
	d.env = &connEnv{
		log:          o.logger,
		metrics:      o.metrics,
		digest:       o.digest,
		bufs:         pool.NewBytePool(4096, int(cfg.MaxFramePayload)+protocol.MaxFrameHeaderLen),
		states:       &d.states,
		now:          o.now,
		readSize:     cfg.ReadBufferSize,
		maxPayload:   cfg.MaxFramePayload,
		maxQueued:    cfg.MaxQueuedMessages,
		rejectFailed: cfg.RejectFailedHandshakes,
	}
	if o.probes != nil {
		o.probes.RegisterProbe("connections", d.probe)
	}
	return d
}

// Start registers the listener for readable events.
func (d *Dispatcher) Start() error {
	if err := d.reactor.Register(d.listener.FD(), api.ListenerToken, api.Readable); err != nil {
		return api.Wrap(api.ErrCodeIO, "register listener", err)
	}
	d.log.Info("listening", zap.String("addr", d.listener.Addr()))
	return nil
}

// Len returns the number of live connections.
func (d *Dispatcher) Len() int { return d.conns.Len() }

// Conn returns the live connection for tok.
func (d *Dispatcher) Conn(tok api.Token) (*Conn, bool) { return d.conns.Get(tok) }

// HandleEvent processes one readiness event and re-arms its source.
func (d *Dispatcher) HandleEvent(ev api.Event) {
	if ev.Token == api.ListenerToken {
		d.acceptAll()
		if d.acceptPaused {
			return
		}
		if err := d.reactor.Reregister(d.listener.FD(), api.ListenerToken, api.Readable); err != nil {
			d.log.Error("rearm listener failed", zap.Error(err))
		}
		return
	}

	c, ok := d.conns.Get(ev.Token)
	if !ok {
		d.metrics.StaleEvent()
		d.log.Debug("event for unknown token", zap.Stringer("token", ev.Token))
		return
	}

	var err error
	if ev.Readiness.Failed() && !ev.Readiness.Readable() {
		err = c.OnError()
	} else {
		if ev.Readiness.Readable() {
			err = c.OnReadable()
		}
		if err == nil && ev.Readiness.Writable() {
			err = c.OnWritable()
		}
	}
	if err != nil {
		d.remove(ev.Token, c, err)
		return
	}
	if err := d.reactor.Reregister(c.sock.FD(), ev.Token, c.Interest()); err != nil {
		d.remove(ev.Token, c, api.Wrap(api.ErrCodeIO, "rearm connection", err))
	}
}

// acceptAll drains the listener's backlog.
func (d *Dispatcher) acceptAll() {
	for {
		sock, err := d.listener.Accept()
		if err != nil {
			if !errors.Is(err, api.ErrWouldBlock) {
				// EMFILE and friends stay readable; re-arming now would spin.
				d.acceptPaused = true
				d.log.Warn("accept failed, pausing listener", zap.Error(err))
			}
			return
		}
		if d.maxConns > 0 && d.conns.Len() >= d.maxConns {
			d.reject(sock, "limit")
			continue
		}
		if d.limiter != nil && !d.limiter.Allow() {
			d.reject(sock, "rate")
			continue
		}

		c := newConn(d.env, sock, d.newParser(d.maxHandshake))
		tok := d.conns.Insert(c)
		c.bind(tok)
		if err := d.reactor.Register(sock.FD(), tok, c.Interest()); err != nil {
			d.conns.Remove(tok)
			d.reject(sock, "register")
			d.log.Warn("register connection failed", zap.Error(err))
			continue
		}
		d.states.add(c.state, 1)
		d.metrics.ConnAccepted()
		c.log.Debug("accepted")
	}
}

func (d *Dispatcher) reject(sock api.Socket, reason string) {
	d.metrics.ConnRejected(reason)
	d.log.Debug("connection rejected", zap.String("remote", sock.RemoteAddr()), zap.String("reason", reason))
	_ = sock.Close()
}

// remove deregisters and closes c, logging err by class.
func (d *Dispatcher) remove(tok api.Token, c *Conn, err error) {
	if _, ok := d.conns.Remove(tok); !ok {
		return
	}
	if derr := d.reactor.Deregister(c.sock.FD()); derr != nil {
		c.log.Debug("deregister failed", zap.Error(derr))
	}
	_ = c.Close()
	d.states.add(c.state, -1)

	code := api.CodeOf(err)
	d.metrics.ConnClosed(code.String())
	fields := []zap.Field{zap.Stringer("state", c.state), zap.Error(err)}
	switch code {
	case api.ErrCodeIO:
		c.log.Warn("connection failed", fields...)
	case api.ErrCodeProtocol, api.ErrCodeHandshake:
		c.log.Info("connection dropped", fields...)
	case api.ErrCodeClosed:
		c.log.Debug("connection closed", fields...)
	default:
		c.log.Error("connection removed", fields...)
	}
}

// ResumeAccept re-arms a listener paused by an accept error.
func (d *Dispatcher) ResumeAccept() {
	if !d.acceptPaused {
		return
	}
	if err := d.reactor.Reregister(d.listener.FD(), api.ListenerToken, api.Readable); err != nil {
		d.log.Error("rearm listener failed", zap.Error(err))
		return
	}
	d.acceptPaused = false
	d.log.Info("listener resumed")
}

// Sweep removes connections idle for longer than the configured timeout.
func (d *Dispatcher) Sweep(now time.Time) int {
	if d.idleTimeout <= 0 {
		return 0
	}
	n := 0
	d.conns.Range(func(tok api.Token, c *Conn) bool {
		if idle := c.IdleFor(now); idle > d.idleTimeout {
			c.goingAway()
			d.remove(tok, c, api.NewError(api.ErrCodeClosed, "idle timeout").
				WithContext("idle", idle.String()))
			n++
		}
		return true
	})
	return n
}

// Shutdown tells every connection the server is going away and closes it.
func (d *Dispatcher) Shutdown() {
	d.conns.Range(func(tok api.Token, c *Conn) bool {
		c.goingAway()
		d.remove(tok, c, api.NewError(api.ErrCodeClosed, "server shutting down"))
		return true
	})
	if err := d.reactor.Deregister(d.listener.FD()); err != nil {
		d.log.Debug("deregister listener failed", zap.Error(err))
	}
}

func (d *Dispatcher) probe() any {
	out := make(map[string]int64, len(d.states)+1)
	var total int64
	for st := range d.states {
		n := d.states[st].Load()
		out[api.ConnState(st).String()] = n
		total += n
	}
	out["total"] = total
	return out
}
