// File: server/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection protocol state machine driven by readiness events.

package server

import (
	"errors"
	"io"
	"slices"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/wsreactor/api"
	"github.com/momentics/wsreactor/control"
	"github.com/momentics/wsreactor/pool"
	"github.com/momentics/wsreactor/protocol"
)

// minReadSpace is the smallest free tail worth handing to Read.
const minReadSpace = 512

// stateCounts tracks how many live connections are in each state.
// It is read from outside the event loop by the debug probe.
type stateCounts [3]atomic.Int64

func (s *stateCounts) add(st api.ConnState, delta int64) {
	if int(st) < len(s) {
		s[st].Add(delta)
	}
}

// connEnv is the configuration and collaborators shared by every Conn.
type connEnv struct {
	log          *zap.Logger
	metrics      *control.Metrics
	digest       protocol.KeyDigest
	bufs         *pool.BytePool
	states       *stateCounts
	now          func() time.Time
	readSize     int
	maxPayload   int64
	maxQueued    int
	rejectFailed bool
}

// outMsg is one queued server frame.
type outMsg struct {
	op      protocol.Opcode
	payload []byte
}

// Conn is one client connection. It is owned by the event loop goroutine.
type Conn struct {
	env    *connEnv
	log    *zap.Logger
	token  api.Token
	sock   api.Socket
	state  api.ConnState
	parser protocol.HeaderParser

	headers map[string]string
	inbuf   []byte

	out       *queue.Queue
	pending   []byte
	pendingOp protocol.Opcode
	written   int

	closing  bool
	closeErr error
	closed   bool
	lastSeen time.Time
}

func newConn(env *connEnv, sock api.Socket, parser protocol.HeaderParser) *Conn {
	return &Conn{
		env:      env,
		log:      env.log,
		sock:     sock,
		state:    api.StateAwaitingHandshake,
		parser:   parser,
		out:      queue.New(),
		lastSeen: env.now(),
	}
}

// bind attaches the registry token once the connection is inserted.
func (c *Conn) bind(tok api.Token) {
	c.token = tok
	c.log = c.env.log.With(zap.Stringer("token", tok), zap.String("remote", c.sock.RemoteAddr()))
}

func (c *Conn) Token() api.Token           { return c.token }
func (c *Conn) State() api.ConnState       { return c.state }
func (c *Conn) RemoteAddr() string         { return c.sock.RemoteAddr() }
func (c *Conn) Headers() map[string]string { return c.headers }

// Queued returns the number of messages waiting behind the current write.
func (c *Conn) Queued() int { return c.out.Length() }

// IdleFor returns the time elapsed since the last successful read or write.
func (c *Conn) IdleFor(now time.Time) time.Duration { return now.Sub(c.lastSeen) }

func (c *Conn) touch() { c.lastSeen = c.env.now() }

// advance moves to want, which must directly follow the current state.
func (c *Conn) advance(want api.ConnState) error {
	next, ok := c.state.Next()
	if !ok || next != want {
		return api.NewError(api.ErrCodeInternal, "illegal state transition").
			WithContext("from", c.state.String()).
			WithContext("to", want.String())
	}
	c.env.states.add(c.state, -1)
	c.env.states.add(want, 1)
	c.log.Debug("state change", zap.Stringer("from", c.state), zap.Stringer("to", want))
	c.state = want
	return nil
}

// Interest returns the readiness the connection needs next.
func (c *Conn) Interest() api.Interest {
	switch c.state {
	case api.StateAwaitingHandshake:
		return api.Readable
	case api.StateHandshakeResponse:
		return api.Writable
	}
	var in api.Interest
	if !c.closing && !c.queueFull() {
		in |= api.Readable
	}
	if c.pending != nil || c.out.Length() > 0 {
		in |= api.Writable
	}
	return in
}

func (c *Conn) queueFull() bool {
	return c.env.maxQueued > 0 && c.out.Length() >= c.env.maxQueued
}

// OnReadable drains the socket. A non-nil error asks for removal.
func (c *Conn) OnReadable() error {
	if c.closing || c.state == api.StateHandshakeResponse {
		return nil
	}
	for {
		if cap(c.inbuf)-len(c.inbuf) < minReadSpace {
			c.inbuf = slices.Grow(c.inbuf, c.env.readSize)
		}
		n, err := c.sock.Read(c.inbuf[len(c.inbuf):cap(c.inbuf)])
		if n > 0 {
			c.inbuf = c.inbuf[:len(c.inbuf)+n]
			c.env.metrics.Read(n)
			c.touch()
		}
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return nil
			}
			if errors.Is(err, io.EOF) {
				if c.state == api.StateConnected {
					// Answer whatever arrived before the FIN. A half-closed
					// peer can still read, so try one non-blocking flush.
					if perr := c.processFrames(); perr != nil {
						return perr
					}
					if ferr := c.flushQueue(); api.IsCode(ferr, api.ErrCodeIO) {
						c.log.Debug("flush before close failed", zap.Error(ferr))
					}
				}
				return api.NewError(api.ErrCodeClosed, "peer closed connection")
			}
			return api.Wrap(api.ErrCodeIO, "read failed", err)
		}
		if n == 0 {
			continue
		}

		switch c.state {
		case api.StateAwaitingHandshake:
			if err := c.feedHandshake(); err != nil {
				return err
			}
			if c.state != api.StateAwaitingHandshake {
				// The response must go out before more input is taken.
				return nil
			}
		case api.StateConnected:
			if err := c.processFrames(); err != nil {
				return err
			}
			if c.closing || c.queueFull() {
				return nil
			}
		}
	}
}

// feedHandshake hands buffered input to the header parser.
func (c *Conn) feedHandshake() error {
	err := c.parser.Feed(c.inbuf)
	c.inbuf = c.inbuf[:0]
	if err != nil {
		return c.failHandshake(err)
	}
	if !c.parser.UpgradeComplete() {
		return nil
	}
	headers := c.parser.Headers()
	if err := protocol.ValidateUpgradeRequest(headers); err != nil {
		return c.failHandshake(err)
	}
	c.headers = headers
	c.inbuf = append(c.inbuf, c.parser.Remainder()...)
	c.parser = nil
	return c.advance(api.StateHandshakeResponse)
}

func (c *Conn) failHandshake(cause error) error {
	c.env.metrics.Handshake("rejected")
	if c.env.rejectFailed {
		status := protocol.RejectionStatus(cause)
		// Best effort: the socket is dropped right after.
		_, _ = c.sock.Write(protocol.AppendHandshakeRejection(nil, status))
	}
	return api.Wrap(api.ErrCodeHandshake, "handshake failed", cause)
}

// OnWritable flushes pending output. A non-nil error asks for removal.
func (c *Conn) OnWritable() error {
	switch c.state {
	case api.StateAwaitingHandshake:
		return nil
	case api.StateHandshakeResponse:
		if c.pending == nil {
			accept := protocol.ComputeAcceptKey(c.env.digest, c.headers[protocol.HeaderSecWebSocketKey])
			c.pending = protocol.AppendHandshakeResponse(c.env.bufs.GetBuffer(256), accept)
			c.written = 0
		}
		done, err := c.flushPending()
		if err != nil || !done {
			return err
		}
		if err := c.advance(api.StateConnected); err != nil {
			return err
		}
		c.env.metrics.Handshake("ok")
		if err := c.processFrames(); err != nil {
			return err
		}
	}

	for {
		if err := c.flushQueue(); err != nil {
			return err
		}
		if c.pending != nil || c.closing || len(c.inbuf) == 0 {
			return nil
		}
		// Frames held back by a full queue can run now.
		before := c.out.Length()
		if err := c.processFrames(); err != nil {
			return err
		}
		if c.out.Length() == before {
			return nil
		}
	}
}

// OnError handles an error or hang-up reported without readable data.
func (c *Conn) OnError() error {
	return api.Wrap(api.ErrCodeIO, "socket error or hang-up", api.ErrTransportClosed)
}

// flushPending writes the current encoded buffer. done is false when the
// socket stopped accepting data.
func (c *Conn) flushPending() (done bool, err error) {
	for c.written < len(c.pending) {
		n, err := c.sock.Write(c.pending[c.written:])
		if n > 0 {
			c.written += n
			c.env.metrics.Wrote(n)
			c.touch()
		}
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return false, nil
			}
			return false, api.Wrap(api.ErrCodeIO, "write failed", err)
		}
	}
	c.env.bufs.PutBuffer(c.pending)
	c.pending = nil
	c.written = 0
	return true, nil
}

// flushQueue encodes and writes queued messages in order.
func (c *Conn) flushQueue() error {
	for {
		if c.pending == nil {
			if c.out.Length() == 0 {
				return nil
			}
			m := c.out.Remove().(outMsg)
			buf := c.env.bufs.GetBuffer(protocol.FrameSize(len(m.payload), false))
			c.pending = protocol.AppendServerFrame(buf, m.op, m.payload)
			c.pendingOp = m.op
			c.written = 0
		}
		op := c.pendingOp
		done, err := c.flushPending()
		if err != nil || !done {
			return err
		}
		if op == protocol.OpcodeClose {
			return c.closeErr
		}
	}
}

func (c *Conn) enqueue(op protocol.Opcode, payload []byte) {
	c.out.Add(outMsg{op: op, payload: payload})
	c.env.metrics.FrameOut(op.String())
}

// processFrames decodes every complete frame in the inbound buffer.
func (c *Conn) processFrames() error {
	off := 0
	for !c.closing && !c.queueFull() {
		f, n, err := protocol.DecodeFrame(c.inbuf[off:], c.env.maxPayload)
		if errors.Is(err, protocol.ErrIncomplete) {
			break
		}
		if err != nil {
			code := protocol.CloseProtocolError
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				code = protocol.CloseMessageTooBig
			}
			c.protocolError(code, "malformed frame", err)
			break
		}
		off += n
		c.env.metrics.FrameIn(f.Opcode.String())
		c.handleFrame(f)
	}

	if off > 0 {
		c.inbuf = append(c.inbuf[:0], c.inbuf[off:]...)
	}
	if len(c.inbuf) == 0 && cap(c.inbuf) > 4*c.env.readSize {
		c.inbuf = nil
	}
	return nil
}

func (c *Conn) handleFrame(f protocol.Frame) {
	switch {
	case !f.Masked:
		c.protocolError(protocol.CloseProtocolError, "unmasked client frame", nil)
		return
	case f.Opcode.IsReserved():
		c.protocolError(protocol.CloseProtocolError, "reserved opcode", nil)
		return
	case f.Opcode.IsControl() && (!f.Fin || len(f.Payload) > protocol.MaxControlPayloadLen):
		c.protocolError(protocol.CloseProtocolError, "invalid control frame", nil)
		return
	case !f.Fin || f.Opcode == protocol.OpcodeContinuation:
		c.protocolError(protocol.CloseProtocolError, "fragmented messages are not supported", nil)
		return
	}

	switch f.Opcode {
	case protocol.OpcodeText:
		if !utf8.Valid(f.Payload) {
			c.protocolError(protocol.CloseInvalidPayloadData, "invalid utf-8 in text message", nil)
			return
		}
		c.enqueue(protocol.OpcodeText, f.Payload)
	case protocol.OpcodeBinary:
		c.enqueue(protocol.OpcodeBinary, f.Payload)
	case protocol.OpcodePing:
		c.enqueue(protocol.OpcodePong, f.Payload)
	case protocol.OpcodePong:
	case protocol.OpcodeClose:
		st, err := protocol.ParseClosePayload(f.Payload)
		if err != nil {
			c.protocolError(protocol.CloseProtocolError, "invalid close frame", err)
			return
		}
		code := st.Code
		if code == protocol.CloseNoStatusRcvd {
			code = protocol.CloseNormalClosure
		}
		c.closing = true
		c.closeErr = api.NewError(api.ErrCodeClosed, "close handshake completed").
			WithContext("close_code", st.Code)
		c.enqueue(protocol.OpcodeClose, protocol.FormatClosePayload(code, ""))
	}
}

// protocolError answers a violation with a Close frame and stops reading.
// The connection is removed once the Close frame is written.
func (c *Conn) protocolError(code int, reason string, cause error) {
	if cause == nil {
		cause = errors.New(reason)
	}
	c.closing = true
	c.closeErr = api.Wrap(api.ErrCodeProtocol, reason, cause).WithContext("close_code", code)
	c.enqueue(protocol.OpcodeClose, protocol.FormatClosePayload(code, reason))
}

// goingAway makes one non-blocking attempt to send Close(1001).
func (c *Conn) goingAway() {
	if c.state != api.StateConnected || c.closed {
		return
	}
	if c.pending != nil {
		if done, err := c.flushPending(); err != nil || !done {
			return
		}
	}
	if c.closing {
		// A Close frame is already queued; let it go out first.
		_ = c.flushQueue()
		return
	}
	frame := protocol.EncodeServerFrame(protocol.OpcodeClose,
		protocol.FormatClosePayload(protocol.CloseGoingAway, "server shutting down"))
	if n, err := c.sock.Write(frame); err == nil {
		c.env.metrics.Wrote(n)
		c.env.metrics.FrameOut(protocol.OpcodeClose.String())
	}
}

// Close releases the socket. Calling it again has no effect.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.pending != nil {
		c.env.bufs.PutBuffer(c.pending)
		c.pending = nil
	}
	for c.out.Length() > 0 {
		c.out.Remove()
	}
	return c.sock.Close()
}
