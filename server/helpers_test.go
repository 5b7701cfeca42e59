package server_test

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
	"gotest.tools/v3/assert"

	"github.com/momentics/wsreactor/api"
	"github.com/momentics/wsreactor/control"
	"github.com/momentics/wsreactor/fake"
	"github.com/momentics/wsreactor/protocol"
	"github.com/momentics/wsreactor/server"
)

const upgradeRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: server.example.com\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"\r\n"

const upgradeResponse = "HTTP/1.1 101 Switching Protocols\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n" +
	"\r\n"

const listenerFD = 3

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Unix(1700000000, 0)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t       *testing.T
	cfg     *server.Config
	reactor *fake.Reactor
	ln      *fake.Listener
	metrics *control.Metrics
	probes  *control.DebugProbes
	clock   *clock
	d       *server.Dispatcher
}

func newHarness(t *testing.T, mutate func(*server.Config), opts ...server.Option) *harness {
	t.Helper()
	cfg := server.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	assert.NilError(t, cfg.Validate())

	h := &harness{
		t:       t,
		cfg:     cfg,
		reactor: fake.NewReactor(),
		ln:      fake.NewListener(listenerFD),
		metrics: control.NewMetrics(prometheus.NewRegistry()),
		probes:  control.NewDebugProbes(),
		clock:   newClock(),
	}
	all := append([]server.Option{
		server.WithLogger(zaptest.NewLogger(t)),
		server.WithMetrics(h.metrics),
		server.WithDebugProbes(h.probes),
		server.WithClock(h.clock.Now),
	}, opts...)
	h.d = server.NewDispatcher(cfg, h.reactor, h.ln, all...)
	assert.NilError(t, h.d.Start())
	return h
}

// accept queues a socket on the listener and delivers a listener event.
func (h *harness) accept(fd int) (*fake.Socket, api.Token) {
	h.t.Helper()
	s := fake.NewSocket(fd)
	h.ln.Enqueue(s)
	h.d.HandleEvent(api.Event{Token: api.ListenerToken, Readiness: api.ReadyRead})
	reg, ok := h.reactor.Lookup(fd)
	assert.Assert(h.t, ok, "fd %d not registered", fd)
	return s, reg.Token
}

func (h *harness) readable(tok api.Token) {
	h.d.HandleEvent(api.Event{Token: tok, Readiness: api.ReadyRead})
}

func (h *harness) writable(tok api.Token) {
	h.d.HandleEvent(api.Event{Token: tok, Readiness: api.ReadyWrite})
}

// interest returns the interest the fd is currently armed with.
func (h *harness) interest(fd int) api.Interest {
	h.t.Helper()
	reg, ok := h.reactor.Lookup(fd)
	assert.Assert(h.t, ok, "fd %d not registered", fd)
	return reg.Interest
}

// upgrade accepts a socket and drives it through the opening handshake.
func (h *harness) upgrade(fd int) (*fake.Socket, api.Token) {
	h.t.Helper()
	s, tok := h.accept(fd)
	s.Feed([]byte(upgradeRequest))
	h.readable(tok)
	h.writable(tok)
	assert.Equal(h.t, string(s.TakeOutput()), upgradeResponse)
	c, ok := h.d.Conn(tok)
	assert.Assert(h.t, ok)
	assert.Equal(h.t, c.State(), api.StateConnected)
	return s, tok
}

var clientKey = [4]byte{0x37, 0xfa, 0x21, 0x3d}

func clientFrame(op protocol.Opcode, payload []byte) []byte {
	return protocol.EncodeFrame(op, payload, &clientKey)
}

func closeFrame(code int, reason string) []byte {
	return clientFrame(protocol.OpcodeClose, protocol.FormatClosePayload(code, reason))
}

// decodeAll splits server output into frames.
func decodeAll(t *testing.T, b []byte) []protocol.Frame {
	t.Helper()
	var out []protocol.Frame
	for len(b) > 0 {
		f, n, err := protocol.DecodeFrame(b, 0)
		assert.NilError(t, err)
		assert.Assert(t, !f.Masked, "server frames must not be masked")
		out = append(out, f)
		b = b[n:]
	}
	return out
}

func closeCode(t *testing.T, f protocol.Frame) int {
	t.Helper()
	assert.Equal(t, f.Opcode, protocol.OpcodeClose)
	assert.Assert(t, len(f.Payload) >= 2)
	return int(binary.BigEndian.Uint16(f.Payload))
}
