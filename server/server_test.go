package server_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
	"gotest.tools/v3/assert"

	"github.com/momentics/wsreactor/api"
	"github.com/momentics/wsreactor/fake"
	"github.com/momentics/wsreactor/protocol"
	"github.com/momentics/wsreactor/server"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := server.DefaultConfig()
	assert.NilError(t, cfg.Validate())
	assert.Equal(t, cfg.MaxFramePayload, int64(protocol.DefaultMaxFramePayload))
	assert.Equal(t, cfg.MaxHandshakeSize, protocol.MaxHandshakeHeadersSize)
	assert.Equal(t, cfg.PollTimeout, 100*time.Millisecond)
}

func TestConfigValidateReportsEveryField(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.ListenAddr = ""
	cfg.ReadBufferSize = 0
	cfg.MaxQueuedMessages = -1
	cfg.AcceptRate = 10
	cfg.AcceptBurst = 0

	err := cfg.Validate()
	assert.Assert(t, errors.Is(err, api.ErrInvalidArgument))
	assert.Equal(t, len(multierr.Errors(err)), 4)
	for _, e := range multierr.Errors(err) {
		assert.Assert(t, api.IsCode(e, api.ErrCodeInvalidArgument))
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.MaxEvents = 0
	_, err := server.New(cfg, server.WithReactor(fake.NewReactor()), server.WithListener(fake.NewListener(3)))
	assert.Assert(t, errors.Is(err, api.ErrInvalidArgument))
}

func TestServeStopsOnCancel(t *testing.T) {
	r := fake.NewReactor()
	ln := fake.NewListener(listenerFD)
	sock := fake.NewSocket(10)
	ln.Enqueue(sock)
	r.Push(api.Event{Token: api.ListenerToken, Readiness: api.ReadyRead})

	s, err := server.New(nil,
		server.WithReactor(r),
		server.WithListener(ln),
		server.WithLogger(zaptest.NewLogger(t)),
	)
	assert.NilError(t, err)
	assert.Equal(t, s.Addr(), ln.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := r.Lookup(10); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("accepted socket never registered")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		assert.NilError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Assert(t, sock.Closed())
	assert.Assert(t, ln.Closed())
	assert.Assert(t, r.Closed())

	assert.Assert(t, errors.Is(s.Serve(context.Background()), server.ErrAlreadyRunning))
}

func TestServeReturnsStartFailure(t *testing.T) {
	r := fake.NewReactor()
	r.FailOn = map[string]error{"register": errors.New("EBADF")}
	s, err := server.New(nil, server.WithReactor(r), server.WithListener(fake.NewListener(listenerFD)))
	assert.NilError(t, err)

	err = s.Serve(context.Background())
	assert.Assert(t, api.IsCode(err, api.ErrCodeIO))
	assert.Assert(t, r.Closed())
}
