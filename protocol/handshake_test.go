package protocol_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"

	"github.com/momentics/wsreactor/protocol"
)

const sampleRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: server.example.com\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: keep-alive, Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"\r\n"

func TestAcceptKeyDerivation(t *testing.T) {
	got := protocol.ComputeAcceptKey(protocol.SHA1Digest{}, "dGhlIHNhbXBsZSBub25jZQ==")
	assert.Equal(t, got, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")

	assert.Equal(t, protocol.ComputeAcceptKey(nil, "dGhlIHNhbXBsZSBub25jZQ=="), got)
}

type recordingDigest struct{ in []string }

func (d *recordingDigest) Compute(s string) string {
	d.in = append(d.in, s)
	return "digest"
}

func TestAcceptKeyUsesDigestCollaborator(t *testing.T) {
	d := &recordingDigest{}
	assert.Equal(t, protocol.ComputeAcceptKey(d, "abc"), "digest")
	assert.DeepEqual(t, d.in, []string{"abc" + protocol.WebSocketGUID})
}

func TestRequestParserSingleFeed(t *testing.T) {
	p := protocol.NewRequestParser(0)
	assert.NilError(t, p.Feed([]byte(sampleRequest)))
	assert.Assert(t, p.UpgradeComplete())

	want := map[string]string{
		"host":                  "server.example.com",
		"upgrade":               "websocket",
		"connection":            "keep-alive, Upgrade",
		"sec-websocket-key":     "dGhlIHNhbXBsZSBub25jZQ==",
		"sec-websocket-version": "13",
	}
	if diff := cmp.Diff(want, p.Headers()); diff != "" {
		t.Fatalf("headers (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(p.Remainder()), 0)
	assert.NilError(t, protocol.ValidateUpgradeRequest(p.Headers()))
}

func TestRequestParserByteAtATime(t *testing.T) {
	p := protocol.NewRequestParser(0)
	trailer := []byte{0x81, 0x80, 1, 2, 3, 4}
	input := append([]byte(sampleRequest), trailer...)

	for i, b := range input {
		assert.NilError(t, p.Feed([]byte{b}))
		if i < len(sampleRequest)-1 {
			assert.Assert(t, !p.UpgradeComplete(), "complete too early at byte %d", i)
		}
	}
	assert.Assert(t, p.UpgradeComplete())
	assert.DeepEqual(t, p.Remainder(), trailer)
	assert.Equal(t, p.Headers()["sec-websocket-key"], "dGhlIHNhbXBsZSBub25jZQ==")
}

func TestRequestParserRejects(t *testing.T) {
	cases := map[string]struct {
		input string
		want  error
	}{
		"not an upgrade": {
			input: "GET / HTTP/1.1\r\nHost: x\r\n\r\n",
			want:  protocol.ErrInvalidUpgradeHeaders,
		},
		"post": {
			input: strings.Replace(sampleRequest, "GET", "POST", 1),
			want:  protocol.ErrMethodNotAllowed,
		},
		"garbage": {
			input: "\x81\x85\x00\x00\x00\x00Hello\r\n\r\n",
			want:  protocol.ErrMalformedRequest,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := protocol.NewRequestParser(0)
			assert.ErrorIs(t, p.Feed([]byte(tc.input)), tc.want)
			assert.Assert(t, !p.UpgradeComplete())
		})
	}
}

func TestRequestParserSizeLimit(t *testing.T) {
	p := protocol.NewRequestParser(64)
	err := p.Feed([]byte(strings.Repeat("A", 65)))
	assert.ErrorIs(t, err, protocol.ErrHandshakeTooLarge)

	p = protocol.NewRequestParser(64)
	err = p.Feed([]byte(sampleRequest))
	assert.ErrorIs(t, err, protocol.ErrHandshakeTooLarge)
}

func TestValidateUpgradeRequest(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			"sec-websocket-key":     "dGhlIHNhbXBsZSBub25jZQ==",
			"sec-websocket-version": "13",
		}
	}

	h := base()
	delete(h, "sec-websocket-key")
	assert.ErrorIs(t, protocol.ValidateUpgradeRequest(h), protocol.ErrMissingWebSocketKey)

	h = base()
	h["sec-websocket-key"] = "c2hvcnQ="
	assert.ErrorIs(t, protocol.ValidateUpgradeRequest(h), protocol.ErrInvalidWebSocketKey)

	h = base()
	h["sec-websocket-version"] = "8"
	assert.ErrorIs(t, protocol.ValidateUpgradeRequest(h), protocol.ErrBadWebSocketVersion)
}

func TestHandshakeResponse(t *testing.T) {
	got := string(protocol.AppendHandshakeResponse(nil, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="))
	assert.Equal(t, got, "HTTP/1.1 101 Switching Protocols\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n\r\n")
}

func TestHandshakeRejection(t *testing.T) {
	assert.Equal(t, protocol.RejectionStatus(protocol.ErrBadWebSocketVersion), http.StatusUpgradeRequired)
	assert.Equal(t, protocol.RejectionStatus(protocol.ErrMissingWebSocketKey), http.StatusBadRequest)

	got := string(protocol.AppendHandshakeRejection(nil, http.StatusUpgradeRequired))
	assert.Assert(t, strings.HasPrefix(got, "HTTP/1.1 426 Upgrade Required\r\n"))
	assert.Assert(t, strings.Contains(got, "Sec-WebSocket-Version: 13\r\n"))
	assert.Assert(t, strings.HasSuffix(got, "\r\n\r\n"))
}
