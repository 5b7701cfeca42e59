// File: protocol/handshake.go
// Package protocol implements the server side of the WebSocket handshake.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incremental HTTP/1.1 Upgrade request parsing, Sec-WebSocket-Key/Accept
// negotiation and literal response serialization. Nothing here touches a
// socket: bytes go in through Feed, response bytes come out through Append*.

package protocol

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gobwas/httphead"
)

// Lower-cased header names as stored by RequestParser.
const (
	HeaderConnection      = "connection"
	HeaderUpgrade         = "upgrade"
	HeaderHost            = "host"
	HeaderSecWebSocketKey = "sec-websocket-key"
	HeaderSecWebSocketVer = "sec-websocket-version"
)

const (
	ValueUpgrade             = "upgrade"
	ValueWebSocket           = "websocket"
	WebSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	RequiredWebSocketVersion = "13"
	MaxHandshakeHeadersSize  = 8192
)

// Handshake validation errors.
var (
	ErrHandshakeTooLarge     = errors.New("handshake headers too large")
	ErrMalformedRequest      = errors.New("malformed upgrade request")
	ErrMethodNotAllowed      = errors.New("upgrade request method must be GET")
	ErrInvalidUpgradeHeaders = errors.New("invalid WebSocket upgrade headers")
	ErrMissingWebSocketKey   = errors.New("missing Sec-WebSocket-Key header")
	ErrInvalidWebSocketKey   = errors.New("invalid Sec-WebSocket-Key: must be base64 of 16 bytes")
	ErrBadWebSocketVersion   = errors.New("unsupported WebSocket version; only '13' is supported")
)

var headerTerminator = []byte("\r\n\r\n")

// HeaderParser consumes raw request bytes, possibly across many calls,
// and hands over the completed header mapping once the upgrade is detected.
type HeaderParser interface {
	// Feed appends newly read bytes. A non-nil error is final.
	Feed(p []byte) error
	// UpgradeComplete reports whether a full upgrade request was parsed.
	UpgradeComplete() bool
	// Headers returns lower-cased header names to values. Valid after completion.
	Headers() map[string]string
	// Remainder returns bytes fed after the end of the header block.
	Remainder() []byte
}

// RequestParser is the default HeaderParser. It buffers input until the
// blank line and parses the block with net/http.
type RequestParser struct {
	maxSize int
	buf     []byte
	scanned int
	done    bool
	headers map[string]string
	rest    []byte
}

var _ HeaderParser = (*RequestParser)(nil)

// NewRequestParser returns a parser rejecting header blocks above maxSize
// bytes. maxSize <= 0 selects MaxHandshakeHeadersSize.
func NewRequestParser(maxSize int) *RequestParser {
	if maxSize <= 0 {
		maxSize = MaxHandshakeHeadersSize
	}
	return &RequestParser{maxSize: maxSize}
}

// Feed implements HeaderParser.
func (p *RequestParser) Feed(b []byte) error {
	if p.done {
		p.rest = append(p.rest, b...)
		return nil
	}
	p.buf = append(p.buf, b...)

	// Resume the terminator search where the previous call stopped,
	// backing up in case it straddles two reads.
	start := p.scanned - (len(headerTerminator) - 1)
	if start < 0 {
		start = 0
	}
	idx := bytes.Index(p.buf[start:], headerTerminator)
	if idx < 0 {
		p.scanned = len(p.buf)
		if len(p.buf) > p.maxSize {
			return fmt.Errorf("%w: more than %d bytes without terminator", ErrHandshakeTooLarge, p.maxSize)
		}
		return nil
	}
	end := start + idx + len(headerTerminator)
	if end > p.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrHandshakeTooLarge, end, p.maxSize)
	}

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(p.buf[:end])))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if req.Method != http.MethodGet {
		return fmt.Errorf("%w: got %s", ErrMethodNotAllowed, req.Method)
	}

	headers := make(map[string]string, len(req.Header)+1)
	for k, vs := range req.Header {
		headers[strings.ToLower(k)] = strings.Join(vs, ", ")
	}
	if req.Host != "" {
		headers[HeaderHost] = req.Host
	}
	if !headerHasToken(headers[HeaderConnection], ValueUpgrade) ||
		!headerHasToken(headers[HeaderUpgrade], ValueWebSocket) {
		return ErrInvalidUpgradeHeaders
	}

	p.headers = headers
	p.rest = append([]byte(nil), p.buf[end:]...)
	p.buf = nil
	p.done = true
	return nil
}

// UpgradeComplete implements HeaderParser.
func (p *RequestParser) UpgradeComplete() bool { return p.done }

// Headers implements HeaderParser.
func (p *RequestParser) Headers() map[string]string { return p.headers }

// Remainder implements HeaderParser.
func (p *RequestParser) Remainder() []byte { return p.rest }

// ValidateUpgradeRequest checks the headers the server needs to answer.
func ValidateUpgradeRequest(headers map[string]string) error {
	key := headers[HeaderSecWebSocketKey]
	if key == "" {
		return ErrMissingWebSocketKey
	}
	if raw, err := base64.StdEncoding.DecodeString(key); err != nil || len(raw) != 16 {
		return ErrInvalidWebSocketKey
	}
	if headers[HeaderSecWebSocketVer] != RequiredWebSocketVersion {
		return ErrBadWebSocketVersion
	}
	return nil
}

// KeyDigest computes the base64 encoded digest used for the accept key.
type KeyDigest interface {
	Compute(s string) string
}

// SHA1Digest is the RFC 6455 digest: base64(sha1(s)).
type SHA1Digest struct{}

// Compute implements KeyDigest.
func (SHA1Digest) Compute(s string) string {
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ComputeAcceptKey derives Sec-WebSocket-Accept from the client's key.
// A nil digest selects SHA1Digest.
func ComputeAcceptKey(d KeyDigest, clientKey string) string {
	if d == nil {
		d = SHA1Digest{}
	}
	return d.Compute(clientKey + WebSocketGUID)
}

// AppendHandshakeResponse appends the 101 Switching Protocols response.
func AppendHandshakeResponse(dst []byte, accept string) []byte {
	dst = append(dst, "HTTP/1.1 101 Switching Protocols\r\n"...)
	dst = append(dst, "Upgrade: websocket\r\n"...)
	dst = append(dst, "Connection: Upgrade\r\n"...)
	dst = append(dst, "Sec-WebSocket-Accept: "...)
	dst = append(dst, accept...)
	dst = append(dst, "\r\n\r\n"...)
	return dst
}

// RejectionStatus maps a handshake error to the HTTP status sent back.
func RejectionStatus(err error) int {
	switch {
	case errors.Is(err, ErrBadWebSocketVersion):
		return http.StatusUpgradeRequired
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrHandshakeTooLarge):
		return http.StatusRequestHeaderFieldsTooLarge
	default:
		return http.StatusBadRequest
	}
}

// AppendHandshakeRejection appends a minimal error response for a failed upgrade.
func AppendHandshakeRejection(dst []byte, status int) []byte {
	dst = append(dst, "HTTP/1.1 "...)
	dst = strconv.AppendInt(dst, int64(status), 10)
	dst = append(dst, ' ')
	dst = append(dst, http.StatusText(status)...)
	dst = append(dst, "\r\n"...)
	if status == http.StatusUpgradeRequired {
		dst = append(dst, "Sec-WebSocket-Version: "+RequiredWebSocketVersion+"\r\n"...)
	}
	dst = append(dst, "Connection: close\r\nContent-Length: 0\r\n\r\n"...)
	return dst
}

// headerHasToken reports whether the comma separated list contains token (case-insensitive).
func headerHasToken(value, token string) (has bool) {
	httphead.ScanTokens([]byte(value), func(v []byte) bool {
		has = strings.EqualFold(string(v), token)
		return !has
	})
	return has
}
