// File: protocol/close.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Close frame payload encoding, RFC 6455 section 5.5.1.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxCloseReason is the longest reason that fits in a control frame.
const MaxCloseReason = MaxControlPayloadLen - 2

var ErrInvalidClosePayload = errors.New("invalid close frame payload")

// CloseStatus is the decoded body of a Close frame.
type CloseStatus struct {
	Code   int
	Reason string
}

// ValidWireCloseCode reports whether code may appear in a Close frame:
// the RFC 6455 codes, 1012-1014 from the IANA registry and the 3000-4999
// application range. See https://tools.ietf.org/html/rfc6455#section-7.4.1
func ValidWireCloseCode(code int) bool {
	switch code {
	case 1004, CloseNoStatusRcvd, CloseAbnormalClosure, CloseTLSHandshake:
		return false
	}
	if code >= CloseNormalClosure && code <= 1014 {
		return true
	}
	return code >= 3000 && code <= 4999
}

// ParseClosePayload decodes a Close frame body. An empty body yields
// CloseNoStatusRcvd.
func ParseClosePayload(p []byte) (CloseStatus, error) {
	if len(p) == 0 {
		return CloseStatus{Code: CloseNoStatusRcvd}, nil
	}
	if len(p) < 2 {
		return CloseStatus{}, fmt.Errorf("%w: %d byte body", ErrInvalidClosePayload, len(p))
	}
	cs := CloseStatus{
		Code:   int(binary.BigEndian.Uint16(p)),
		Reason: string(p[2:]),
	}
	if !ValidWireCloseCode(cs.Code) {
		return CloseStatus{}, fmt.Errorf("%w: status code %d", ErrInvalidClosePayload, cs.Code)
	}
	if !utf8.ValidString(cs.Reason) {
		return CloseStatus{}, fmt.Errorf("%w: reason is not valid UTF-8", ErrInvalidClosePayload)
	}
	return cs, nil
}

// FormatClosePayload encodes code and reason. Reasons longer than
// MaxCloseReason are cut at the last rune boundary that fits.
func FormatClosePayload(code int, reason string) []byte {
	if len(reason) > MaxCloseReason {
		n := MaxCloseReason
		for n > 0 && !utf8.RuneStart(reason[n]) {
			n--
		}
		reason = reason[:n]
	}
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf, uint16(code))
	copy(buf[2:], reason)
	return buf
}
