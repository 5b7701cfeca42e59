//go:build !linux
// +build !linux

// File: internal/transport/transport_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "github.com/momentics/wsreactor/api"

// DefaultBacklog is used when Listen is given a non-positive backlog.
const DefaultBacklog = 1024

// Listener is unavailable on this platform.
type Listener struct{ api.Listener }

// Listen reports that non-blocking raw sockets are unsupported here.
func Listen(addr string, backlog int) (*Listener, error) {
	return nil, api.Wrap(api.ErrCodeNotSupported, "transport: this platform is not supported", api.ErrNotSupported).
		WithContext("addr", addr)
}
