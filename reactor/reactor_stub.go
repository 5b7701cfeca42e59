//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "github.com/momentics/wsreactor/api"

// New returns an error for unsupported platforms.
func New() (api.Reactor, error) {
	return nil, api.Wrap(api.ErrCodeNotSupported, "reactor: this platform is not supported", api.ErrNotSupported)
}
