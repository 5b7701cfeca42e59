// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP sockets for the event loop. The listener and accepted
// sockets are raw descriptors in O_NONBLOCK mode that report EAGAIN as
// api.ErrWouldBlock; readiness is delivered by the reactor package.

package transport
