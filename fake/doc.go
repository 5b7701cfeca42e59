// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the reactor and socket
// interfaces so the connection state machine and dispatcher can be driven
// without a kernel.
package fake
