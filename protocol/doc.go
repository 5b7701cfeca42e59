// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the core WebSocket protocol logic (RFC 6455) for wsreactor.
//
// Everything in this package is pure: functions take bytes and return bytes,
// frames or typed errors. Sockets, readiness and connection state live in
// package server.
//
// Includes:
//   - Frame encoding/decoding with tri-modal length and size enforcement
//   - Cyclic XOR masking (client role) and unmasked server frames
//   - Close frame payload encoding and status code validation
//   - Incremental HTTP Upgrade request parsing and Sec-WebSocket-Accept derivation
package protocol
