// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime observability for the server: Prometheus collectors for the
// connection lifecycle and frame traffic, and a registry of named debug
// probes that dump live state on demand.
package control
