// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness reactor behind api.Reactor: an
// edge-triggered, one-shot epoll set on Linux and a stub elsewhere.
package reactor
