//go:build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for every platform without an epoll(7)-backed
// EventReactor, including Windows: there is no IOCP-backed EventReactor in
// this tree, so NewReactor fails loudly there rather than silently not
// compiling.

package reactor

import "errors"

// NewReactor returns an error for unsupported platforms.
func NewReactor() (EventReactor, error) {
	return nil, errors.New("reactor: this platform is not supported")
}
