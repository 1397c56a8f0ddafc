//go:build !linux

// File: engine/listen_reuseport_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import "net"

// listen falls back to a plain bind on platforms without SO_REUSEPORT
// wired up; only the first worker to claim addr will succeed.
func listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
