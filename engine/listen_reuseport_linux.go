// File: engine/listen_reuseport_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listen binds addr with SO_REUSEPORT set, letting every worker in the
// process listen on the same address and have the kernel load-balance
// accepted connections across them instead of funneling through a single
// accept loop.
func listen(addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.Listen(context.Background(), "tcp", addr)
}
