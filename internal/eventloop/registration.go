// File: internal/eventloop/registration.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

import "sync/atomic"

// Registration is a cancellation handle returned by RegisterTimer,
// RegisterFD, and MakeSetReadiness. Cancel is idempotent and safe to call
// from any goroutine, including the loop's own thread.
type Registration struct {
	id        uint64
	cancelled int32
	cancelFn  func()
}

// Cancel releases the registration's capacity slot and, for timers and fds,
// prevents any further firing. Calling Cancel more than once is a no-op.
func (r *Registration) Cancel() {
	if atomic.CompareAndSwapInt32(&r.cancelled, 0, 1) {
		r.cancelFn()
	}
}

// ID returns the loop-scoped identifier assigned at registration time,
// useful for logging and debug probes.
func (r *Registration) ID() uint64 { return r.id }
