// File: internal/defercall/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package defercall implements cross-thread closure posting: any goroutine
// may hand a callback to a Manager bound to some other loop's thread, and
// that callback runs there, in FIFO order relative to other callbacks from
// the same submitter, at most once: a callback still queued when its
// DeferCall handle is cleaned up never runs.
package defercall
