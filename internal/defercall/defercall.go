// File: internal/defercall/defercall.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DeferCall is a cross-thread closure poster bound to a single Manager
// (and therefore to a single loop thread). Cancellation is by generation
// index rather than by weak reference: Cleanup bumps a counter so any call
// already queued under the old value is skipped at drain time instead of
// invoked, giving at-most-once delivery without needing to walk and erase
// list nodes from arbitrary goroutines.

package defercall

import "sync/atomic"

// DeferCall posts closures onto its bound Manager's loop thread.
type DeferCall struct {
	mgr        *Manager
	generation uint64
}

// New creates a DeferCall bound to mgr. The zero generation value is never
// used for a live handle, so a freshly constructed handle always accepts
// calls until its first Cleanup.
func New(mgr *Manager) *DeferCall {
	return &DeferCall{mgr: mgr, generation: 1}
}

// Defer enqueues fn to run on the bound Manager's loop thread. Safe to call
// from any goroutine, including the loop's own thread.
func (d *DeferCall) Defer(fn func()) {
	gen := atomic.LoadUint64(&d.generation)
	d.mgr.list.append(&call{handle: d, genVal: gen, fn: fn})
	d.mgr.token.SetReadiness()
}

// Cleanup bulk-cancels every call deferred through this handle that has
// not yet run: it bumps the generation counter so the drain loop's
// generationAt check fails for all of them. Already-running calls are
// unaffected; this only prevents calls still sitting in the queue.
func (d *DeferCall) Cleanup() {
	atomic.AddUint64(&d.generation, 1)
}

func (d *DeferCall) generationAt(gen uint64) bool {
	return atomic.LoadUint64(&d.generation) == gen
}
