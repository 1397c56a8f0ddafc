// File: internal/defercall/global.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A single well-known DeferCall bound to the Supervisor's own loop, used
// for cleanup closures that have no more specific owner (the Go analogue
// of the core's global deleteLater facility, minus manual destructors).

package defercall

import "sync"

var (
	mainOnce sync.Once
	mainCall *DeferCall
)

// InstallMainManager binds the process-wide DeleteLater facility to mgr.
// Call exactly once, from the Supervisor, before any DeleteLater use.
// Subsequent calls are ignored: the main loop is fixed for the life of the
// process.
func InstallMainManager(mgr *Manager) {
	mainOnce.Do(func() {
		mainCall = New(mgr)
	})
}

// DeleteLater schedules fn to run on the main manager's loop thread. It
// panics if InstallMainManager has not been called yet, since that
// indicates a startup-ordering bug rather than a recoverable condition.
func DeleteLater(fn func()) {
	if mainCall == nil {
		panic("defercall: DeleteLater called before InstallMainManager")
	}
	mainCall.Defer(fn)
}
