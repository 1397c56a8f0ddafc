// File: internal/defercall/manager.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package defercall

import (
	"github.com/momentics/gripcore/internal/eventloop"
)

// Manager binds one callsList to one loop's thread. Any goroutine may
// append to the list; only the loop's own thread ever drains it, so
// queued callbacks always run without additional synchronization inside
// the callback itself.
type Manager struct {
	list  *callsList
	token *eventloop.SetReadinessToken
	reg   *eventloop.Registration
}

// NewManager registers a set-readiness token on loop and returns a Manager
// that wakes and drains through it.
func NewManager(loop *eventloop.EventLoop) (*Manager, error) {
	m := &Manager{list: newCallsList()}
	token, reg, err := loop.MakeSetReadiness(m.drain)
	if err != nil {
		return nil, err
	}
	m.token = token
	m.reg = reg
	return m, nil
}

// Registration exposes the loop registration backing this manager so a
// worker can account for it, or cancel it during teardown.
func (m *Manager) Registration() *eventloop.Registration { return m.reg }

// PendingCount reports how many calls are currently queued, undrained.
func (m *Manager) PendingCount() int { return m.list.len() }

func (m *Manager) drain() {
	for _, c := range m.list.drainAll() {
		if c.handle.generationAt(c.genVal) {
			c.fn()
		}
	}
}
