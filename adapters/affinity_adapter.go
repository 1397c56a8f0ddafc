// File: adapters/affinity_adapter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package adapters provides glue code between the core API contracts
// and the internal implementation.

package adapters

import (
	"sync"

	"github.com/momentics/gripcore/affinity"
	"github.com/momentics/gripcore/api"
)

// AffinityAdapter implements api.Affinity by delegating CPU pinning to the
// affinity package. NUMA-node binding is tracked but not enforced: the
// pruned dependency set carries no libnuma-equivalent, so numaID is
// accepted and reported for bookkeeping only.
type AffinityAdapter struct {
	mu     sync.Mutex
	cpuID  int
	numaID int
	pinned bool
}

// NewAffinityAdapter creates an AffinityAdapter with no binding applied.
func NewAffinityAdapter() api.Affinity {
	return &AffinityAdapter{cpuID: -1, numaID: -1}
}

// Pin pins the calling OS thread to cpuID. numaID is recorded verbatim;
// callers that do not care about NUMA locality should pass -1.
func (a *AffinityAdapter) Pin(cpuID int, numaID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cpuID >= 0 {
		if err := affinity.SetAffinity(cpuID); err != nil {
			return err
		}
	}
	a.cpuID = cpuID
	a.numaID = numaID
	a.pinned = true
	return nil
}

// Unpin clears the recorded binding. The OS thread affinity mask itself is
// left as last set: most platforms offer no "reset to default mask" call,
// and a fresh worker thread starts unpinned anyway.
func (a *AffinityAdapter) Unpin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pinned = false
	a.cpuID = -1
	a.numaID = -1
	return nil
}

// Get returns the most recently requested CPU and NUMA IDs.
func (a *AffinityAdapter) Get() (cpuID int, numaID int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cpuID, a.numaID, nil
}
