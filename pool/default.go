// File: pool/default.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide default buffer pool manager shared by components that have
// no reason to maintain a private one.

package pool

import (
	"sync"

	"github.com/momentics/gripcore/api"
)

var (
	defaultOnce sync.Once
	defaultMgr  *BufferPoolManager
)

// DefaultManager returns a process-wide BufferPoolManager so all components
// reuse the same pools instead of fragmenting allocations.
func DefaultManager() *BufferPoolManager {
	defaultOnce.Do(func() {
		defaultMgr = NewBufferPoolManager()
	})
	return defaultMgr
}

// DefaultPool is a shortcut to fetch a scoped pool from the default manager.
func DefaultPool(numaPreferred int) api.BufferPool {
	return DefaultManager().GetPool(numaPreferred)
}
