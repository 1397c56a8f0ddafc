// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
//
// BufferPoolManager provides a NUMA-segmented api.BufferPool. Each NUMA
// bucket (node -1 stands for "no preference") is backed by a size-classed
// free list; see base_bufferpool.go.

package pool

import (
	"sync"

	"github.com/momentics/gripcore/api"
)

// BufferPoolManager owns one nodePool per NUMA node seen so far and
// implements api.BufferPool by dispatching to the pool matching the
// caller's preference.
type BufferPoolManager struct {
	mu    sync.RWMutex
	pools map[int]*nodePool
}

// NewBufferPoolManager creates an empty manager; node pools are created
// lazily on first use.
func NewBufferPoolManager() *BufferPoolManager {
	return &BufferPoolManager{pools: make(map[int]*nodePool)}
}

func (m *BufferPoolManager) nodePoolFor(numaNode int) *nodePool {
	m.mu.RLock()
	p, ok := m.pools[numaNode]
	m.mu.RUnlock()
	if ok {
		return p
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[numaNode]; ok {
		return p
	}
	p = newNodePool(numaNode)
	m.pools[numaNode] = p
	return p
}

// GetPool returns the api.BufferPool view scoped to a single NUMA node.
func (m *BufferPoolManager) GetPool(numaNode int) api.BufferPool {
	return scopedPool{mgr: m, numaNode: numaNode}
}

// Get implements api.BufferPool directly on the manager using numaPreferred
// as the bucket selector, letting callers skip GetPool entirely.
func (m *BufferPoolManager) Get(size int, numaPreferred int) api.Buffer {
	return m.nodePoolFor(numaPreferred).get(size)
}

// Put implements api.BufferPool by routing the buffer back to the bucket it
// was allocated from.
func (m *BufferPoolManager) Put(b api.Buffer) {
	if hb, ok := b.(*heapBuffer); ok {
		hb.Release()
		return
	}
	b.Release()
}

// Stats aggregates allocation counters across all NUMA buckets.
func (m *BufferPoolManager) Stats() api.BufferPoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := api.BufferPoolStats{NUMAStats: make(map[int]int64, len(m.pools))}
	for node, p := range m.pools {
		alloc, free, inUse := p.stats()
		out.TotalAlloc += alloc
		out.TotalFree += free
		out.InUse += inUse
		out.NUMAStats[node] = inUse
	}
	return out
}

// scopedPool adapts BufferPoolManager to api.BufferPool for a fixed NUMA
// node, ignoring the numaPreferred argument since the scope is already
// fixed by GetPool.
type scopedPool struct {
	mgr      *BufferPoolManager
	numaNode int
}

func (s scopedPool) Get(size int, _ int) api.Buffer { return s.mgr.nodePoolFor(s.numaNode).get(size) }
func (s scopedPool) Put(b api.Buffer)               { s.mgr.Put(b) }
func (s scopedPool) Stats() api.BufferPoolStats     { return s.mgr.Stats() }
