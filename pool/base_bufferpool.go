// File: pool/base_bufferpool.go
// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concrete, non-NUMA-discovering buffer backing store for a single pool bucket.

package pool

import (
	"sync"

	"github.com/momentics/gripcore/api"
)

// heapBuffer is a plain heap-backed api.Buffer. It carries no hardware
// locality of its own; NUMANode reports whichever bucket it was drawn from.
type heapBuffer struct {
	data     []byte
	numaNode int
	owner    *nodePool
}

func (b *heapBuffer) Bytes() []byte { return b.data }

func (b *heapBuffer) Slice(from, to int) api.Buffer {
	return &heapBuffer{data: b.data[from:to], numaNode: b.numaNode, owner: b.owner}
}

func (b *heapBuffer) Release() {
	if b.owner != nil {
		b.owner.put(b)
	}
}

func (b *heapBuffer) Copy() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

func (b *heapBuffer) NUMANode() int { return b.numaNode }

// nodePool is a size-bucketed free list for one NUMA node. Size classes are
// powers of two; a request is rounded up to the nearest class so buffers are
// reusable regardless of the exact size the next caller asks for.
type nodePool struct {
	numaNode int
	mu       sync.Mutex
	classes  map[int][]*heapBuffer

	allocCount int64
	freeCount  int64
	inUse      int64
}

func newNodePool(numaNode int) *nodePool {
	return &nodePool{numaNode: numaNode, classes: make(map[int][]*heapBuffer)}
}

func sizeClass(n int) int {
	c := 64
	for c < n {
		c <<= 1
	}
	return c
}

func (p *nodePool) get(size int) api.Buffer {
	class := sizeClass(size)
	p.mu.Lock()
	bucket := p.classes[class]
	var buf *heapBuffer
	if n := len(bucket); n > 0 {
		buf = bucket[n-1]
		p.classes[class] = bucket[:n-1]
		p.freeCount++
	}
	p.inUse++
	p.mu.Unlock()
	if buf == nil {
		buf = &heapBuffer{data: make([]byte, class), numaNode: p.numaNode, owner: p}
		p.mu.Lock()
		p.allocCount++
		p.mu.Unlock()
	}
	return &heapBuffer{data: buf.data[:size], numaNode: p.numaNode, owner: p}
}

func (p *nodePool) put(b *heapBuffer) {
	class := sizeClass(cap(b.data))
	full := b.data[:cap(b.data)]
	p.mu.Lock()
	p.classes[class] = append(p.classes[class], &heapBuffer{data: full, numaNode: p.numaNode, owner: p})
	if p.inUse > 0 {
		p.inUse--
	}
	p.mu.Unlock()
}

func (p *nodePool) stats() (alloc, free, inUse int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocCount, p.freeCount, p.inUse
}
