// File: internal/eventloop/timerheap.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Min-heap of pending timers, ordered by deadline with FIFO tie-break on
// registration sequence so timers armed for the same instant fire in the
// order they were registered.

package eventloop

import (
	"container/heap"
	"time"
)

type timerEntry struct {
	id        uint64
	seq       uint64
	deadline  time.Time
	interval  time.Duration // 0 means one-shot
	cb        func()
	cancelled bool
	index     int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

var _ = heap.Interface(&timerHeap{})
