// File: internal/eventloop/eventloop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoop is the single-threaded reactor driven by exactly one goroutine
// (conventionally pinned to one OS thread via runtime.LockOSThread by the
// caller). It multiplexes timers, file descriptors, and set-readiness
// tokens through a bounded registration table, dispatching all of them from
// the same call stack that invoked Exec: timers in deadline order, fds in the
// order the reactor reports them, and readiness tokens raised since the last
// wakeup in no defined order.

package eventloop

import (
	"container/heap"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/gripcore/api"
	"github.com/momentics/gripcore/reactor"
)

const wakeupUserData = ^uintptr(0) // sentinel id: no real registration uses it

// FDInterest describes which readiness a file-descriptor registration
// cares about.
type FDInterest int

const (
	InterestRead FDInterest = 1 << iota
	InterestWrite
)

type fdEntry struct {
	id        uint64
	fd        uintptr
	cb        func(FDInterest)
	cancelled bool
}

type srEntry struct {
	id    uint64
	dirty int32
	cb    func()
}

const (
	stateIdle int32 = iota
	stateRunning
	stateExiting
)

// EventLoop is the Go rendering of the core's reactor: a capacity-bounded
// table of timers, fds, and set-readiness tokens serviced by one thread.
type EventLoop struct {
	capacity int32
	used     int32 // atomic

	mu      sync.Mutex
	timers  timerHeap
	fds     map[uint64]*fdEntry
	srs     map[uint64]*srEntry
	nextID  uint64
	nextSeq uint64

	reactor   reactor.EventReactor
	wakeupR   *os.File
	wakeupW   *os.File
	readyBuf  []reactor.Event

	state        int32 // atomic
	exitRequested int32 // atomic
	exitCode      int32 // atomic
}

// NewEventLoop constructs a loop with a bounded registration table.
// capacity should come from the proxy's sizing formula (see supervisor),
// not be unbounded: IP5 requires RegisterTimer/RegisterFD/MakeSetReadiness
// to fail cleanly once the table is full rather than let the process grow
// memory without bound.
func NewEventLoop(capacity int) (*EventLoop, error) {
	r, err := reactor.NewReactor()
	if err != nil {
		return nil, err
	}
	rd, wr, err := os.Pipe()
	if err != nil {
		r.Close()
		return nil, err
	}
	el := &EventLoop{
		capacity: int32(capacity),
		timers:   timerHeap{},
		fds:      make(map[uint64]*fdEntry),
		srs:      make(map[uint64]*srEntry),
		reactor:  r,
		wakeupR:  rd,
		wakeupW:  wr,
		readyBuf: make([]reactor.Event, capacity+1),
	}
	if err := r.Register(rd.Fd(), wakeupUserData); err != nil {
		rd.Close()
		wr.Close()
		r.Close()
		return nil, err
	}
	return el, nil
}

func (el *EventLoop) tryReserve() bool {
	for {
		used := atomic.LoadInt32(&el.used)
		if used >= el.capacity {
			return false
		}
		if atomic.CompareAndSwapInt32(&el.used, used, used+1) {
			return true
		}
	}
}

func (el *EventLoop) release() {
	atomic.AddInt32(&el.used, -1)
}

func (el *EventLoop) wake() {
	// Best effort: a full pipe buffer means a wakeup is already pending,
	// which is all this call needs to guarantee.
	el.wakeupW.Write([]byte{0})
}

// RegisterTimer arms a one-shot (interval == 0) or repeating timer that
// invokes cb on the loop's own thread once deadline in the future elapses.
func (el *EventLoop) RegisterTimer(d time.Duration, interval time.Duration, cb func()) (*Registration, error) {
	if !el.tryReserve() {
		return nil, api.ErrCapacityExceeded
	}
	el.mu.Lock()
	id := el.nextID
	el.nextID++
	seq := el.nextSeq
	el.nextSeq++
	entry := &timerEntry{id: id, seq: seq, deadline: time.Now().Add(d), interval: interval, cb: cb}
	heap.Push(&el.timers, entry)
	el.mu.Unlock()
	el.wake()

	reg := &Registration{id: id}
	reg.cancelFn = func() {
		el.mu.Lock()
		entry.cancelled = true
		el.mu.Unlock()
		el.release()
	}
	return reg, nil
}

// RegisterFD registers fd with the underlying reactor; cb is invoked with
// InterestRead|InterestWrite each time the reactor reports fd ready. The
// reactor does not say which of the two is ready.
func (el *EventLoop) RegisterFD(fd uintptr, cb func(FDInterest)) (*Registration, error) {
	if !el.tryReserve() {
		return nil, api.ErrCapacityExceeded
	}
	el.mu.Lock()
	id := el.nextID
	el.nextID++
	entry := &fdEntry{id: id, fd: fd, cb: cb}
	el.fds[id] = entry
	el.mu.Unlock()

	if err := el.reactor.Register(fd, uintptr(id)); err != nil {
		el.mu.Lock()
		delete(el.fds, id)
		el.mu.Unlock()
		el.release()
		return nil, err
	}

	reg := &Registration{id: id}
	reg.cancelFn = func() {
		el.mu.Lock()
		delete(el.fds, id)
		el.mu.Unlock()
		el.reactor.Unregister(fd)
		el.release()
	}
	return reg, nil
}

// MakeSetReadiness allocates a readiness token whose SetReadiness method
// may be called from any goroutine to wake this loop and invoke cb on the
// loop's own thread at the next poll.
func (el *EventLoop) MakeSetReadiness(cb func()) (*SetReadinessToken, *Registration, error) {
	if !el.tryReserve() {
		return nil, nil, api.ErrCapacityExceeded
	}
	el.mu.Lock()
	id := el.nextID
	el.nextID++
	entry := &srEntry{id: id, cb: cb}
	el.srs[id] = entry
	el.mu.Unlock()

	reg := &Registration{id: id}
	reg.cancelFn = func() {
		el.mu.Lock()
		delete(el.srs, id)
		el.mu.Unlock()
		el.release()
	}
	return &SetReadinessToken{loop: el, entry: entry}, reg, nil
}

func (el *EventLoop) nextTimeout() int {
	el.mu.Lock()
	defer el.mu.Unlock()
	for el.timers.Len() > 0 && el.timers[0].cancelled {
		heap.Pop(&el.timers)
	}
	if el.timers.Len() == 0 {
		return -1
	}
	d := time.Until(el.timers[0].deadline)
	if d <= 0 {
		return 0
	}
	ms := int(d / time.Millisecond)
	if ms == 0 {
		ms = 1
	}
	return ms
}

func (el *EventLoop) fireDueTimers() {
	now := time.Now()
	for {
		el.mu.Lock()
		if el.timers.Len() == 0 {
			el.mu.Unlock()
			return
		}
		top := el.timers[0]
		if top.cancelled {
			heap.Pop(&el.timers)
			el.mu.Unlock()
			continue
		}
		if top.deadline.After(now) {
			el.mu.Unlock()
			return
		}
		heap.Pop(&el.timers)
		if top.interval > 0 {
			top.deadline = now.Add(top.interval)
			top.seq = el.nextSeq
			el.nextSeq++
			heap.Push(&el.timers, top)
		}
		el.mu.Unlock()
		top.cb()
	}
}

func (el *EventLoop) drainWakeup() {
	buf := make([]byte, 64)
	for {
		n, err := el.wakeupR.Read(buf)
		if n == 0 || err != nil {
			break
		}
		if n < len(buf) {
			break
		}
	}

	el.mu.Lock()
	var due []*srEntry
	for _, e := range el.srs {
		if atomic.CompareAndSwapInt32(&e.dirty, 1, 0) {
			due = append(due, e)
		}
	}
	el.mu.Unlock()
	for _, e := range due {
		e.cb()
	}
}

func (el *EventLoop) dispatchFD(id uint64, interest FDInterest) {
	el.mu.Lock()
	entry, ok := el.fds[id]
	el.mu.Unlock()
	if !ok || entry.cancelled {
		return
	}
	entry.cb(interest)
}

// Exec runs the reactor loop on the calling goroutine until Exit is called,
// then returns the exit code. It is not safe to call Exec concurrently from
// more than one goroutine.
func (el *EventLoop) Exec() int {
	atomic.StoreInt32(&el.state, stateRunning)
	for {
		if atomic.LoadInt32(&el.exitRequested) == 1 {
			break
		}
		timeoutMs := el.nextTimeout()
		n, err := el.reactor.Wait(el.readyBuf, timeoutMs)
		if err != nil {
			continue
		}
		for i := 0; i < n; i++ {
			ev := el.readyBuf[i]
			if ev.UserData == wakeupUserData {
				el.drainWakeup()
				continue
			}
			el.dispatchFD(uint64(ev.UserData), InterestRead|InterestWrite)
		}
		el.fireDueTimers()
	}
	atomic.StoreInt32(&el.state, stateIdle)
	return int(atomic.LoadInt32(&el.exitCode))
}

// Exit requests that Exec return code soon: any event already picked up
// for dispatch in the current iteration still runs to completion, but no
// further timers or fd events are serviced afterward.
func (el *EventLoop) Exit(code int) {
	atomic.StoreInt32(&el.exitCode, int32(code))
	atomic.StoreInt32(&el.exitRequested, 1)
	el.wake()
}

// Close releases the reactor and wakeup pipe. Call only after Exec has
// returned.
func (el *EventLoop) Close() error {
	el.wakeupR.Close()
	el.wakeupW.Close()
	return el.reactor.Close()
}

// Capacity returns the configured registration ceiling.
func (el *EventLoop) Capacity() int { return int(el.capacity) }

// Used returns the current number of live registrations.
func (el *EventLoop) Used() int { return int(atomic.LoadInt32(&el.used)) }

// SetReadinessToken lets any goroutine wake the owning loop and invoke the
// registered callback on the loop's own thread.
type SetReadinessToken struct {
	loop  *EventLoop
	entry *srEntry
}

// SetReadiness marks the token dirty and wakes the loop. Safe to call from
// any goroutine, including the loop's own thread.
func (t *SetReadinessToken) SetReadiness() {
	atomic.StoreInt32(&t.entry.dirty, 1)
	t.loop.wake()
}
