// File: internal/workerpool/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package workerpool

import (
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/gripcore/adapters"
	"github.com/momentics/gripcore/api"
	"github.com/momentics/gripcore/internal/defercall"
	"github.com/momentics/gripcore/internal/eventloop"
)

// occupancyTimeout bounds how long Occupancy waits for the worker's own
// thread to report its EventLoop usage before giving up.
const occupancyTimeout = time.Second

// ErrEngineStartFailed is returned by Start when the Engine reports
// failure before reporting success.
var ErrEngineStartFailed = errors.New("workerpool: engine failed to start")

const (
	stateStarting int32 = iota
	stateRunning
	stateStopping
	stateJoined
)

// Config describes one worker: its identity, its loop's registration
// capacity, optional CPU pinning, and a factory that builds the Engine it
// will drive. NewEngine is called on the worker's own goroutine, after the
// loop and DeferCall are constructed, so the Engine may capture them if it
// needs to post its own deferred work.
type Config struct {
	ID        int
	CPUID     int // -1 disables pinning
	NUMAID    int // -1 means no NUMA preference; recorded, not enforced
	Capacity  int
	NewEngine func(id int, loop *eventloop.EventLoop, dc *defercall.DeferCall) api.Engine
	Log       *zap.Logger
}

// Handle is a live WorkerThread: the Supervisor's view of one worker.
type Handle struct {
	id    int
	log   *zap.Logger
	state int32 // atomic

	loop     *eventloop.EventLoop
	mgr      *defercall.Manager
	dc       *defercall.DeferCall
	engine   api.Engine
	affinity api.Affinity

	startedCh chan struct{}
	startErr  error

	doneCh   chan struct{}
	exitCode int
}

// Start spawns the worker goroutine and blocks until the Engine has
// reported success or failure. A non-nil error means the worker never
// reached the running state and its goroutine has already exited.
func Start(cfg Config) (*Handle, error) {
	h := &Handle{
		id:        cfg.ID,
		log:       cfg.Log,
		startedCh: make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go h.run(cfg)
	<-h.startedCh
	if h.startErr != nil {
		<-h.doneCh
		return nil, h.startErr
	}
	return h, nil
}

func (h *Handle) run(cfg Config) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	aff := adapters.NewAffinityAdapter()
	if cfg.CPUID >= 0 {
		if err := aff.Pin(cfg.CPUID, cfg.NUMAID); err != nil && h.log != nil {
			h.log.Warn("workerpool: affinity pin failed", zap.Int("worker", h.id), zap.Error(err))
		}
	}
	h.affinity = aff

	loop, err := eventloop.NewEventLoop(cfg.Capacity)
	if err != nil {
		h.fail(err)
		close(h.doneCh)
		return
	}
	mgr, err := defercall.NewManager(loop)
	if err != nil {
		h.fail(err)
		loop.Close()
		close(h.doneCh)
		return
	}
	h.loop = loop
	h.mgr = mgr
	h.dc = defercall.New(mgr)
	h.engine = cfg.NewEngine(cfg.ID, loop, h.dc)

	go h.watchEngine()

	h.dc.Defer(func() {
		if !h.engine.Start() {
			loop.Exit(1)
		}
	})

	h.exitCode = loop.Exec()

	h.dc.Cleanup()
	loop.Close()
	h.affinity.Unpin()
	atomic.StoreInt32(&h.state, stateJoined)
	close(h.doneCh)
}

func (h *Handle) fail(err error) {
	h.startErr = err
	close(h.startedCh)
}

// watchEngine observes the Engine's lifecycle channels and translates them
// into loop-level outcomes: a successful start unblocks the caller of
// Start; a failure or a completed stop both terminate the loop.
func (h *Handle) watchEngine() {
	select {
	case <-h.engine.Started():
		atomic.StoreInt32(&h.state, stateRunning)
		close(h.startedCh)
	case <-h.engine.Error():
		h.startErr = ErrEngineStartFailed
		close(h.startedCh)
		h.loop.Exit(1)
		return
	}
	select {
	case <-h.engine.Stopped():
		h.loop.Exit(0)
	case <-h.engine.Error():
		h.loop.Exit(1)
	}
}

// RoutesChanged posts a deferred call telling the Engine its routing table
// has changed, to run on the worker's own thread.
func (h *Handle) RoutesChanged() {
	atomic.StoreInt32(&h.state, stateRunning)
	h.dc.Defer(h.engine.RoutesChanged)
}

// Stop posts a deferred call to begin graceful shutdown.
func (h *Handle) Stop() {
	atomic.StoreInt32(&h.state, stateStopping)
	h.dc.Defer(h.engine.Stop)
}

// Join blocks until the worker's loop has exited and returns its exit code.
func (h *Handle) Join() int {
	<-h.doneCh
	return h.exitCode
}

// ID returns the worker's configured identity.
func (h *Handle) ID() int { return h.id }

// Occupancy reports the worker's EventLoop registration-table usage. Only
// the owning goroutine may read EventLoop state directly, so this posts a
// deferred call onto the worker's own thread and waits for the answer.
func (h *Handle) Occupancy() (used, capacity int) {
	result := make(chan [2]int, 1)
	h.dc.Defer(func() {
		result <- [2]int{h.loop.Used(), h.loop.Capacity()}
	})
	select {
	case r := <-result:
		return r[0], r[1]
	case <-time.After(occupancyTimeout):
		return 0, 0
	}
}
