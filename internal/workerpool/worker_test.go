package workerpool_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/gripcore/api"
	"github.com/momentics/gripcore/internal/defercall"
	"github.com/momentics/gripcore/internal/eventloop"
	"github.com/momentics/gripcore/internal/workerpool"
)

// fakeEngine is a minimal api.Engine test double whose behavior is driven
// entirely by the fields below, letting tests exercise both the happy path
// and the startup-failure path through workerpool.Start.
type fakeEngine struct {
	startResult   bool
	startedCh     chan struct{}
	stoppedCh     chan struct{}
	errCh         chan struct{}
	routesChanged chan struct{}
}

func newFakeEngine(startResult bool) *fakeEngine {
	return &fakeEngine{
		startResult:   startResult,
		startedCh:     make(chan struct{}),
		stoppedCh:     make(chan struct{}),
		errCh:         make(chan struct{}),
		routesChanged: make(chan struct{}, 1),
	}
}

func (f *fakeEngine) Start() bool {
	if f.startResult {
		close(f.startedCh)
	} else {
		close(f.errCh)
	}
	return f.startResult
}
func (f *fakeEngine) RoutesChanged()          { f.routesChanged <- struct{}{} }
func (f *fakeEngine) Stop()                   { close(f.stoppedCh) }
func (f *fakeEngine) Started() <-chan struct{} { return f.startedCh }
func (f *fakeEngine) Stopped() <-chan struct{} { return f.stoppedCh }
func (f *fakeEngine) Error() <-chan struct{}   { return f.errCh }

func TestWorkerStartAndStopHappyPath(t *testing.T) {
	var fe *fakeEngine
	h, err := workerpool.Start(workerpool.Config{
		ID:       1,
		CPUID:    -1,
		Capacity: 8,
		NewEngine: func(id int, loop *eventloop.EventLoop, dc *defercall.DeferCall) api.Engine {
			fe = newFakeEngine(true)
			return fe
		},
	})
	require.NoError(t, err)
	require.NotNil(t, fe)

	h.RoutesChanged()
	select {
	case <-fe.routesChanged:
	case <-time.After(time.Second):
		t.Fatal("expected RoutesChanged to reach the engine")
	}

	h.Stop()
	code := h.Join()
	assert.Equal(t, 0, code)
}

func TestWorkerOccupancyReflectsLoopUsage(t *testing.T) {
	var fe *fakeEngine
	h, err := workerpool.Start(workerpool.Config{
		ID:       3,
		CPUID:    -1,
		Capacity: 8,
		NewEngine: func(id int, loop *eventloop.EventLoop, dc *defercall.DeferCall) api.Engine {
			fe = newFakeEngine(true)
			return fe
		},
	})
	require.NoError(t, err)

	used, capacity := h.Occupancy()
	assert.Equal(t, 8, capacity)
	assert.GreaterOrEqual(t, used, 0)

	h.Stop()
	h.Join()
}

func TestWorkerStartFailurePropagatesError(t *testing.T) {
	_, err := workerpool.Start(workerpool.Config{
		ID:       2,
		CPUID:    -1,
		Capacity: 8,
		NewEngine: func(id int, loop *eventloop.EventLoop, dc *defercall.DeferCall) api.Engine {
			return newFakeEngine(false)
		},
	})
	assert.ErrorIs(t, err, workerpool.ErrEngineStartFailed)
}
