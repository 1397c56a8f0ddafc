package defercall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/gripcore/internal/eventloop"
)

func newTestLoop(t *testing.T) *eventloop.EventLoop {
	loop, err := eventloop.NewEventLoop(8)
	require.NoError(t, err)
	t.Cleanup(func() { loop.Close() })
	return loop
}

func TestDeferCallRunsOnLoopThread(t *testing.T) {
	loop := newTestLoop(t)
	mgr, err := NewManager(loop)
	require.NoError(t, err)
	dc := New(mgr)

	ran := make(chan struct{}, 1)
	dc.Defer(func() { ran <- struct{}{} })

	go func() {
		<-ran
		loop.Exit(0)
	}()
	loop.Exec()
}

func TestDeferCallCleanupCancelsQueuedCalls(t *testing.T) {
	loop := newTestLoop(t)
	mgr, err := NewManager(loop)
	require.NoError(t, err)
	dc := New(mgr)

	ran := false
	dc.Defer(func() { ran = true })
	dc.Cleanup()

	go func() {
		time.Sleep(20 * time.Millisecond)
		loop.Exit(0)
	}()
	loop.Exec()

	assert.False(t, ran, "call deferred before Cleanup must be skipped at drain time")
}

func TestDeferCallSeparateHandlesAreIndependent(t *testing.T) {
	loop := newTestLoop(t)
	mgr, err := NewManager(loop)
	require.NoError(t, err)
	dcA := New(mgr)
	dcB := New(mgr)

	var aRan, bRan bool
	dcA.Defer(func() { aRan = true })
	dcB.Defer(func() { bRan = true })
	dcA.Cleanup()

	go func() {
		time.Sleep(20 * time.Millisecond)
		loop.Exit(0)
	}()
	loop.Exec()

	assert.False(t, aRan, "dcA's call was cancelled by its own Cleanup")
	assert.True(t, bRan, "dcB's call is unaffected by dcA's Cleanup")
}
