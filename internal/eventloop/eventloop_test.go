package eventloop

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/gripcore/api"
)

func TestEventLoopTimerFires(t *testing.T) {
	loop, err := NewEventLoop(4)
	require.NoError(t, err)
	defer loop.Close()

	fired := make(chan struct{}, 1)
	_, err = loop.RegisterTimer(10*time.Millisecond, 0, func() { fired <- struct{}{} })
	require.NoError(t, err)

	go func() {
		<-fired
		loop.Exit(0)
	}()

	code := loop.Exec()
	assert.Equal(t, 0, code)
}

func TestEventLoopTimerCancelDoesNotFire(t *testing.T) {
	loop, err := NewEventLoop(4)
	require.NoError(t, err)
	defer loop.Close()

	fired := false
	reg, err := loop.RegisterTimer(20*time.Millisecond, 0, func() { fired = true })
	require.NoError(t, err)
	reg.Cancel()

	go func() {
		time.Sleep(40 * time.Millisecond)
		loop.Exit(0)
	}()
	loop.Exec()

	assert.False(t, fired, "cancelled timer must not fire")
}

func TestEventLoopCapacityExceeded(t *testing.T) {
	loop, err := NewEventLoop(1)
	require.NoError(t, err)
	defer loop.Close()

	_, err = loop.RegisterTimer(time.Hour, 0, func() {})
	require.NoError(t, err)

	_, err = loop.RegisterTimer(time.Hour, 0, func() {})
	assert.ErrorIs(t, err, api.ErrCapacityExceeded)
}

func TestEventLoopRegisterFDFiresOnReadiness(t *testing.T) {
	loop, err := NewEventLoop(4)
	require.NoError(t, err)
	defer loop.Close()

	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()
	defer wr.Close()

	ready := make(chan FDInterest, 1)
	reg, err := loop.RegisterFD(rd.Fd(), func(interest FDInterest) { ready <- interest })
	require.NoError(t, err)
	defer reg.Cancel()

	_, err = wr.Write([]byte{1})
	require.NoError(t, err)

	go func() {
		<-ready
		loop.Exit(0)
	}()

	code := loop.Exec()
	assert.Equal(t, 0, code)
}

func TestEventLoopRegisterFDCancelStopsDispatch(t *testing.T) {
	loop, err := NewEventLoop(4)
	require.NoError(t, err)
	defer loop.Close()

	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()
	defer wr.Close()

	fired := false
	reg, err := loop.RegisterFD(rd.Fd(), func(interest FDInterest) { fired = true })
	require.NoError(t, err)
	reg.Cancel()

	_, err = wr.Write([]byte{1})
	require.NoError(t, err)

	go func() {
		time.Sleep(40 * time.Millisecond)
		loop.Exit(0)
	}()
	loop.Exec()

	assert.False(t, fired, "cancelled fd registration must not dispatch")
	assert.Equal(t, 0, loop.Used(), "cancel must release the registration's capacity slot")
}

func TestEventLoopSetReadinessWakesLoop(t *testing.T) {
	loop, err := NewEventLoop(4)
	require.NoError(t, err)
	defer loop.Close()

	invoked := make(chan struct{}, 1)
	token, _, err := loop.MakeSetReadiness(func() { invoked <- struct{}{} })
	require.NoError(t, err)

	go func() {
		token.SetReadiness()
		<-invoked
		loop.Exit(0)
	}()

	code := loop.Exec()
	assert.Equal(t, 0, code)
}
