package engine

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/gripcore/fake"
)

func TestRelayHandlerWritesBufferToBackend(t *testing.T) {
	backend, probe := net.Pipe()
	defer backend.Close()
	defer probe.Close()

	h := &relayHandler{backend: backend}
	buf := fake.NewBuffer([]byte("hello backend"), -1)

	errCh := make(chan error, 1)
	go func() { errCh <- h.Handle(buf) }()

	got := make([]byte, len("hello backend"))
	probe.SetReadDeadline(time.Now().Add(time.Second))
	_, err := probe.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "hello backend", string(got))
	require.NoError(t, <-errCh)
}

func TestRelayHandlerIgnoresNonBufferPayloads(t *testing.T) {
	backend, probe := net.Pipe()
	defer backend.Close()
	defer probe.Close()

	h := &relayHandler{backend: backend}
	assert.NoError(t, h.Handle("not a buffer"))
}
