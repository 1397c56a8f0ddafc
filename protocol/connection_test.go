package protocol_test

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/gripcore/fake"
	"github.com/momentics/gripcore/protocol"
)

func TestWSConnectionSendFrameWritesWireFormat(t *testing.T) {
	local, peer := net.Pipe()
	defer local.Close()
	defer peer.Close()

	pool := fake.NewBufferPool()
	conn := protocol.NewWSConnection(local, pool, 4, "/ws")

	frame := &protocol.WSFrame{
		IsFinal:    true,
		Opcode:     protocol.OpcodeText,
		PayloadLen: int64(len("ping from conn")),
		Payload:    []byte("ping from conn"),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- conn.SendFrame(frame) }()

	peer.SetReadDeadline(time.Now().Add(time.Second))
	decoded, err := protocol.DecodeFrame(bufio.NewReader(peer))
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	assert.Equal(t, protocol.OpcodeText, decoded.Opcode)
	assert.Equal(t, "ping from conn", string(decoded.Payload))
	assert.Equal(t, map[string]int64{
		"bytes_received":  0,
		"bytes_sent":      int64(len("ping from conn")),
		"frames_received": 0,
		"frames_sent":     1,
	}, conn.GetStats())
}

func TestWSConnectionRecvZeroCopyReadsFromPool(t *testing.T) {
	local, peer := net.Pipe()
	defer local.Close()
	defer peer.Close()

	pool := fake.NewBufferPool()
	conn := protocol.NewWSConnection(local, pool, 4, "/ws")

	frame := &protocol.WSFrame{
		IsFinal:    true,
		Opcode:     protocol.OpcodeBinary,
		PayloadLen: int64(len("payload bytes")),
		Payload:    []byte("payload bytes"),
	}
	wire, err := protocol.EncodeFrameToBytesWithMask(frame, false)
	require.NoError(t, err)

	go func() {
		peer.Write(wire)
	}()

	bufs, err := conn.RecvZeroCopy()
	require.NoError(t, err)
	require.Len(t, bufs, 1)
	assert.Equal(t, "payload bytes", string(bufs[0].Bytes()))
	assert.Equal(t, int64(1), pool.Stats().TotalAlloc)
}

func TestWSConnectionCloseIsIdempotent(t *testing.T) {
	local, peer := net.Pipe()
	defer peer.Close()

	pool := fake.NewBufferPool()
	conn := protocol.NewWSConnection(local, pool, 4, "/ws")

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	select {
	case <-conn.Done():
	default:
		t.Fatal("Done channel must be closed after Close")
	}
}
