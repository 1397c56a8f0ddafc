package engine_test

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/momentics/gripcore/domainmap"
	"github.com/momentics/gripcore/engine"
	"github.com/momentics/gripcore/internal/defercall"
	"github.com/momentics/gripcore/internal/eventloop"
)

// echoBackend listens on an ephemeral port and echoes back whatever it
// receives, simulating the real backend an Engine relays to.
func echoBackend(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			conn.Write(buf[:n])
		}
	}()
	return ln.Addr().String()
}

func TestEngineRelaysFramesToBackend(t *testing.T) {
	backendAddr := echoBackend(t)

	dm, err := domainmap.NewFromLines([]string{"127.0.0.1 " + backendAddr}, zap.NewNop())
	require.NoError(t, err)
	defer dm.Close()

	loop, err := eventloop.NewEventLoop(8)
	require.NoError(t, err)
	defer loop.Close()
	mgr, err := defercall.NewManager(loop)
	require.NoError(t, err)
	dc := defercall.New(mgr)

	addr := "127.0.0.1:18099"
	eng := engine.New(engine.Configuration{
		WorkerID:   0,
		ListenAddr: addr,
		DomainMap:  dm,
		Logger:     zap.NewNop(),
	}, loop, dc)
	require.True(t, eng.Start())
	defer eng.Stop()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	secKey := base64.StdEncoding.EncodeToString([]byte("0123456789012345"))
	req := fmt.Sprintf(
		"GET /path HTTP/1.1\r\nHost: 127.0.0.1\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n"+
			"Sec-WebSocket-Key: %s\r\nSec-WebSocket-Version: 13\r\n\r\n", secKey)
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, statusLine, "101")

	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}

	payload := []byte("hello")
	frame := append([]byte{0x82, byte(len(payload))}, payload...)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	hdr := make([]byte, 2)
	_, err = io.ReadFull(br, hdr)
	require.NoError(t, err)
	n := int(hdr[1] & 0x7F)
	body := make([]byte, n)
	_, err = io.ReadFull(br, body)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}
