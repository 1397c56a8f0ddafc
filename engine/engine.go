// File: engine/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine is the concrete api.Engine a WorkerThread drives: a TCP accept
// loop that performs the WebSocket handshake, resolves the backend via
// DomainMap.Lookup on the request Host header, dials that backend, and
// relays payload frames bidirectionally until either side closes.

package engine

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/momentics/gripcore/api"
	"github.com/momentics/gripcore/internal/defercall"
	"github.com/momentics/gripcore/internal/eventloop"
	"github.com/momentics/gripcore/pool"
	"github.com/momentics/gripcore/protocol"
	"github.com/momentics/gripcore/transport/tcp"
)

// backendDialTimeout bounds how long dialing the resolved backend may take.
const backendDialTimeout = 5 * time.Second

// connStatsInterval is how often the housekeeping timer logs the active
// connection count, via the loop's own Timer facility rather than a
// stray goroutine with a time.Ticker.
const connStatsInterval = 30 * time.Second

// closeNoRoute and closeBackendUnreachable are WebSocket close codes (in
// the private-use range) distinguishing why a session never relayed.
const (
	closeNoRoute            = 4040
	closeBackendUnreachable = 4502
)

// Engine implements api.Engine for one worker: one listener, one
// NUMA-scoped buffer pool, and a set of live relay connections tracked for
// graceful shutdown.
type Engine struct {
	cfg  Configuration
	loop *eventloop.EventLoop

	bufPool *pool.BufferPoolManager
	ln      net.Listener

	startedCh chan struct{}
	stoppedCh chan struct{}
	errCh     chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	errOnce   sync.Once

	quit      chan struct{}
	connWG    sync.WaitGroup
	connCount int64 // atomic

	statsTimer *eventloop.Registration
}

// New constructs an Engine for worker cfg.WorkerID. It matches the
// workerpool.Config.NewEngine factory signature once partially applied
// over cfg by the Supervisor. dc is accepted to satisfy that signature but
// unused: Start, Stop, and RoutesChanged are already invoked on loop's own
// thread by the WorkerThread, so there is nothing left for this Engine to
// defer onto itself.
func New(cfg Configuration, loop *eventloop.EventLoop, dc *defercall.DeferCall) api.Engine {
	return &Engine{
		cfg:       cfg,
		loop:      loop,
		bufPool:   pool.NewBufferPoolManager(),
		startedCh: make(chan struct{}),
		stoppedCh: make(chan struct{}),
		errCh:     make(chan struct{}),
		quit:      make(chan struct{}),
	}
}

func (e *Engine) log() *zap.Logger {
	if e.cfg.Logger == nil {
		return zap.NewNop()
	}
	return e.cfg.Logger
}

// Start binds the listener and launches the accept loop in a background
// goroutine; the worker's own thread continues driving its EventLoop.
func (e *Engine) Start() bool {
	ln, err := listen(e.cfg.ListenAddr)
	if err != nil {
		e.log().Error("engine: listen failed",
			zap.Int("worker", e.cfg.WorkerID), zap.String("addr", e.cfg.ListenAddr), zap.Error(err))
		e.fail()
		return false
	}
	e.ln = ln
	e.log().Info("engine: listening",
		zap.Int("worker", e.cfg.WorkerID), zap.String("addr", e.cfg.ListenAddr))

	go tcp.Serve(ln, &tcp.ListenerConfig{
		CPUID:         -1,
		ConnHandler:   e.relayConn,
		OnAcceptError: e.onAcceptError,
	})

	if reg, err := e.loop.RegisterTimer(connStatsInterval, connStatsInterval, e.logConnStats); err == nil {
		e.statsTimer = reg
	} else {
		e.log().Warn("engine: stats timer registration failed", zap.Error(err))
	}

	e.startOnce.Do(func() { close(e.startedCh) })
	return true
}

func (e *Engine) logConnStats() {
	e.log().Info("engine: connection stats",
		zap.Int("worker", e.cfg.WorkerID), zap.Int64("active", atomic.LoadInt64(&e.connCount)))
}

func (e *Engine) onAcceptError(err error) {
	select {
	case <-e.quit:
		return
	default:
	}
	e.log().Warn("engine: accept error", zap.Int("worker", e.cfg.WorkerID), zap.Error(err))
}

// relayConn is called by transport/tcp once the WebSocket handshake has
// already completed and the 101 response already sent; it resolves the
// backend via DomainMap and relays payload frames until either side
// closes.
func (e *Engine) relayConn(conn net.Conn, req *http.Request) {
	e.connWG.Add(1)
	atomic.AddInt64(&e.connCount, 1)
	defer atomic.AddInt64(&e.connCount, -1)
	defer e.connWG.Done()
	defer conn.Close()

	corrID := uuid.New().String()

	wsConn := protocol.NewWSConnection(conn, e.bufPool, 64, req.URL.Path)

	entry, ok := e.cfg.DomainMap.Lookup(req.Host)
	if !ok || len(entry.Targets) == 0 {
		e.log().Info("engine: no route", zap.String("conn", corrID), zap.String("host", req.Host))
		wsConn.SendFrame(closeFrame(closeNoRoute, "no route for host"))
		return
	}
	target := entry.Targets[0]

	backend, err := net.DialTimeout("tcp", target, backendDialTimeout)
	if err != nil {
		e.log().Warn("engine: backend dial failed",
			zap.String("conn", corrID), zap.String("target", target), zap.Error(err))
		wsConn.SendFrame(closeFrame(closeBackendUnreachable, "backend unreachable"))
		return
	}
	defer backend.Close()

	e.log().Info("engine: relay established",
		zap.String("conn", corrID), zap.String("host", req.Host), zap.String("target", target))

	wsConn.SetHandler(&relayHandler{backend: backend})
	wsConn.Start()

	go pumpBackendToClient(backend, wsConn)

	<-wsConn.Done()
}

func closeFrame(code uint16, reason string) *protocol.WSFrame {
	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)
	return &protocol.WSFrame{IsFinal: true, Opcode: protocol.OpcodeClose, PayloadLen: int64(len(payload)), Payload: payload}
}

// pumpBackendToClient reads raw bytes off backend and wraps each chunk as a
// binary WebSocket frame sent back to the client.
func pumpBackendToClient(backend net.Conn, wsConn *protocol.WSConnection) {
	buf := make([]byte, 32*1024)
	for {
		n, err := backend.Read(buf)
		if err != nil {
			wsConn.Close()
			return
		}
		frame := &protocol.WSFrame{
			IsFinal:    true,
			Opcode:     protocol.OpcodeBinary,
			PayloadLen: int64(n),
			Payload:    buf[:n],
		}
		if err := wsConn.SendFrame(frame); err != nil {
			return
		}
	}
}

// RoutesChanged is a no-op beyond a log line: the accept loop always
// consults the live DomainMap pointer through Lookup, so there is no
// cached routing state here to refresh.
func (e *Engine) RoutesChanged() {
	e.log().Info("engine: routes changed", zap.Int("worker", e.cfg.WorkerID))
}

// Stop closes the listener, unblocking the accept loop, then waits for
// in-flight relays to drain before signaling Stopped.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
		if e.statsTimer != nil {
			e.statsTimer.Cancel()
		}
		if e.ln != nil {
			e.ln.Close()
		}
		go func() {
			done := make(chan struct{})
			go func() {
				e.connWG.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(10 * time.Second):
				e.log().Warn("engine: shutdown drain timed out", zap.Int("worker", e.cfg.WorkerID))
			}
			close(e.stoppedCh)
		}()
	})
}

func (e *Engine) fail() {
	e.errOnce.Do(func() { close(e.errCh) })
}

func (e *Engine) Started() <-chan struct{} { return e.startedCh }
func (e *Engine) Stopped() <-chan struct{} { return e.stoppedCh }
func (e *Engine) Error() <-chan struct{}   { return e.errCh }
