// File: protocol/connection.go
// Package protocol implements the core WebSocket connection handling.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WSConnection encapsulates a full-duplex WebSocket session directly over
// a net.Conn. It no longer sits behind a separate transport abstraction:
// one net.Conn per session is all a relay proxy needs, and the extra layer
// only obscured where bytes actually travel.

package protocol

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/gripcore/api"
)

// WSConnection encapsulates a full-duplex WebSocket session.
type WSConnection struct {
	conn    net.Conn
	bufPool api.BufferPool
	path    string // Request path for routing

	inbox  chan *WSFrame
	outbox chan *WSFrame

	mu      sync.RWMutex
	handler api.Handler

	done   chan struct{}
	closed int32

	recvQueue chan api.Buffer

	readBuf []byte

	bytesReceived  int64
	bytesSent      int64
	framesReceived int64
	framesSent     int64
}

// NewWSConnection constructs a WSConnection with specified channel capacity and path.
func NewWSConnection(conn net.Conn, pool api.BufferPool, channelSize int, path string) *WSConnection {
	return &WSConnection{
		conn:      conn,
		bufPool:   pool,
		path:      path,
		inbox:     make(chan *WSFrame, channelSize),
		outbox:    make(chan *WSFrame, channelSize),
		done:      make(chan struct{}),
		recvQueue: make(chan api.Buffer, 64),
		readBuf:   make([]byte, 0, 4096),
	}
}

// Conn provides access to the underlying net.Conn, letting callers set I/O
// deadlines or inspect the remote address.
func (c *WSConnection) Conn() net.Conn { return c.conn }

// Path returns the original request path for routing purposes.
func (c *WSConnection) Path() string { return c.path }

// BufferPool returns the buffer pool associated with this connection.
func (c *WSConnection) BufferPool() api.BufferPool { return c.bufPool }

// RecvZeroCopy performs zero-copy receive: if recvLoop is running it drains
// the internal queue, otherwise it reads and decodes frames directly.
func (c *WSConnection) RecvZeroCopy() ([]api.Buffer, error) {
	select {
	case buf := <-c.recvQueue:
		return []api.Buffer{buf}, nil
	case <-c.done:
		return nil, api.ErrEngineClosed
	default:
		frame, err := c.readFrame()
		if err != nil {
			return nil, err
		}
		buf := c.bufPool.Get(int(frame.PayloadLen), -1)
		copy(buf.Bytes(), frame.Payload)
		atomic.AddInt64(&c.framesReceived, 1)
		atomic.AddInt64(&c.bytesReceived, frame.PayloadLen)
		return []api.Buffer{buf}, nil
	}
}

// readFrame blocks on the socket until a full frame header and payload have
// been read, growing readBuf as needed.
func (c *WSConnection) readFrame() (*WSFrame, error) {
	for {
		if frame, n, err := DecodeFrameFromBytes(c.readBuf); err != nil {
			return nil, err
		} else if frame != nil {
			c.readBuf = c.readBuf[n:]
			return frame, nil
		}
		chunk := make([]byte, 4096)
		n, err := c.conn.Read(chunk)
		if err != nil {
			return nil, err
		}
		c.readBuf = append(c.readBuf, chunk[:n]...)
	}
}

// SendFrame encodes and writes a WSFrame directly to the socket.
func (c *WSConnection) SendFrame(frame *WSFrame) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return api.ErrEngineClosed
	}
	data, err := EncodeFrameToBytesWithMask(frame, frame.Masked)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		return err
	}
	atomic.AddInt64(&c.framesSent, 1)
	atomic.AddInt64(&c.bytesSent, frame.PayloadLen)
	return nil
}

// Start launches receive and send loops.
func (c *WSConnection) Start() {
	go c.recvLoop()
	go c.sendLoop()
}

// GetInboxChan returns the inbox channel for receiving incoming frames.
func (c *WSConnection) GetInboxChan() <-chan *WSFrame { return c.inbox }

// Close initiates shutdown: signals loops and closes the socket.
func (c *WSConnection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.done)
	return c.conn.Close()
}

// Done returns a channel closed when the connection is closed.
func (c *WSConnection) Done() <-chan struct{} { return c.done }

// SetHandler registers an api.Handler to process incoming payload Buffers.
func (c *WSConnection) SetHandler(h api.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// recvLoop continuously reads frames from the socket, handles control
// frames inline, and dispatches data frames to the inbox channel and any
// registered handler. It exits when done is closed or a read error occurs.
func (c *WSConnection) recvLoop() {
	defer c.Close()
	for {
		select {
		case <-c.done:
			return
		default:
		}
		frame, err := c.readFrame()
		if err != nil {
			return
		}
		atomic.AddInt64(&c.framesReceived, 1)
		atomic.AddInt64(&c.bytesReceived, frame.PayloadLen)

		if c.handleControl(frame) {
			continue
		}

		select {
		case c.inbox <- frame:
		case <-c.done:
			return
		}

		buf := c.bufPool.Get(int(frame.PayloadLen), -1)
		copy(buf.Bytes(), frame.Payload)

		c.mu.RLock()
		h := c.handler
		c.mu.RUnlock()
		if h != nil {
			go func(b api.Buffer) {
				defer b.Release()
				h.Handle(b)
			}(buf)
		}

		select {
		case c.recvQueue <- buf:
		default:
			buf.Release()
		}
	}
}

// sendLoop reads frames from outbox and writes them to the socket. On write
// errors it closes the connection.
func (c *WSConnection) sendLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.outbox:
			if err := c.SendFrame(frame); err != nil {
				c.Close()
				return
			}
		}
	}
}

// handleControl processes ping, pong, and close control frames per RFC6455.
// Returns true if the frame was a control frame that has been handled.
func (c *WSConnection) handleControl(frame *WSFrame) bool {
	switch frame.Opcode {
	case OpcodePing:
		pong := &WSFrame{IsFinal: true, Opcode: OpcodePong, PayloadLen: frame.PayloadLen, Payload: frame.Payload}
		c.SendFrame(pong)
		return true
	case OpcodePong:
		return true
	case OpcodeClose:
		c.SendFrame(frame)
		c.Close()
		return true
	default:
		return false
	}
}

// GetStats returns a snapshot of connection statistics for metrics reporting.
func (c *WSConnection) GetStats() map[string]int64 {
	return map[string]int64{
		"bytes_received":  atomic.LoadInt64(&c.bytesReceived),
		"bytes_sent":      atomic.LoadInt64(&c.bytesSent),
		"frames_received": atomic.LoadInt64(&c.framesReceived),
		"frames_sent":     atomic.LoadInt64(&c.framesSent),
	}
}
