// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp provides a minimal TCP acceptor and WebSocket handshake for
// gripcore's Engine: parse the HTTP request, validate and complete the
// WebSocket upgrade via protocol.UpgradeToWebSocket, then hand the raw
// net.Conn and the parsed *http.Request off to the caller's handler.
package tcp

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/momentics/gripcore/affinity"
	"github.com/momentics/gripcore/protocol"
)

// HandshakeTimeout bounds how long a client has to complete the HTTP
// request line, headers, and WebSocket upgrade before the connection is
// dropped.
const HandshakeTimeout = 5 * time.Second

// ListenerConfig holds configuration for Serve and StartTCPListener.
type ListenerConfig struct {
	Addr string // TCP address to bind (used only by StartTCPListener)
	CPUID int // optional CPU to pin the accept goroutine to; -1 disables pinning

	// ConnHandler receives a connection after a successful WebSocket
	// handshake, along with the HTTP request that negotiated it (its Host
	// and URL.Path are what routing decisions key off of).
	ConnHandler func(net.Conn, *http.Request)

	// OnAcceptError, if non-nil, is called with the Accept error that ends
	// Serve (including the one caused by closing the listener), with a
	// failure to pin CPUID, and with a panic recovered from a connection's
	// handshake or ConnHandler. Serve does not retry a failed Accept.
	OnAcceptError func(error)
}

// StartTCPListener opens the TCP listening socket and runs Serve on it.
// Callers needing control over listener options (e.g. SO_REUSEPORT) should
// build the net.Listener themselves and call Serve directly instead.
func StartTCPListener(cfg *ListenerConfig) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen failed: %w", err)
	}
	go Serve(ln, cfg)
	return ln, nil
}

// Serve runs the accept loop on ln until it is closed. Each accepted
// connection is upgraded and handled on its own goroutine.
func Serve(ln net.Listener, cfg *ListenerConfig) {
	if cfg.CPUID >= 0 {
		if err := affinity.SetAffinity(cfg.CPUID); err != nil && cfg.OnAcceptError != nil {
			cfg.OnAcceptError(err)
		}
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if cfg.OnAcceptError != nil {
				cfg.OnAcceptError(err)
			}
			return
		}
		go handleConn(conn, cfg)
	}
}

// handleConn performs the HTTP/WebSocket handshake per RFC6455. On any
// failure the connection is closed without ConnHandler ever being called.
func handleConn(conn net.Conn, cfg *ListenerConfig) {
	defer func() {
		if r := recover(); r != nil && cfg.OnAcceptError != nil {
			cfg.OnAcceptError(fmt.Errorf("tcp: panic in connection handler: %v", r))
		}
	}()
	conn.SetDeadline(time.Now().Add(HandshakeTimeout))

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		conn.Close()
		return
	}
	respHeaders, err := protocol.UpgradeToWebSocket(req)
	if err != nil {
		conn.Close()
		return
	}
	if err := writeSwitchingProtocols(conn, respHeaders); err != nil {
		conn.Close()
		return
	}
	conn.SetDeadline(time.Time{})
	cfg.ConnHandler(conn, req)
}

func writeSwitchingProtocols(conn net.Conn, headers http.Header) error {
	resp := "HTTP/1.1 101 Switching Protocols\r\n"
	for k, vs := range headers {
		for _, v := range vs {
			resp += fmt.Sprintf("%s: %s\r\n", k, v)
		}
	}
	resp += "\r\n"
	_, err := conn.Write([]byte(resp))
	return err
}
