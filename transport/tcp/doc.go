// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp implements the low-level TCP acceptor and WebSocket handshake
// logic used by the Engine.
package tcp
