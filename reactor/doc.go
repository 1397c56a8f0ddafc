// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the core poll-mode event reactor abstraction and
// an epoll(7)-backed implementation for Linux. Other platforms, including
// Windows, get reactor_stub.go's NewReactor, which returns an error: there
// is no IOCP-backed EventReactor in this tree. affinity/affinity_windows.go
// still builds there since CPU pinning is independent of the reactor.
package reactor
