// File: engine/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package engine implements the concrete api.Engine driven by one
// workerpool.Handle: bind, accept, WebSocket-upgrade, resolve via
// DomainMap, dial the backend, and relay. It is intentionally modest: a
// single backend target per route, no HTTP/1.1 keep-alive reuse, and no
// GRIP-specific framing beyond the WebSocket envelope itself.
package engine
