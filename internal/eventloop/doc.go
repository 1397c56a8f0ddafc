// File: internal/eventloop/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package eventloop implements the single-threaded reactor every worker
// thread drives: a bounded table of timer, file-descriptor, and
// set-readiness registrations dispatched in deadline/FIFO order from one
// goroutine pinned to one OS thread.
package eventloop
