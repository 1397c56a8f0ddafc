// File: internal/workerpool/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package workerpool implements WorkerThread: a goroutine pinned to one OS
// thread, owning one EventLoop, one defercall Manager, and one Engine. The
// Supervisor starts workers sequentially and fans out RoutesChanged and
// Stop through each worker's DeferCall handle.
package workerpool
