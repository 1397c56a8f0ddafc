// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral event reactor interface for cross-platform IO multiplexing.

package reactor

// EventReactor defines basic reactor operations across OS platforms.
type EventReactor interface {
	// Register adds fd to the interest set.
	Register(fd uintptr, userData uintptr) error

	// Unregister removes fd from the interest set.
	Unregister(fd uintptr) error

	// Wait blocks until events are available, or timeoutMs elapses (-1
	// blocks indefinitely, 0 polls without blocking), and writes into the
	// output slice. Returns the number of events written.
	Wait(events []Event, timeoutMs int) (n int, err error)

	// Close cleans up resources (handle/epfd).
	Close() error
}

// Event contains event information returned by a Wait call.
type Event struct {
	Fd       uintptr // File descriptor or handle.
	UserData uintptr // User-provided data.
}
