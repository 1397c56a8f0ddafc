//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation and factory.

package reactor

import (
	"golang.org/x/sys/unix"
)

// linuxReactor is an epoll-based event reactor.
type linuxReactor struct {
	epfd int
}

// NewReactor constructs a new platform-specific EventReactor for Linux.
func NewReactor() (EventReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &linuxReactor{epfd: epfd}, nil
}

// Register adds a file descriptor to the epoll interest set, level-triggered
// for both read and write readiness. udata travels in the 32-bit slot beside
// fd: it is truncated to int32 here and sign-extended by Wait, so ^uintptr(0)
// and every value below 1<<31 come back unchanged.
func (r *linuxReactor) Register(fd uintptr, udata uintptr) error {
	event := &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT,
		Fd:     int32(fd),
		Pad:    int32(udata),
	}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), event)
}

// Unregister removes fd from the epoll interest set.
func (r *linuxReactor) Unregister(fd uintptr) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

// Wait blocks until events are ready or timeoutMs elapses, retrying
// internally on EINTR so callers never see a spurious empty wakeup.
func (r *linuxReactor) Wait(events []Event, timeoutMs int) (int, error) {
	rawEvents := make([]unix.EpollEvent, len(events))
	for {
		n, err := unix.EpollWait(r.epfd, rawEvents, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		for i := 0; i < n; i++ {
			events[i] = Event{
				Fd:       uintptr(rawEvents[i].Fd),
				UserData: uintptr(rawEvents[i].Pad),
			}
		}
		return n, nil
	}
}

// Close closes the epoll instance.
func (r *linuxReactor) Close() error {
	return unix.Close(r.epfd)
}
