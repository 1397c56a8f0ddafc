// File: internal/signalquit/signalquit.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package signalquit is the Go rendering of the core's ProcessQuit
// singleton: it turns SIGINT/SIGTERM into a quit notification and SIGHUP
// into a reload notification, both dispatched onto a caller-chosen loop
// thread via defercall rather than run directly on the signal-handling
// goroutine.
package signalquit

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/momentics/gripcore/internal/defercall"
)

// ProcessQuit is a process-wide singleton wiring OS signals to listener
// callbacks dispatched on a caller-chosen thread.
type ProcessQuit struct {
	mu           sync.Mutex
	quitListeners []func()
	hupListeners  []func()
	sigCh         chan os.Signal
	stopCh        chan struct{}
	fired         bool
}

var (
	once     sync.Once
	instance *ProcessQuit
)

// Instance returns the process-wide ProcessQuit, starting its signal
// watcher goroutine on first call.
func Instance() *ProcessQuit {
	once.Do(func() {
		instance = &ProcessQuit{
			sigCh:  make(chan os.Signal, 4),
			stopCh: make(chan struct{}),
		}
		signal.Notify(instance.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		go instance.watch()
	})
	return instance
}

func (p *ProcessQuit) watch() {
	for {
		select {
		case sig := <-p.sigCh:
			switch sig {
			case syscall.SIGHUP:
				p.fireHup()
			default:
				p.fireQuit()
			}
		case <-p.stopCh:
			return
		}
	}
}

// OnQuit registers fn to run (via the defer handle, on its loop thread)
// when SIGINT or SIGTERM arrives. Quit fires at most once per process, so
// an fn registered after it has fired is never called.
func (p *ProcessQuit) OnQuit(defer_ *defercall.DeferCall, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quitListeners = append(p.quitListeners, func() { defer_.Defer(fn) })
}

// OnHup registers fn to run (via the defer handle, on its loop thread)
// each time SIGHUP arrives.
func (p *ProcessQuit) OnHup(defer_ *defercall.DeferCall, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hupListeners = append(p.hupListeners, func() { defer_.Defer(fn) })
}

func (p *ProcessQuit) fireQuit() {
	p.mu.Lock()
	if p.fired {
		p.mu.Unlock()
		return
	}
	p.fired = true
	listeners := append([]func(){}, p.quitListeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l()
	}
}

func (p *ProcessQuit) fireHup() {
	p.mu.Lock()
	listeners := append([]func(){}, p.hupListeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l()
	}
}

// Cleanup stops the signal watcher and detaches from os/signal. Intended
// for use after quit has fired and the process is tearing down.
func (p *ProcessQuit) Cleanup() {
	signal.Stop(p.sigCh)
	close(p.stopCh)
}
