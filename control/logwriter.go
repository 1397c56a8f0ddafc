// File: control/logwriter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RotatingFile is a zapcore.WriteSyncer over a single log file that can be
// closed and reopened in place, letting a SIGHUP handler rotate logs the
// way external logrotate(8)-style tooling expects: the old inode keeps the
// bytes already written to it, and new writes land in a freshly created
// file at the same path.

package control

import (
	"os"
	"sync"
)

// RotatingFile guards a single *os.File behind a mutex so Write and Reopen
// never interleave.
type RotatingFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewRotatingFile opens path for appending, creating it if necessary.
func NewRotatingFile(path string) (*RotatingFile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &RotatingFile{path: path, f: f}, nil
}

// Write implements zapcore.WriteSyncer.
func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Write(p)
}

// Sync implements zapcore.WriteSyncer.
func (r *RotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Sync()
}

// Reopen closes the current file handle and opens path again, picking up a
// file moved aside by external log rotation.
func (r *RotatingFile) Reopen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.f.Close(); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.f = f
	return nil
}

// Close closes the underlying file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
