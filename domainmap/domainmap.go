// File: domainmap/domainmap.go
// Package domainmap owns the routing table consulted by every worker's
// Engine: which backend(s) a given inbound Host header maps to.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package domainmap

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Entry is a single parsed route line: the route pattern (an exact host, or
// "*" for a catch-all), an ordered list of backend targets (host:port or a
// unix socket path prefixed with "unix:"), and whether the backend leg
// should be dialed over TLS.
type Entry struct {
	Pattern string
	Targets []string
	TLS     bool
	Raw     string
}

// DomainMap holds a routing table that can be swapped atomically while
// worker goroutines concurrently read it via Lookup.
type DomainMap struct {
	routes  atomic.Pointer[[]Entry]
	path    string
	watcher *fsnotify.Watcher
	changed chan struct{}
	log     *zap.Logger
}

// NewFromLines builds a DomainMap from in-memory route lines, as supplied
// by repeated --route flags. There is no file to watch, so Reload is a
// no-op and Changed never fires on its own.
func NewFromLines(lines []string, log *zap.Logger) (*DomainMap, error) {
	dm := &DomainMap{changed: make(chan struct{}, 1), log: log}
	entries, err := parseLines(lines)
	if err != nil {
		return nil, err
	}
	dm.routes.Store(&entries)
	return dm, nil
}

// NewFromFile builds a DomainMap from a routes file and starts an fsnotify
// watch so external edits trigger an automatic Reload.
func NewFromFile(path string, log *zap.Logger) (*DomainMap, error) {
	dm := &DomainMap{path: path, changed: make(chan struct{}, 1), log: log}
	if err := dm.Reload(); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("domainmap: fsnotify: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("domainmap: watch %s: %w", path, err)
	}
	dm.watcher = w
	go dm.watchLoop()
	return dm, nil
}

func (d *DomainMap) watchLoop() {
	for ev := range d.watcher.Events {
		if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		if err := d.Reload(); err != nil {
			if d.log != nil {
				d.log.Warn("domainmap: reload after fsnotify event failed", zap.Error(err))
			}
			continue
		}
	}
}

// AddRouteLine appends one route to the current table and republishes it.
// Used for --route flags supplied after construction and for programmatic
// route injection in tests.
func (d *DomainMap) AddRouteLine(line string) error {
	entry, err := parseLine(line)
	if err != nil {
		return err
	}
	cur := d.routes.Load()
	next := make([]Entry, 0, len(*cur)+1)
	if cur != nil {
		next = append(next, *cur...)
	}
	next = append(next, entry)
	d.publish(next)
	return nil
}

// Reload re-reads the backing file, if any, and republishes the table.
// Reloading from inline lines (no file) is a no-op that returns nil.
func (d *DomainMap) Reload() error {
	if d.path == "" {
		return nil
	}
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("domainmap: open %s: %w", d.path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("domainmap: read %s: %w", d.path, err)
	}
	entries, err := parseLines(lines)
	if err != nil {
		return err
	}
	d.publish(entries)
	return nil
}

func (d *DomainMap) publish(entries []Entry) {
	d.routes.Store(&entries)
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

// Changed returns a channel that receives a value every time the route
// table is swapped. The Supervisor selects on this to fan out
// RoutesChanged to every worker.
func (d *DomainMap) Changed() <-chan struct{} { return d.changed }

// Lookup returns the route entry matching host, preferring an exact match
// over the catch-all "*" pattern.
func (d *DomainMap) Lookup(host string) (Entry, bool) {
	cur := d.routes.Load()
	if cur == nil {
		return Entry{}, false
	}
	host = strings.ToLower(host)
	var wildcard *Entry
	for i := range *cur {
		e := (*cur)[i]
		if e.Pattern == "*" {
			wildcard = &e
			continue
		}
		if strings.ToLower(e.Pattern) == host {
			return e, true
		}
	}
	if wildcard != nil {
		return *wildcard, true
	}
	return Entry{}, false
}

// RouteCount returns the number of entries in the current routing table.
func (d *DomainMap) RouteCount() int {
	cur := d.routes.Load()
	if cur == nil {
		return 0
	}
	return len(*cur)
}

// Close stops the fsnotify watch, if any.
func (d *DomainMap) Close() error {
	if d.watcher != nil {
		return d.watcher.Close()
	}
	return nil
}

func parseLines(lines []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		e, err := parseLine(l)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// parseLine parses "<pattern> <target1>,<target2>,... [tls]".
func parseLine(line string) (Entry, error) {
	raw := line
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Entry{}, fmt.Errorf("domainmap: malformed route line %q", raw)
	}
	pattern := fields[0]
	targets := strings.Split(fields[1], ",")
	for i := range targets {
		targets[i] = strings.TrimSpace(targets[i])
	}
	tls := false
	for _, opt := range fields[2:] {
		if strings.EqualFold(opt, "tls") {
			tls = true
		}
	}
	return Entry{Pattern: pattern, Targets: targets, TLS: tls, Raw: raw}, nil
}
