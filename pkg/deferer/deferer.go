// Package deferer runs cleanup before a fatal log. log.Fatal ends with
// os.Exit, which skips deferred calls, so daemons register cleanup (closing
// the kv store, the controller) with a Deferer and call its Fatal instead.
package deferer

import (
	"path/filepath"
	"runtime"
	"sync"

	"github.com/mistifyio/kelpie/pkg/logx"
	log "github.com/sirupsen/logrus"
)

// Deferer holds deferred functions and runs them once, last in first out
type Deferer struct {
	mu  sync.Mutex
	fns []func()
	ran bool
}

// New returns an empty Deferer
func New() *Deferer {
	return &Deferer{
		fns: make([]func(), 0),
	}
}

// Defer adds f to the deferred calls
func (d *Deferer) Defer(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fns = append(d.fns, f)
}

// DeferClose defers fn, logging its error with the resource name
func (d *Deferer) DeferClose(name string, fn func() error) {
	d.Defer(func() {
		logx.LogReturnedErr(fn, log.Fields{"resource": name}, "failed to close")
	})
}

// Run calls each deferred function in reverse order. Later calls do nothing.
// Common usage is `defer d.Run()` right after New.
func (d *Deferer) Run() {
	d.mu.Lock()
	if d.ran {
		d.mu.Unlock()
		return
	}
	d.ran = true
	fns := d.fns
	d.fns = nil
	d.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Fatal runs the deferred functions and then logs msg at fatal level with
// the fields plus the caller's file and line
func (d *Deferer) Fatal(fields log.Fields, msg string) {
	d.Run()

	entry := log.WithFields(fields)
	if _, file, line, ok := runtime.Caller(1); ok {
		entry = entry.WithFields(log.Fields{
			"file": filepath.Base(file),
			"line": line,
		})
	}
	entry.Fatal(msg)
}
