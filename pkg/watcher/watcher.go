// Package watcher multiplexes prefix watches of a kv.KV into one stream of
// events, consumed with Next/Event/Err in the style of bufio.Scanner.
package watcher

import (
	"errors"
	"sync"

	"github.com/mistifyio/kelpie/pkg/kv"
)

// Errors
var (
	ErrPrefixNotWatched = errors.New("prefix is not being watched")
	ErrStopped          = errors.New("watcher has been stopped")
)

// Watcher watches any number of kv prefixes
type Watcher struct {
	kv     kv.KV
	events chan kv.Event
	errors chan error
	done   chan struct{}
	err    error
	event  kv.Event

	mu       sync.Mutex // mu protects the following two vars
	isClosed bool
	prefixes map[string]chan struct{}
}

// New creates a Watcher over k
func New(k kv.KV) (*Watcher, error) {
	if k == nil {
		return nil, errors.New("kv is required")
	}
	w := &Watcher{
		kv:       k,
		events:   make(chan kv.Event),
		errors:   make(chan error),
		done:     make(chan struct{}),
		prefixes: map[string]chan struct{}{},
	}
	return w, nil
}

// Add starts watching prefix. Adding a watched prefix is a no-op.
func (w *Watcher) Add(prefix string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isClosed {
		return ErrStopped
	}

	if _, ok := w.prefixes[prefix]; ok {
		return nil
	}

	stop := make(chan struct{})
	events, errs, err := w.kv.Watch(prefix, 0, stop)
	if err != nil {
		return err
	}
	w.prefixes[prefix] = stop
	go w.forward(events, errs, stop)
	return nil
}

// Next blocks until an event or an error arrives. It returns false on error or
// once the watcher is closed, after which Err explains why.
func (w *Watcher) Next() bool {
	select {
	case event := <-w.events:
		w.event = event
		return true
	case err := <-w.errors:
		w.err = err
		return false
	case <-w.done:
		w.err = ErrStopped
		return false
	}
}

// Event returns the event read by the last successful Next
func (w *Watcher) Event() kv.Event {
	return w.event
}

// Err returns the error that made Next return false
func (w *Watcher) Err() error {
	return w.err
}

// Remove stops watching prefix
func (w *Watcher) Remove(prefix string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	stop, ok := w.prefixes[prefix]
	if !ok {
		return ErrPrefixNotWatched
	}

	close(stop)
	delete(w.prefixes, prefix)
	return nil
}

// Close stops every watch. Close may be called more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isClosed {
		return nil
	}
	w.isClosed = true
	close(w.done)

	for prefix, stop := range w.prefixes {
		close(stop)
		delete(w.prefixes, prefix)
	}

	return nil
}

func (w *Watcher) forward(events chan kv.Event, errs chan error, stop chan struct{}) {
	for {
		select {
		case event := <-events:
			select {
			case w.events <- event:
			case <-stop:
				return
			}
		case err := <-errs:
			select {
			case w.errors <- err:
			case <-stop:
			}
			return
		case <-stop:
			return
		}
	}
}
