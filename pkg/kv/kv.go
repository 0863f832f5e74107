// Package kv is a small abstraction over key/value stores. Implementations
// register a URL scheme in their init and are selected with New.
package kv

import (
	"fmt"
	"net/url"
	"sync"
)

// Value is a stored value along with the store's modification index for it
type Value struct {
	Data  []byte
	Index uint64
}

// EventType describes what happened to a key
type EventType int

// Event types
const (
	None EventType = iota
	Get
	Create
	Delete
	Update
)

var types = map[EventType]string{
	None:   "None",
	Get:    "Get",
	Create: "Create",
	Delete: "Delete",
	Update: "Update",
}

func (t EventType) String() string {
	return types[t]
}

// Event is a change to a watched key
type Event struct {
	Key  string
	Type EventType
	Value
}

// GoString implements fmt.GoStringer
func (e Event) GoString() string {
	return fmt.Sprintf("{Key:%s, Type:%s, Index: %d, Value: %s}", e.Key, e.Type, e.Index, string(e.Data))
}

var register = struct {
	sync.RWMutex
	kvs map[string]func(string) (KV, error)
}{
	kvs: map[string]func(string) (KV, error){},
}

// Register is called by KV implementors to register their scheme to be used
// with New
func Register(name string, fn func(string) (KV, error)) {
	register.Lock()
	defer register.Unlock()

	if _, dup := register.kvs[name]; dup {
		panic("kv: Register called twice for " + name)
	}
	register.kvs[name] = fn
}

// New will return a KV implementation according to the connection string addr.
// addr is a URL where the scheme is used to determine which kv implementation to return.
// The special `http` and `https` schemes are deemed generic, the first implementation that supports it will be returned.
func New(addr string) (KV, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	register.RLock()
	defer register.RUnlock()

	fn := register.kvs[u.Scheme]
	if fn != nil {
		return fn(addr)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unknown kv store %s (forgotten import?)", u.Scheme)
	}

	for _, constructor := range register.kvs {
		kv, err := constructor(addr)
		if err != nil {
			return nil, err
		}
		if kv != nil {
			return kv, nil
		}
	}
	return nil, fmt.Errorf("unknown kv store")
}

// KV is the interface for key value store interaction
type KV interface {
	Delete(key string, recurse bool) error
	Get(key string) (Value, error)
	GetAll(prefix string) (map[string]Value, error)
	// Keys lists the direct children of prefix, descending no further than
	// the next "/". Child directories keep their trailing "/".
	Keys(prefix string) ([]string, error)
	Set(key, value string) error

	// IsKeyNotFound is a helper to determine if the error is a key not found error
	IsKeyNotFound(error) bool

	// Watch sends an Event for every change under prefix until stop is
	// closed. Implementations that cannot resume from an index ignore it.
	Watch(prefix string, index uint64, stop chan struct{}) (chan Event, chan error, error)

	Close() error
}
