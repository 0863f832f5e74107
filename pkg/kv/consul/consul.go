// Package consul is a kv.KV backed by a consul cluster's key/value store.
package consul

import (
	"errors"
	"net/url"

	consul "github.com/hashicorp/consul/api"
	"github.com/hashicorp/consul/api/watch"
	"github.com/mistifyio/kelpie/pkg/kv"
)

var err404 = errors.New("key not found")

func init() {
	kv.Register("consul", New)
}

type ckv struct {
	c      *consul.KV
	client *consul.Client
	config *consul.Config
}

// New instantiates a consul kv implementation.
// The parameter addr may be the empty string or a valid URL.
// If addr is not empty it must be a valid URL with schemes http, https or consul; consul is synonymous with http.
// If addr is the empty string the consul client will connect to the default address, which may be influenced by the environment.
func New(addr string) (kv.KV, error) {
	config := consul.DefaultConfig()
	if addr != "" {
		u, err := url.Parse(addr)
		if err != nil {
			return nil, err
		}

		if u.Scheme != "consul" {
			config.Scheme = u.Scheme
		}
		config.Address = u.Host
	}

	client, err := consul.NewClient(config)
	if err != nil {
		return nil, err
	}

	return &ckv{c: client.KV(), client: client, config: config}, nil
}

func (c *ckv) Delete(key string, recurse bool) error {
	var err error
	if recurse {
		_, err = c.c.DeleteTree(key, nil)
	} else {
		_, err = c.c.Delete(key, nil)
	}
	return err
}

func (c *ckv) Get(key string) (kv.Value, error) {
	kvp, _, err := c.c.Get(key, nil)
	if err != nil {
		return kv.Value{}, err
	}
	if kvp == nil || kvp.Value == nil {
		return kv.Value{}, err404
	}
	return kv.Value{Data: kvp.Value, Index: kvp.ModifyIndex}, nil
}

func (c *ckv) GetAll(prefix string) (map[string]kv.Value, error) {
	pairs, _, err := c.c.List(prefix, nil)
	if err != nil {
		return nil, err
	}
	many := make(map[string]kv.Value, len(pairs))
	for _, kvp := range pairs {
		many[kvp.Key] = kv.Value{Data: kvp.Value, Index: kvp.ModifyIndex}
	}
	return many, nil
}

func (c *ckv) Keys(key string) ([]string, error) {
	keys, _, err := c.c.Keys(key, "/", nil)
	return keys, err
}

func (c *ckv) Set(key, value string) error {
	_, err := c.c.Put(&consul.KVPair{Key: key, Value: []byte(value)}, nil)
	return err
}

func (c *ckv) IsKeyNotFound(err error) bool {
	return err == err404
}

func (c *ckv) Watch(prefix string, index uint64, stop chan struct{}) (chan kv.Event, chan error, error) {
	wp, err := watch.Parse(map[string]interface{}{
		"type":   "keyprefix",
		"prefix": prefix,
	})
	if err != nil {
		return nil, nil, err
	}

	events := make(chan kv.Event)
	errs := make(chan error)

	send := func(event kv.Event) bool {
		select {
		case events <- event:
			return true
		case <-stop:
			return false
		}
	}

	saved := map[string]uint64{}
	first := true
	wp.Handler = func(_ uint64, data interface{}) {
		pairs, _ := data.(consul.KVPairs)
		current := make(map[string]uint64, len(pairs))

		for _, kvp := range pairs {
			current[kvp.Key] = kvp.ModifyIndex

			// the initial listing is the current state, not a change
			if first && kvp.ModifyIndex <= index {
				continue
			}

			event := kv.Event{
				Key: kvp.Key,
				Value: kv.Value{
					Data:  kvp.Value,
					Index: kvp.ModifyIndex,
				},
			}

			old, ok := saved[kvp.Key]
			switch {
			case !ok:
				event.Type = kv.Create
			case old != kvp.ModifyIndex:
				event.Type = kv.Update
			default:
				delete(saved, kvp.Key)
				continue
			}
			if !send(event) {
				return
			}
			delete(saved, kvp.Key)
		}

		// anything left over in saved is gone from the listing
		for key, index := range saved {
			if !send(kv.Event{Key: key, Type: kv.Delete, Value: kv.Value{Index: index}}) {
				return
			}
		}

		saved = current
		first = false
	}

	go func() {
		<-stop
		wp.Stop()
	}()
	go func() {
		if err := wp.Run(c.config.Address); err != nil {
			select {
			case errs <- err:
			case <-stop:
			}
		}
	}()

	return events, errs, nil
}

// Close is a no-op, consul clients hold no resources worth releasing
func (c *ckv) Close() error {
	return nil
}
