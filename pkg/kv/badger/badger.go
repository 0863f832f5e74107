// Package badger is a kv.KV backed by an embedded badger database. It suits a
// single kelpied without an external store, and its in-memory mode serves tests.
package badger

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/mistifyio/kelpie/pkg/kv"
)

func init() {
	kv.Register("badger", New)
}

type bkv struct {
	db *badger.DB
}

// New opens a badger store. The path of addr is the database directory, e.g.
// badger:///var/lib/kelpie/kv. With no path ("badger://") the store is kept in
// memory and is gone once closed.
func New(addr string) (kv.KV, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	var opts badger.Options
	if u.Path == "" || u.Path == "/" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(u.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &bkv{db: db}, nil
}

func (b *bkv) Delete(key string, recurse bool) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if !recurse {
			return txn.Delete([]byte(key))
		}

		var keys [][]byte
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(key)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *bkv) Get(key string) (kv.Value, error) {
	var v kv.Value
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		v.Index = item.Version()
		v.Data, err = item.ValueCopy(nil)
		return err
	})
	return v, err
}

func (b *bkv) GetAll(prefix string) (map[string]kv.Value, error) {
	many := map[string]kv.Value{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			many[string(item.Key())] = kv.Value{Data: data, Index: item.Version()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return many, nil
}

func (b *bkv) Keys(prefix string) ([]string, error) {
	seen := map[string]struct{}{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			rest := strings.TrimPrefix(key, prefix)
			if i := strings.Index(rest, "/"); i >= 0 {
				key = prefix + rest[:i+1]
			}
			seen[key] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *bkv) Set(key, value string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

func (b *bkv) IsKeyNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}

// Watch subscribes to writes under prefix. Badger cannot replay history, so
// index is ignored and only changes made after the subscription is live are
// reported.
func (b *bkv) Watch(prefix string, index uint64, stop chan struct{}) (chan kv.Event, chan error, error) {
	all, err := b.GetAll(prefix)
	if err != nil {
		return nil, nil, err
	}

	var mu sync.Mutex
	saved := make(map[string]bool, len(all))
	for key := range all {
		saved[key] = true
	}

	events := make(chan kv.Event)
	errs := make(chan error)
	ctx, cancel := context.WithCancel(context.Background())

	handler := func(list *badger.KVList) error {
		for _, item := range list.Kv {
			key := string(item.Key)
			event := kv.Event{
				Key: key,
				Value: kv.Value{
					Data:  item.Value,
					Index: item.Version,
				},
			}

			mu.Lock()
			switch {
			case len(item.Value) == 0 && b.deleted(key):
				event.Type = kv.Delete
				delete(saved, key)
			case saved[key]:
				event.Type = kv.Update
			default:
				event.Type = kv.Create
				saved[key] = true
			}
			mu.Unlock()

			select {
			case events <- event:
			case <-stop:
				return nil
			}
		}
		return nil
	}

	go func() {
		<-stop
		cancel()
	}()
	go func() {
		err := b.db.Subscribe(ctx, handler, []pb.Match{{Prefix: []byte(prefix)}})
		if err != nil && ctx.Err() == nil {
			select {
			case errs <- err:
			case <-stop:
			}
		}
	}()

	return events, errs, nil
}

func (b *bkv) deleted(key string) bool {
	_, err := b.Get(key)
	return b.IsKeyNotFound(err)
}

func (b *bkv) Close() error {
	return b.db.Close()
}
