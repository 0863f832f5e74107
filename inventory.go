package kelpie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mistifyio/kelpie/pkg/kv"
	"github.com/mistifyio/kelpie/pkg/watcher"
)

// ComputePath is the kv prefix compute records are kept under
var ComputePath = "kelpie/computes/"

// Inventory keeps ComputeConfig records in a kv store so that computes
// registered with one server are known to the next
type Inventory struct {
	kv kv.KV
}

// NewInventory creates an Inventory over k
func NewInventory(k kv.KV) *Inventory {
	return &Inventory{kv: k}
}

func (i *Inventory) key(id string) string {
	return ComputePath + id
}

// Save stores a compute record, replacing any with the same id
func (i *Inventory) Save(config ComputeConfig) error {
	if config.ID == "" {
		return &ValidationError{Field: "compute_id", Message: "required"}
	}
	if strings.Contains(config.ID, "/") {
		return &ValidationError{Field: "compute_id", Message: "must not contain '/'"}
	}
	data, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return i.kv.Set(i.key(config.ID), string(data))
}

// Get fetches a compute record by id
func (i *Inventory) Get(id string) (ComputeConfig, error) {
	var config ComputeConfig
	v, err := i.kv.Get(i.key(id))
	if err != nil {
		if i.kv.IsKeyNotFound(err) {
			return config, &NotFoundError{Kind: "compute", ID: id}
		}
		return config, err
	}
	err = json.Unmarshal(v.Data, &config)
	return config, err
}

// Remove deletes a compute record
func (i *Inventory) Remove(id string) error {
	if _, err := i.kv.Get(i.key(id)); err != nil {
		if i.kv.IsKeyNotFound(err) {
			return &NotFoundError{Kind: "compute", ID: id}
		}
		return err
	}
	return i.kv.Delete(i.key(id), false)
}

// Load returns every readable record ordered by id. Records that cannot be
// decoded are skipped and reported together in the error.
func (i *Inventory) Load() ([]ComputeConfig, error) {
	values, err := i.kv.GetAll(ComputePath)
	if err != nil {
		return nil, err
	}

	var result *multierror.Error
	configs := make([]ComputeConfig, 0, len(values))
	for key, value := range values {
		config, err := decodeComputeRecord(key, value)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		configs = append(configs, config)
	}
	sort.Slice(configs, func(a, b int) bool { return configs[a].ID < configs[b].ID })
	return configs, result.ErrorOrNil()
}

func decodeComputeRecord(key string, value kv.Value) (ComputeConfig, error) {
	var config ComputeConfig
	if err := json.Unmarshal(value.Data, &config); err != nil {
		return config, fmt.Errorf("compute record %s: %w", key, err)
	}
	if id := strings.TrimPrefix(key, ComputePath); config.ID != id {
		return config, fmt.Errorf("compute record %s: id %q does not match key", key, config.ID)
	}
	return config, nil
}

// RegisterCompute creates an HTTPCompute from config, registers it and, with
// an inventory, records it there as well
func (c *Controller) RegisterCompute(config ComputeConfig) (*HTTPCompute, error) {
	compute, err := NewHTTPCompute(config)
	if err != nil {
		return nil, err
	}
	if err := c.AddCompute(compute); err != nil {
		return nil, err
	}
	if c.inventory == nil {
		return compute, nil
	}
	if err := c.inventory.Save(config); err != nil {
		_ = c.RemoveCompute(compute.ID())
		return nil, err
	}
	return compute, nil
}

// UnregisterCompute removes a compute and its inventory record, if any
func (c *Controller) UnregisterCompute(id string) error {
	if err := c.RemoveCompute(id); err != nil {
		return err
	}
	if c.inventory == nil {
		return nil
	}
	if err := c.inventory.Remove(id); err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// upsertCompute registers config, reconfiguring an HTTPCompute already
// registered under the id so VMs using it follow the change
func (c *Controller) upsertCompute(config ComputeConfig) error {
	if existing, err := c.Compute(config.ID); err == nil {
		if hc, ok := existing.(*HTTPCompute); ok {
			return hc.Reconfigure(config)
		}
	}
	compute, err := NewHTTPCompute(config)
	if err != nil {
		return err
	}
	return c.ReplaceCompute(compute)
}

// LoadComputes registers every compute in the inventory. Bad records are
// skipped; their errors are returned together once the rest are loaded.
func (c *Controller) LoadComputes(ctx context.Context) error {
	if c.inventory == nil {
		return ErrNoInventory
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	configs, err := c.inventory.Load()
	var result *multierror.Error
	if err != nil {
		result = multierror.Append(result, err)
	}
	for _, config := range configs {
		if err := c.upsertCompute(config); err != nil {
			result = multierror.Append(result, fmt.Errorf("compute %s: %w", config.ID, err))
		}
	}
	return result.ErrorOrNil()
}

// WatchComputes follows inventory changes until ctx is done, registering
// created and updated computes and removing deleted ones. Records that cannot
// be applied are passed to report, which may be nil.
func (c *Controller) WatchComputes(ctx context.Context, report func(error)) error {
	if c.inventory == nil {
		return ErrNoInventory
	}
	if report == nil {
		report = func(error) {}
	}

	w, err := watcher.New(c.kv)
	if err != nil {
		return err
	}
	if err := w.Add(ComputePath); err != nil {
		_ = w.Close()
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = w.Close()
	}()

	for w.Next() {
		event := w.Event()
		id := strings.TrimPrefix(event.Key, ComputePath)

		switch event.Type {
		case kv.Delete:
			if err := c.RemoveCompute(id); err != nil && !IsNotFound(err) {
				report(err)
			}
		case kv.Create, kv.Update:
			config, err := decodeComputeRecord(event.Key, event.Value)
			if err == nil {
				err = c.upsertCompute(config)
			}
			if err != nil {
				report(err)
			}
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(w.Err(), watcher.ErrStopped) {
		return nil
	}
	return w.Err()
}
