package kelpie

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/mistifyio/kelpie/pkg/kv"
	"github.com/pborman/uuid"
)

// Controller is the registry of computes and projects. One is created per
// running server and handed to whatever needs it.
type Controller struct {
	kv        kv.KV
	inventory *Inventory

	mu       sync.RWMutex // mu protects the following
	computes map[string]Compute
	projects map[string]*Project
}

// NewController creates an empty Controller. k backs the compute inventory
// and may be nil, in which case computes only live in memory.
func NewController(k kv.KV) *Controller {
	c := &Controller{
		kv:       k,
		computes: make(map[string]Compute),
		projects: make(map[string]*Project),
	}
	if k != nil {
		c.inventory = NewInventory(k)
	}
	return c
}

// Inventory returns the compute inventory, or nil without a kv store
func (c *Controller) Inventory() *Inventory {
	return c.inventory
}

// AddProject creates and registers a project. An empty id generates one.
func (c *Controller) AddProject(id, name string) (*Project, error) {
	if id == "" {
		id = uuid.New()
	} else if uuid.Parse(id) == nil {
		return nil, &ValidationError{Field: "project_id", Message: "invalid uuid " + id}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.projects[id]; ok {
		return nil, &DuplicateError{Kind: "project", ID: id}
	}
	p := newProject(c, id, name)
	c.projects[id] = p
	return p, nil
}

// Project fetches a project by id
func (c *Controller) Project(id string) (*Project, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.projects[id]
	if !ok {
		return nil, &NotFoundError{Kind: "project", ID: id}
	}
	return p, nil
}

// Projects returns every project ordered by id
func (c *Controller) Projects() Projects {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedProjects(c.projects)
}

// DeleteProject deletes every VM of a project on its compute, concurrently,
// and then drops the project. The project takes no new VMs while this runs.
// If any VM delete fails the project stays registered with the VMs that could
// not be deleted, and the failures are returned together.
func (c *Controller) DeleteProject(ctx context.Context, id string) error {
	p, err := c.Project(id)
	if err != nil {
		return err
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, vm := range p.close() {
		wg.Add(1)
		go func(vm *VM) {
			defer wg.Done()
			if err := vm.Delete(ctx); err != nil && !IsNotFound(err) {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("vm %s: %w", vm.ID(), err))
				mu.Unlock()
			}
		}(vm)
	}
	wg.Wait()

	if err := result.ErrorOrNil(); err != nil {
		p.reopen()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projects[id] == p {
		delete(c.projects, id)
	}
	return nil
}

// AddCompute registers a compute
func (c *Controller) AddCompute(compute Compute) error {
	if compute.ID() == "" {
		return &ValidationError{Field: "compute_id", Message: "required"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.computes[compute.ID()]; ok {
		return &DuplicateError{Kind: "compute", ID: compute.ID()}
	}
	c.computes[compute.ID()] = compute
	return nil
}

// ReplaceCompute registers a compute, replacing any with the same id
func (c *Controller) ReplaceCompute(compute Compute) error {
	if compute.ID() == "" {
		return &ValidationError{Field: "compute_id", Message: "required"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.computes[compute.ID()] = compute
	return nil
}

// RemoveCompute unregisters a compute. VMs already on it keep their handle.
func (c *Controller) RemoveCompute(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.computes[id]; !ok {
		return &NotFoundError{Kind: "compute", ID: id}
	}
	delete(c.computes, id)
	return nil
}

// Compute fetches a compute by id
func (c *Controller) Compute(id string) (Compute, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	compute, ok := c.computes[id]
	if !ok {
		return nil, &NotFoundError{Kind: "compute", ID: id}
	}
	return compute, nil
}

// Computes returns every compute ordered by id
func (c *Controller) Computes() Computes {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedComputes(c.computes)
}

// Close drops every project and compute. Computes that hold resources are
// closed; their errors are returned together.
func (c *Controller) Close() error {
	c.mu.Lock()
	computes := c.computes
	c.computes = make(map[string]Compute)
	c.projects = make(map[string]*Project)
	c.mu.Unlock()

	var result *multierror.Error
	for _, compute := range sortedComputes(computes) {
		closer, ok := compute.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("compute %s: %w", compute.ID(), err))
		}
	}
	return result.ErrorOrNil()
}
