package kelpie

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/mistifyio/kelpie/pkg/lock"
	"github.com/pborman/uuid"
)

type (
	// Project is a named collection of VMs
	Project struct {
		controller *Controller
		id         string
		name       string

		mu     sync.RWMutex
		vms    map[string]*VM
		closed bool // set while the project is being deleted

		// ops serializes lifecycle operations per VM id
		ops *lock.Keyed
	}

	// Projects is an alias to a slice of *Project
	Projects []*Project

	// projectJSON is used to ease json marshal
	projectJSON struct {
		ID   string `json:"project_id"`
		Name string `json:"name"`
		VMs  int    `json:"vms"`
	}
)

func newProject(c *Controller, id, name string) *Project {
	return &Project{
		controller: c,
		id:         id,
		name:       name,
		vms:        make(map[string]*VM),
		ops:        lock.NewKeyed(),
	}
}

// ID returns the project id
func (p *Project) ID() string {
	return p.id
}

// Name returns the project display name
func (p *Project) Name() string {
	return p.name
}

// MarshalJSON is a helper for marshalling a Project
func (p *Project) MarshalJSON() ([]byte, error) {
	p.mu.RLock()
	count := len(p.vms)
	p.mu.RUnlock()

	return json.Marshal(projectJSON{ID: p.id, Name: p.name, VMs: count})
}

// NewVM creates a VM record on compute without creating it remotely or
// registering it. See AddVM.
func (p *Project) NewVM(compute Compute, name, vmType string) *VM {
	return newVM(p, compute, uuid.New(), name, vmType, nil)
}

// AddVM registers a VM that already exists on its compute
func (p *Project) AddVM(vm *VM) error {
	if vm.project != p {
		return &ValidationError{Field: "project_id", Message: "vm belongs to another project"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &NotFoundError{Kind: "project", ID: p.id}
	}
	if _, ok := p.vms[vm.id]; ok {
		return &DuplicateError{Kind: "vm", ID: vm.id}
	}
	p.vms[vm.id] = vm
	return nil
}

// CreateVM creates a VM on the compute named by spec and registers it once
// the compute has accepted it. A failed create leaves nothing behind: if the
// VM cannot be registered after the compute created it, because the project
// was deleted meanwhile, it is deleted from the compute again.
func (p *Project) CreateVM(ctx context.Context, spec VMSpec) (*VM, error) {
	switch {
	case spec.Name == "":
		return nil, &ValidationError{Field: "name", Message: "required"}
	case spec.Type == "":
		return nil, &ValidationError{Field: "vm_type", Message: "required"}
	case spec.ComputeID == "":
		return nil, &ValidationError{Field: "compute_id", Message: "required"}
	}

	id := spec.ID
	if id == "" {
		id = uuid.New()
	} else if uuid.Parse(id) == nil {
		return nil, &ValidationError{Field: "vm_id", Message: "invalid uuid " + id}
	}

	compute, err := p.controller.Compute(spec.ComputeID)
	if err != nil {
		return nil, err
	}

	// hold the id while the compute works on it so a second create of the
	// same id waits and then sees the first
	l, err := p.ops.Acquire(ctx, id, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Release() }()

	if err := p.checkCreate(id); err != nil {
		return nil, err
	}

	vm := newVM(p, compute, id, spec.Name, spec.Type, spec.Properties)
	body := vmCreateRequest{
		ID:         id,
		ProjectID:  p.id,
		Name:       spec.Name,
		Type:       spec.Type,
		Properties: stripName(spec.Properties),
	}
	vmsPath := vmPath("", "")

	resp, err := send(ctx, compute, http.MethodPost, vmsPath, body)
	if err != nil {
		return nil, err
	}
	r, err := decodeVMResponse(compute.ID(), http.MethodPost, vmsPath, resp)
	if err != nil {
		return nil, err
	}

	vm.mu.Lock()
	r.apply(vm, StatusStopped)
	vm.mu.Unlock()

	if err := p.AddVM(vm); err != nil {
		return nil, p.rollbackCreate(ctx, compute, id, err)
	}
	return vm, nil
}

// rollbackCreate deletes a VM the compute created but the project could not
// take. cause is returned, along with the delete failure if there is one.
func (p *Project) rollbackCreate(ctx context.Context, compute Compute, id string, cause error) error {
	if _, err := compute.Delete(context.WithoutCancel(ctx), vmPath(id, ""), nil); err != nil {
		return multierror.Append(cause, fmt.Errorf("rollback of vm %s: %w", id, err))
	}
	return cause
}

// VM fetches a VM by id
func (p *Project) VM(id string) (*VM, error) {
	p.mu.RLock()
	vm, ok := p.vms[id]
	p.mu.RUnlock()

	if !ok || vm.Deleted() {
		return nil, &NotFoundError{Kind: "vm", ID: id}
	}
	return vm, nil
}

// VMs returns the project's VMs ordered by id
func (p *Project) VMs() VMs {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedVMs(p.vms)
}

// DeleteVM deletes a VM by id
func (p *Project) DeleteVM(ctx context.Context, id string) error {
	vm, err := p.VM(id)
	if err != nil {
		return err
	}
	return vm.Delete(ctx)
}

func (p *Project) checkCreate(id string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return &NotFoundError{Kind: "project", ID: p.id}
	}
	if _, ok := p.vms[id]; ok {
		return &DuplicateError{Kind: "vm", ID: id}
	}
	return nil
}

// close stops the project from taking new VMs and returns the ones it has
func (p *Project) close() VMs {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return sortedVMs(p.vms)
}

// reopen undoes close after a failed delete
func (p *Project) reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = false
}

func (p *Project) removeVM(vm *VM) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vms[vm.id] == vm {
		delete(p.vms, vm.id)
	}
}

// Len is the length of the slice
func (p Projects) Len() int { return len(p) }

// Less is used by sort to order projects by id
func (p Projects) Less(i, j int) bool { return p[i].id < p[j].id }

// Swap swaps two projects
func (p Projects) Swap(i, j int) { p[i], p[j] = p[j], p[i] }

func sortedProjects(m map[string]*Project) Projects {
	projects := make(Projects, 0, len(m))
	for _, p := range m {
		projects = append(projects, p)
	}
	sort.Sort(projects)
	return projects
}
