package kelpie

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"sort"
	"sync"
)

// VM states
const (
	StatusStopped   Status = "stopped"
	StatusStarted   Status = "started"
	StatusSuspended Status = "suspended"
)

type (
	// Status is the last known run state of a VM
	Status string

	// VM is the controller's record of a virtual machine running on a
	// compute. The compute decides which transitions are legal; a VM only
	// forwards them and keeps what the compute reports.
	VM struct {
		project *Project
		compute Compute
		id      string
		vmType  string

		// mu protects the following. Lock order is vm.mu, then the
		// project's mu.
		mu         sync.RWMutex
		name       string
		properties map[string]interface{}
		console    *int
		status     Status
		deleted    bool
	}

	// VMs is an alias to a slice of *VM
	VMs []*VM

	// VMSpec describes a VM to create
	VMSpec struct {
		ID         string                 `json:"vm_id"`
		Name       string                 `json:"name" validate:"required"`
		Type       string                 `json:"vm_type" validate:"required"`
		ComputeID  string                 `json:"compute_id" validate:"required"`
		Properties map[string]interface{} `json:"properties"`
	}

	// VMUpdate holds the fields to change on a VM. Nil fields are left alone.
	VMUpdate struct {
		Name       *string                `json:"name"`
		Properties map[string]interface{} `json:"properties"`
	}

	// vmJSON is used to ease json marshal
	vmJSON struct {
		ID         string                 `json:"id"`
		Name       string                 `json:"name"`
		Type       string                 `json:"vm_type"`
		Console    *int                   `json:"console"`
		Status     Status                 `json:"status"`
		Properties map[string]interface{} `json:"properties"`
		ProjectID  string                 `json:"project_id"`
		ComputeID  string                 `json:"compute_id"`
	}
)

// Valid reports whether s is a known state
func (s Status) Valid() bool {
	switch s {
	case StatusStopped, StatusStarted, StatusSuspended:
		return true
	}
	return false
}

func newVM(p *Project, compute Compute, id, name, vmType string, properties map[string]interface{}) *VM {
	return &VM{
		project:    p,
		compute:    compute,
		id:         id,
		vmType:     vmType,
		name:       name,
		properties: stripName(properties),
		status:     StatusStopped,
	}
}

// ID returns the VM id
func (vm *VM) ID() string {
	return vm.id
}

// Project returns the project the VM belongs to
func (vm *VM) Project() *Project {
	return vm.project
}

// Compute returns the compute running the VM
func (vm *VM) Compute() Compute {
	return vm.compute
}

// Type returns the VM type
func (vm *VM) Type() string {
	return vm.vmType
}

// Name returns the VM name
func (vm *VM) Name() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.name
}

// Properties returns a copy of the VM properties
func (vm *VM) Properties() map[string]interface{} {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return stripName(vm.properties)
}

// Console returns the console port and whether the compute assigned one
func (vm *VM) Console() (int, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.console == nil {
		return 0, false
	}
	return *vm.console, true
}

// Status returns the last known state
func (vm *VM) Status() Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Deleted reports whether the VM has been deleted from its compute
func (vm *VM) Deleted() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.deleted
}

// MarshalJSON is a helper for marshalling a VM
func (vm *VM) MarshalJSON() ([]byte, error) {
	vm.mu.RLock()
	data := vmJSON{
		ID:         vm.id,
		Name:       vm.name,
		Type:       vm.vmType,
		Status:     vm.status,
		Properties: stripName(vm.properties),
		ProjectID:  vm.project.ID(),
		ComputeID:  vm.compute.ID(),
	}
	if vm.console != nil {
		console := *vm.console
		data.Console = &console
	}
	vm.mu.RUnlock()

	return json.Marshal(data)
}

// Update sends the changed fields to the compute and, on success, keeps them
// along with whatever the compute reports back
func (vm *VM) Update(ctx context.Context, update VMUpdate) error {
	body := vmUpdateRequest{Name: update.Name}
	if update.Properties != nil {
		body.Properties = stripName(update.Properties)
	}
	p := vmPath(vm.id, "")

	return vm.dispatch(ctx, http.MethodPut, p, body, func(r vmResponse) {
		if update.Name != nil {
			vm.name = *update.Name
		}
		if update.Properties != nil {
			vm.properties = stripName(update.Properties)
		}
		r.apply(vm, "")
	})
}

// Start asks the compute to start the VM
func (vm *VM) Start(ctx context.Context) error {
	return vm.action(ctx, "start", StatusStarted)
}

// Stop asks the compute to stop the VM
func (vm *VM) Stop(ctx context.Context) error {
	return vm.action(ctx, "stop", StatusStopped)
}

// Suspend asks the compute to suspend the VM
func (vm *VM) Suspend(ctx context.Context) error {
	return vm.action(ctx, "suspend", StatusSuspended)
}

// Reload asks the compute to restart the VM in place
func (vm *VM) Reload(ctx context.Context) error {
	return vm.action(ctx, "reload", "")
}

// Action runs a lifecycle action by name: start, stop, suspend or reload
func (vm *VM) Action(ctx context.Context, action string) error {
	switch action {
	case "start":
		return vm.Start(ctx)
	case "stop":
		return vm.Stop(ctx)
	case "suspend":
		return vm.Suspend(ctx)
	case "reload":
		return vm.Reload(ctx)
	}
	return &ValidationError{Field: "action", Message: "unknown action " + action}
}

// Delete deletes the VM on its compute and then drops it from its project.
// The VM is unusable afterwards.
func (vm *VM) Delete(ctx context.Context) error {
	return vm.dispatch(ctx, http.MethodDelete, vmPath(vm.id, ""), nil, func(vmResponse) {
		vm.deleted = true
		vm.project.removeVM(vm)
	})
}

func (vm *VM) action(ctx context.Context, action string, implied Status) error {
	return vm.dispatch(ctx, http.MethodPost, vmPath(vm.id, action), nil, func(r vmResponse) {
		r.apply(vm, implied)
	})
}

// dispatch sends one request for the VM while holding its operation lock and
// hands the decoded reply to merge under vm.mu. Nothing is changed locally
// when the request fails.
func (vm *VM) dispatch(ctx context.Context, method, p string, body interface{}, merge func(vmResponse)) error {
	l, err := vm.project.ops.Acquire(ctx, vm.id, true)
	if err != nil {
		return err
	}
	defer func() { _ = l.Release() }()

	if vm.Deleted() {
		return &NotFoundError{Kind: "vm", ID: vm.id}
	}

	resp, err := send(ctx, vm.compute, method, p, body)
	if err != nil {
		return err
	}
	r, err := decodeVMResponse(vm.compute.ID(), method, p, resp)
	if err != nil {
		return err
	}

	vm.mu.Lock()
	merge(r)
	vm.mu.Unlock()
	return nil
}

// send calls the compute verb matching method
func send(ctx context.Context, c Compute, method, p string, body interface{}) (*Response, error) {
	switch method {
	case http.MethodGet:
		return c.Get(ctx, p, body)
	case http.MethodPost:
		return c.Post(ctx, p, body)
	case http.MethodPut:
		return c.Put(ctx, p, body)
	default:
		return c.Delete(ctx, p, body)
	}
}

// vmPath builds /vms, /vms/{id} or /vms/{id}/{action}
func vmPath(id, action string) string {
	return path.Join("/vms", id, action)
}

// Len is the length of the slice
func (vms VMs) Len() int { return len(vms) }

// Less is used by sort to order VMs by id
func (vms VMs) Less(i, j int) bool { return vms[i].id < vms[j].id }

// Swap swaps two VMs
func (vms VMs) Swap(i, j int) { vms[i], vms[j] = vms[j], vms[i] }

func sortedVMs(m map[string]*VM) VMs {
	vms := make(VMs, 0, len(m))
	for _, vm := range m {
		vms = append(vms, vm)
	}
	sort.Sort(vms)
	return vms
}
