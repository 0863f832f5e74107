package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/mistifyio/kelpie"
)

// vmUpdateRequest is the body of a VM update. The type and compute of a VM
// are fixed, so vm_type and compute_id are accepted and ignored.
type vmUpdateRequest struct {
	Name       *string                `json:"name" validate:"omitempty,min=1"`
	Type       string                 `json:"vm_type"`
	ComputeID  string                 `json:"compute_id"`
	Properties map[string]interface{} `json:"properties"`
}

func registerVMRoutes(sub *mux.Router, projectMiddleware alice.Chain, m *metricsContext) {
	vmMiddleware := projectMiddleware.Append(loadVM)

	sub.Handle("/{projectID}/vms", projectMiddleware.Append(m.HandlerWrapper("vm_list")).ThenFunc(ListVMs)).Methods("GET")
	sub.Handle("/{projectID}/vms", projectMiddleware.Append(m.HandlerWrapper("vm_create"), m.VMOpCounter("create")).ThenFunc(CreateVM)).Methods("POST")

	sub.Handle("/{projectID}/vms/{vmID}", vmMiddleware.Append(m.HandlerWrapper("vm_get")).ThenFunc(GetVM)).Methods("GET")
	sub.Handle("/{projectID}/vms/{vmID}", vmMiddleware.Append(m.HandlerWrapper("vm_update"), m.VMOpCounter("update")).ThenFunc(UpdateVM)).Methods("PUT")
	sub.Handle("/{projectID}/vms/{vmID}", vmMiddleware.Append(m.HandlerWrapper("vm_delete"), m.VMOpCounter("delete")).ThenFunc(DeleteVM)).Methods("DELETE")
	sub.Handle("/{projectID}/vms/{vmID}/{action}", vmMiddleware.Append(m.HandlerWrapper("vm_action"), m.VMOpCounter("")).ThenFunc(VMAction)).Methods("POST")
}

// ListVMs gets a list of the VMs of a project
func ListVMs(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	hr.JSON(http.StatusOK, GetRequestProject(r).VMs())
}

// CreateVM creates a VM on a compute
func CreateVM(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}

	var spec kelpie.VMSpec
	if !decodeBody(hr, r, &spec, false) {
		return
	}

	vm, err := GetRequestProject(r).CreateVM(r.Context(), spec)
	if err != nil {
		hr.Error(r, err)
		return
	}
	hr.JSON(http.StatusCreated, vm)
}

// GetVM gets a particular VM
func GetVM(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	hr.JSON(http.StatusOK, GetRequestVM(r))
}

// UpdateVM sends changed fields of a VM to its compute
func UpdateVM(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	vm := GetRequestVM(r)

	var req vmUpdateRequest
	if !decodeBody(hr, r, &req, false) {
		return
	}

	update := kelpie.VMUpdate{
		Name:       req.Name,
		Properties: req.Properties,
	}
	if err := vm.Update(r.Context(), update); err != nil {
		hr.Error(r, err)
		return
	}
	hr.JSON(http.StatusCreated, vm)
}

// DeleteVM deletes a VM on its compute and drops it from the project
func DeleteVM(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	if err := GetRequestVM(r).Delete(r.Context()); err != nil {
		hr.Error(r, err)
		return
	}
	hr.JSON(http.StatusCreated, nil)
}

// VMAction runs a lifecycle action (start, stop, suspend or reload) on a VM
func VMAction(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	vm := GetRequestVM(r)
	if err := vm.Action(r.Context(), mux.Vars(r)["action"]); err != nil {
		hr.Error(r, err)
		return
	}
	hr.JSON(http.StatusCreated, vm)
}
