package kelpie

import "encoding/json"

type (
	// vmResponse is what a compute may say about a VM. Every field is
	// optional; only the ones present are merged.
	vmResponse struct {
		Console    *int                   `json:"console"`
		Name       *string                `json:"name"`
		Properties map[string]interface{} `json:"properties"`
		Status     *string                `json:"status"`
	}

	vmCreateRequest struct {
		ID         string                 `json:"vm_id"`
		ProjectID  string                 `json:"project_id"`
		Name       string                 `json:"name"`
		Type       string                 `json:"vm_type"`
		Properties map[string]interface{} `json:"properties"`
	}

	// vmUpdateRequest carries only the fields being changed. A non-nil
	// Properties is always sent, even when empty.
	vmUpdateRequest struct {
		Name       *string                `json:"name"`
		Properties map[string]interface{} `json:"properties"`
	}
)

// MarshalJSON is a helper for marshalling a vmUpdateRequest
func (u vmUpdateRequest) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, 2)
	if u.Name != nil {
		data["name"] = *u.Name
	}
	if u.Properties != nil {
		data["properties"] = u.Properties
	}
	return json.Marshal(data)
}

// decodeVMResponse reads a compute reply. A reply that is not a JSON object
// is a failure of the compute.
func decodeVMResponse(computeID, method, path string, resp *Response) (vmResponse, error) {
	var r vmResponse
	if err := resp.Decode(&r); err != nil {
		return r, &ComputeError{
			ComputeID: computeID,
			Method:    method,
			Path:      path,
			Message:   "invalid response body",
			Err:       err,
		}
	}
	return r, nil
}

// apply merges the response into vm. implied is the status the operation
// moves to on success, or "" to keep the current one; a known status in the
// response wins over it. Callers hold vm.mu.
func (r vmResponse) apply(vm *VM, implied Status) {
	if r.Console != nil {
		console := *r.Console
		vm.console = &console
	}
	if r.Name != nil {
		vm.name = *r.Name
	}
	if r.Properties != nil {
		// a name key in properties is the compute echoing the VM name
		if name, ok := r.Properties["name"].(string); ok && r.Name == nil {
			vm.name = name
		}
		vm.properties = stripName(r.Properties)
	}

	if implied != "" {
		vm.status = implied
	}
	if r.Status != nil {
		if s := Status(*r.Status); s.Valid() {
			vm.status = s
		}
	}
}

// stripName copies properties without the name key
func stripName(properties map[string]interface{}) map[string]interface{} {
	stripped := make(map[string]interface{}, len(properties))
	for k, v := range properties {
		if k == "name" {
			continue
		}
		stripped[k] = v
	}
	return stripped
}
