package kelpie

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// StubConsoleBase is the first console port a StubCompute hands out
const StubConsoleBase = 5000

var errStubFailure = errors.New("random stub failure")

type (
	// StubCompute is an in-memory Compute for tests and local runs. Left
	// alone it acts as a compute agent, keeping VMs in memory. Script swaps
	// that for canned responses. A fail percentage makes it drop requests as
	// if the compute were unreachable.
	StubCompute struct {
		id string

		mu          sync.Mutex
		rand        *rand.Rand
		failPercent int
		script      StubHandler
		requests    []StubRequest
		vms         map[string]*stubVM
		nextConsole int
	}

	// StubRequest is a request as received by a StubCompute
	StubRequest struct {
		Method string
		Path   string
		Body   []byte
	}

	// StubHandler produces the reply to a request sent to a StubCompute
	StubHandler func(StubRequest) (*Response, error)

	stubVM struct {
		ID         string                 `json:"vm_id"`
		ProjectID  string                 `json:"project_id"`
		Name       string                 `json:"name"`
		Type       string                 `json:"vm_type"`
		Console    int                    `json:"console"`
		Status     Status                 `json:"status"`
		Properties map[string]interface{} `json:"properties"`
	}
)

// NewStubCompute creates a StubCompute that fails failPercent of requests
func NewStubCompute(id string, failPercent int) *StubCompute {
	return &StubCompute{
		id:          id,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		failPercent: failPercent,
		vms:         make(map[string]*stubVM),
		nextConsole: StubConsoleBase,
	}
}

// StubReply scripts a successful reply. A nil body is sent as an empty reply.
func StubReply(code int, body interface{}) StubHandler {
	return func(StubRequest) (*Response, error) {
		return jsonResponse(code, body)
	}
}

// StubFail scripts a failed reply. A code of 0 simulates an unreachable
// compute.
func StubFail(code int, message string) StubHandler {
	return func(StubRequest) (*Response, error) {
		ce := &ComputeError{StatusCode: code, Message: message}
		if code == 0 {
			ce.Err = errors.New(message)
		}
		return nil, ce
	}
}

// ID returns the compute id
func (s *StubCompute) ID() string {
	return s.id
}

// Script replaces the agent simulation with h. A nil h restores it.
func (s *StubCompute) Script(h StubHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = h
}

// SetFailPercent changes the share of requests that fail
func (s *StubCompute) SetFailPercent(failPercent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPercent = failPercent
}

// Requests returns every request received so far, oldest first
func (s *StubCompute) Requests() []StubRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StubRequest(nil), s.requests...)
}

// MarshalJSON is a helper for marshalling a StubCompute
func (s *StubCompute) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"compute_id": s.id,
		"protocol":   "stub",
	})
}

// Get handles a GET request
func (s *StubCompute) Get(ctx context.Context, path string, body interface{}) (*Response, error) {
	return s.do(ctx, http.MethodGet, path, body)
}

// Post handles a POST request
func (s *StubCompute) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return s.do(ctx, http.MethodPost, path, body)
}

// Put handles a PUT request
func (s *StubCompute) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return s.do(ctx, http.MethodPut, path, body)
}

// Delete handles a DELETE request
func (s *StubCompute) Delete(ctx context.Context, path string, body interface{}) (*Response, error) {
	return s.do(ctx, http.MethodDelete, path, body)
}

func (s *StubCompute) do(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	req := StubRequest{Method: method, Path: path}
	if err := ctx.Err(); err != nil {
		return nil, s.annotate(req, &ComputeError{Message: "compute unreachable", Err: err})
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, s.annotate(req, &ComputeError{Message: "unable to encode request body", Err: err})
		}
		req.Body = data
	}
	return s.handle(req)
}

// ServeHTTP serves the compute protocol so a StubCompute can stand in for a
// remote agent
func (s *StubCompute) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, computePrefix)
	if path == r.URL.Path {
		writeStubError(w, http.StatusNotFound, "not found")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeStubError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body) == 0 {
		body = nil
	}

	resp, err := s.handle(StubRequest{Method: r.Method, Path: path, Body: body})
	if err != nil {
		code := http.StatusServiceUnavailable
		var ce *ComputeError
		if errors.As(err, &ce) && ce.StatusCode != 0 {
			code = ce.StatusCode
		}
		writeStubError(w, code, ErrorMessage(err))
		return
	}

	if len(resp.Body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func writeStubError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"message": msg, "code": code})
}

func (s *StubCompute) handle(req StubRequest) (*Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	fail := s.rand.Intn(100) < s.failPercent
	script := s.script
	s.mu.Unlock()

	if fail {
		return nil, s.annotate(req, &ComputeError{Message: "compute unreachable", Err: errStubFailure})
	}

	var (
		resp *Response
		err  error
	)
	if script != nil {
		resp, err = script(req)
	} else {
		resp, err = s.simulate(req)
	}
	if err != nil {
		var ce *ComputeError
		if errors.As(err, &ce) {
			return nil, s.annotate(req, ce)
		}
		return nil, s.annotate(req, &ComputeError{Message: err.Error(), Err: err})
	}
	if resp == nil {
		resp = &Response{StatusCode: http.StatusOK}
	}
	return resp, nil
}

func (s *StubCompute) annotate(req StubRequest, ce *ComputeError) *ComputeError {
	if ce.ComputeID == "" {
		ce.ComputeID = s.id
	}
	if ce.Method == "" {
		ce.Method = req.Method
	}
	if ce.Path == "" {
		ce.Path = req.Path
	}
	return ce
}

// simulate acts as a compute agent holding VMs in memory
func (s *StubCompute) simulate(req StubRequest) (*Response, error) {
	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	if parts[0] != "vms" || len(parts) > 3 {
		return nil, &ComputeError{StatusCode: http.StatusNotFound, Message: "unknown path " + req.Path}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case len(parts) == 1 && req.Method == http.MethodGet:
		return s.listVMs()
	case len(parts) == 1 && req.Method == http.MethodPost:
		return s.createVM(req.Body)
	case len(parts) == 1:
		return nil, &ComputeError{StatusCode: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}

	vm, ok := s.vms[parts[1]]
	if !ok {
		return nil, &ComputeError{StatusCode: http.StatusNotFound, Message: "vm " + parts[1] + " not found"}
	}

	switch {
	case len(parts) == 3 && req.Method == http.MethodPost:
		return s.vmAction(vm, parts[2])
	case len(parts) == 3:
		return nil, &ComputeError{StatusCode: http.StatusMethodNotAllowed, Message: "method not allowed"}
	case req.Method == http.MethodGet:
		return jsonResponse(http.StatusOK, vm)
	case req.Method == http.MethodPut:
		return s.updateVM(vm, req.Body)
	case req.Method == http.MethodDelete:
		delete(s.vms, vm.ID)
		return &Response{StatusCode: http.StatusNoContent}, nil
	default:
		return nil, &ComputeError{StatusCode: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}
}

func (s *StubCompute) listVMs() (*Response, error) {
	vms := make([]*stubVM, 0, len(s.vms))
	for _, vm := range s.vms {
		vms = append(vms, vm)
	}
	sort.Slice(vms, func(i, j int) bool { return vms[i].ID < vms[j].ID })
	return jsonResponse(http.StatusOK, vms)
}

func (s *StubCompute) createVM(body []byte) (*Response, error) {
	var req vmCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &ComputeError{StatusCode: http.StatusBadRequest, Message: "invalid body: " + err.Error()}
	}
	if req.ID == "" || req.Name == "" {
		return nil, &ComputeError{StatusCode: http.StatusBadRequest, Message: "vm_id and name are required"}
	}
	if _, ok := s.vms[req.ID]; ok {
		return nil, &ComputeError{StatusCode: http.StatusConflict, Message: "vm " + req.ID + " already exists"}
	}

	vm := &stubVM{
		ID:         req.ID,
		ProjectID:  req.ProjectID,
		Name:       req.Name,
		Type:       req.Type,
		Console:    s.nextConsole,
		Status:     StatusStopped,
		Properties: stripName(req.Properties),
	}
	s.nextConsole++
	s.vms[vm.ID] = vm
	return jsonResponse(http.StatusCreated, vm)
}

func (s *StubCompute) updateVM(vm *stubVM, body []byte) (*Response, error) {
	var req vmUpdateRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, &ComputeError{StatusCode: http.StatusBadRequest, Message: "invalid body: " + err.Error()}
		}
	}
	if req.Name != nil {
		vm.Name = *req.Name
	}
	if req.Properties != nil {
		vm.Properties = stripName(req.Properties)
	}
	return jsonResponse(http.StatusOK, vm)
}

func (s *StubCompute) vmAction(vm *stubVM, action string) (*Response, error) {
	switch action {
	case "start":
		vm.Status = StatusStarted
	case "stop":
		vm.Status = StatusStopped
	case "suspend":
		if vm.Status != StatusStarted {
			return nil, &ComputeError{StatusCode: http.StatusConflict, Message: "vm " + vm.ID + " is not started"}
		}
		vm.Status = StatusSuspended
	case "reload":
	default:
		return nil, &ComputeError{StatusCode: http.StatusBadRequest, Message: "unknown action " + action}
	}
	return jsonResponse(http.StatusOK, vm)
}

func jsonResponse(code int, body interface{}) (*Response, error) {
	resp := &Response{StatusCode: code}
	if body == nil {
		return resp, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp.Body = data
	return resp, nil
}
