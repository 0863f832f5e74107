package kelpie_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mistifyio/kelpie"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/suite"
)

type VMTestSuite struct {
	CommonTestSuite
}

func TestVMTestSuite(t *testing.T) {
	suite.Run(t, new(VMTestSuite))
}

func (s *VMTestSuite) TestJSON() {
	p := s.NewProject()
	s.Compute.Script(kelpie.StubReply(http.StatusCreated, map[string]interface{}{"console": 2048}))
	vm, err := p.CreateVM(context.Background(), kelpie.VMSpec{
		Name:       "test",
		Type:       "vpcs",
		ComputeID:  s.Compute.ID(),
		Properties: map[string]interface{}{"startup_script": "echo test", "name": "test"},
	})
	s.Require().NoError(err)

	data, err := json.Marshal(vm)
	s.NoError(err)

	var out map[string]interface{}
	s.NoError(json.Unmarshal(data, &out))
	s.Equal(vm.ID(), out["id"])
	s.Equal("test", out["name"])
	s.Equal("vpcs", out["vm_type"])
	s.EqualValues(2048, out["console"])
	s.Equal("stopped", out["status"])
	s.Equal(p.ID(), out["project_id"])
	s.Equal("example.com", out["compute_id"])
	s.Equal(map[string]interface{}{"startup_script": "echo test"}, out["properties"])

	unset := s.NewVM(p)
	data, err = json.Marshal(unset)
	s.NoError(err)
	s.Contains(string(data), `"console":null`, "console should be null until assigned")
}

func (s *VMTestSuite) TestNewVM() {
	p := s.NewProject()
	vm := p.NewVM(s.Compute, "test", "vpcs")
	s.NotNil(uuid.Parse(vm.ID()))
	s.Equal(kelpie.StatusStopped, vm.Status())
	_, ok := vm.Console()
	s.False(ok, "console should be unset")

	_, err := p.VM(vm.ID())
	s.True(kelpie.IsNotFound(err), "new vm should not be registered")
	s.Empty(s.Compute.Requests(), "new vm should not reach the compute")
}

func (s *VMTestSuite) TestUpdate() {
	p := s.NewProject()
	vm := s.NewVM(p)

	// the compute echoes the name inside the properties
	s.Compute.Script(kelpie.StubReply(http.StatusOK, map[string]interface{}{
		"console": 2048,
		"properties": map[string]interface{}{
			"name":           "renamed",
			"startup_script": "echo test",
		},
	}))

	s.NoError(vm.Update(context.Background(), kelpie.VMUpdate{
		Properties: map[string]interface{}{"startup_script": "echo test"},
	}))
	s.Equal("renamed", vm.Name(), "name in properties should become the vm name")
	s.NotContains(vm.Properties(), "name", "name should never be a property")
	s.Equal("echo test", vm.Properties()["startup_script"])
	console, ok := vm.Console()
	s.True(ok)
	s.Equal(2048, console)

	requests := s.Compute.Requests()
	s.Require().Len(requests, 1)
	s.Equal(http.MethodPut, requests[0].Method)
	s.Equal("/vms/"+vm.ID(), requests[0].Path)
	s.JSONEq(`{"properties":{"startup_script":"echo test"}}`, string(requests[0].Body), "only changed fields should be sent")
}

func (s *VMTestSuite) TestUpdatePartial() {
	p := s.NewProject()
	vm := s.NewVM(p)
	s.Compute.Script(kelpie.StubReply(http.StatusOK, nil))

	s.NoError(vm.Update(context.Background(), kelpie.VMUpdate{
		Properties: map[string]interface{}{"startup_script": "echo one"},
	}))

	name := "other"
	s.NoError(vm.Update(context.Background(), kelpie.VMUpdate{Name: &name}))
	s.Equal("other", vm.Name())
	s.Equal("echo one", vm.Properties()["startup_script"], "unsent properties should be left alone")

	requests := s.Compute.Requests()
	s.Require().Len(requests, 2)
	s.JSONEq(`{"name":"other"}`, string(requests[1].Body))
}

func (s *VMTestSuite) TestUpdateClearProperties() {
	p := s.NewProject()
	vm := s.NewVM(p)
	s.Compute.Script(kelpie.StubReply(http.StatusOK, nil))

	s.NoError(vm.Update(context.Background(), kelpie.VMUpdate{
		Properties: map[string]interface{}{"startup_script": "x"},
	}))

	tests := []struct {
		description string
		properties  map[string]interface{}
	}{
		{"empty", map[string]interface{}{}},
		{"name only", map[string]interface{}{"name": "test"}},
	}

	for i, test := range tests {
		msg := testMsgFunc(test.description)
		s.NoError(vm.Update(context.Background(), kelpie.VMUpdate{Properties: test.properties}), msg("should succeed"))
		s.Empty(vm.Properties(), msg("properties should be cleared locally"))

		requests := s.Compute.Requests()
		s.Require().Len(requests, i+2, msg("every update should reach the compute"))
		s.JSONEq(`{"properties":{}}`, string(requests[i+1].Body), msg("cleared properties should be sent"))
	}

	s.NoError(vm.Update(context.Background(), kelpie.VMUpdate{}))
	requests := s.Compute.Requests()
	s.JSONEq(`{}`, string(requests[len(requests)-1].Body), "an empty update should send no fields")
}

func (s *VMTestSuite) TestUpdateFailure() {
	p := s.NewProject()
	vm := s.NewVM(p)
	s.Compute.Script(kelpie.StubFail(http.StatusBadRequest, "invalid startup script"))

	name := "other"
	err := vm.Update(context.Background(), kelpie.VMUpdate{
		Name:       &name,
		Properties: map[string]interface{}{"startup_script": 42},
	})
	s.Error(err)
	s.Equal(http.StatusBadRequest, kelpie.HTTPStatus(err))
	s.Equal("invalid startup script", kelpie.ErrorMessage(err))
	s.Equal("test", vm.Name(), "failed update should not change the name")
	s.Empty(vm.Properties(), "failed update should not change properties")
}

func (s *VMTestSuite) TestActions() {
	p := s.NewProject()
	vm := s.NewVM(p)
	s.Compute.Script(kelpie.StubReply(http.StatusOK, nil))

	tests := []struct {
		description string
		action      string
		expected    kelpie.Status
	}{
		{"start", "start", kelpie.StatusStarted},
		{"stop", "stop", kelpie.StatusStopped},
		{"suspend", "suspend", kelpie.StatusSuspended},
		{"reload keeps status", "reload", kelpie.StatusSuspended},
		{"start again", "start", kelpie.StatusStarted},
		{"start when started is forwarded", "start", kelpie.StatusStarted},
	}

	for i, test := range tests {
		msg := testMsgFunc(test.description)
		s.NoError(vm.Action(context.Background(), test.action), msg("should succeed"))
		s.Equal("test", vm.Name(), msg("name should be unchanged"))
		s.Equal(test.expected, vm.Status(), msg("status should follow the action"))

		requests := s.Compute.Requests()
		s.Require().Len(requests, i+1, msg("every call should reach the compute"))
		s.Equal(http.MethodPost, requests[i].Method, msg("should post"))
		s.Equal("/vms/"+vm.ID()+"/"+test.action, requests[i].Path, msg("should hit action path"))
		s.Nil(requests[i].Body, msg("actions carry no body"))
	}

	err := vm.Action(context.Background(), "explode")
	s.True(kelpie.IsValidation(err), "unknown action should be a validation error")
}

func (s *VMTestSuite) TestStatusFromCompute() {
	p := s.NewProject()
	vm := s.NewVM(p)

	s.Compute.Script(kelpie.StubReply(http.StatusOK, map[string]interface{}{"status": "suspended"}))
	s.NoError(vm.Start(context.Background()))
	s.Equal(kelpie.StatusSuspended, vm.Status(), "reported status should win")

	s.Compute.Script(kelpie.StubReply(http.StatusOK, map[string]interface{}{"status": "exploded"}))
	s.NoError(vm.Start(context.Background()))
	s.Equal(kelpie.StatusStarted, vm.Status(), "unknown status should be ignored")

	s.Compute.Script(kelpie.StubReply(http.StatusOK, "not an object"))
	err := vm.Stop(context.Background())
	s.True(kelpie.IsComputeError(err), "malformed reply should be a compute error")
	s.Equal(kelpie.StatusStarted, vm.Status(), "malformed reply should not change status")
}

func (s *VMTestSuite) TestComputeFailures() {
	p := s.NewProject()

	tests := []struct {
		description string
		code        int
		message     string
		status      int
	}{
		{"unreachable", 0, "connection refused", http.StatusBadGateway},
		{"client error", http.StatusConflict, "vm is not started", http.StatusConflict},
		{"not found on compute", http.StatusNotFound, "no such vm", http.StatusNotFound},
		{"server error", http.StatusInternalServerError, "boom", http.StatusInternalServerError},
	}

	// each op would move the vm away from where it starts
	starts := []struct {
		status kelpie.Status
		action string
	}{
		{kelpie.StatusStopped, "start"},
		{kelpie.StatusStarted, "stop"},
		{kelpie.StatusStarted, "suspend"},
		{kelpie.StatusSuspended, "start"},
		{kelpie.StatusSuspended, "stop"},
	}

	for _, test := range tests {
		for _, start := range starts {
			msg := testMsgFunc(test.description + " " + start.action + " from " + string(start.status))
			vm := s.NewVM(p)
			s.Compute.Script(kelpie.StubReply(http.StatusOK, map[string]interface{}{"status": string(start.status)}))
			s.Require().NoError(vm.Reload(context.Background()), msg("setup should succeed"))
			s.Require().Equal(start.status, vm.Status(), msg("setup should set the status"))

			s.Compute.Script(kelpie.StubFail(test.code, test.message))
			err := vm.Action(context.Background(), start.action)
			s.Error(err, msg("should fail"))
			s.True(kelpie.IsComputeError(err), msg("should be a compute error"))
			s.Equal(test.status, kelpie.HTTPStatus(err), msg("should map status"))
			s.Equal(start.status, vm.Status(), msg("status should be unchanged"))
			if test.code >= 400 && test.code < 500 {
				s.Equal(test.message, kelpie.ErrorMessage(err), msg("should keep remote message"))
			}
		}
	}
}

func (s *VMTestSuite) TestDelete() {
	p := s.NewProject()
	vm := s.NewVM(p)

	s.Compute.Script(kelpie.StubFail(0, "timeout"))
	s.Error(vm.Delete(context.Background()), "failed delete should fail")
	found, err := p.VM(vm.ID())
	s.NoError(err, "failed delete should keep the vm")
	s.Equal(vm, found)
	s.False(vm.Deleted())

	s.Compute.Script(kelpie.StubReply(http.StatusNoContent, nil))
	s.NoError(p.DeleteVM(context.Background(), vm.ID()))
	s.True(vm.Deleted())
	_, err = p.VM(vm.ID())
	s.True(kelpie.IsNotFound(err), "deleted vm should not be found")

	sent := len(s.Compute.Requests())
	err = vm.Start(context.Background())
	s.True(kelpie.IsNotFound(err), "deleted vm should be unusable")
	s.Len(s.Compute.Requests(), sent, "deleted vm should not reach the compute")

	requests := s.Compute.Requests()
	s.Equal(http.MethodDelete, requests[len(requests)-1].Method)
	s.Equal("/vms/"+vm.ID(), requests[len(requests)-1].Path)
}

func (s *VMTestSuite) TestSerializedPerVM() {
	p := s.NewProject()
	vm := s.NewVM(p)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	s.Compute.Script(func(kelpie.StubRequest) (*kelpie.Response, error) {
		mu.Lock()
		inside++
		if inside > maxSeen {
			maxSeen = inside
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inside--
		mu.Unlock()
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.NoError(vm.Start(context.Background()))
			} else {
				s.NoError(vm.Stop(context.Background()))
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, maxSeen, "operations on one vm should not overlap")
	s.Len(s.Compute.Requests(), 10)
}

func (s *VMTestSuite) TestConcurrentAcrossVMs() {
	p := s.NewProject()
	a, b := s.NewVM(p), s.NewVM(p)

	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	s.Compute.Script(func(kelpie.StubRequest) (*kelpie.Response, error) {
		arrived <- struct{}{}
		<-release
		return nil, nil
	})

	errs := make(chan error, 2)
	go func() { errs <- a.Start(context.Background()) }()
	go func() { errs <- b.Start(context.Background()) }()

	for i := 0; i < 2; i++ {
		select {
		case <-arrived:
		case <-time.After(5 * time.Second):
			s.FailNow("operations on distinct vms should run together")
		}
	}
	close(release)
	s.NoError(<-errs)
	s.NoError(<-errs)
}

func (s *VMTestSuite) TestWaitHonoursContext() {
	p := s.NewProject()
	vm := s.NewVM(p)

	arrived := make(chan struct{})
	release := make(chan struct{})
	s.Compute.Script(func(kelpie.StubRequest) (*kelpie.Response, error) {
		close(arrived)
		<-release
		return nil, nil
	})

	done := make(chan error)
	go func() { done <- vm.Start(context.Background()) }()
	<-arrived

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := vm.Stop(ctx)
	s.Equal(context.DeadlineExceeded, err, "waiting for the vm should honour the context")

	close(release)
	s.NoError(<-done)
	s.Len(s.Compute.Requests(), 1, "abandoned operation should not reach the compute")
	s.Equal(kelpie.StatusStarted, vm.Status())
}

func (s *VMTestSuite) TestAgentSimulation() {
	p := s.NewProject()
	first := s.CreateVM(p, "first")
	second := s.CreateVM(p, "second")

	console, _ := first.Console()
	s.Equal(kelpie.StubConsoleBase, console)
	console, _ = second.Console()
	s.Equal(kelpie.StubConsoleBase+1, console)

	err := first.Suspend(context.Background())
	s.Equal(http.StatusConflict, kelpie.HTTPStatus(err), "compute should refuse suspending a stopped vm")
	s.Equal(kelpie.StatusStopped, first.Status())

	s.NoError(first.Start(context.Background()))
	s.NoError(first.Suspend(context.Background()))
	s.Equal(kelpie.StatusSuspended, first.Status())

	s.NoError(first.Delete(context.Background()))
	s.Len(p.VMs(), 1)
}
