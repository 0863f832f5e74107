// Package common contains common utilities and suites to be used in other tests
package common

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/mistifyio/kelpie"
	"github.com/mistifyio/kelpie/pkg/kv"
	_ "github.com/mistifyio/kelpie/pkg/kv/badger"
	"github.com/stretchr/testify/suite"
)

// Suite sets up a general test suite with setup/teardown. Every test gets a
// fresh in-memory kv store, a Controller over it and a StubCompute
// registered as "example.com".
type Suite struct {
	suite.Suite
	KV         kv.KV
	KVPrefix   string
	Controller *kelpie.Controller
	Compute    *kelpie.StubCompute
}

// SetupTest prepares a fresh kv, controller and stub compute
func (s *Suite) SetupTest() {
	var err error
	s.KV, err = kv.New("badger://")
	s.Require().NoError(err)
	s.KVPrefix = kelpie.ComputePath

	s.Controller = kelpie.NewController(s.KV)
	s.Compute = kelpie.NewStubCompute("example.com", 0)
	s.Require().NoError(s.Controller.AddCompute(s.Compute))
}

// TearDownTest closes the controller and kv
func (s *Suite) TearDownTest() {
	s.NoError(s.Controller.Close())
	s.NoError(s.KV.Close())
}

// PrefixKey generates the kv key a compute record is stored under
func (s *Suite) PrefixKey(key string) string {
	return s.KVPrefix + key
}

// NewProject creates and registers a new Project
func (s *Suite) NewProject() *kelpie.Project {
	p, err := s.Controller.AddProject("", "test project")
	s.Require().NoError(err)
	return p
}

// NewVM registers a VM named "test" of type "vpcs" on the stub compute
// without sending anything to it
func (s *Suite) NewVM(p *kelpie.Project) *kelpie.VM {
	vm := p.NewVM(s.Compute, "test", "vpcs")
	s.Require().NoError(p.AddVM(vm))
	return vm
}

// CreateVM creates a VM through the stub compute's agent simulation
func (s *Suite) CreateVM(p *kelpie.Project, name string) *kelpie.VM {
	vm, err := p.CreateVM(context.Background(), kelpie.VMSpec{
		Name:       name,
		Type:       "vpcs",
		ComputeID:  s.Compute.ID(),
		Properties: map[string]interface{}{"startup_script": "echo " + name},
	})
	s.Require().NoError(err)
	return vm
}

// DoRequest is a convenience method for making an http request and doing basic handling of the response.
func (s *Suite) DoRequest(method, url string, expectedRespCode int, postBodyStruct interface{}, respBody interface{}) *http.Response {
	var postBody io.Reader
	if postBodyStruct != nil {
		bodyBytes, _ := json.Marshal(postBodyStruct)
		postBody = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequest(method, url, postBody)
	s.Require().NoError(err)
	if postBody != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	s.Require().NoError(err)
	correctResponse := s.Equal(expectedRespCode, resp.StatusCode)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	s.NoError(err)

	if correctResponse && respBody != nil && len(body) > 0 {
		s.NoError(json.Unmarshal(body, respBody))
	} else if !correctResponse {
		s.T().Log(string(body))
	}
	return resp
}
