package kelpie_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/mistifyio/kelpie"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/suite"
)

type ControllerTestSuite struct {
	CommonTestSuite
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func (s *ControllerTestSuite) TestAddProject() {
	existing := s.NewProject()

	tests := []struct {
		description string
		id          string
		check       func(error) bool
	}{
		{"generated id", "", nil},
		{"supplied id", uuid.New(), nil},
		{"invalid id", "adf", kelpie.IsValidation},
		{"duplicate id", existing.ID(), kelpie.IsDuplicate},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		p, err := s.Controller.AddProject(test.id, "name")
		if test.check != nil {
			s.True(test.check(err), msg("should fail with the right error"))
			s.Nil(p, msg("failure shouldn't return a project"))
			continue
		}
		s.NoError(err, msg("should succeed"))
		s.NotNil(uuid.Parse(p.ID()), msg("id should be a uuid"))
		if test.id != "" {
			s.Equal(test.id, p.ID(), msg("should keep supplied id"))
		}
		s.Equal("name", p.Name(), msg("should keep name"))
	}

	a, _ := s.Controller.AddProject("", "")
	b, _ := s.Controller.AddProject("", "")
	s.NotEqual(a.ID(), b.ID(), "generated ids should differ")
}

func (s *ControllerTestSuite) TestProject() {
	p := s.NewProject()

	found, err := s.Controller.Project(p.ID())
	s.NoError(err)
	s.Equal(p, found)

	for _, id := range []string{"", "adf", uuid.New()} {
		found, err := s.Controller.Project(id)
		s.True(kelpie.IsNotFound(err), "unknown project %q should not be found", id)
		s.Nil(found)
		s.Equal(http.StatusNotFound, kelpie.HTTPStatus(err))
	}
}

func (s *ControllerTestSuite) TestProjects() {
	for i := 0; i < 3; i++ {
		_ = s.NewProject()
	}
	projects := s.Controller.Projects()
	s.Len(projects, 3)
	for i := 1; i < len(projects); i++ {
		s.True(projects[i-1].ID() < projects[i].ID(), "should be ordered by id")
	}
}

func (s *ControllerTestSuite) TestComputes() {
	compute, err := s.Controller.Compute("example.com")
	s.NoError(err)
	s.Equal(s.Compute, compute)

	_, err = s.Controller.Compute("nowhere")
	s.True(kelpie.IsNotFound(err), "unknown compute should not be found")

	s.True(kelpie.IsDuplicate(s.Controller.AddCompute(kelpie.NewStubCompute("example.com", 0))), "duplicate compute should fail")
	s.True(kelpie.IsValidation(s.Controller.AddCompute(kelpie.NewStubCompute("", 0))), "compute without id should fail")

	other := kelpie.NewStubCompute("another.com", 0)
	s.NoError(s.Controller.AddCompute(other))
	computes := s.Controller.Computes()
	s.Require().Len(computes, 2)
	s.Equal("another.com", computes[0].ID())
	s.Equal("example.com", computes[1].ID())

	replacement := kelpie.NewStubCompute("another.com", 0)
	s.NoError(s.Controller.ReplaceCompute(replacement))
	compute, _ = s.Controller.Compute("another.com")
	s.Equal(replacement, compute, "replace should upsert")

	s.NoError(s.Controller.RemoveCompute("another.com"))
	s.True(kelpie.IsNotFound(s.Controller.RemoveCompute("another.com")), "second remove should fail")
}

func (s *ControllerTestSuite) TestDeleteProject() {
	p := s.NewProject()
	keep := s.NewVM(p)
	gone := s.NewVM(p)

	s.Compute.Script(func(req kelpie.StubRequest) (*kelpie.Response, error) {
		if strings.Contains(req.Path, keep.ID()) {
			return kelpie.StubFail(http.StatusInternalServerError, "disk busy")(req)
		}
		return nil, nil
	})

	err := s.Controller.DeleteProject(context.Background(), p.ID())
	s.Error(err, "partial failure should fail")
	s.True(kelpie.IsComputeError(err), "failure should carry the compute error")
	s.Contains(err.Error(), keep.ID())

	found, err := s.Controller.Project(p.ID())
	s.NoError(err, "project should stay after a failed delete")
	s.Equal(p, found)
	s.Equal(kelpie.VMs{keep}, p.VMs(), "only the failed vm should remain")
	s.True(gone.Deleted())

	s.Compute.Script(kelpie.StubReply(http.StatusNoContent, nil))
	s.NoError(s.Controller.DeleteProject(context.Background(), p.ID()))
	_, err = s.Controller.Project(p.ID())
	s.True(kelpie.IsNotFound(err), "deleted project should not be found")
	s.True(keep.Deleted())

	s.True(kelpie.IsNotFound(s.Controller.DeleteProject(context.Background(), p.ID())), "second delete should fail")
}

func (s *ControllerTestSuite) TestDeleteProjectDuringCreate() {
	p := s.NewProject()
	id := uuid.New()

	posted := make(chan struct{})
	release := make(chan struct{})
	s.Compute.Script(func(req kelpie.StubRequest) (*kelpie.Response, error) {
		if req.Method == http.MethodPost {
			close(posted)
			<-release
			return kelpie.StubReply(http.StatusCreated, map[string]interface{}{"console": 2048})(req)
		}
		return nil, nil
	})

	created := make(chan error, 1)
	go func() {
		_, err := p.CreateVM(context.Background(), kelpie.VMSpec{
			ID:        id,
			Name:      "late",
			Type:      "vpcs",
			ComputeID: s.Compute.ID(),
		})
		created <- err
	}()

	<-posted
	s.NoError(s.Controller.DeleteProject(context.Background(), p.ID()))
	close(release)

	err := <-created
	s.True(kelpie.IsNotFound(err), "create into a deleted project should fail")
	s.Empty(p.VMs(), "deleted project should not take the vm")

	requests := s.Compute.Requests()
	s.Require().Len(requests, 2, "the created vm should be deleted again")
	s.Equal(http.MethodDelete, requests[1].Method)
	s.Equal("/vms/"+id, requests[1].Path)

	_, err = p.CreateVM(context.Background(), kelpie.VMSpec{
		Name:      "later",
		Type:      "vpcs",
		ComputeID: s.Compute.ID(),
	})
	s.True(kelpie.IsNotFound(err), "create after delete should fail")
	s.Len(s.Compute.Requests(), 2, "create after delete should not reach the compute")
	s.True(kelpie.IsNotFound(p.AddVM(p.NewVM(s.Compute, "test", "vpcs"))), "add after delete should fail")
}

func (s *ControllerTestSuite) TestDeleteProjectFailureReopens() {
	p := s.NewProject()
	vm := s.NewVM(p)

	s.Compute.Script(kelpie.StubFail(0, "timeout"))
	s.Error(s.Controller.DeleteProject(context.Background(), p.ID()))
	s.False(vm.Deleted())

	s.Compute.Script(nil)
	created := s.CreateVM(p, "after")
	found, err := p.VM(created.ID())
	s.NoError(err, "project should take vms again after a failed delete")
	s.Equal(created, found)
}

func (s *ControllerTestSuite) TestCreateRollbackFailure() {
	p := s.NewProject()
	id := uuid.New()

	posted := make(chan struct{})
	release := make(chan struct{})
	s.Compute.Script(func(req kelpie.StubRequest) (*kelpie.Response, error) {
		if req.Method == http.MethodPost {
			close(posted)
			<-release
			return nil, nil
		}
		return kelpie.StubFail(0, "connection refused")(req)
	})

	created := make(chan error, 1)
	go func() {
		_, err := p.CreateVM(context.Background(), kelpie.VMSpec{
			ID:        id,
			Name:      "late",
			Type:      "vpcs",
			ComputeID: s.Compute.ID(),
		})
		created <- err
	}()

	<-posted
	s.NoError(s.Controller.DeleteProject(context.Background(), p.ID()))
	close(release)

	err := <-created
	s.True(kelpie.IsNotFound(err), "create should still report the missing project")
	s.Contains(err.Error(), "rollback of vm "+id, "failed rollback should be reported")
}

func (s *ControllerTestSuite) TestClose() {
	p := s.NewProject()
	httpCompute, err := kelpie.NewHTTPCompute(kelpie.ComputeConfig{ID: "remote", Address: "localhost"})
	s.Require().NoError(err)
	s.NoError(s.Controller.AddCompute(httpCompute))

	s.NoError(s.Controller.Close())
	_, err = s.Controller.Project(p.ID())
	s.True(kelpie.IsNotFound(err), "closed controller should drop projects")
	_, err = s.Controller.Compute("example.com")
	s.True(kelpie.IsNotFound(err), "closed controller should drop computes")
	s.Empty(s.Controller.Computes())
	s.Empty(s.Controller.Projects())
}
