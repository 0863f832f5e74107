package kelpie_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/mistifyio/kelpie"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	unreachable := &kelpie.ComputeError{ComputeID: "c", Method: "POST", Path: "/vms", Err: errors.New("dial tcp: refused")}

	tests := []struct {
		description string
		err         error
		status      int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", &kelpie.NotFoundError{Kind: "vm", ID: "x"}, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", &kelpie.NotFoundError{Kind: "vm", ID: "x"}), http.StatusNotFound},
		{"duplicate", &kelpie.DuplicateError{Kind: "project", ID: "x"}, http.StatusConflict},
		{"validation", &kelpie.ValidationError{Field: "name", Message: "required"}, http.StatusBadRequest},
		{"unreachable compute", unreachable, http.StatusBadGateway},
		{"compute client error", &kelpie.ComputeError{StatusCode: http.StatusConflict}, http.StatusConflict},
		{"compute server error", &kelpie.ComputeError{StatusCode: http.StatusServiceUnavailable}, http.StatusInternalServerError},
		{"aggregated", multierror.Append(nil, fmt.Errorf("vm x: %w", unreachable)), http.StatusBadGateway},
		{"plain", errors.New("plain"), http.StatusInternalServerError},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		assert.Equal(t, test.status, kelpie.HTTPStatus(test.err), msg("should map status"))
	}
}

func TestErrorMessage(t *testing.T) {
	remote := &kelpie.ComputeError{ComputeID: "c", Method: "POST", Path: "/vms/x/start", StatusCode: 409, Message: "already started"}
	assert.Equal(t, "already started", kelpie.ErrorMessage(remote), "client errors keep the remote message")
	assert.Contains(t, remote.Error(), "409")

	unreachable := &kelpie.ComputeError{ComputeID: "c", Err: errors.New("dial tcp: refused")}
	assert.Equal(t, "compute c unreachable", kelpie.ErrorMessage(unreachable))
	assert.True(t, errors.Is(unreachable, unreachable.Err), "should unwrap to the transport error")

	notFound := &kelpie.NotFoundError{Kind: "project", ID: "x"}
	assert.Equal(t, `project "x" not found`, kelpie.ErrorMessage(notFound))
	assert.Equal(t, "name: required", (&kelpie.ValidationError{Field: "name", Message: "required"}).Error())
}
