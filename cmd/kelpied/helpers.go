package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/mistifyio/kelpie"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody decodes and validates the JSON request body into v and handles
// sending a response in case of error. An empty body is allowed when
// optional is set.
func decodeBody(hr HTTPResponse, r *http.Request, v interface{}, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !(optional && errors.Is(err, io.EOF)) {
		hr.JSONMsg(http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		hr.JSONMsg(http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage turns validator errors into one line per field
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

// loadProject is a middleware to load a project into the request context and
// handles sending a response in case of error
func loadProject(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hr := HTTPResponse{w}
		projectID, ok := mux.Vars(r)["projectID"]
		if !ok {
			hr.JSONMsg(http.StatusBadRequest, "missing project id")
			return
		}
		project, err := GetController(r).Project(projectID)
		if err != nil {
			hr.Error(r, err)
			return
		}
		h.ServeHTTP(w, SetRequestProject(r, project))
	})
}

// loadVM is a middleware to load a VM of the request's project into the
// request context and handles sending a response in case of error
func loadVM(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hr := HTTPResponse{w}
		vmID, ok := mux.Vars(r)["vmID"]
		if !ok {
			hr.JSONMsg(http.StatusBadRequest, "missing vm id")
			return
		}
		vm, err := GetRequestProject(r).VM(vmID)
		if err != nil {
			hr.Error(r, err)
			return
		}
		h.ServeHTTP(w, SetRequestVM(r, vm))
	})
}

// SetRequestProject returns r carrying the project
func SetRequestProject(r *http.Request, p *kelpie.Project) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), projectKey, p))
}

// GetRequestProject retrieves the project from the request context
func GetRequestProject(r *http.Request) *kelpie.Project {
	return r.Context().Value(projectKey).(*kelpie.Project)
}

// SetRequestVM returns r carrying the VM
func SetRequestVM(r *http.Request, vm *kelpie.VM) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), vmKey, vm))
}

// GetRequestVM retrieves the VM from the request context
func GetRequestVM(r *http.Request) *kelpie.VM {
	return r.Context().Value(vmKey).(*kelpie.VM)
}
