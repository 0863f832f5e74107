package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
)

type projectRequest struct {
	ID   string `json:"project_id" validate:"omitempty,uuid"`
	Name string `json:"name"`
}

// RegisterProjectRoutes registers the project routes and handlers, VM routes
// included
func RegisterProjectRoutes(prefix string, router *mux.Router, m *metricsContext) {
	projectMiddleware := alice.New(
		loadProject,
	)

	router.Handle(prefix, m.HandlerFunc(ListProjects, "project_list")).Methods("GET")
	router.Handle(prefix, m.HandlerFunc(CreateProject, "project_create")).Methods("POST")

	sub := router.PathPrefix(prefix).Subrouter()
	sub.Handle("/{projectID}", projectMiddleware.Append(m.HandlerWrapper("project_get")).ThenFunc(GetProject)).Methods("GET")
	sub.Handle("/{projectID}", projectMiddleware.Append(m.HandlerWrapper("project_delete")).ThenFunc(DeleteProject)).Methods("DELETE")

	registerVMRoutes(sub, projectMiddleware, m)
}

// ListProjects gets a list of all projects
func ListProjects(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	hr.JSON(http.StatusOK, GetController(r).Projects())
}

// CreateProject creates a new project
func CreateProject(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}

	var req projectRequest
	if !decodeBody(hr, r, &req, true) {
		return
	}

	project, err := GetController(r).AddProject(req.ID, req.Name)
	if err != nil {
		hr.Error(r, err)
		return
	}
	hr.JSON(http.StatusCreated, project)
}

// GetProject gets a particular project
func GetProject(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	hr.JSON(http.StatusOK, GetRequestProject(r))
}

// DeleteProject deletes every VM of a project and then the project
func DeleteProject(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	project := GetRequestProject(r)

	if err := GetController(r).DeleteProject(r.Context(), project.ID()); err != nil {
		hr.Error(r, err)
		return
	}
	hr.JSON(http.StatusNoContent, nil)
}
