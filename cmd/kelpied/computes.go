package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mistifyio/kelpie"
)

// RegisterComputeRoutes registers the compute routes and handlers
func RegisterComputeRoutes(prefix string, router *mux.Router, m *metricsContext) {
	router.Handle(prefix, m.HandlerFunc(ListComputes, "compute_list")).Methods("GET")
	router.Handle(prefix, m.HandlerFunc(CreateCompute, "compute_create")).Methods("POST")

	sub := router.PathPrefix(prefix).Subrouter()
	sub.Handle("/{computeID}", m.HandlerFunc(GetCompute, "compute_get")).Methods("GET")
	sub.Handle("/{computeID}", m.HandlerFunc(DeleteCompute, "compute_delete")).Methods("DELETE")
}

// ListComputes gets a list of all computes
func ListComputes(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	hr.JSON(http.StatusOK, GetController(r).Computes())
}

// CreateCompute registers an HTTP compute, recording it in the inventory
// when there is one
func CreateCompute(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}

	var config kelpie.ComputeConfig
	if !decodeBody(hr, r, &config, false) {
		return
	}
	if config.Timeout == 0 {
		config.Timeout = GetComputeTimeout(r)
	}

	compute, err := GetController(r).RegisterCompute(config)
	if err != nil {
		hr.Error(r, err)
		return
	}
	hr.JSON(http.StatusCreated, compute)
}

// GetCompute gets a particular compute
func GetCompute(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	compute, err := GetController(r).Compute(mux.Vars(r)["computeID"])
	if err != nil {
		hr.Error(r, err)
		return
	}
	hr.JSON(http.StatusOK, compute)
}

// DeleteCompute unregisters a compute and drops its inventory record
func DeleteCompute(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctrl := GetController(r)
	id := mux.Vars(r)["computeID"]

	compute, err := ctrl.Compute(id)
	if err != nil {
		hr.Error(r, err)
		return
	}
	if err := ctrl.UnregisterCompute(id); err != nil {
		hr.Error(r, err)
		return
	}
	hr.JSON(http.StatusOK, compute)
}
