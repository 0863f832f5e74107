package kelpie

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"
)

type (
	// Compute is a remote agent that runs VMs. Every method sends one request
	// for path with an optional JSON body, and fails with a *ComputeError.
	Compute interface {
		ID() string
		Get(ctx context.Context, path string, body interface{}) (*Response, error)
		Post(ctx context.Context, path string, body interface{}) (*Response, error)
		Put(ctx context.Context, path string, body interface{}) (*Response, error)
		Delete(ctx context.Context, path string, body interface{}) (*Response, error)
	}

	// Computes is an alias to a slice of Compute
	Computes []Compute

	// Response is a successful reply from a compute
	Response struct {
		StatusCode int
		Body       []byte
	}

	// ComputeConfig describes how to reach an HTTP compute. It is the record
	// kept in the compute inventory and the form computes are configured in.
	ComputeConfig struct {
		ID       string        `json:"compute_id" mapstructure:"compute_id" validate:"required"`
		Address  string        `json:"address" mapstructure:"address" validate:"required"`
		Protocol string        `json:"protocol,omitempty" mapstructure:"protocol" validate:"omitempty,oneof=http https"`
		User     string        `json:"user,omitempty" mapstructure:"user"`
		Password string        `json:"password,omitempty" mapstructure:"password"`
		Timeout  time.Duration `json:"timeout,omitempty" mapstructure:"timeout" validate:"gte=0"`
	}
)

// Decode unmarshals the response body into v. An empty body leaves v alone.
func (r *Response) Decode(v interface{}) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Len is the length of the slice
func (c Computes) Len() int { return len(c) }

// Less is used by sort to order computes by id
func (c Computes) Less(i, j int) bool { return c[i].ID() < c[j].ID() }

// Swap swaps two computes
func (c Computes) Swap(i, j int) { c[i], c[j] = c[j], c[i] }

func sortedComputes(m map[string]Compute) Computes {
	computes := make(Computes, 0, len(m))
	for _, c := range m {
		computes = append(computes, c)
	}
	sort.Sort(computes)
	return computes
}
