package kelpie

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mistifyio/kelpie/pkg/hostport"
)

const (
	// DefaultComputePort is used for compute addresses without a port
	DefaultComputePort = 3080
	// DefaultComputeTimeout bounds a single request to a compute
	DefaultComputeTimeout = 15 * time.Second

	computePrefix = "/v2/compute"
)

// HTTPCompute is a Compute reached over HTTP(S) with JSON bodies
type HTTPCompute struct {
	mu      sync.RWMutex
	config  ComputeConfig
	baseURL string
	client  *http.Client
}

// httpComputeJSON is what a compute is listed as; credentials stay out
type httpComputeJSON struct {
	ID       string `json:"compute_id"`
	Address  string `json:"address"`
	Protocol string `json:"protocol"`
	User     string `json:"user,omitempty"`
	Timeout  string `json:"timeout"`
}

// NewHTTPCompute creates an HTTPCompute from config. The address gets
// DefaultComputePort if it has none, the protocol defaults to http and the
// timeout to DefaultComputeTimeout.
func NewHTTPCompute(config ComputeConfig) (*HTTPCompute, error) {
	config, err := normalizeComputeConfig(config)
	if err != nil {
		return nil, err
	}
	return &HTTPCompute{
		config:  config,
		baseURL: config.Protocol + "://" + config.Address + computePrefix,
		client:  &http.Client{Timeout: config.Timeout},
	}, nil
}

func normalizeComputeConfig(config ComputeConfig) (ComputeConfig, error) {
	if config.ID == "" {
		return config, &ValidationError{Field: "compute_id", Message: "required"}
	}

	addr, err := hostport.WithDefault(config.Address, DefaultComputePort)
	if err != nil {
		return config, &ValidationError{Field: "address", Message: err.Error()}
	}
	config.Address = addr

	switch config.Protocol {
	case "":
		config.Protocol = "http"
	case "http", "https":
	default:
		return config, &ValidationError{Field: "protocol", Message: "must be http or https"}
	}

	if config.Timeout < 0 {
		return config, &ValidationError{Field: "timeout", Message: "must not be negative"}
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultComputeTimeout
	}
	return config, nil
}

// ID returns the compute id
func (c *HTTPCompute) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.ID
}

// Config returns the normalized configuration
func (c *HTTPCompute) Config() ComputeConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Reconfigure points the compute at a new address, credentials or timeout.
// The id cannot change. VMs holding the compute follow along.
func (c *HTTPCompute) Reconfigure(config ComputeConfig) error {
	config, err := normalizeComputeConfig(config)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if config.ID != c.config.ID {
		return &ValidationError{Field: "compute_id", Message: "cannot change from " + c.config.ID}
	}
	c.config = config
	c.baseURL = config.Protocol + "://" + config.Address + computePrefix
	c.client.CloseIdleConnections()
	c.client = &http.Client{Timeout: config.Timeout}
	return nil
}

// MarshalJSON is a helper for marshalling an HTTPCompute
func (c *HTTPCompute) MarshalJSON() ([]byte, error) {
	config := c.Config()
	return json.Marshal(httpComputeJSON{
		ID:       config.ID,
		Address:  config.Address,
		Protocol: config.Protocol,
		User:     config.User,
		Timeout:  config.Timeout.String(),
	})
}

// Close releases idle connections
func (c *HTTPCompute) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.client.CloseIdleConnections()
	return nil
}

// Get sends a GET request
func (c *HTTPCompute) Get(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.request(ctx, http.MethodGet, path, body)
}

// Post sends a POST request
func (c *HTTPCompute) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.request(ctx, http.MethodPost, path, body)
}

// Put sends a PUT request
func (c *HTTPCompute) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.request(ctx, http.MethodPut, path, body)
}

// Delete sends a DELETE request
func (c *HTTPCompute) Delete(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.request(ctx, http.MethodDelete, path, body)
}

// request is the generic way to hit a compute endpoint. Any 2xx is a success;
// anything else becomes a ComputeError carrying the remote status and message.
func (c *HTTPCompute) request(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	c.mu.RLock()
	id, baseURL, client := c.config.ID, c.baseURL, c.client
	user, password := c.config.User, c.config.Password
	c.mu.RUnlock()

	computeErr := func(code int, msg string, err error) *ComputeError {
		return &ComputeError{
			ComputeID:  id,
			Method:     method,
			Path:       path,
			StatusCode: code,
			Message:    msg,
			Err:        err,
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, computeErr(0, "unable to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return nil, computeErr(0, "unable to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.SetBasicAuth(user, password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, computeErr(0, "compute unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, computeErr(0, "unable to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, computeErr(resp.StatusCode, remoteMessage(resp.StatusCode, data), nil)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// remoteMessage pulls the error message out of a failed response body
func remoteMessage(code int, body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return http.StatusText(code)
}
