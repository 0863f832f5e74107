package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the kelpied API
type Client struct {
	c    http.Client
	t    string // content type
	base string
}

// APIError is a failed API response
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// NewClient creates a Client for the API at address, e.g.
// http://localhost:18000
func NewClient(address string, timeout time.Duration) *Client {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return &Client{
		c:    http.Client{Timeout: timeout},
		t:    "application/json",
		base: strings.TrimRight(address, "/"),
	}
}

// URLString returns the full url of an endpoint
func (c *Client) URLString(endpoint string) string {
	return c.base + "/" + strings.TrimLeft(endpoint, "/")
}

// GetMany fetches a list of resources
func (c *Client) GetMany(endpoint string) (JMapSlice, error) {
	ret := JMapSlice{}
	if err := c.Do(http.MethodGet, endpoint, nil, http.StatusOK, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Get fetches a resource
func (c *Client) Get(endpoint string) (JMap, error) {
	return c.one(http.MethodGet, endpoint, nil, http.StatusOK)
}

// Post sends body to endpoint expecting a resource to be created
func (c *Client) Post(endpoint string, body interface{}) (JMap, error) {
	return c.one(http.MethodPost, endpoint, body, http.StatusCreated)
}

// Put sends body to endpoint expecting the updated resource back
func (c *Client) Put(endpoint string, body interface{}) (JMap, error) {
	return c.one(http.MethodPut, endpoint, body, http.StatusCreated)
}

// Del deletes the resource at endpoint. status is the code the endpoint
// answers a successful delete with.
func (c *Client) Del(endpoint string, status int) error {
	return c.Do(http.MethodDelete, endpoint, nil, status, nil)
}

func (c *Client) one(method, endpoint string, body interface{}, status int) (JMap, error) {
	ret := JMap{}
	if err := c.Do(method, endpoint, body, status, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Do sends a request with an optional JSON body and decodes the response
// into dest when the status matches. Any other status is an *APIError.
func (c *Client) Do(method, endpoint string, body interface{}, status int, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.URLString(endpoint), reader)
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", c.t)
	}
	req.Header.Set("Accept", c.t)

	resp, err := c.c.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return processResponse(resp, status, dest)
}

func processResponse(resp *http.Response, status int, dest interface{}) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != status {
		apiErr := &APIError{}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		apiErr.Code = resp.StatusCode
		return apiErr
	}

	if dest == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
