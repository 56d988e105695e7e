// Package client is a thin HTTP wrapper over the propsync daemon API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"propsync/pkg/models"
)

// Client talks to one propsync daemon.
type Client struct {
	base string
	key  string
	http *http.Client
}

// QueuedResult acknowledges accepted updates with the current queue depth.
type QueuedResult struct {
	Scope   string `json:"scope"`
	Queued  int    `json:"queued"`
	Pending int    `json:"pending"`
}

// FlushResult reports a forced flush and the scopes it covered.
type FlushResult struct {
	Status string   `json:"status"`
	Scopes []string `json:"scopes"`
}

// ScopeResult reports a scope lifecycle change.
type ScopeResult struct {
	Scope     string `json:"scope"`
	Destroyed bool   `json:"destroyed,omitempty"`
}

// BatchEntry is one update in a batch request.
type BatchEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func New(addr, key string) *Client {
	return &Client{
		base: strings.TrimRight(addr, "/"),
		key:  key,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Base returns the daemon address the client targets.
func (c *Client) Base() string { return c.base }

// Key returns the configured API key, empty when none is set.
func (c *Client) Key() string { return c.key }

func (c *Client) do(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s (status %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// QueueUpdate queues a single property update. Scope may be empty for the
// default scope.
func (c *Client) QueueUpdate(name, value, scope string) (QueuedResult, error) {
	var res QueuedResult
	body := struct {
		Name  string `json:"name"`
		Value string `json:"value"`
		Scope string `json:"scope,omitempty"`
	}{name, value, scope}
	err := c.do("POST", "/v1/updates", body, &res)
	return res, err
}

// QueueBatch queues an ordered batch of updates in one request.
func (c *Client) QueueBatch(entries []BatchEntry, scope string) (QueuedResult, error) {
	var res QueuedResult
	path := "/v1/updates/batch"
	if scope != "" {
		path += "?scope=" + url.QueryEscape(scope)
	}
	err := c.do("POST", path, entries, &res)
	return res, err
}

// Flush forces pending updates onto the surface. An empty scope flushes
// every live coordinator.
func (c *Client) Flush(scope string) (FlushResult, error) {
	var res FlushResult
	path := "/v1/flush"
	if scope != "" {
		path += "?scope=" + url.QueryEscape(scope)
	}
	err := c.do("POST", path, nil, &res)
	return res, err
}

// Metrics returns the flush counters for one scope.
func (c *Client) Metrics(scope string) (models.CoordinatorMetrics, error) {
	var res models.CoordinatorMetrics
	err := c.do("GET", "/v1/metrics?scope="+url.QueryEscape(scope), nil, &res)
	return res, err
}

// AllMetrics returns the flush counters for every live scope.
func (c *Client) AllMetrics() ([]models.CoordinatorMetrics, error) {
	var res struct {
		Scopes []models.CoordinatorMetrics `json:"scopes"`
	}
	err := c.do("GET", "/v1/metrics", nil, &res)
	return res.Scopes, err
}

// GetProperty returns the stored record for one property.
func (c *Client) GetProperty(name string) (models.Property, error) {
	var res models.Property
	err := c.do("GET", "/v1/properties/"+url.PathEscape(name), nil, &res)
	return res, err
}

// ListProperties returns stored properties filtered by prefix. A limit of
// zero means the server default.
func (c *Client) ListProperties(prefix string, limit int) ([]models.Property, error) {
	var res struct {
		Properties []models.Property `json:"properties"`
		Count      int               `json:"count"`
	}
	q := url.Values{}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/properties"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	err := c.do("GET", path, nil, &res)
	return res.Properties, err
}

// Scopes returns the live scope names.
func (c *Client) Scopes() ([]string, error) {
	var res struct {
		Scopes []string `json:"scopes"`
	}
	err := c.do("GET", "/v1/scopes", nil, &res)
	return res.Scopes, err
}

// CreateScope registers a new scope on the daemon.
func (c *Client) CreateScope(name string) (ScopeResult, error) {
	var res ScopeResult
	err := c.do("POST", "/v1/scopes/"+url.PathEscape(name), nil, &res)
	return res, err
}

// DestroyScope destroys a scope, discarding its pending updates.
func (c *Client) DestroyScope(name string) (ScopeResult, error) {
	var res ScopeResult
	err := c.do("DELETE", "/v1/scopes/"+url.PathEscape(name), nil, &res)
	return res, err
}

// Healthz checks daemon liveness.
func (c *Client) Healthz() error {
	return c.do("GET", "/healthz", nil, nil)
}
