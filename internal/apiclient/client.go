// Copyright 2025 The CloudWeave Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apiclient is the CLI's HTTP client for talking to a running
// daemon: submit/status/list/cancel against the daemon's /v1/workflows
// routes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cloudweave/engine/pkg/store"
)

// Client talks to a cmd/engined instance over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client pointed at baseURL (e.g. "http://localhost:8090").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts a blueprint definition and its inputs to the daemon and
// returns the assigned workflow id.
func (c *Client) Submit(ctx context.Context, definition []byte, inputs map[string]any) (string, error) {
	body := map[string]any{
		"definition": string(definition),
		"inputs":     inputs,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling submit request: %w", err)
	}

	resp, err := c.post(ctx, "/v1/workflows", data)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding submit response: %w", err)
	}
	return result.ID, nil
}

// Status fetches a single workflow's current state.
func (c *Client) Status(ctx context.Context, workflowID string) (*store.WorkflowState, error) {
	resp, err := c.get(ctx, "/v1/workflows/"+url.PathEscape(workflowID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var state store.WorkflowState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	return &state, nil
}

// List fetches workflows matching filter (empty fields match everything).
func (c *Client) List(ctx context.Context, filter store.Filter) ([]*store.WorkflowState, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Name != "" {
		q.Set("name", filter.Name)
	}

	path := "/v1/workflows"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var workflows []*store.WorkflowState
	if err := json.NewDecoder(resp.Body).Decode(&workflows); err != nil {
		return nil, fmt.Errorf("decoding list response: %w", err)
	}
	return workflows, nil
}

// Cancel requests cancellation of a running or queued workflow.
func (c *Client) Cancel(ctx context.Context, workflowID string) error {
	resp, err := c.post(ctx, "/v1/workflows/"+url.PathEscape(workflowID)+"/cancel", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Healthy reports whether the daemon's /healthz endpoint responds ok.
func (c *Client) Healthy(ctx context.Context) error {
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}
