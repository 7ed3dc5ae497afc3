// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Wire mirrors of the server's /v1/build responses. Kept local so the CLI
// builds and versions independently of the service packages.

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Success       bool     `json:"success"`
	SessionID     string   `json:"session_id"`
	Stage         string   `json:"stage"`
	Message       string   `json:"message"`
	Hints         []string `json:"hints"`
	RequiresInput bool     `json:"requires_input"`
	BuildID       string   `json:"build_id,omitempty"`
	Warning       string   `json:"warning,omitempty"`
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

type resetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type tableRef struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type buildSpecification struct {
	ID                    string            `json:"id"`
	Intent                string            `json:"intent"`
	Databases             []string          `json:"databases"`
	Tables                []tableRef        `json:"tables"`
	TransformationName    string            `json:"transformation_name"`
	SanitizedName         string            `json:"sanitized_name"`
	ConnectionDetails     map[string]string `json:"connection_details,omitempty"`
	UseExistingConnection bool              `json:"use_existing_connection"`
	Status                string            `json:"status"`
	CreatedAt             time.Time         `json:"created_at"`
}

type listBuildsResponse struct {
	Success bool                  `json:"success"`
	Builds  []*buildSpecification `json:"builds"`
}

type getBuildResponse struct {
	Success bool                `json:"success"`
	Build   *buildSpecification `json:"build"`
}

type statusReport struct {
	AgentInitialized   bool     `json:"agent_initialized"`
	LLMConfigured      bool     `json:"llm_configured"`
	CatalogConfigured  bool     `json:"catalog_configured"`
	RetrievalAvailable bool     `json:"retrieval_available"`
	StorageInitialized bool     `json:"storage_initialized"`
	ActiveSessions     int      `json:"active_sessions"`
	Warmed             bool     `json:"warmed"`
	Errors             []string `json:"errors"`
}

type statusResponse struct {
	Success bool         `json:"success"`
	Status  statusReport `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// apiClient is a thin HTTP client for the Forge API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// newAPIClient builds a client for the given base URL. The generous timeout
// covers LLM-backed turns on slow local models.
func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Chat runs one conversation turn.
func (c *apiClient) Chat(ctx context.Context, sessionID, message string) (*chatResponse, error) {
	var resp chatResponse
	err := c.postJSON(ctx, "/v1/build/chat", chatRequest{SessionID: sessionID, Message: message}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reset discards a session server-side and returns the confirmation text.
func (c *apiClient) Reset(ctx context.Context, sessionID string) (string, error) {
	var resp resetResponse
	if err := c.postJSON(ctx, "/v1/build/reset", resetRequest{SessionID: sessionID}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ListBuilds fetches persisted build specifications, newest first.
func (c *apiClient) ListBuilds(ctx context.Context, limit int) ([]*buildSpecification, error) {
	path := "/v1/build/specs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp listBuildsResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Builds, nil
}

// GetBuild fetches one build specification by id.
func (c *apiClient) GetBuild(ctx context.Context, id string) (*buildSpecification, error) {
	var resp getBuildResponse
	if err := c.getJSON(ctx, "/v1/build/specs/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return resp.Build, nil
}

// Status fetches the server's subsystem report.
func (c *apiClient) Status(ctx context.Context) (*statusReport, error) {
	var resp statusResponse
	if err := c.getJSON(ctx, "/v1/build/status", &resp); err != nil {
		return nil, err
	}
	return &resp.Status, nil
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("forge server unreachable at %s: %w", c.baseURL, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s (%s)", apiErr.Error, apiErr.Code)
		}
		return fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
