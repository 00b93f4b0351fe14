package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/recipe-pipeline/internal/api/dto"
)

// apiClient talks to the recipe API service
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d", e.Status)
	}
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &apiError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) CreateImport(ctx context.Context, req dto.CreateImportRequest) (dto.CreateImportResponse, error) {
	var resp dto.CreateImportResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/imports", nil, req, &resp)
	return resp, err
}

func (c *apiClient) ListNotes(ctx context.Context, req dto.ListNotesRequest) (dto.ListNotesResponse, error) {
	query := url.Values{}
	if req.ImportID != "" {
		query.Set("import_id", req.ImportID)
	}
	if req.Status != "" {
		query.Set("status", req.Status)
	}
	if req.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(req.PageSize))
	}
	if req.Cursor != "" {
		query.Set("cursor", req.Cursor)
	}

	var resp dto.ListNotesResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/notes", query, nil, &resp)
	return resp, err
}

func (c *apiClient) Progress(ctx context.Context, noteID string) (dto.ProgressResponse, error) {
	var resp dto.ProgressResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/notes/"+url.PathEscape(noteID)+"/progress", nil, nil, &resp)
	return resp, err
}

func (c *apiClient) Actions(ctx context.Context) (map[string][]string, error) {
	var resp struct {
		Queues map[string][]string `json:"queues"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/actions", nil, nil, &resp)
	return resp.Queues, err
}

func (c *apiClient) Patterns(ctx context.Context, limit int) ([]dto.PatternDTO, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Patterns []dto.PatternDTO `json:"patterns"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/patterns", query, nil, &resp)
	return resp.Patterns, err
}
