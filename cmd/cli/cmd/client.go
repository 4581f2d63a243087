package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"runbox/pkg/api"
)

// Client handles API calls to the runbox server.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client with the given base URL and token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *Client) do(method, path string, body io.Reader, contentType string, out interface{}) error {
	httpReq, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	if contentType != "" {
		httpReq.Header.Add("Content-Type", contentType)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// SubmitExecution sends POST /v1/executions to queue a new run.
func (c *Client) SubmitExecution(req api.SubmitExecutionRequest) (*api.SubmitExecutionResponse, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result api.SubmitExecutionResponse
	if err := c.do(http.MethodPost, "/v1/executions", bytes.NewReader(bodyBytes), "application/json", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetExecution sends GET /v1/executions/{id} to retrieve a job with its
// status history.
func (c *Client) GetExecution(jobID string) (*api.ExecutionResponse, error) {
	var result api.ExecutionResponse
	if err := c.do(http.MethodGet, "/v1/executions/"+jobID, nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListExecutions sends GET /v1/executions to retrieve the caller's jobs.
func (c *Client) ListExecutions() (*api.ListExecutionsResponse, error) {
	var result api.ListExecutionsResponse
	if err := c.do(http.MethodGet, "/v1/executions", nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateSession sends POST /v1/sessions.
func (c *Client) CreateSession() (*api.CreateSessionResponse, error) {
	var result api.CreateSessionResponse
	if err := c.do(http.MethodPost, "/v1/sessions", nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RenewSession sends POST /v1/sessions/{id}/renew to extend the session TTL.
func (c *Client) RenewSession(sessionID string) error {
	return c.do(http.MethodPost, "/v1/sessions/"+sessionID+"/renew", nil, "", nil)
}

// UploadFile sends a local file to POST /v1/sessions/{id}/files.
func (c *Client) UploadFile(sessionID, filePath string) (*api.UploadFileResponse, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	writer.Close()

	var result api.UploadFileResponse
	if err := c.do(http.MethodPost, "/v1/sessions/"+sessionID+"/files", &buf, writer.FormDataContentType(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
