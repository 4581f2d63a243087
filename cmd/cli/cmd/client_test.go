package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"runbox/pkg/api"
)

func TestSubmitExecution(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/executions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}

		var req api.SubmitExecutionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ArtifactPath != "u1/main.dart" {
			t.Errorf("artifact path = %q", req.ArtifactPath)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.SubmitExecutionResponse{JobID: "j1", Status: "QUEUED"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	resp, err := client.SubmitExecution(api.SubmitExecutionRequest{ArtifactPath: "u1/main.dart"})
	if err != nil {
		t.Fatalf("SubmitExecution returned error: %v", err)
	}
	if resp.JobID != "j1" || resp.Status != "QUEUED" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestGetExecutionErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Execution not found", Code: "404"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	_, err := client.GetExecution("missing")
	if err == nil {
		t.Fatal("expected an error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", apiErr.StatusCode)
	}
}

func TestUploadFileSendsMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/sess-1/files" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing multipart file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "main.dart" {
			t.Errorf("filename = %q", header.Filename)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.UploadFileResponse{FileName: header.Filename, ContainerID: "c1"})
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "main.dart")
	if err := os.WriteFile(path, []byte("void main() {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := NewClient(server.URL, "test-token")
	resp, err := client.UploadFile("sess-1", path)
	if err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}
	if resp.FileName != "main.dart" || resp.ContainerID != "c1" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestRenewSession(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.URL.Path != "/v1/sessions/sess-1/renew" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	if err := client.RenewSession("sess-1"); err != nil {
		t.Fatalf("RenewSession returned error: %v", err)
	}
	if !called {
		t.Error("renew endpoint not called")
	}
}
