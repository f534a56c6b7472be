package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/okian/nudge/internal/domain/csvparse"
	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/roster"
	"github.com/okian/nudge/internal/domain/types"
)

// RemoteError is a non-success answer from the server.
type RemoteError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

// HTTPClient talks to a running server.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client for baseURL with the given timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CheckHealth verifies the service is running.
func (c *HTTPClient) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, http.StatusOK, nil)
}

// UploadCSV posts data as the multipart "file" part.
func (c *HTTPClient) UploadCSV(ctx context.Context, name string, data []byte) (types.UploadedFile, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return types.UploadedFile{}, err
	}
	if _, err := part.Write(data); err != nil {
		return types.UploadedFile{}, err
	}
	if err := mw.Close(); err != nil {
		return types.UploadedFile{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload-csv", body)
	if err != nil {
		return types.UploadedFile{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out types.UploadedFile
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return types.UploadedFile{}, err
	}
	return out, nil
}

// ProcessCSVSnapshot calls /api/process-csv.
func (c *HTTPClient) ProcessCSVSnapshot(ctx context.Context, location string, mapping csvparse.FieldMapping) (model.Snapshot, error) {
	payload := struct {
		FileLocation string                `json:"fileLocation"`
		Mapping      csvparse.FieldMapping `json:"mapping,omitempty"`
	}{location, mapping}
	var out model.Snapshot
	if err := c.postJSON(ctx, "/api/process-csv", payload, &out); err != nil {
		return model.Snapshot{}, err
	}
	return out, nil
}

// ProcessMasterCSV calls /api/process-master.
func (c *HTTPClient) ProcessMasterCSV(ctx context.Context, location string, mapping roster.Mapping) ([]string, error) {
	payload := struct {
		FileLocation string         `json:"fileLocation"`
		Mapping      roster.Mapping `json:"mapping"`
	}{location, mapping}
	var out struct {
		Names []string `json:"names"`
	}
	if err := c.postJSON(ctx, "/api/process-master", payload, &out); err != nil {
		return nil, err
	}
	return out.Names, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in, out any) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, http.StatusOK, out)
}

func (c *HTTPClient) do(req *http.Request, want int, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		rerr := &RemoteError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, rerr)
		return rerr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
