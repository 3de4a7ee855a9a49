package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/tangram-vision/datasets-cli/internal/config"
	"github.com/tangram-vision/datasets-cli/internal/constants"
	"github.com/tangram-vision/datasets-cli/internal/models"
)

// Client talks to the dataset/file metadata service.
//
// Mutating calls send Prefer: return=representation so the service answers
// with the created row (as a singleton array, per PostgREST convention).
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
	token      string
}

// NewClient creates a metadata-service client from the invocation config.
//
// Requests get a 30-second timeout and transparent retry of transient
// network failures; rejections (4xx) are never retried.
func NewClient(cfg *config.Config) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = constants.APIRetryMax
	rc.RetryWaitMin = constants.APIRetryWaitMin
	rc.RetryWaitMax = constants.APIRetryWaitMax
	rc.Logger = nil
	rc.HTTPClient.Timeout = constants.APITimeout

	return &Client{
		httpClient: rc.StandardClient(),
		baseURL:    strings.TrimSuffix(cfg.APIBaseURL, "/"),
		token:      cfg.AuthToken,
	}
}

// doRequest performs one authenticated request against the service.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*nethttp.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "return=representation")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata service request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newError(resp)
	}

	return resp, nil
}

// decodeSingleton reads a PostgREST singleton-array response into out.
func decodeSingleton(resp *nethttp.Response, out interface{}) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Prefer: return=representation answers with a one-element array.
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return fmt.Errorf("metadata service protocol error: expected JSON array, got %q: %w", excerpt(raw), err)
	}
	if len(rows) != 1 {
		return fmt.Errorf("metadata service protocol error: expected exactly one row, got %d", len(rows))
	}

	if err := json.Unmarshal(rows[0], out); err != nil {
		return fmt.Errorf("metadata service protocol error: %w", err)
	}
	return nil
}

func excerpt(raw []byte) string {
	const max = 200
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}

// CreateDataset creates a new, empty dataset and returns the created row.
func (c *Client) CreateDataset(ctx context.Context, systemID string, metadata json.RawMessage) (*models.Dataset, error) {
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	body := struct {
		SystemID string          `json:"system_id"`
		Metadata json.RawMessage `json:"metadata"`
	}{SystemID: systemID, Metadata: metadata}

	resp, err := c.doRequest(ctx, nethttp.MethodPost, "/datasets", nil, body)
	if err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	var ds models.Dataset
	if err := decodeSingleton(resp, &ds); err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}
	return &ds, nil
}

// ListDatasets returns datasets matching the filter, with their file rows
// embedded.
func (c *Client) ListDatasets(ctx context.Context, filter DatasetFilter) ([]models.Dataset, error) {
	query, err := filter.query()
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	resp, err := c.doRequest(ctx, nethttp.MethodGet, "/datasets", query, nil)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer resp.Body.Close()

	var datasets []models.Dataset
	if err := json.NewDecoder(resp.Body).Decode(&datasets); err != nil {
		return nil, fmt.Errorf("list datasets: metadata service protocol error: %w", err)
	}
	return datasets, nil
}

// RegisterFile records a durably committed object under its dataset.
func (c *Client) RegisterFile(ctx context.Context, datasetID uuid.UUID, objectURL string, size int64, version string, metadata json.RawMessage) (*models.UploadedFile, error) {
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	body := struct {
		DatasetID uuid.UUID       `json:"dataset_id"`
		URL       string          `json:"url"`
		Filesize  int64           `json:"filesize"`
		Version   string          `json:"version"`
		Metadata  json.RawMessage `json:"metadata"`
	}{DatasetID: datasetID, URL: objectURL, Filesize: size, Version: version, Metadata: metadata}

	resp, err := c.doRequest(ctx, nethttp.MethodPost, "/files", nil, body)
	if err != nil {
		return nil, fmt.Errorf("register file: %w", err)
	}

	var file models.UploadedFile
	if err := decodeSingleton(resp, &file); err != nil {
		return nil, fmt.Errorf("register file: %w", err)
	}
	return &file, nil
}

// ListFiles returns the files of a dataset, optionally narrowed to paths
// matching any of the given prefixes.
func (c *Client) ListFiles(ctx context.Context, datasetID uuid.UUID, prefixes []string) ([]models.UploadedFile, error) {
	resp, err := c.doRequest(ctx, nethttp.MethodGet, "/files", fileQuery(datasetID, prefixes), nil)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer resp.Body.Close()

	var files []models.UploadedFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("list files: metadata service protocol error: %w", err)
	}
	return files, nil
}

// NotifyUploadComplete seals a dataset. After this call the file list is
// no longer append-only from the service's point of view; nothing further
// may be registered.
//
// The RPC takes three arguments on the wire; the optional file ids are
// sent as explicit nulls when absent.
func (c *Client) NotifyUploadComplete(ctx context.Context, datasetID uuid.UUID, plexFileID, objectSpaceFileID *uuid.UUID) error {
	body := struct {
		DatasetID         uuid.UUID  `json:"dataset_id"`
		PlexFileID        *uuid.UUID `json:"plex_file_id"`
		ObjectSpaceFileID *uuid.UUID `json:"object_space_file_id"`
	}{DatasetID: datasetID, PlexFileID: plexFileID, ObjectSpaceFileID: objectSpaceFileID}

	resp, err := c.doRequest(ctx, nethttp.MethodPost, "/rpc/dataset_upload_complete", nil, body)
	if err != nil {
		return fmt.Errorf("notify upload complete: %w", err)
	}
	resp.Body.Close()
	return nil
}
