// Package filesvc holds HTTP clients for the external collaborators the
// pipeline consumes: the file-metadata service and the identity service.
// Both are read-only lookups authenticated with the caller's bearer token.
package filesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/httpretry"
)

// Client resolves file ids to metadata through the file service API.
type Client struct {
	baseURL string
	http    httpretry.HTTPDoer
}

// NewClient creates a file-service client. If doer is nil a retrying
// client with default settings is used.
func NewClient(baseURL string, doer httpretry.HTTPDoer) *Client {
	if doer == nil {
		doer = httpretry.NewRetryClient(nil, 3)
	}
	return &Client{baseURL: baseURL, http: doer}
}

// GetFileInfo fetches the metadata record for one file id.
func (c *Client) GetFileInfo(ctx context.Context, fileID, accessToken string) (*domain.FileRef, error) {
	url := fmt.Sprintf("%s/files/%s", c.baseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build file request: %w", err)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("file service returned %d for %s: %s", resp.StatusCode, fileID, body)
	}

	var ref domain.FileRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return nil, fmt.Errorf("decode file info %s: %w", fileID, err)
	}
	if ref.FileID == "" {
		ref.FileID = fileID
	}
	return &ref, nil
}

// Download fetches the raw bytes behind a file's public URL. Used for
// attachment content; template and spreadsheet bytes come from object
// storage directly.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s returned %d", fileURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
