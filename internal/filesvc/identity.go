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

// IdentityClient resolves a bearer credential to the caller's identity.
// The pipeline trusts the returned record as the run's sender snapshot.
type IdentityClient struct {
	baseURL string
	http    httpretry.HTTPDoer
}

// NewIdentityClient creates an identity-service client.
func NewIdentityClient(baseURL string, doer httpretry.HTTPDoer) *IdentityClient {
	if doer == nil {
		doer = httpretry.NewRetryClient(nil, 3)
	}
	return &IdentityClient{baseURL: baseURL, http: doer}
}

// Me returns the identity of the credential's owner.
func (c *IdentityClient) Me(ctx context.Context, accessToken string) (*domain.Sender, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identity service returned %d: %s", resp.StatusCode, body)
	}

	var sender domain.Sender
	if err := json.NewDecoder(resp.Body).Decode(&sender); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &sender, nil
}
