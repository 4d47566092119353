package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient talks to a JSON feed endpoint with bearer-token auth.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a feed client for the given endpoint.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type transactionsResponse struct {
	Items []Record `json:"items"`
}

// Transactions fetches the account's recent records from the feed endpoint.
func (c *HTTPClient) Transactions(ctx context.Context, accountRef string) ([]Record, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/transactions", c.baseURL, url.PathEscape(accountRef))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed transactions: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d for account %s", resp.StatusCode, accountRef)
	}

	var payload transactionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding feed response: %w", err)
	}
	return payload.Items, nil
}

// StaticClient serves a fixed set of records per account, for development
// and tests.
type StaticClient struct {
	Records map[string][]Record
	Err     error
}

var _ Client = (*StaticClient)(nil)

// Transactions returns the configured records for the account.
func (c *StaticClient) Transactions(_ context.Context, accountRef string) ([]Record, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Records[accountRef], nil
}
