package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

// NangoClient fetches synced records from the Nango API. Nango owns the OAuth
// dance and the provider sync; we only ever read its record store.
type NangoClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewNangoClient creates a client for the Nango records API.
func NewNangoClient(baseURL, secretKey string) *NangoClient {
	if baseURL == "" {
		baseURL = "https://api.nango.dev"
	}
	return &NangoClient{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type recordsResponse struct {
	Records []json.RawMessage `json:"records"`
}

// FetchRecords returns the raw records of one sync for one connection.
func (c *NangoClient) FetchRecords(ctx context.Context, syncName, connectionID string) ([]json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/sync/%s/records?connectionId=%s",
		c.baseURL, url.PathEscape(syncName), url.QueryEscape(connectionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nango request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read nango response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nango API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed recordsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode nango records: %w", err)
	}

	log.Debug().
		Str("sync", syncName).
		Str("connection_id", connectionID).
		Int("records", len(parsed.Records)).
		Msg("fetched nango records")

	return parsed.Records, nil
}
