// Package enrichment fetches full transaction detail by signature from the
// configured upstream, for the ingestion loop to feed to the Parser.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/solwatch/accountwatch/service/apperr"
	"github.com/solwatch/accountwatch/service/parser"
)

// Client fetches transaction detail over plain JSON-over-HTTPS.
type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
}

// New constructs a Client against baseURL, e.g. https://api.mainnet-beta.solana.com.
// bearerToken, if non-empty, is sent as the same Authorization header the
// Stream Client uses at dial time.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchDetail retrieves the transaction detail envelope for one signature.
// Errors are classified as retriable (timeouts, 5xx) or not (4xx, malformed
// body) via EnrichmentError.Retriable.
func (c *Client) FetchDetail(ctx context.Context, signature string) (*parser.Detail, error) {
	url := fmt.Sprintf("%s/tx/%s", c.baseURL, signature)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &apperr.EnrichmentError{Signature: signature, Retriable: false, Cause: err}
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.EnrichmentError{Signature: signature, Retriable: true, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &apperr.EnrichmentError{
			Signature: signature,
			Retriable: true,
			Cause:     fmt.Errorf("upstream returned %d", resp.StatusCode),
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &apperr.EnrichmentError{
			Signature: signature,
			Retriable: false,
			Cause:     fmt.Errorf("upstream returned %d", resp.StatusCode),
		}
	}

	var detail parser.Detail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, &apperr.EnrichmentError{Signature: signature, Retriable: false, Cause: fmt.Errorf("decode response: %w", err)}
	}

	return &detail, nil
}
