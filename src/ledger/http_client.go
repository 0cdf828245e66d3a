// src/ledger/http_client.go
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/username/flexfolio/src/models"
)

// HTTPClient talks to the host application's REST API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}
}

func (c *HTTPClient) GetAccounts(ctx context.Context) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/account", nil, &out); err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	return out.Accounts, nil
}

func (c *HTTPClient) CreateAccount(ctx context.Context, spec AccountSpec) (Account, error) {
	var created Account
	if err := c.do(ctx, http.MethodPost, "/api/v1/account", spec, &created); err != nil {
		return Account{}, fmt.Errorf("create account %q: %w", spec.Name, err)
	}
	return created, nil
}

func (c *HTTPClient) GetActivities(ctx context.Context, accountID string) ([]models.ActivityRecord, error) {
	var out struct {
		Activities []models.ActivityRecord `json:"activities"`
	}
	path := "/api/v1/order?accounts=" + accountID
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("get activities for %s: %w", accountID, err)
	}
	return out.Activities, nil
}

func (c *HTTPClient) ImportActivities(ctx context.Context, records []models.ActivityRecord) error {
	payload := struct {
		Activities []models.ActivityRecord `json:"activities"`
	}{Activities: records}
	if err := c.do(ctx, http.MethodPost, "/api/v1/import", payload, nil); err != nil {
		return fmt.Errorf("import %d activities: %w", len(records), err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ledger API returned HTTP %d: %s", resp.StatusCode, string(snippet))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
