// src/tickers/quote.go
package tickers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/username/flexfolio/src/logger"
	"golang.org/x/net/publicsuffix"
)

// Structs for the quote-search API responses.
type quoteSearchResponse struct {
	Quotes []struct {
		Symbol    string  `json:"symbol"`
		Exchange  string  `json:"exchange"`
		Shortname string  `json:"shortname"`
		QuoteType string  `json:"quoteType"`
		Score     float64 `json:"score"`
	} `json:"quotes"`
}

type quoteLookupResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
			Currency           string  `json:"currency"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteResponse"`
}

// HTTPQuoteClient implements QuoteClient against the quote provider's
// search and quote endpoints.
type HTTPQuoteClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPQuoteClient creates a quote client. The provider requires
// session cookies, so the client carries a cookie jar.
func NewHTTPQuoteClient(baseURL string) *HTTPQuoteClient {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}
	return &HTTPQuoteClient{
		httpClient: &http.Client{Jar: jar, Timeout: 20 * time.Second},
		baseURL:    baseURL,
	}
}

// SearchIdentifier searches the quote endpoint by a raw identifier
// (ISIN, CUSIP or FIGI).
func (c *HTTPQuoteClient) SearchIdentifier(ctx context.Context, identifier string) ([]SearchResult, error) {
	searchURL := fmt.Sprintf("%s/v1/finance/search?q=%s&quotesCount=6&newsCount=0", c.baseURL, url.QueryEscape(identifier))
	var parsed quoteSearchResponse
	if err := c.getJSON(ctx, searchURL, &parsed); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(parsed.Quotes))
	for _, q := range parsed.Quotes {
		results = append(results, SearchResult{
			Symbol:   q.Symbol,
			Name:     q.Shortname,
			Exchange: q.Exchange,
			Score:    q.Score,
		})
	}
	return results, nil
}

// ValidateSymbol confirms a candidate ticker actually resolves on the
// quote service.
func (c *HTTPQuoteClient) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	quoteURL := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", c.baseURL, url.QueryEscape(symbol))
	var parsed quoteLookupResponse
	if err := c.getJSON(ctx, quoteURL, &parsed); err != nil {
		return false, err
	}
	for _, result := range parsed.QuoteResponse.Result {
		if result.Symbol == symbol {
			return true, nil
		}
	}
	return false, nil
}

func (c *HTTPQuoteClient) getJSON(ctx context.Context, requestURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return err
	}
	// A valid User-Agent is crucial.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("quote request returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode quote response: %w", err)
	}
	return nil
}
