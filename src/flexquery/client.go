// src/flexquery/client.go
package flexquery

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/username/flexfolio/src/logger"
	"golang.org/x/time/rate"
)

// ErrTimeout ends an attempt whose wall-clock budget, measured from the
// first submit, is exhausted while the provider keeps answering with a
// retryable code.
var ErrTimeout = errors.New("timeout")

// ProtocolError is a fatal provider error code.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("flex query error %d: %s", e.Code, e.Message)
}

// Provider codes that mean "poll again later": the statement is still
// generating, or we are being rate limited. Everything else is fatal.
var retryableCodes = map[int]bool{
	1003: true, // statement is not ready yet
	1018: true, // too many requests
	1019: true, // statement generation in progress
}

// Attempt states. Kept as an explicit value, not recursive timer
// callbacks, so the timeout and max-delay invariants are testable.
type attemptState int

const (
	stateInit attemptState = iota
	stateRequestSent
	statePolling
	stateDone
)

// statementResponse is the provider's XML status envelope, returned by
// both the submit and the poll endpoints.
type statementResponse struct {
	XMLName       xml.Name
	Status        string `xml:"Status"`
	ReferenceCode string `xml:"ReferenceCode"`
	URL           string `xml:"Url"`
	ErrorCode     int    `xml:"ErrorCode"`
	ErrorMessage  string `xml:"ErrorMessage"`
}

// Client drives one statement fetch: submit a request, then poll for
// completion with bounded exponential backoff.
type Client struct {
	httpClient *http.Client
	baseURL    string
	minDelay   time.Duration
	maxDelay   time.Duration
	timeout    time.Duration
	clock      Clock
	limiter    *rate.Limiter
}

func NewClient(baseURL string, minDelay, maxDelay, timeout, pollEvery time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		timeout:    timeout,
		clock:      NewClock(),
		limiter:    rate.NewLimiter(rate.Every(pollEvery), 1),
	}
}

// WithClock swaps the clock. Tests use this to avoid real waits.
func (c *Client) WithClock(clock Clock) *Client {
	c.clock = clock
	return c
}

// WithHTTPClient swaps the transport.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// Fetch runs the full submit/poll state machine for one query and
// returns the statement payload (raw CSV or an XML envelope wrapping
// CSV). Transport errors, fatal provider codes and the wall-clock
// timeout all end the attempt.
func (c *Client) Fetch(ctx context.Context, token, queryID string) ([]byte, error) {
	st := stateInit
	var referenceCode string
	var submitted time.Time
	delay := c.minDelay

	for st != stateDone {
		switch st {
		case stateInit:
			body, err := c.call(ctx, c.submitURL(token, queryID))
			if err != nil {
				return nil, err
			}
			env, isEnvelope := parseStatusEnvelope(body)
			if !isEnvelope {
				return nil, fmt.Errorf("malformed submit response")
			}
			if env.Status != "Success" || env.ReferenceCode == "" {
				return nil, &ProtocolError{Code: env.ErrorCode, Message: env.ErrorMessage}
			}
			referenceCode = env.ReferenceCode
			submitted = c.clock.Now()
			st = stateRequestSent
			logger.L.Debug("Flex statement request accepted", "referenceCode", referenceCode)

		case stateRequestSent, statePolling:
			body, err := c.call(ctx, c.statementURL(token, referenceCode))
			if err != nil {
				return nil, err
			}
			env, isEnvelope := parseStatusEnvelope(body)
			if !isEnvelope || env.Status == "Success" {
				// The payload itself: raw CSV, or a success envelope
				// wrapping CSV.
				return body, nil
			}
			if (env.Status == "Warn" || env.Status == "Fail") && retryableCodes[env.ErrorCode] {
				logger.L.Debug("Statement not ready, will re-poll",
					"code", env.ErrorCode, "delay", delay, "elapsed", c.clock.Now().Sub(submitted))
				if err := c.clock.Sleep(ctx, delay); err != nil {
					return nil, err
				}
				if c.clock.Now().Sub(submitted) >= c.timeout {
					return nil, ErrTimeout
				}
				delay *= 2
				if delay > c.maxDelay {
					delay = c.maxDelay
				}
				st = statePolling
				continue
			}
			return nil, &ProtocolError{Code: env.ErrorCode, Message: env.ErrorMessage}
		}
	}
	return nil, fmt.Errorf("unreachable fetch state")
}

func (c *Client) submitURL(token, queryID string) string {
	return fmt.Sprintf("%s/FlexStatementService.SendRequest?t=%s&q=%s&v=3",
		c.baseURL, url.QueryEscape(token), url.QueryEscape(queryID))
}

func (c *Client) statementURL(token, referenceCode string) string {
	return fmt.Sprintf("%s/FlexStatementService.GetStatement?t=%s&q=%s&v=3",
		c.baseURL, url.QueryEscape(token), url.QueryEscape(referenceCode))
}

// call issues one GET. Transport-level problems (non-2xx status,
// network error) are fatal for the attempt, not retried.
func (c *Client) call(ctx context.Context, requestURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flex query transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("flex query returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read flex query response: %w", err)
	}
	return body, nil
}

// parseStatusEnvelope reports whether the body is a status envelope. A
// body that is not XML, or whose root is not a statement response, is
// the statement payload itself.
func parseStatusEnvelope(body []byte) (statementResponse, bool) {
	var env statementResponse
	if err := xml.Unmarshal(body, &env); err != nil {
		return statementResponse{}, false
	}
	if env.XMLName.Local != "FlexStatementResponse" && env.XMLName.Local != "FlexQueryResponse" {
		return statementResponse{}, false
	}
	if env.Status == "" {
		return statementResponse{}, false
	}
	return env, true
}
