// Package merchantapi is the HTTP client for the merchant backend.
package merchantapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/merchantpos/paysync/internal/domain"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 15 * time.Second
	retryBackoff   = 250 * time.Millisecond
	maxErrorBody   = 4096
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("merchant API error: status %d, code %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("merchant API error: status %d", e.StatusCode)
}

// HTTPStatus returns the response status code
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// ResponseBody returns the raw response body
func (e *APIError) ResponseBody() []byte { return e.Body }

// Config configures the client
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the merchant backend with bearer authentication.
type Client struct {
	baseURL    string
	token      string
	maxRetries int
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new merchant API client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	if retries > 1 {
		retries = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		maxRetries: retries,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("client", "merchant-api").Logger(),
	}
}

// ListOrders returns the merchant's orders, filtered by status when set
func (c *Client) ListOrders(ctx context.Context, status string) ([]domain.Order, error) {
	var orders []domain.Order
	if err := c.get(ctx, "/orders", statusQuery(status), &orders); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetOrder returns a single order
func (c *Client) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	if err := c.get(ctx, "/orders/"+url.PathEscape(id), nil, &order); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &order, nil
}

// ListDeposits returns the merchant's deposits, filtered by status when set
func (c *Client) ListDeposits(ctx context.Context, status string) ([]domain.Deposit, error) {
	var deposits []domain.Deposit
	if err := c.get(ctx, "/deposits", statusQuery(status), &deposits); err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	return deposits, nil
}

// GetDeposit returns a single deposit
func (c *Client) GetDeposit(ctx context.Context, id string) (*domain.Deposit, error) {
	var deposit domain.Deposit
	if err := c.get(ctx, "/deposits/"+url.PathEscape(id), nil, &deposit); err != nil {
		return nil, fmt.Errorf("get deposit %s: %w", id, err)
	}
	return &deposit, nil
}

// GetProfile returns the authenticated merchant's profile
func (c *Client) GetProfile(ctx context.Context) (*domain.MerchantProfile, error) {
	var profile domain.MerchantProfile
	if err := c.get(ctx, "/merchant/profile", nil, &profile); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

func statusQuery(status string) url.Values {
	if status == "" || status == "all" {
		return nil
	}
	return url.Values{"status": {status}}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug().Str("path", path).Int("attempt", attempt+1).Msg("Retrying request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		body, err := c.do(ctx, endpoint)
		if err == nil {
			return decodeData(body, out)
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		c.log.Warn().Err(err).Str("path", path).Msg("Merchant API request failed")
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newAPIError(resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// retryable reports whether err is a network failure or a 5xx response.
// Context cancellation is never retried.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: body}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	}
	return apiErr
}

// decodeData accepts both bare payloads and {"data": ...} envelopes.
func decodeData(body []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
			trimmed = envelope.Data
		}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
