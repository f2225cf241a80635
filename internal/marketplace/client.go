package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TokenSource supplies and invalidates the bearer token attached to every
// authenticated call. Consumers define this interface; auth.Provider
// implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

var ErrUnauthorized = errors.New("marketplace rejected token after refresh")

// APIError is a non-2xx response from the marketplace that is not an
// authorization failure, e.g. an invalid coupon code.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("marketplace error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("marketplace error %d", e.StatusCode)
}

// Client performs authenticated HTTP+JSON calls against the marketplace API.
// Every call attaches a bearer token; on 401 it invalidates the token,
// obtains a new one and retries the identical request exactly once. Other
// failures surface immediately with no retry.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:    "marketplace",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens:  tokens,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

// do runs one request with the 401-recover-once contract and decodes the
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtain token: %w", err)
	}

	resp, err := c.attempt(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		if errInv := c.tokens.Invalidate(ctx); errInv != nil {
			return fmt.Errorf("invalidate token: %w", errInv)
		}
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("obtain token after 401: %w", err)
		}
		resp, err = c.attempt(ctx, method, path, payload, token)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			return ErrUnauthorized
		}
	}
	defer drain(resp)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
