// Package seed fetches game seeds from the GeoGuessr API.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

// TokenFromURL extracts the game token from a GeoGuessr game or challenge
// URL. A bare token is accepted as is.
func TokenFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", chatguessr.ErrInvalidSeedURL
	}
	if !strings.Contains(raw, "/") {
		if !validToken(raw) {
			return "", chatguessr.ErrInvalidSeedURL
		}
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", chatguessr.ErrInvalidSeedURL.Wrap(err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if (parts[i] == "game" || parts[i] == "challenge") && validToken(parts[i+1]) {
			return parts[i+1], nil
		}
	}
	return "", chatguessr.ErrInvalidSeedURL
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	ncfa    string

	timeout    time.Duration
	retries    uint64
	retryDelay time.Duration
}

type Option func(*Client)

// WithSession sets the _ncfa cookie of the streamer's GeoGuessr session.
func WithSession(ncfa string) Option {
	return func(c *Client) { c.ncfa = ncfa }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetry bounds the number of retries after the first attempt.
func WithRetry(retries uint64, delay time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.retryDelay = delay
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
		timeout:    10 * time.Second,
		retries:    5,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the current seed of the game identified by token.
func (c *Client) Fetch(ctx context.Context, token string) (*chatguessr.Seed, error) {
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(c.retryDelay))

	var s chatguessr.Seed
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return c.fetchOnce(ctx, token, &s)
	})
	if err != nil {
		return nil, chatguessr.ErrSeedUnavailable.Wrap(err)
	}
	return &s, nil
}

func (c *Client) fetchOnce(ctx context.Context, token string, out *chatguessr.Seed) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + "/api/v3/games/" + url.PathEscape(token))
	req.Header.Set("Accept", "application/json")
	if c.ncfa != "" {
		req.Header.SetCookie("_ncfa", c.ncfa)
	}

	if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		return retry.RetryableError(fmt.Errorf("request failed: %w", err))
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		err := fmt.Errorf("geoguessr api error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
		if shouldRetryStatus(status) {
			return retry.RetryableError(err)
		}
		return err
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	return nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func shouldRetryStatus(code int) bool {
	switch code {
	case fasthttp.StatusTooManyRequests,
		fasthttp.StatusInternalServerError,
		fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable,
		fasthttp.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
