package upstream

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

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/obs"
	"github.com/noah-isme/toko-apparel/internal/resilience"
)

const maxErrorBody = 64 << 10

// Config wires a Client.
type Config struct {
	BaseURL string
	// ServiceToken authenticates calls made without a caller token, such as
	// public catalog reads and background warm-ups.
	ServiceToken string
	HTTP         resilience.HTTPClient
	Logger       zerolog.Logger
}

// Client talks to the REST backend that owns catalog, order, user and content state.
type Client struct {
	base         *url.URL
	serviceToken string
	http         resilience.HTTPClient
	logger       zerolog.Logger
}

// New validates the configuration and returns a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("upstream: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("upstream: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upstream: unsupported scheme %q", base.Scheme)
	}
	httpClient := cfg.HTTP
	if httpClient.Client == nil {
		httpClient.Client = resilience.NewTracedClient(nil)
	}
	return &Client{
		base:         base,
		serviceToken: strings.TrimSpace(cfg.ServiceToken),
		http:         httpClient,
		logger:       cfg.Logger,
	}, nil
}

type request struct {
	method      string
	resource    string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) token(ctx context.Context) string {
	if tok, ok := common.AccessToken(ctx); ok {
		return tok
	}
	return c.serviceToken
}

// send performs the call and returns the raw body of a 2xx response.
func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), r.body)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if tok := c.token(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	elapsed := obs.DurationMillis(time.Since(start))
	if err != nil {
		obs.ObserveUpstream(r.resource, r.method, "error", elapsed)
		c.logger.Warn().Err(err).Str("resource", r.resource).Str("method", r.method).Str("path", r.path).Msg("upstream_call_failed")
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, unavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		result := "rejected"
		if resp.StatusCode == http.StatusNotFound {
			result = "not_found"
		}
		obs.ObserveUpstream(r.resource, r.method, result, elapsed)
		c.logger.Debug().Int("status", resp.StatusCode).Str("resource", r.resource).Str("path", r.path).Msg("upstream_call_rejected")
		return nil, newError(resp.StatusCode, body)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		obs.ObserveUpstream(r.resource, r.method, "error", elapsed)
		return nil, unavailable(fmt.Errorf("read body: %w", err))
	}
	obs.ObserveUpstream(r.resource, r.method, "ok", elapsed)
	return body, nil
}

func (c *Client) sendJSON(ctx context.Context, method, resource, path string, query url.Values, in any) ([]byte, error) {
	r := request{method: method, resource: resource, path: path, query: query}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("upstream: encode %s: %w", resource, err)
		}
		r.body = bytes.NewReader(payload)
		r.contentType = "application/json"
	}
	return c.send(ctx, r)
}

func list[T any](ctx context.Context, c *Client, resource, path string, query url.Values) ([]T, error) {
	body, err := c.sendJSON(ctx, http.MethodGet, resource, path, query, nil)
	if err != nil {
		return nil, err
	}
	out, err := decodeList[T](body)
	if err != nil {
		return nil, fmt.Errorf("upstream: decode %s: %w", resource, err)
	}
	return out, nil
}

func one[T any](ctx context.Context, c *Client, method, resource, path string, in any) (T, error) {
	var zero T
	body, err := c.sendJSON(ctx, method, resource, path, nil, in)
	if err != nil {
		return zero, err
	}
	out, err := decodeOne[T](body)
	if err != nil {
		return zero, fmt.Errorf("upstream: decode %s: %w", resource, err)
	}
	return out, nil
}

func (c *Client) remove(ctx context.Context, resource, path string) error {
	_, err := c.sendJSON(ctx, http.MethodDelete, resource, path, nil, nil)
	return err
}

// Breaker exposes the circuit breaker guarding backend calls.
func (c *Client) Breaker() *resilience.Breaker { return c.http.Breaker }

// Ping checks that the backend answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.send(ctx, request{method: http.MethodGet, resource: "health", path: "/categories"})
	var upErr *Error
	if errors.As(err, &upErr) && upErr.Status < http.StatusInternalServerError {
		return nil
	}
	return err
}
