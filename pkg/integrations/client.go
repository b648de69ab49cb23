package integrations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/matzehuels/packscan/pkg/cache"
	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/httputil"
	"github.com/matzehuels/packscan/pkg/observability"
)

// Client provides shared HTTP functionality for remote API and archive
// requests. It handles caching, retry logic, and common request headers.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	prefix  string
	ttl     time.Duration
	headers map[string]string
}

// NewClient creates a Client with the given cache and default headers.
// Cache keys passed to [Client.Cached] are prefixed with prefix and stored
// for ttl. Pass nil for headers if no default headers are needed; a nil
// cache disables caching.
func NewClient(c cache.Cache, prefix string, ttl time.Duration, headers map[string]string) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Client{
		http:    NewHTTPClient(),
		cache:   c,
		prefix:  prefix,
		ttl:     ttl,
		headers: headers,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Cached retrieves a value from cache or executes fetch and caches the result.
// If refresh is true, the cache is bypassed and fetch is always called.
// The fetch function should populate v; on success, v is stored in the cache.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	hooks := observability.Cache()
	key = c.prefix + key
	if !refresh {
		if err := cache.GetJSON(ctx, c.cache, key, v); err == nil {
			hooks.OnCacheHit(ctx, c.prefix)
			return nil
		}
		hooks.OnCacheMiss(ctx, c.prefix)
	}
	if err := httputil.RetryWithBackoff(ctx, fetch); err != nil {
		return err
	}
	if err := cache.SetJSON(ctx, c.cache, key, v, c.ttl); err == nil {
		hooks.OnCacheSet(ctx, c.prefix, 0)
	}
	return nil
}

// Download streams the body at url into consume. Transient failures,
// including a body that breaks off mid-stream, are retried with backoff;
// consume must therefore tolerate being called again from scratch.
func (c *Client) Download(ctx context.Context, url string, consume func(io.Reader) error) error {
	if err := errors.ValidateURL(url); err != nil {
		return err
	}
	return httputil.RetryWithBackoff(ctx, func() error {
		body, err := c.doRequest(ctx, url)
		if err != nil {
			return err
		}
		defer body.Close()
		if err := consume(body); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		return nil
	})
}

func (c *Client) doRequest(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, http.MethodGet, host, path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, http.MethodGet, host, path, err)
		return nil, &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	hooks.OnResponse(ctx, http.MethodGet, host, path, resp.StatusCode, time.Since(start))

	err = checkStatus(resp.StatusCode)
	if resp.StatusCode == http.StatusTooManyRequests {
		err = rateLimited(resp)
	}
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return httputil.Retryable(&errors.RateLimitedError{})
	case code >= 500:
		return &httputil.RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, code)}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

func rateLimited(resp *http.Response) error {
	secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	return httputil.Retryable(&errors.RateLimitedError{RetryAfter: secs, Message: resp.Status})
}
