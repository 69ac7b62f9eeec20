// Package registry provides a generic, cached, concurrency-bounded HTTP
// client for talking to an npm-compatible package registry. pkg/npm builds
// on top of it for metadata lookups and tarball downloads.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rjspm/rjs/pkg/cache"
)

// httpTimeout bounds every request made through a Client, metadata lookups
// and tarball streams alike.
const httpTimeout = 30 * time.Second

var (
	// ErrNotFound is returned for HTTP 404 responses - an unpublished
	// package name or an unknown version/tag.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection
	// errors, 5xx responses). 5xx responses are additionally wrapped with
	// [cache.Retryable] so RetryWithBackoff will retry them.
	ErrNetwork = errors.New("network error")
)

// Client is a registry HTTP client shared by every goroutine in a resolve
// or install run. A semaphore caps in-flight requests so a large graph
// cannot open thousands of sockets against the registry at once.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	keyer   cache.Keyer
	baseURL string
	ttl     time.Duration
	sem     *semaphore.Weighted
}

// NewClient creates a registry client rooted at baseURL (e.g.
// "https://registry.npmjs.org"). concurrency bounds the number of
// in-flight HTTP requests across all callers of this Client.
func NewClient(baseURL string, c cache.Cache, ttl time.Duration, concurrency int) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Client{
		http:    &http.Client{Timeout: httpTimeout},
		cache:   c,
		keyer:   cache.NewDefaultKeyer(),
		baseURL: baseURL,
		ttl:     ttl,
		sem:     semaphore.NewWeighted(int64(concurrency)),
	}
}

// BaseURL returns the registry root this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Cached retrieves a JSON value from cache or executes fetch and caches the
// result. If refresh is true the cache is bypassed and fetch always runs.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	cacheKey := c.keyer.HTTPKey(c.baseURL, key)
	if !refresh {
		data, hit, _ := c.cache.Get(ctx, cacheKey)
		if hit {
			if err := json.Unmarshal(data, v); err == nil {
				return nil
			}
		}
	}
	if err := cache.RetryWithBackoff(ctx, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		_ = c.cache.Set(ctx, cacheKey, data, c.ttl)
	}
	return nil
}

// GetJSON performs an HTTP GET against baseURL+path and JSON-decodes the
// response into v. It acquires the client's concurrency semaphore for the
// duration of the request.
func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	body, err := c.open(ctx, c.baseURL+path)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// OpenStream performs an HTTP GET against url (an absolute URL, typically a
// tarball's dist.tarball field) and returns the response body unread, for
// streaming large payloads without buffering them in memory. The caller
// must Close the returned reader. The concurrency semaphore slot acquired
// for this request is held until Close, not just until headers arrive -
// tarball downloads spend most of their time streaming the body, and the
// whole point of the semaphore is to bound how many of those can be in
// flight at once.
func (c *Client) OpenStream(ctx context.Context, url string) (io.ReadCloser, error) {
	return c.open(ctx, url)
}

func (c *Client) open(ctx context.Context, url string) (io.ReadCloser, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.sem.Release(1)
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "rjs/1")

	resp, err := c.http.Do(req)
	if err != nil {
		c.sem.Release(1)
		return nil, cache.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		c.sem.Release(1)
		return nil, err
	}
	return &releasingBody{ReadCloser: resp.Body, release: func() { c.sem.Release(1) }}, nil
}

// releasingBody wraps a response body so the owning Client's concurrency
// slot is released exactly once, on Close, regardless of how many times
// Close is called or whether the body was fully read.
type releasingBody struct {
	io.ReadCloser
	release func()
	once    sync.Once
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return cache.Retryable(fmt.Errorf("%w: rate limited", ErrNetwork))
	case code >= 500:
		return cache.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
