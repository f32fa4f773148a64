package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

var errClientClosed = errors.New("client closed")

const (
	defaultTimeout  = 3 * time.Second
	defaultCacheTTL = 2 * time.Second
)

// NetworkError wraps a failed request: timeout, non-2xx status or transport
// failure. When fallback mode is enabled callers never see it for endpoints
// with a canned response.
type NetworkError struct {
	Method string
	Path   string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

type requestJob struct {
	ctx    context.Context
	method string
	path   string
	body   []byte
	reply  chan jobResult
}

type jobResult struct {
	data json.RawMessage
	err  error
}

type cacheEntry struct {
	data    json.RawMessage
	expires time.Time
}

// Client issues requests against the Metros API. Requests are serialized
// through a single worker so only one is in flight at a time and completion
// order matches submission order. Each request is bounded by a fixed timeout.
// GET responses are cached for a short TTL; successful writes invalidate the
// cache so subsequent reads are not stale.
//
// The cache and queue belong to the instance, nothing is shared globally.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	cacheTTL   time.Duration
	fallback   bool

	queue chan requestJob
	done  chan struct{}

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCacheTTL overrides the read cache TTL.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) { c.cacheTTL = d }
}

// WithFallback enables canned responses when a request fails, so the caller
// never blocks on backend unavailability.
func WithFallback(enabled bool) Option {
	return func(c *Client) { c.fallback = enabled }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the API at baseURL and starts its worker.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		cacheTTL:   defaultCacheTTL,
		queue:      make(chan requestJob, 64),
		done:       make(chan struct{}),
		cache:      make(map[string]cacheEntry),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.worker()
	return c
}

// Close stops the worker. Queued requests fail after it.
func (c *Client) Close() {
	close(c.done)
}

// Get issues a GET request, served from cache when a fresh entry exists.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	if method == http.MethodGet {
		if data, ok := c.cached(path); ok {
			return data, nil
		}
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	job := requestJob{
		ctx:    ctx,
		method: method,
		path:   path,
		body:   payload,
		reply:  make(chan jobResult, 1),
	}

	select {
	case c.queue <- job:
	case <-ctx.Done():
		return nil, &NetworkError{Method: method, Path: path, Err: ctx.Err()}
	case <-c.done:
		return nil, &NetworkError{Method: method, Path: path, Err: errClientClosed}
	}

	select {
	case res := <-job.reply:
		return res.data, res.err
	case <-ctx.Done():
		return nil, &NetworkError{Method: method, Path: path, Err: ctx.Err()}
	case <-c.done:
		// the worker may have finished this job just before shutdown
		select {
		case res := <-job.reply:
			return res.data, res.err
		default:
		}
		return nil, &NetworkError{Method: method, Path: path, Err: errClientClosed}
	}
}

// worker executes queued requests one at a time, strict FIFO.
func (c *Client) worker() {
	for {
		select {
		case <-c.done:
			c.failPending()
			return
		case job := <-c.queue:
			data, err := c.execute(job)
			if err != nil && c.fallback {
				if canned, ok := fallbackResponse(job.method, job.path, job.body); ok {
					data, err = canned, nil
				}
			}
			if err == nil {
				if job.method == http.MethodGet {
					c.storeCache(job.path, data)
				} else {
					c.invalidateCache()
				}
			}
			job.reply <- jobResult{data: data, err: err}
		}
	}
}

// failPending drains the queue on shutdown so no caller is left waiting.
func (c *Client) failPending() {
	for {
		select {
		case job := <-c.queue:
			job.reply <- jobResult{err: &NetworkError{Method: job.method, Path: job.path, Err: errClientClosed}}
		default:
			return
		}
	}
}

func (c *Client) execute(job requestJob) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(job.ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if job.body != nil {
		bodyReader = bytes.NewReader(job.body)
	}

	req, err := http.NewRequestWithContext(ctx, job.method, c.baseURL+job.path, bodyReader)
	if err != nil {
		return nil, &NetworkError{Method: job.method, Path: job.path, Err: err}
	}
	if job.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: job.method, Path: job.path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: job.method, Path: job.path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{Method: job.method, Path: job.path, Status: resp.StatusCode}
	}
	return json.RawMessage(data), nil
}

func (c *Client) cached(path string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[path]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.data, true
}

func (c *Client) storeCache(path string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[path] = cacheEntry{data: data, expires: c.now().Add(c.cacheTTL)}
}

func (c *Client) invalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}
