// internal/eventspec/fetcher.go
package eventspec

/*
 * Tracking-plan fetcher with request coalescing.
 *
 * Fetch never blocks the caller on the network. Each distinct
 * apiKey:streamId:eventName key has at most one request in flight; later
 * callers for the same key queue their callback and all callbacks receive
 * the same result exactly once.
 *
 * Two timeouts apply:
 *   - RequestTimeout bounds a single HTTP exchange (http.Client.Timeout)
 *   - WallTimeout bounds the whole fetch, defaulting to twice RequestTimeout
 *
 * On wall timeout the request context is cancelled and callbacks receive nil.
 * Each fetch owns its result channel, so a response that arrives after the
 * deadline is dropped and cannot be delivered to a later fetch for the key.
 *
 * Only dev and staging environments reach the network. In prod callbacks
 * receive nil synchronously.
 *
 * Every failure mode (transport error, non-200, malformed body, panic)
 * delivers nil. Errors are logged, never returned.
 */

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/solatis/schemainspector/internal/metrics"
	"github.com/solatis/schemainspector/internal/types"
)

// DefaultBaseURL is the tracking-plan API origin.
const DefaultBaseURL = "https://api.avo.app"

// maxResponseBytes caps the size of a tracking-plan response body.
const maxResponseBytes = 8 << 20

// RequestClient performs one tracking-plan GET and decodes the response.
type RequestClient interface {
	Get(ctx context.Context, rawURL string) (*types.EventSpecResponse, error)
}

// HTTPClient is the default RequestClient.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a RequestClient whose requests time out after timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get fetches rawURL and parses the body with ParseResponse.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) (*types.EventSpecResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get event spec: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", types.ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read event spec: %w", err)
	}
	return ParseResponse(body)
}

// FetchParams identifies the event spec to fetch.
type FetchParams struct {
	APIKey    string
	StreamID  string
	EventName string
}

// Callback receives a fetched spec, or nil when none is available.
type Callback func(*types.EventSpecResponse)

// FetcherConfig configures a Fetcher. Zero values select defaults.
type FetcherConfig struct {
	BaseURL        string
	Env            types.Env
	RequestTimeout time.Duration
	WallTimeout    time.Duration
	Client         RequestClient
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Fetcher retrieves tracking-plan specs. Safe for concurrent use.
type Fetcher struct {
	baseURL     string
	env         types.Env
	wallTimeout time.Duration
	client      RequestClient
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu       sync.Mutex
	inFlight map[string][]Callback
	wg       sync.WaitGroup
}

// NewFetcher creates a Fetcher from cfg.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = types.DefaultRequestTimeout
	}
	if cfg.WallTimeout <= 0 {
		cfg.WallTimeout = 2 * cfg.RequestTimeout
	}
	if cfg.Client == nil {
		cfg.Client = NewHTTPClient(cfg.RequestTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Fetcher{
		baseURL:     cfg.BaseURL,
		env:         cfg.Env,
		wallTimeout: cfg.WallTimeout,
		client:      cfg.Client,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		inFlight:    make(map[string][]Callback),
	}
}

// Fetch requests the event spec for params and invokes callback with the result.
// Concurrent calls for the same key share one request. In dev and staging the
// callback runs on a fetcher goroutine; in other environments it runs before
// Fetch returns, with nil.
func (f *Fetcher) Fetch(ctx context.Context, params FetchParams, callback Callback) {
	key := Key(params.APIKey, params.StreamID, params.EventName)

	f.mu.Lock()
	if pending, ok := f.inFlight[key]; ok {
		f.inFlight[key] = append(pending, callback)
		f.mu.Unlock()
		return
	}
	f.inFlight[key] = []Callback{callback}
	f.mu.Unlock()

	if !f.env.IsDevelopment() {
		f.metrics.SpecFetched(metrics.FetchSkipped)
		f.deliver(key, nil)
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.deliver(key, f.fetch(ctx, params))
	}()
}

// Wait blocks until every started fetch has delivered its result.
func (f *Fetcher) Wait() {
	f.wg.Wait()
}

// InFlight returns the number of keys with a pending request.
func (f *Fetcher) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inFlight)
}

type fetchResult struct {
	spec *types.EventSpecResponse
	err  error
}

// fetch runs one request under the wall timeout and returns nil on any failure.
func (f *Fetcher) fetch(ctx context.Context, params FetchParams) (spec *types.EventSpecResponse) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("event spec fetch panicked", "event", params.EventName, "panic", r)
			f.metrics.SpecFetched(metrics.FetchFailed)
			spec = nil
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, f.wallTimeout)
	defer cancel()

	rawURL := f.buildURL(params)
	f.logger.Debug("fetching event spec", "event", params.EventName, "url", rawURL)

	results := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- fetchResult{err: fmt.Errorf("request client panicked: %v", r)}
			}
		}()
		s, err := f.client.Get(ctx, rawURL)
		results <- fetchResult{spec: s, err: err}
	}()

	select {
	case <-ctx.Done():
		f.logger.Warn("event spec fetch timed out",
			"event", params.EventName,
			"wall_timeout", f.wallTimeout)
		f.metrics.SpecFetched(metrics.FetchTimeout)
		return nil

	case res := <-results:
		switch {
		case errors.Is(res.err, types.ErrMalformedSpec):
			f.logger.Warn("invalid event spec response", "event", params.EventName, "error", res.err)
			f.metrics.SpecFetched(metrics.FetchMalformed)
			return nil
		case res.err != nil:
			f.logger.Warn("failed to fetch event spec", "event", params.EventName, "error", res.err)
			f.metrics.SpecFetched(metrics.FetchFailed)
			return nil
		case res.spec == nil:
			f.metrics.SpecFetched(metrics.FetchFailed)
			return nil
		}
		f.logger.Debug("fetched event spec", "event", params.EventName, "entries", len(res.spec.Events))
		f.metrics.SpecFetched(metrics.FetchSuccess)
		return res.spec
	}
}

// deliver removes key from the in-flight table and fans spec out to its callbacks.
func (f *Fetcher) deliver(key string, spec *types.EventSpecResponse) {
	f.mu.Lock()
	callbacks := f.inFlight[key]
	delete(f.inFlight, key)
	f.mu.Unlock()

	for _, cb := range callbacks {
		f.invoke(cb, spec)
	}
}

func (f *Fetcher) invoke(cb Callback, spec *types.EventSpecResponse) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("event spec callback panicked", "panic", r)
		}
	}()
	cb(spec)
}

func (f *Fetcher) buildURL(p FetchParams) string {
	return f.baseURL + "/trackingPlan/eventSpec" +
		"?apiKey=" + url.QueryEscape(p.APIKey) +
		"&streamId=" + url.QueryEscape(p.StreamID) +
		"&eventName=" + url.QueryEscape(p.EventName)
}
