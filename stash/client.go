// Package stash is a GraphQL client for the Stash media server.
package stash

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

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/erikbos/stashfin/logging"
	"github.com/erikbos/stashfin/metrics"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	apiKeyHeader      = "ApiKey"
)

var (
	// ErrClient is a terminal error reported by the backend: a 4xx status
	// or a GraphQL error without data. It is never retried.
	ErrClient = errors.New("backend rejected query")
	// ErrUnavailable means the backend could not be reached within the
	// retry budget, or the circuit breaker is open.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrNotFound is returned by single object lookups that yield null.
	ErrNotFound = errors.New("not found")
)

// Error is the structured error returned by Execute.
type Error struct {
	// Op is the GraphQL operation name.
	Op string
	// Kind is ErrClient, ErrUnavailable or ErrNotFound.
	Kind error
	// Status is the HTTP status of the last attempt, 0 when no response was received.
	Status int
	// Attempts is the number of attempts made.
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stash %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("stash %s: %s: %s", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Options configures a Client.
type Options struct {
	// URL is the base url of the Stash server, e.g. http://localhost:9999
	URL string
	// ApiKey is sent with every request when set.
	ApiKey string
	// Timeout bounds a single query attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// RetryInterval is the initial backoff interval, doubled per retry.
	RetryInterval time.Duration
	// HTTPClient is used for queries and media fetches.
	HTTPClient *http.Client
}

// Client executes GraphQL queries against Stash.
type Client struct {
	baseURL       *url.URL
	apiKey        string
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
	http          *http.Client
	breaker       *gobreaker.CircuitBreaker[json.RawMessage]
	inflight      singleflight.Group
	log           zerolog.Logger
}

// New returns a new client.
func New(o Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(o.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid stash url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid stash url %q", o.URL)
	}
	c := &Client{
		baseURL:       u,
		apiKey:        o.ApiKey,
		timeout:       o.Timeout,
		maxRetries:    o.MaxRetries,
		retryInterval: o.RetryInterval,
		http:          o.HTTPClient,
		log:           logging.WithComponent("stash"),
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxRetries < 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.retryInterval <= 0 {
		c.retryInterval = 500 * time.Millisecond
	}
	if c.http == nil {
		c.http = &http.Client{}
	}

	c.breaker = gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "stash",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a query the backend rejects still proves it is reachable
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrClient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return c, nil
}

// BaseURL returns the configured Stash url.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Request is one GraphQL query.
type Request struct {
	// OperationName is used for logging, metrics and request coalescing.
	OperationName string
	Query         string
	Variables     map[string]any
	// Timeout overrides the client timeout per attempt.
	Timeout time.Duration
	// MaxRetries overrides the client retry count when >= 0.
	MaxRetries *int
}

type graphqlRequest struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Execute runs a query and returns the raw "data" member of the response.
// Timeouts, connection failures and 5xx responses are retried with
// exponential backoff; client errors are returned immediately.
// Identical concurrent queries share one backend round trip.
func (c *Client) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{
		OperationName: req.OperationName,
		Query:         req.Query,
		Variables:     req.Variables,
	})
	if err != nil {
		return nil, &Error{Op: req.OperationName, Kind: ErrClient, Err: err}
	}

	start := time.Now()
	v, err, _ := c.inflight.Do(string(body), func() (any, error) {
		// shared by all waiters, so it must not die with the first caller
		return c.breaker.Execute(func() (json.RawMessage, error) {
			return c.executeWithRetry(context.WithoutCancel(ctx), req, body)
		})
	})
	metrics.BackendQueryDuration.WithLabelValues(req.OperationName).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &Error{Op: req.OperationName, Kind: ErrUnavailable, Err: err}
		}
		outcome := "unavailable"
		if errors.Is(err, ErrClient) {
			outcome = "client_error"
		}
		metrics.BackendQueries.WithLabelValues(req.OperationName, outcome).Inc()
		return nil, err
	}
	metrics.BackendQueries.WithLabelValues(req.OperationName, "ok").Inc()
	return v.(json.RawMessage), nil
}

func (c *Client) executeWithRetry(ctx context.Context, req Request, body []byte) (json.RawMessage, error) {
	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	maxRetries := c.maxRetries
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		maxRetries = *req.MaxRetries
	}

	attempts := 0
	var lastStatus int
	operation := func() (json.RawMessage, error) {
		attempts++
		data, status, err := c.post(ctx, body, timeout)
		lastStatus = status
		if err != nil && errors.Is(err, ErrClient) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.Multiplier = 2
	b.MaxInterval = 10 * c.retryInterval

	data, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Debug().Err(err).Str("operation", req.OperationName).Dur("wait", wait).Msg("retrying query")
		}),
	)
	if err != nil {
		kind := ErrUnavailable
		if errors.Is(err, ErrClient) {
			kind = ErrClient
		}
		c.log.Warn().Err(err).Str("operation", req.OperationName).Int("attempts", attempts).Msg("query failed")
		return nil, &Error{Op: req.OperationName, Kind: kind, Status: lastStatus, Attempts: attempts, Err: err}
	}
	return data, nil
}

// post performs one attempt. Errors wrapping ErrClient are terminal.
func (c *Client) post(ctx context.Context, body []byte, timeout time.Duration) (json.RawMessage, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrClient, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	c.setAuth(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d", ErrClient, resp.StatusCode)
	}

	var gr graphqlResponse
	if err := json.Unmarshal(payload, &gr); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: decoding response: %w", ErrClient, err)
	}
	if len(gr.Errors) > 0 {
		if len(gr.Data) == 0 || string(gr.Data) == "null" {
			return nil, resp.StatusCode, fmt.Errorf("%w: %s", ErrClient, gr.Errors[0].Message)
		}
		c.log.Warn().Str("error", gr.Errors[0].Message).Msg("partial query result")
	}
	return gr.Data, resp.StatusCode, nil
}

func (c *Client) setAuth(r *http.Request) {
	if c.apiKey != "" {
		r.Header.Set(apiKeyHeader, c.apiKey)
	}
}

// Resolve turns a backend path or absolute url into an absolute url on
// the backend. Absolute urls pointing elsewhere are rejected.
func (c *Client) Resolve(pathOrURL string) (string, error) {
	u, err := url.Parse(pathOrURL)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		if u.Host != c.baseURL.Host {
			return "", fmt.Errorf("url %q is not on the backend", pathOrURL)
		}
		return u.String(), nil
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

// Get fetches a backend resource such as a stream, image or caption.
// Headers in hdr are forwarded. The caller closes the response body.
// No timeout is applied besides ctx since media streams are long lived.
func (c *Client) Get(ctx context.Context, pathOrURL string, hdr http.Header) (*http.Response, error) {
	return c.fetch(ctx, http.MethodGet, pathOrURL, hdr)
}

// Head is Get without a body.
func (c *Client) Head(ctx context.Context, pathOrURL string, hdr http.Header) (*http.Response, error) {
	return c.fetch(ctx, http.MethodHead, pathOrURL, hdr)
}

func (c *Client) fetch(ctx context.Context, method, pathOrURL string, hdr http.Header) (*http.Response, error) {
	target, err := c.Resolve(pathOrURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	for k, values := range hdr {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	c.setAuth(req)
	return c.http.Do(req)
}
