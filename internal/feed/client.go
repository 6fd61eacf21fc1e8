// Package feed fetches raw video records from the discovery API.
//
// Each feed is an ordered list of endpoints. A fetch walks the list until one
// endpoint yields records, treating transport failures, bad statuses,
// unparsable bodies, error payloads and empty payloads as a reason to move on.
// Authentication failures and rate limiting end the walk immediately because
// no other endpoint will answer differently.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ad-tracker/viral-video-detector/internal/extract"
	"github.com/ad-tracker/viral-video-detector/internal/metrics"
	"github.com/ad-tracker/viral-video-detector/internal/ratelimit"
)

const (
	DefaultBaseURL       = "https://api.tikapi.io"
	DefaultTimeout       = 30 * time.Second
	DefaultVerifyTimeout = 10 * time.Second
	DefaultUserAgent     = "viral-video-detector/2.0"

	// MaxCount is the largest page size the service accepts.
	MaxCount = 30

	apiKeyHeader = "X-API-KEY"
	maxBodyBytes = 16 << 20
	snippetLen   = 512
)

// Feed is a named, ordered list of endpoint paths serving the same content.
type Feed struct {
	Name      string
	Endpoints []string
}

// DefaultFeed is the discovery feed with its fallback endpoint.
var DefaultFeed = Feed{
	Name:      "discover",
	Endpoints: []string{"public/explore", "public/trending"},
}

// state of one fallback walk.
type state int

const (
	stateTrying state = iota
	stateSucceeded
	stateExhausted
	stateAuthFailed
	stateRateLimited
)

func (s state) String() string {
	switch s {
	case stateTrying:
		return "trying"
	case stateSucceeded:
		return "succeeded"
	case stateExhausted:
		return "exhausted"
	case stateAuthFailed:
		return "auth_failed"
	case stateRateLimited:
		return "rate_limited"
	}
	return "unknown"
}

// attemptResult is the outcome of a single endpoint call.
type attemptResult struct {
	records []extract.Record
	outcome string
	err     error
}

// next is the transition taken after an attempt.
func (r attemptResult) next() state {
	switch r.outcome {
	case metrics.OutcomeSuccess:
		return stateSucceeded
	case metrics.OutcomeAuthFailed:
		return stateAuthFailed
	case metrics.OutcomeRateLimited:
		return stateRateLimited
	}
	return stateTrying
}

// Client calls the discovery API.
type Client struct {
	apiKey        string
	baseURL       string
	userAgent     string
	verifyTimeout time.Duration
	httpClient    *http.Client
	limiter       *ratelimit.Limiter
	feeds         []Feed
	logger        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the service root.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithVerifyTimeout sets the timeout of the key check.
func WithVerifyTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.verifyTimeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLimiter shares an existing limiter instead of creating one.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithFeeds sets the feeds fetched each round. Feeds without endpoints are
// ignored.
func WithFeeds(feeds ...Feed) Option {
	return func(c *Client) {
		var kept []Feed
		for _, f := range feeds {
			if len(f.Endpoints) > 0 {
				kept = append(kept, f)
			}
		}
		if len(kept) > 0 {
			c.feeds = kept
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client with its own one-second limiter unless
// WithLimiter is given.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:        apiKey,
		baseURL:       DefaultBaseURL,
		userAgent:     DefaultUserAgent,
		verifyTimeout: DefaultVerifyTimeout,
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		feeds:         []Feed{DefaultFeed},
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(ratelimit.DefaultInterval)
	}
	return c
}

// Feeds returns the configured feeds in fetch order.
func (c *Client) Feeds() []Feed {
	return c.feeds
}

// Fetch retrieves up to count records for a country from the first configured
// feed.
func (c *Client) Fetch(ctx context.Context, country string, count int) ([]extract.Record, error) {
	return c.FetchFeed(ctx, c.feeds[0], country, count)
}

// FetchFeed walks the feed's endpoints until one yields records. When every
// endpoint fails the result is an empty slice and a nil error. ErrAuthFailed
// and ErrRateLimited (wrapped in a *StatusError) end the walk early. A done
// context is returned as an error.
func (c *Client) FetchFeed(ctx context.Context, f Feed, country string, count int) ([]extract.Record, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(clampCount(count)))
	params.Set("country", country)

	var (
		st   = stateTrying
		i    = 0
		last attemptResult
	)
	for st == stateTrying {
		if i >= len(f.Endpoints) {
			st = stateExhausted
			break
		}
		endpoint := f.Endpoints[i]

		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		last = c.attempt(ctx, endpoint, params)
		st = last.next()

		if st == stateTrying {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("fetch %s: %w", f.Name, ctx.Err())
			}
			c.logger.Warn("feed endpoint failed",
				zap.String("feed", f.Name),
				zap.String("endpoint", endpoint),
				zap.String("country", country),
				zap.String("outcome", last.outcome),
				zap.Error(last.err),
			)
			i++
		}
	}

	switch st {
	case stateSucceeded:
		c.logger.Info("fetched feed",
			zap.String("feed", f.Name),
			zap.String("endpoint", f.Endpoints[i]),
			zap.String("country", country),
			zap.Int("records", len(last.records)),
		)
		return last.records, nil
	case stateAuthFailed, stateRateLimited:
		c.logger.Error("feed request rejected",
			zap.String("feed", f.Name),
			zap.String("endpoint", f.Endpoints[i]),
			zap.String("state", st.String()),
			zap.Error(last.err),
		)
		return nil, last.err
	default:
		c.logger.Error("all feed endpoints failed",
			zap.String("feed", f.Name),
			zap.String("country", country),
			zap.Int("endpoints", len(f.Endpoints)),
		)
		return []extract.Record{}, nil
	}
}

// VerifyKey makes one small request against the first endpoint of the first
// feed and reports whether the key was accepted.
func (c *Client) VerifyKey(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.verifyTimeout)
	defer cancel()

	endpoint := c.feeds[0].Endpoints[0]
	params := url.Values{}
	params.Set("count", "1")
	params.Set("country", "us")

	if err := c.limiter.Acquire(ctx); err != nil {
		c.logger.Error("api key verification aborted", zap.Error(err))
		return false
	}

	res := c.attempt(ctx, endpoint, params)
	switch res.outcome {
	case metrics.OutcomeSuccess, metrics.OutcomeEmpty:
		c.logger.Info("api key verified", zap.String("endpoint", endpoint))
		return true
	case metrics.OutcomeAuthFailed:
		c.logger.Error("api key rejected", zap.String("endpoint", endpoint), zap.Error(res.err))
	default:
		c.logger.Error("api key verification failed",
			zap.String("endpoint", endpoint),
			zap.String("outcome", res.outcome),
			zap.Error(res.err),
		)
	}
	return false
}

// attempt performs one GET and classifies the response. It never returns
// records together with a failure outcome.
func (c *Client) attempt(ctx context.Context, endpoint string, params url.Values) attemptResult {
	start := time.Now()
	res := c.do(ctx, endpoint, params)
	metrics.FeedRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	metrics.FeedRequests.WithLabelValues(endpoint, res.outcome).Inc()
	return res
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values) attemptResult {
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, strings.TrimLeft(endpoint, "/"), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return attemptResult{outcome: metrics.OutcomeTransport, err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("requesting feed endpoint", zap.String("url", reqURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attemptResult{outcome: metrics.OutcomeTransport, err: fmt.Errorf("request %s: %w", endpoint, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return attemptResult{outcome: metrics.OutcomeTransport, err: fmt.Errorf("read %s: %w", endpoint, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: snippet(body)}
		switch {
		case IsAuthFailed(statusErr):
			return attemptResult{outcome: metrics.OutcomeAuthFailed, err: statusErr}
		case IsRateLimited(statusErr):
			return attemptResult{outcome: metrics.OutcomeRateLimited, err: statusErr}
		}
		return attemptResult{outcome: metrics.OutcomeHTTPError, err: statusErr}
	}

	if ct := resp.Header.Get("Content-Type"); !isJSONContentType(ct) {
		return attemptResult{
			outcome: metrics.OutcomeBadJSON,
			err:     fmt.Errorf("%s returned content-type %q, want application/json", endpoint, ct),
		}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return attemptResult{
			outcome: metrics.OutcomeBadJSON,
			err:     fmt.Errorf("decode %s: %w", endpoint, err),
		}
	}

	if msg, failed := errorSignal(payload); failed {
		return attemptResult{outcome: metrics.OutcomeAPIError, err: fmt.Errorf("%s reported an error: %s", endpoint, msg)}
	}

	records := ExtractRecords(payload)
	if len(records) == 0 {
		c.logger.Debug("no records in payload",
			zap.String("endpoint", endpoint),
			zap.Strings("keys", TopLevelKeys(payload)),
		)
		return attemptResult{outcome: metrics.OutcomeEmpty, err: fmt.Errorf("%s returned no records", endpoint)}
	}

	return attemptResult{records: records, outcome: metrics.OutcomeSuccess}
}

// isJSONContentType accepts application/json and any +json media type.
func isJSONContentType(header string) bool {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// errorSignal reports an application-level failure carried in a 2xx body.
func errorSignal(payload any) (string, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	rec := extract.Record(m)
	if status := extract.String(rec, extract.P("status")); strings.EqualFold(status, "error") {
		msg := extract.String(rec, extract.P("message"), extract.P("error"))
		if msg == "" {
			msg = "unknown error"
		}
		return msg, true
	}
	if v, ok := rec.Lookup(extract.P("error")); ok {
		switch e := v.(type) {
		case string:
			if strings.TrimSpace(e) != "" {
				return e, true
			}
		case bool:
			if e {
				return extract.String(rec, extract.P("message")), true
			}
		case map[string]any:
			if len(e) > 0 {
				return extract.String(extract.Record(e), extract.P("message")), true
			}
		}
	}
	return "", false
}

func clampCount(n int) int {
	if n <= 0 || n > MaxCount {
		return MaxCount
	}
	return n
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > snippetLen {
		return s[:snippetLen]
	}
	return s
}
