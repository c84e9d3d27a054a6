package sellergo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client executes logical API calls through the full pipeline: rate
// limiting, circuit breaking, authentication and signing, retries with
// backoff, and optional caching and batching. Construct it once with New and
// share it; all methods are safe for concurrent use.
type Client struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int

	credentials  Credentials
	tokenURL     string
	region       string
	service      string
	safetyMargin time.Duration

	poolConfig PoolConfig
	pool       *ConnectionPool
	auth       *AuthManager

	rateLimiter       *RateLimiter
	limiters          *LimiterRegistry
	operationLimiters map[string]*RateLimiter

	retryPolicy RetryPolicy
	recovery    *RecoveryEngine

	breaker       *CircuitBreaker
	breakerConfig *CircuitBreakerConfig

	cache    *ResponseCache
	cacheTTL time.Duration
	batcher  *RequestBatcher

	middleware []Middleware

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig
}

// New constructs a Client from options, validating the configuration and
// credentials before any network activity. A misconfigured client is never
// returned in a partially usable state.
func New(options ...Option) (*Client, error) {
	c := &Client{
		timeout:     30 * time.Second,
		maxRetries:  3,
		retryPolicy: DefaultRetryPolicy(),
		debug:       DefaultDebugConfig(),
	}

	for _, opt := range options {
		opt(c)
	}

	if err := c.validateConfiguration(); err != nil {
		return nil, err
	}

	c.pool = NewConnectionPool(c.poolConfig)

	auth, err := NewAuthManager(c.credentials, AuthConfig{
		TokenURL:     c.tokenURL,
		SafetyMargin: c.safetyMargin,
		Region:       c.region,
		Service:      c.service,
		HTTPClient:   c.pool.Client(),
	})
	if err != nil {
		return nil, err
	}
	c.auth = auth
	c.auth.store.onRefresh = func(err error) {
		c.metrics.RecordTokenRefresh(err)
	}

	c.limiters = NewLimiterRegistry(c.rateLimiter)
	for operation, limiter := range c.operationLimiters {
		c.limiters.Register(operation, limiter)
	}

	if c.breakerConfig != nil {
		c.breaker = NewCircuitBreaker(*c.breakerConfig)
	}

	c.recovery = NewRecoveryEngine(c.retryPolicy)
	c.recovery.onRetry = func(attempt int, delay time.Duration, err error) {
		method, endpoint := "", ""
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			method, endpoint = clientErr.Method, clientErr.Endpoint
		}
		c.metrics.RecordRetry(method, endpoint, attempt)
		if c.shouldLog(c.debug.LogRetries) {
			c.logger.Warn("retrying request",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}
	}

	return c, nil
}

// Execute runs one logical call through the pipeline and returns the parsed
// success envelope, or a *ClientError describing the classified failure.
//
// The rate limiter is consulted once per logical call; retries of the same
// call do not consume additional slots.
func (c *Client) Execute(ctx context.Context, req *Request) (*Response, error) {
	endpoint := c.endpointOf(req)
	requestID := c.nextRequestID()
	start := time.Now()

	c.metrics.RecordRequestStart(req.Method, endpoint)
	defer c.metrics.RecordRequestEnd(req.Method, endpoint)

	if c.shouldLog(c.debug.LogRequests) {
		c.logger.Debug("executing request",
			"request_id", requestID,
			"method", req.Method,
			"path", req.Path,
		)
	}

	limiter := c.limiters.For(req.Operation)
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}
	c.metrics.RecordRateLimiterQueueDepth(c.limiterName(req.Operation), limiter.QueueDepth())

	maxRetries := c.maxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	if req.Retryable != nil && !*req.Retryable {
		maxRetries = 0
	}

	resp, err := c.recovery.Execute(ctx, maxRetries, func(ctx context.Context) (*Response, error) {
		return c.attempt(ctx, req, requestID, endpoint)
	})

	duration := time.Since(start)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	if err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			clientErr.Duration = duration
			statusCode = clientErr.StatusCode
			c.metrics.RecordError(clientErr.Kind, req.Method, endpoint)
		}
	}
	c.metrics.RecordRequest(req.Method, endpoint, statusCode, duration)

	return resp, err
}

// attempt performs one send through the breaker, auth, middleware and pool.
func (c *Client) attempt(ctx context.Context, req *Request, requestID, endpoint string) (*Response, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		c.metrics.RecordCircuitBreakerState("default", c.breaker.State())
		return nil, &ClientError{
			Kind:      KindCircuitOpen,
			Message:   "circuit breaker open",
			Cause:     ErrCircuitOpen,
			RequestID: requestID,
			Method:    req.Method,
			Endpoint:  endpoint,
			Timestamp: time.Now(),
		}
	}

	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := c.buildHTTPRequest(ctx, req)
	if err != nil {
		return nil, &ClientError{
			Kind:      KindUnknown,
			Message:   "building HTTP request failed",
			Cause:     err,
			RequestID: requestID,
			Method:    req.Method,
			Endpoint:  endpoint,
			Timestamp: time.Now(),
		}
	}
	if requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	if err := c.auth.Authenticate(ctx, httpReq, req.Body); err != nil {
		return nil, c.decorate(err, requestID, req.Method, httpReq.URL.String(), endpoint)
	}

	httpResp, err := c.send(httpReq)
	if err != nil {
		c.recordBreakerFailure()
		return nil, &ClientError{
			Kind:      classifySendError(err),
			Message:   "request send failed",
			Cause:     err,
			RequestID: requestID,
			Method:    req.Method,
			URL:       httpReq.URL.String(),
			Endpoint:  endpoint,
			Timestamp: time.Now(),
		}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.recordBreakerFailure()
		return nil, &ClientError{
			Kind:      KindNetwork,
			Message:   "reading response body failed",
			Cause:     err,
			RequestID: requestID,
			Method:    req.Method,
			URL:       httpReq.URL.String(),
			Endpoint:  endpoint,
			Timestamp: time.Now(),
		}
	}

	rateInfo := parseRateLimitHeaders(httpResp.Header)

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		c.recordBreakerSuccess()
		return &Response{
			Data:       body,
			StatusCode: httpResp.StatusCode,
			Headers:    httpResp.Header,
			RateLimit:  rateInfo,
		}, nil
	}

	kind := classifyStatus(httpResp.StatusCode)
	if kind == KindServer {
		c.recordBreakerFailure()
	} else {
		c.recordBreakerSuccess()
	}
	if kind == KindAuth && httpResp.StatusCode == http.StatusUnauthorized {
		// The cached token may have been revoked server-side; drop it so the
		// next call refreshes.
		c.auth.Invalidate()
	}

	clientErr := &ClientError{
		Kind:       kind,
		Message:    http.StatusText(httpResp.StatusCode),
		StatusCode: httpResp.StatusCode,
		Payload:    body,
		RequestID:  requestID,
		Method:     req.Method,
		URL:        httpReq.URL.String(),
		Endpoint:   endpoint,
		Timestamp:  time.Now(),
	}
	if kind == KindRateLimit {
		clientErr.RetryAfter = parseRetryAfter(httpResp.Header.Get("Retry-After"))
	}
	return nil, clientErr
}

// send runs req through the middleware chain and the connection pool.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	var rt RoundTripper = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return c.pool.Do(r)
	})
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := rt
		rt = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return mw(r, next)
		})
	}
	return rt.RoundTrip(req)
}

// buildHTTPRequest materializes a logical request against the base URL.
func (c *Client) buildHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", "sellergo/"+Version)
	}

	return httpReq, nil
}

// ExecuteCached runs the call through the response cache. A context
// decorated via WithContextCacheDisabled bypasses the cache entirely;
// WithContextCacheTTL overrides the entry's lifetime. Failures are never
// cached.
func (c *Client) ExecuteCached(ctx context.Context, req *Request) (*Response, error) {
	if c.cache == nil {
		return c.Execute(ctx, req)
	}

	ttl := c.cacheTTL
	if control, ok := ctx.Value(CacheControlKey).(*CacheControl); ok && control != nil {
		if !control.Enabled {
			return c.Execute(ctx, req)
		}
		if control.TTL > 0 {
			ttl = control.TTL
		}
	}

	key := DefaultCacheKey(req)
	endpoint := c.endpointOf(req)

	if value, ok := c.cache.Get(key); ok {
		c.metrics.RecordCacheHit(req.Method, endpoint)
		if c.shouldLog(c.debug.LogCache) {
			c.logger.Debug("cache hit", "key", key)
		}
		return value, nil
	}
	c.metrics.RecordCacheMiss(req.Method, endpoint)

	resp, err := c.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, resp, ttl)
	c.metrics.RecordCacheSize("default", c.cache.Len())
	return resp, nil
}

// ExecuteBatched coalesces identical calls issued within the batching window
// into one upstream call whose result every caller shares.
func (c *Client) ExecuteBatched(ctx context.Context, req *Request) (*Response, error) {
	if c.batcher == nil {
		return c.Execute(ctx, req)
	}

	key := DefaultCacheKey(req)
	resp, shared, err := c.batcher.Do(ctx, key, func(ctx context.Context) (*Response, error) {
		return c.Execute(ctx, req)
	})
	if shared {
		c.metrics.RecordBatchHit(req.Method, c.endpointOf(req))
	}
	return resp, err
}

// ClearCache empties the response cache.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
		c.metrics.RecordCacheSize("default", 0)
	}
}

// InvalidateToken drops the cached access token, forcing a refresh on the
// next call.
func (c *Client) InvalidateToken() {
	c.auth.Invalidate()
}

// CircuitBreakerState returns the breaker's current state, or StateClosed
// when no breaker is configured.
func (c *Client) CircuitBreakerState() CircuitState {
	if c.breaker == nil {
		return StateClosed
	}
	return c.breaker.State()
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	c.pool.CloseIdleConnections()
}

// DefaultCacheKey derives the cache and batching key for a logical request
// from its method, path, query and body.
func DefaultCacheKey(req *Request) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(req.Path)
	if len(req.Query) > 0 {
		b.WriteByte('?')
		b.WriteString(req.Query.Encode())
	}
	if len(req.Body) > 0 {
		sum := sha256.Sum256(req.Body)
		b.WriteByte(' ')
		b.WriteString(hex.EncodeToString(sum[:]))
	}
	return b.String()
}

// parseRateLimitHeaders extracts upstream rate-limit telemetry. Absent or
// malformed headers leave the corresponding field nil; a response with no
// telemetry at all yields nil.
func parseRateLimitHeaders(h http.Header) *RateLimitInfo {
	info := &RateLimitInfo{}
	found := false

	limit := h.Get("x-amzn-RateLimit-Limit")
	if limit == "" {
		limit = h.Get("X-RateLimit-Limit")
	}
	if limit != "" {
		if v, err := strconv.ParseFloat(limit, 64); err == nil {
			info.Limit = &v
			found = true
		}
	}

	if remaining := h.Get("X-RateLimit-Remaining"); remaining != "" {
		if v, err := strconv.Atoi(remaining); err == nil {
			info.Remaining = &v
			found = true
		}
	}

	if reset := h.Get("X-RateLimit-Reset"); reset != "" {
		if secs, err := strconv.ParseInt(reset, 10, 64); err == nil {
			t := time.Unix(secs, 0)
			info.ResetAt = &t
			found = true
		}
	}

	if !found {
		return nil
	}
	return info
}

func (c *Client) endpointOf(req *Request) string {
	if req.Operation != "" {
		return req.Operation
	}
	return req.Path
}

func (c *Client) limiterName(operation string) string {
	if operation == "" {
		return "default"
	}
	return operation
}

func (c *Client) nextRequestID() string {
	if c.debug != nil && c.debug.RequestIDGen != nil {
		return c.debug.RequestIDGen()
	}
	return ""
}

func (c *Client) shouldLog(stage bool) bool {
	return c.logger != nil && c.debug != nil && c.debug.Enabled && stage
}

func (c *Client) recordBreakerFailure() {
	if c.breaker != nil {
		c.breaker.RecordFailure()
		c.metrics.RecordCircuitBreakerState("default", c.breaker.State())
	}
}

func (c *Client) recordBreakerSuccess() {
	if c.breaker != nil {
		c.breaker.RecordSuccess()
		c.metrics.RecordCircuitBreakerState("default", c.breaker.State())
	}
}

// decorate stamps request diagnostics onto an already classified error.
func (c *Client) decorate(err error, requestID, method, rawURL, endpoint string) error {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		clientErr.RequestID = requestID
		clientErr.Method = method
		clientErr.URL = rawURL
		clientErr.Endpoint = endpoint
		if clientErr.Timestamp.IsZero() {
			clientErr.Timestamp = time.Now()
		}
		return clientErr
	}
	return err
}
