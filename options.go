package sellergo

import (
	"fmt"
	"net/url"
	"time"
)

// WithCredentials sets the long-lived secrets the client authenticates with.
func WithCredentials(creds Credentials) Option {
	return func(c *Client) {
		c.credentials = creds
	}
}

// WithBaseURL sets the API root every request path is resolved against.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithRegion sets the signing region (DefaultSigningRegion when unset).
func WithRegion(region string) Option {
	return func(c *Client) {
		c.region = region
	}
}

// WithSigningService sets the signing service name (DefaultSigningService
// when unset).
func WithSigningService(service string) Option {
	return func(c *Client) {
		c.service = service
	}
}

// WithTokenURL overrides the refresh-token exchange endpoint.
func WithTokenURL(tokenURL string) Option {
	return func(c *Client) {
		c.tokenURL = tokenURL
	}
}

// WithTokenSafetyMargin overrides how long before server-side expiry a token
// is treated as stale.
func WithTokenSafetyMargin(margin time.Duration) Option {
	return func(c *Client) {
		c.safetyMargin = margin
	}
}

// WithTimeout sets the default whole-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithMaxRetries sets the default retry budget per logical call.
func WithMaxRetries(maxRetries int) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithRetryPolicy replaces the whole retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithRateLimiter installs the default rate limiter: burst calls per
// one-second window (burst defaults to requestsPerSecond when zero).
func WithRateLimiter(requestsPerSecond, burst int) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(requestsPerSecond, burst)
	}
}

// WithoutRateLimiting removes the default limiter. Operations with a
// dedicated limiter remain limited.
func WithoutRateLimiting() Option {
	return func(c *Client) {
		c.rateLimiter = nil
	}
}

// WithOperationLimiter installs a dedicated limiter for one operation key,
// mirroring upstream APIs that enforce separate quotas per endpoint family.
func WithOperationLimiter(operation string, requestsPerSecond, burst int) Option {
	return func(c *Client) {
		if c.operationLimiters == nil {
			c.operationLimiters = make(map[string]*RateLimiter)
		}
		c.operationLimiters[operation] = NewRateLimiter(requestsPerSecond, burst)
	}
}

// WithCache enables the response cache used by ExecuteCached with the given
// default TTL (DefaultCacheTTL when zero).
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewResponseCache(ttl)
		c.cacheTTL = ttl
	}
}

// WithBatcher enables call coalescing used by ExecuteBatched with the given
// window (DefaultBatchMaxAge when zero).
func WithBatcher(maxAge time.Duration) Option {
	return func(c *Client) {
		c.batcher = NewRequestBatcher(maxAge)
	}
}

// WithCircuitBreaker enables the circuit breaker with the given thresholds
// (zero fields use the defaults).
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breakerConfig = &config
	}
}

// WithMiddleware appends transport middleware, invoked in registration order.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithConnectionPool tunes the pooled transport.
func WithConnectionPool(config PoolConfig) Option {
	return func(c *Client) {
		c.poolConfig = config
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector installs a pre-built collector, e.g. one bound to a
// custom registry.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger installs the logger debug output is emitted through.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger installs the built-in stderr logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.logger = NewSimpleLogger()
	}
}

// WithDebug switches debug logging on with all stages enabled.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig replaces the debug configuration wholesale.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator overrides how per-call request IDs are generated.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// validateConfiguration rejects option combinations that would misbehave at
// runtime. Credential validation happens separately in NewAuthManager.
func (c *Client) validateConfiguration() error {
	if err := c.validateBasicConfig(); err != nil {
		return err
	}
	if err := c.validateRetryConfig(); err != nil {
		return err
	}
	return c.validateComponentConfig()
}

func (c *Client) validateBasicConfig() error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfiguration)
	}
	u, err := url.Parse(c.baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: base URL %q is not a valid http(s) URL", ErrInvalidConfiguration, c.baseURL)
	}
	if c.timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfiguration)
	}
	return nil
}

func (c *Client) validateRetryConfig() error {
	if c.maxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfiguration)
	}
	if c.retryPolicy.InitialBackoff <= 0 {
		return fmt.Errorf("%w: initial backoff must be positive", ErrInvalidConfiguration)
	}
	if c.retryPolicy.MaxBackoff < c.retryPolicy.InitialBackoff {
		return fmt.Errorf("%w: max backoff must be at least the initial backoff", ErrInvalidConfiguration)
	}
	if c.retryPolicy.Multiplier < 1 {
		return fmt.Errorf("%w: backoff multiplier must be at least 1", ErrInvalidConfiguration)
	}
	if c.retryPolicy.Jitter < 0 || c.retryPolicy.Jitter > 1 {
		return fmt.Errorf("%w: jitter must be between 0 and 1", ErrInvalidConfiguration)
	}
	return nil
}

func (c *Client) validateComponentConfig() error {
	if c.rateLimiter != nil && c.rateLimiter.requestsPerSecond <= 0 {
		return fmt.Errorf("%w: rate limiter requests per second must be positive", ErrInvalidConfiguration)
	}
	for operation, limiter := range c.operationLimiters {
		if limiter == nil || limiter.requestsPerSecond <= 0 {
			return fmt.Errorf("%w: operation limiter %q must allow at least one request per second", ErrInvalidConfiguration, operation)
		}
	}
	if c.breakerConfig != nil {
		if c.breakerConfig.FailureThreshold < 0 || c.breakerConfig.SuccessThreshold < 0 {
			return fmt.Errorf("%w: circuit breaker thresholds must not be negative", ErrInvalidConfiguration)
		}
	}
	return nil
}
