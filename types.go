package sellergo

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Credentials holds the long-lived secrets the client authenticates with.
// The OAuth triple is always required. The key-credential pair is optional
// and enables request signing; providing only one half of the pair is a
// configuration error. RoleARN optionally routes signing credentials through
// an STS assume-role exchange.
type Credentials struct {
	ClientID        string
	ClientSecret    string
	RefreshToken    string
	AccessKeyID     string
	SecretAccessKey string
	RoleARN         string
}

// SigningEnabled reports whether the key-credential pair is present.
func (c Credentials) SigningEnabled() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// validate checks the invariants described on Credentials.
func (c Credentials) validate() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
		return &ClientError{
			Kind:    KindInvalidCredentials,
			Message: "clientId, clientSecret and refreshToken are all required",
		}
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return &ClientError{
			Kind:    KindInvalidCredentials,
			Message: "accessKeyId and secretAccessKey must be provided together",
		}
	}
	return nil
}

// Request describes one logical call before authentication and retry
// machinery is applied. It is constructed per call and never reused.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte

	// Timeout overrides the client default for this call. Zero means default.
	Timeout time.Duration
	// MaxRetries overrides the client default for this call. Nil means default.
	MaxRetries *int
	// Retryable disables retries for this call when set to false.
	Retryable *bool
	// Operation routes this call to a dedicated rate limiter when one is
	// registered under this key. Empty uses the default limiter.
	Operation string
}

// Response is the typed success envelope returned by Execute.
type Response struct {
	Data       []byte
	StatusCode int
	Headers    http.Header
	RateLimit  *RateLimitInfo
}

// RateLimitInfo carries rate-limit telemetry the upstream API returned with
// a response, for callers that want to self-throttle further up the stack.
// Fields are nil when the corresponding header was absent.
type RateLimitInfo struct {
	Limit     *float64
	Remaining *int
	ResetAt   *time.Time
}

// Middleware wraps the transport for cross-cutting concerns.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper is the HTTP transport interface middleware chains over.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc adapts a function to RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option configures a Client.
type Option func(*Client)

// Context keys for per-call cache control.
type contextKey string

const (
	// CacheControlKey carries a *CacheControl override for ExecuteCached.
	CacheControlKey contextKey = "sellergo_cache_control"
)

// CacheControl holds per-call cache overrides.
type CacheControl struct {
	Enabled bool
	TTL     time.Duration
}

// WithContextCacheEnabled forces caching for the call using this context.
func WithContextCacheEnabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, CacheControlKey, &CacheControl{Enabled: true})
}

// WithContextCacheDisabled disables caching for the call using this context.
func WithContextCacheDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, CacheControlKey, &CacheControl{Enabled: false})
}

// WithContextCacheTTL forces caching with a custom TTL for the call using
// this context.
func WithContextCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, CacheControlKey, &CacheControl{Enabled: true, TTL: ttl})
}
