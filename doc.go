// Package sellergo provides a resilient client core for a seller REST API,
// layering the machinery every outbound call needs around net/http:
//
//   - OAuth2 refresh-token exchange with a cached, safety-margined access token
//   - Optional SigV4-style request signing when key credentials are configured
//   - Windowed FIFO rate limiting with a wait queue (per-operation limiters supported)
//   - Retries with classified errors, Retry-After support and backoff + jitter
//   - In-memory response caching keyed by logical call with TTL and sweep
//   - Request batching (merges identical near-simultaneous logical calls)
//   - Circuit breaker (open / half-open / closed states)
//   - Shared keep-alive connection pool
//   - Middleware chain for cross-cutting concerns (tracing, header injection, etc.)
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - One typed error taxonomy (`*ClientError` with a Kind) across all layers
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via user supplied middleware & pluggable metrics
//
// Typical usage:
//
//	client, err := sellergo.New(
//	    sellergo.WithCredentials(sellergo.Credentials{
//	        ClientID:     os.Getenv("SELLER_CLIENT_ID"),
//	        ClientSecret: os.Getenv("SELLER_CLIENT_SECRET"),
//	        RefreshToken: os.Getenv("SELLER_REFRESH_TOKEN"),
//	    }),
//	    sellergo.WithBaseURL("https://sellingpartnerapi-eu.amazon.com"),
//	    sellergo.WithRateLimiter(5, 5),
//	    sellergo.WithCache(5*time.Minute),
//	    sellergo.WithBatcher(50*time.Millisecond),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := client.Execute(ctx, &sellergo.Request{Method: "GET", Path: "/orders/v0/orders"})
//
// Cache and batching are opt-in per call site: use ExecuteCached / ExecuteBatched
// for idempotent reads that benefit from them. The library avoids opinionated
// logging: provide a Logger (e.g. via WithSimpleLogger) + enable debug flags
// selectively (WithDebug / WithDebugConfig) for insight without noise.
package sellergo
