package sellergo

import (
	"net/http"
	"sync/atomic"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

// ConnectionPool owns the shared keep-alive transport every outbound call
// rides on, so no request pays connection-establishment cost when an idle
// connection exists. It holds no business logic and never inspects bodies.
type ConnectionPool struct {
	transport *http.Transport
	client    *http.Client
	requests  int64
}

// PoolConfig tunes the pooled transport.
type PoolConfig struct {
	// Timeout is the default whole-request timeout. Per-call overrides use
	// context deadlines, not this value.
	Timeout time.Duration
	// MaxIdleConns caps idle connections across all hosts (0 = cleanhttp default).
	MaxIdleConns int
	// MaxIdleConnsPerHost caps idle connections per host (0 = cleanhttp default).
	MaxIdleConnsPerHost int
	// IdleConnTimeout evicts idle connections after this long (0 = cleanhttp default).
	IdleConnTimeout time.Duration
}

// NewConnectionPool builds a pool on a cleanhttp pooled transport. The same
// transport serves plaintext and TLS connections.
func NewConnectionPool(cfg PoolConfig) *ConnectionPool {
	transport := cleanhttp.DefaultPooledTransport()
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	if cfg.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = cfg.IdleConnTimeout
	}

	return &ConnectionPool{
		transport: transport,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

// Do sends req over the pooled transport and counts it.
func (p *ConnectionPool) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&p.requests, 1)
	return p.client.Do(req)
}

// Requests returns the number of requests sent through the pool.
func (p *ConnectionPool) Requests() int64 {
	return atomic.LoadInt64(&p.requests)
}

// Client exposes the pooled http.Client (used for the token exchange so it
// shares connections with API calls).
func (p *ConnectionPool) Client() *http.Client {
	return p.client
}

// CloseIdleConnections drops idle connections, e.g. on teardown.
func (p *ConnectionPool) CloseIdleConnections() {
	p.transport.CloseIdleConnections()
}
