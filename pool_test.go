package sellergo

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestConnectionPoolDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pool := NewConnectionPool(PoolConfig{Timeout: 5 * time.Second})
	defer pool.CloseIdleConnections()

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := pool.Do(req)
		if err != nil {
			t.Fatalf("Do() returned error: %v", err)
		}
		resp.Body.Close()
	}

	if pool.Requests() != 3 {
		t.Errorf("Expected 3 counted requests, got %d", pool.Requests())
	}
}

func TestConnectionPoolConfig(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{
		Timeout:             10 * time.Second,
		MaxIdleConns:        42,
		MaxIdleConnsPerHost: 7,
		IdleConnTimeout:     time.Minute,
	})

	if pool.transport.MaxIdleConns != 42 {
		t.Errorf("Expected MaxIdleConns=42, got %d", pool.transport.MaxIdleConns)
	}
	if pool.transport.MaxIdleConnsPerHost != 7 {
		t.Errorf("Expected MaxIdleConnsPerHost=7, got %d", pool.transport.MaxIdleConnsPerHost)
	}
	if pool.transport.IdleConnTimeout != time.Minute {
		t.Errorf("Expected IdleConnTimeout=1m, got %v", pool.transport.IdleConnTimeout)
	}
	if pool.Client().Timeout != 10*time.Second {
		t.Errorf("Expected client timeout 10s, got %v", pool.Client().Timeout)
	}
}

func TestConnectionPoolSharedClient(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{})

	if pool.Client() == nil {
		t.Fatal("Expected a shared client")
	}
	if pool.Client().Transport != http.RoundTripper(pool.transport) {
		t.Error("Expected the shared client to ride the pooled transport")
	}
}
