package sellergo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTokenServer(t *testing.T, counter *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST to token endpoint, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("Failed to parse token form: %v", err)
		}
		if grant := r.Form.Get("grant_type"); grant != "refresh_token" {
			t.Errorf("Expected grant_type=refresh_token, got %q", grant)
		}
		n := atomic.AddInt64(counter, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok%d","token_type":"bearer","expires_in":3600}`, n)
	}))
}

func testCredentials() Credentials {
	return Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
	}
}

func TestTokenStoreRefreshAndCache(t *testing.T) {
	var refreshes int64
	server := newTokenServer(t, &refreshes)
	defer server.Close()

	store := NewTokenStore(testCredentials(), server.URL, DefaultTokenSafetyMargin, server.Client())

	token, err := store.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() returned error: %v", err)
	}
	if token != "tok1" {
		t.Errorf("Expected tok1, got %q", token)
	}

	// A second call within the token's lifetime must not hit the endpoint.
	token, err = store.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() returned error: %v", err)
	}
	if token != "tok1" {
		t.Errorf("Expected cached tok1, got %q", token)
	}
	if refreshes != 1 {
		t.Errorf("Expected 1 refresh, got %d", refreshes)
	}
}

func TestTokenStoreSafetyMargin(t *testing.T) {
	var refreshes int64
	server := newTokenServer(t, &refreshes)
	defer server.Close()

	store := NewTokenStore(testCredentials(), server.URL, DefaultTokenSafetyMargin, server.Client())

	if _, err := store.Token(context.Background()); err != nil {
		t.Fatalf("Token() returned error: %v", err)
	}

	store.mu.RLock()
	expiresAt := store.token.ExpiresAt
	store.mu.RUnlock()

	// expires_in is 3600s and the margin is 5m, so the effective lifetime
	// must be roughly 55 minutes.
	remaining := time.Until(expiresAt)
	if remaining > 56*time.Minute || remaining < 54*time.Minute {
		t.Errorf("Expected effective lifetime around 55m, got %v", remaining)
	}
}

func TestTokenStoreRefreshAfterExpiry(t *testing.T) {
	var refreshes int64
	server := newTokenServer(t, &refreshes)
	defer server.Close()

	store := NewTokenStore(testCredentials(), server.URL, DefaultTokenSafetyMargin, server.Client())

	if _, err := store.Token(context.Background()); err != nil {
		t.Fatalf("Token() returned error: %v", err)
	}

	// Advance the clock past the effective expiry.
	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	token, err := store.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() returned error: %v", err)
	}
	if token != "tok2" {
		t.Errorf("Expected refreshed tok2, got %q", token)
	}
	if refreshes != 2 {
		t.Errorf("Expected 2 refreshes, got %d", refreshes)
	}
}

func TestTokenStoreSingleFlight(t *testing.T) {
	var refreshes int64
	server := newTokenServer(t, &refreshes)
	defer server.Close()

	store := NewTokenStore(testCredentials(), server.URL, DefaultTokenSafetyMargin, server.Client())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := store.Token(context.Background())
			if err != nil {
				t.Errorf("Token() returned error: %v", err)
			}
			if token != "tok1" {
				t.Errorf("Expected tok1 for all concurrent callers, got %q", token)
			}
		}()
	}
	wg.Wait()

	if refreshes != 1 {
		t.Errorf("Expected concurrent callers to share one refresh, got %d", refreshes)
	}
}

func TestTokenStoreRefreshFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer server.Close()

	store := NewTokenStore(testCredentials(), server.URL, DefaultTokenSafetyMargin, server.Client())

	_, err := store.Token(context.Background())
	if err == nil {
		t.Fatal("Expected refresh failure")
	}
	if KindOf(err) != KindTokenRefresh {
		t.Errorf("Expected kind %s, got %s", KindTokenRefresh, KindOf(err))
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatal("Expected a *ClientError")
	}
	if clientErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 on the error, got %d", clientErr.StatusCode)
	}
	if len(clientErr.Payload) == 0 {
		t.Error("Expected the token endpoint body on the error payload")
	}
}

func TestTokenStoreInvalidate(t *testing.T) {
	var refreshes int64
	server := newTokenServer(t, &refreshes)
	defer server.Close()

	store := NewTokenStore(testCredentials(), server.URL, DefaultTokenSafetyMargin, server.Client())

	if _, err := store.Token(context.Background()); err != nil {
		t.Fatalf("Token() returned error: %v", err)
	}

	store.Invalidate()

	token, err := store.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() returned error: %v", err)
	}
	if token != "tok2" {
		t.Errorf("Expected a fresh token after Invalidate, got %q", token)
	}
}

func TestNewAuthManagerValidation(t *testing.T) {
	cases := []struct {
		name  string
		creds Credentials
	}{
		{"missing client id", Credentials{ClientSecret: "s", RefreshToken: "r"}},
		{"missing client secret", Credentials{ClientID: "c", RefreshToken: "r"}},
		{"missing refresh token", Credentials{ClientID: "c", ClientSecret: "s"}},
		{"partial key pair", Credentials{ClientID: "c", ClientSecret: "s", RefreshToken: "r", AccessKeyID: "k"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAuthManager(tc.creds, AuthConfig{})
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if KindOf(err) != KindInvalidCredentials {
				t.Errorf("Expected kind %s, got %s", KindInvalidCredentials, KindOf(err))
			}
		})
	}
}

func TestAuthenticateBearerOnly(t *testing.T) {
	var refreshes int64
	server := newTokenServer(t, &refreshes)
	defer server.Close()

	m, err := NewAuthManager(testCredentials(), AuthConfig{TokenURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("NewAuthManager() returned error: %v", err)
	}
	if m.SigningEnabled() {
		t.Error("Expected signing to be disabled without key credentials")
	}

	req, _ := http.NewRequest(http.MethodGet, "https://example.test/orders", nil)
	if err := m.Authenticate(context.Background(), req, nil); err != nil {
		t.Fatalf("Authenticate() returned error: %v", err)
	}

	if got := req.Header.Get("Authorization"); got != "Bearer tok1" {
		t.Errorf("Expected Authorization=Bearer tok1, got %q", got)
	}
	if got := req.Header.Get(accessTokenHeader); got != "" {
		t.Errorf("Expected no %s header without signing, got %q", accessTokenHeader, got)
	}
}

func TestAuthenticateSigned(t *testing.T) {
	var refreshes int64
	server := newTokenServer(t, &refreshes)
	defer server.Close()

	creds := testCredentials()
	creds.AccessKeyID = "AKIAEXAMPLE"
	creds.SecretAccessKey = "secret"

	m, err := NewAuthManager(creds, AuthConfig{TokenURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("NewAuthManager() returned error: %v", err)
	}
	if !m.SigningEnabled() {
		t.Fatal("Expected signing to be enabled with key credentials")
	}

	req, _ := http.NewRequest(http.MethodGet, "https://example.test/orders", nil)
	if err := m.Authenticate(context.Background(), req, nil); err != nil {
		t.Fatalf("Authenticate() returned error: %v", err)
	}

	if got := req.Header.Get(accessTokenHeader); got != "tok1" {
		t.Errorf("Expected the token on %s, got %q", accessTokenHeader, got)
	}
	auth := req.Header.Get("Authorization")
	if auth == "" || auth == "Bearer tok1" {
		t.Errorf("Expected the Authorization header to carry a signature, got %q", auth)
	}
}
