package sellergo

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/enginterzi/sellergo/internal/singleflight"
)

// DefaultTokenURL is the identity provider's refresh-token exchange endpoint.
const DefaultTokenURL = "https://api.amazon.com/auth/o2/token"

// DefaultTokenSafetyMargin is subtracted from a token's server-side lifetime
// so it is treated as expired before the server would reject it.
const DefaultTokenSafetyMargin = 5 * time.Minute

// accessTokenHeader carries the bearer token on signed requests, where the
// Authorization header belongs to the signature.
const accessTokenHeader = "X-Amz-Access-Token"

// Token is one access token obtained from a refresh exchange. Tokens are
// replaced wholesale on refresh, never mutated, so concurrent readers never
// observe a half-updated token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

func (t *Token) valid(now time.Time) bool {
	return t != nil && t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenStore caches the current access token and refreshes it through the
// OAuth2 refresh-token grant when stale. Concurrent callers finding a stale
// token share a single in-flight refresh.
type TokenStore struct {
	conf         *oauth2.Config
	refreshToken string
	margin       time.Duration
	httpClient   *http.Client
	now          func() time.Time

	group *singleflight.Group

	mu    sync.RWMutex
	token *Token

	onRefresh func(err error)
}

// NewTokenStore builds a token store for the given OAuth credentials.
func NewTokenStore(creds Credentials, tokenURL string, margin time.Duration, httpClient *http.Client) *TokenStore {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if margin <= 0 {
		margin = DefaultTokenSafetyMargin
	}
	return &TokenStore{
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		},
		refreshToken: creds.RefreshToken,
		margin:       margin,
		httpClient:   httpClient,
		now:          time.Now,
		group:        singleflight.New(),
	}
}

// Token returns the cached access token while it is fresh, performing a
// single-flighted refresh exchange otherwise.
func (s *TokenStore) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()

	if tok.valid(s.now()) {
		return tok.Value, nil
	}

	val, err := s.group.Do("refresh", func() (interface{}, error) {
		// A racing caller may have refreshed while this one waited on the
		// group lock.
		s.mu.RLock()
		cached := s.token
		s.mu.RUnlock()
		if cached.valid(s.now()) {
			return cached, nil
		}

		fresh, err := s.refresh(ctx)
		if s.onRefresh != nil {
			s.onRefresh(err)
		}
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.token = fresh
		s.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return val.(*Token).Value, nil
}

// refresh performs one grant_type=refresh_token exchange.
func (s *TokenStore) refresh(ctx context.Context) (*Token, error) {
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}

	src := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: s.refreshToken})
	tok, err := src.Token()
	if err != nil {
		cerr := &ClientError{
			Kind:    KindTokenRefresh,
			Message: "token refresh exchange failed",
			Cause:   err,
		}
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			if rErr.Response != nil {
				cerr.StatusCode = rErr.Response.StatusCode
			}
			cerr.Payload = rErr.Body
		}
		return nil, cerr
	}
	if tok.AccessToken == "" {
		return nil, &ClientError{Kind: KindTokenRefresh, Message: "token endpoint returned an empty access token"}
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		// No expires_in in the response; assume the conventional hour.
		expiresAt = s.now().Add(time.Hour)
	}
	return &Token{Value: tok.AccessToken, ExpiresAt: expiresAt.Add(-s.margin)}, nil
}

// Invalidate drops the cached token so the next Token call refreshes.
// Callers use this after a 401 to recover from server-side revocation.
func (s *TokenStore) Invalidate() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
	s.group.Forget("refresh")
}

// AuthManager composes the token store and the optional request signer to
// produce fully authenticated, ready-to-send requests.
type AuthManager struct {
	creds  Credentials
	store  *TokenStore
	signer *RequestSigner
}

// AuthConfig carries the knobs NewAuthManager needs beyond the credentials.
type AuthConfig struct {
	TokenURL     string
	SafetyMargin time.Duration
	Region       string
	Service      string
	HTTPClient   *http.Client
}

// NewAuthManager validates the credentials and wires the token store plus,
// when key credentials are present, the request signer. Validation failures
// are fatal: the manager is never partially constructed.
func NewAuthManager(creds Credentials, cfg AuthConfig) (*AuthManager, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}

	m := &AuthManager{
		creds: creds,
		store: NewTokenStore(creds, cfg.TokenURL, cfg.SafetyMargin, cfg.HTTPClient),
	}

	if creds.SigningEnabled() {
		signer, err := NewRequestSigner(creds, cfg.Region, cfg.Service)
		if err != nil {
			return nil, err
		}
		m.signer = signer
	}

	return m, nil
}

// Token returns a fresh access token, refreshing if necessary.
func (m *AuthManager) Token(ctx context.Context) (string, error) {
	return m.store.Token(ctx)
}

// Invalidate drops the cached access token.
func (m *AuthManager) Invalidate() {
	m.store.Invalidate()
}

// SigningEnabled reports whether requests are additionally signed.
func (m *AuthManager) SigningEnabled() bool {
	return m.signer != nil
}

// Authenticate decorates req with credentials: the bearer token, and the
// request signature when key credentials are configured (the signature then
// owns the Authorization header and the token moves to its own header).
func (m *AuthManager) Authenticate(ctx context.Context, req *http.Request, body []byte) error {
	token, err := m.store.Token(ctx)
	if err != nil {
		return err
	}

	if m.signer == nil {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}

	req.Header.Set(accessTokenHeader, token)
	return m.signer.Sign(ctx, req, body)
}
