package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Credentials identify the client to the token endpoint. They never change after
// construction.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scope        string
}

// Token is an access token obtained with the client credentials grant.
type Token struct {
	AccessToken string
	IssuedAt    time.Time
	ExpiresIn   int
}

// ExpiresAt is IssuedAt plus the lifetime granted by the server.
func (t Token) ExpiresAt() time.Time {
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Expired reports whether the token is stale at now. There is no early-refresh margin.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// TokenProvider hands out bearer tokens and accepts notice that one was rejected.
type TokenProvider interface {
	GetToken(ctx context.Context) (Token, error)
	Invalidate()
}

// TokenManager caches a client credentials token and exchanges a new one when the cached
// token is missing or stale. It is safe for concurrent use; concurrent callers that find
// the cache stale share a single exchange.
type TokenManager struct {
	creds      Credentials
	httpClient *http.Client
	userAgent  string
	now        func() time.Time
	logger     log.FieldLogger

	mu    sync.Mutex
	token *Token

	flight singleflight.Group
}

// NewTokenManager creates a TokenManager. Without WithHTTPClient it uses a plain client
// bounded by DefaultTimeout.
func NewTokenManager(creds Credentials, opts ...Option) *TokenManager {
	o := buildOptions(opts)
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if o.userAgent == "" {
		o.userAgent = DefaultUserAgent
	}
	return &TokenManager{
		creds:      creds,
		httpClient: o.httpClient,
		userAgent:  o.userAgent,
		now:        o.now,
		logger:     o.logger,
	}
}

// GetToken returns a token that is valid at the moment of return.
func (m *TokenManager) GetToken(ctx context.Context) (Token, error) {
	if tok, ok := m.cached(); ok {
		return tok, nil
	}

	for {
		ch := m.flight.DoChan("token", func() (interface{}, error) {
			// Another flight may have finished between the cache check and this one starting.
			if tok, ok := m.cached(); ok {
				return tok, nil
			}
			tok, err := m.exchange(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, &abandonedExchangeError{err: err}
				}
				return nil, err
			}
			m.mu.Lock()
			m.token = &tok
			m.mu.Unlock()
			return tok, nil
		})

		select {
		case <-ctx.Done():
			return Token{}, &TransportError{Op: http.MethodPost, URL: m.creds.TokenURL, Err: ctx.Err()}
		case res := <-ch:
			if res.Err == nil {
				return res.Val.(Token), nil
			}
			// The exchange was cut short by the caller that started it. Callers whose
			// own context is still live start a new one.
			var abandoned *abandonedExchangeError
			if errors.As(res.Err, &abandoned) {
				if ctx.Err() == nil {
					continue
				}
				return Token{}, abandoned.err
			}
			return Token{}, res.Err
		}
	}
}

// abandonedExchangeError is an exchange that failed because the context of the caller
// running it ended. It never leaves the package.
type abandonedExchangeError struct{ err error }

func (e *abandonedExchangeError) Error() string { return e.err.Error() }

func (e *abandonedExchangeError) Unwrap() error { return e.err }

// Invalidate drops the cached token so the next GetToken performs an exchange.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

// Current returns the cached token without checking expiry or exchanging.
func (m *TokenManager) Current() (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return Token{}, false
	}
	return *m.token, true
}

func (m *TokenManager) cached() (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil || m.token.Expired(m.now()) {
		return Token{}, false
	}
	return *m.token, true
}

// exchange performs the client credentials grant. It never touches the cache.
func (m *TokenManager) exchange(ctx context.Context) (Token, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	if m.creds.Scope != "" {
		data.Set("scope", m.creds.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.creds.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return Token{}, &AuthExchangeError{Message: "failed to create token request", Err: err}
	}
	req.SetBasicAuth(m.creds.ClientID, m.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", m.userAgent)

	m.logger.WithField("token_url", m.creds.TokenURL).Debug("requesting access token")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		classified := classifyDoError(http.MethodPost, m.creds.TokenURL, 0, err)
		if _, ok := classified.(*TransportError); ok {
			return Token{}, classified
		}
		return Token{}, &AuthExchangeError{Message: "token endpoint redirected", Err: classified}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := readBody(resp)
	if err != nil {
		return Token{}, &TransportError{Op: http.MethodPost, URL: m.creds.TokenURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, msg := serverMessage(body)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Token{}, &AuthExchangeError{StatusCode: resp.StatusCode, Message: msg}
	}

	tok, err := parseTokenResponse(body)
	if err != nil {
		return Token{}, &AuthExchangeError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	tok.IssuedAt = m.now()

	m.logger.WithField("expires_in", tok.ExpiresIn).Debug("access token acquired")
	return tok, nil
}

// parseTokenResponse validates the fields a Token needs. Anything missing or malformed
// rejects the whole response.
func parseTokenResponse(body []byte) (Token, error) {
	if !gjson.ValidBytes(body) {
		return Token{}, fmt.Errorf("token response is not valid JSON")
	}
	res := gjson.GetManyBytes(body, "access_token", "expires_in")

	access := res[0]
	if access.Type != gjson.String || access.Str == "" {
		return Token{}, fmt.Errorf("token response is missing access_token")
	}

	var expiresIn int
	switch res[1].Type {
	case gjson.Number:
		if res[1].Num != float64(int64(res[1].Num)) {
			return Token{}, fmt.Errorf("expires_in is not an integer: %s", res[1].Raw)
		}
		expiresIn = int(res[1].Int())
	case gjson.String:
		n, err := strconv.Atoi(res[1].Str)
		if err != nil {
			return Token{}, fmt.Errorf("expires_in is not an integer: %s", res[1].Raw)
		}
		expiresIn = n
	default:
		return Token{}, fmt.Errorf("token response is missing expires_in")
	}
	if expiresIn <= 0 {
		return Token{}, fmt.Errorf("expires_in must be positive, got %d", expiresIn)
	}

	return Token{AccessToken: access.Str, ExpiresIn: expiresIn}, nil
}

// TokenSource exposes the manager as an oauth2.TokenSource, for libraries built on
// golang.org/x/oauth2. The returned source shares the manager's cache.
func (m *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, m: m}
}

type managerTokenSource struct {
	ctx context.Context
	m   *TokenManager
}

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.m.GetToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: tok.AccessToken,
		TokenType:   "Bearer",
		Expiry:      tok.ExpiresAt(),
	}, nil
}
