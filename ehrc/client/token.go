package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/carenexus/ehrc-app/ehrc/constants"
	customErrors "github.com/carenexus/ehrc-app/ehrc/errors"
	"github.com/carenexus/ehrc-app/log"
)

// accessToken is the cached credential. It never leaves this package;
// callers only ever see the opaque bearer value.
type accessToken struct {
	value      string
	tokenType  string
	acquiredAt time.Time
	expiresAt  time.Time
}

// usable reports whether the token can still sign a request. A token
// inside the safety margin of its expiry counts as expired.
func (t accessToken) usable(now time.Time, margin time.Duration) bool {
	if t.value == "" {
		return false
	}
	return now.Before(t.expiresAt.Add(-margin))
}

// refreshCall is a single in-flight exchange. Callers that find one in
// progress wait on done and share its outcome instead of issuing their own.
type refreshCall struct {
	done  chan struct{}
	token accessToken
	err   error
}

// TokenManager caches one access token per credential set and refreshes it
// on demand. Concurrent callers needing a refresh coalesce onto a single
// exchange request; a failed exchange leaves the cache untouched.
type TokenManager struct {
	cfg        *Config
	httpClient *http.Client

	mu       sync.RWMutex
	token    accessToken
	inflight *refreshCall
}

func NewTokenManager(cfg *Config) *TokenManager {
	return &TokenManager{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
	}
}

// Token returns a bearer value that is guaranteed to remain outside the
// expiry safety margin at the moment of return. The cached token is reused
// until then without any network traffic.
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	tm.mu.RLock()
	if tm.token.usable(time.Now(), tm.cfg.TokenMargin()) {
		value := tm.token.value
		tm.mu.RUnlock()
		return value, nil
	}
	tm.mu.RUnlock()

	return tm.refresh(ctx)
}

// Valid reports whether the cached token is currently usable. No network
// traffic is ever triggered by this check.
func (tm *TokenManager) Valid() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.token.usable(time.Now(), tm.cfg.TokenMargin())
}

// Invalidate drops the cached token so the next caller performs a fresh
// exchange. Used when the API rejects a bearer the cache still considered usable.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.token = accessToken{}
}

func (tm *TokenManager) refresh(ctx context.Context) (string, error) {
	tm.mu.Lock()

	// Another goroutine may have refreshed while we waited on the lock.
	if tm.token.usable(time.Now(), tm.cfg.TokenMargin()) {
		value := tm.token.value
		tm.mu.Unlock()
		return value, nil
	}

	if tm.inflight != nil {
		call := tm.inflight
		tm.mu.Unlock()
		select {
		case <-call.done:
			if call.err != nil {
				return "", call.err
			}
			return call.token.value, nil
		case <-ctx.Done():
			return "", &customErrors.AuthenticationError{Err: ctx.Err(), Endpoint: tm.cfg.TokenURL}
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	tm.inflight = call
	tm.mu.Unlock()

	token, err := tm.exchange(ctx)

	tm.mu.Lock()
	call.token, call.err = token, err
	if err == nil {
		tm.token = token
	}
	tm.inflight = nil
	tm.mu.Unlock()
	close(call.done)

	if err != nil {
		return "", err
	}
	return token.value, nil
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   json.Number `json:"expires_in"`
	Scope       string      `json:"scope,omitempty"`
}

// exchange performs one client-credentials grant against the token endpoint.
func (tm *TokenManager) exchange(ctx context.Context) (accessToken, error) {
	requestID := uuid.NewRandom()

	params := url.Values{}
	params.Set("grant_type", "client_credentials")
	if tm.cfg.Scope != "" {
		params.Set("scope", tm.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", tm.cfg.TokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return accessToken{}, &customErrors.AuthenticationError{Err: err, Endpoint: tm.cfg.TokenURL}
	}
	req.SetBasicAuth(tm.cfg.ClientID, tm.cfg.ClientSecret)
	req.Header.Add(constants.ContentType, "application/x-www-form-urlencoded")
	req.Header.Add("Accept", constants.JsonContentType)
	req.Header.Add("Cache-Control", "no-cache")

	logAuthRequest(req, requestID)
	resp, err := tm.httpClient.Do(req)
	if err != nil {
		err = &customErrors.AuthenticationError{Err: err, Endpoint: tm.cfg.TokenURL}
		logAuthError(err, requestID)
		return accessToken{}, err
	}
	defer resp.Body.Close()
	logAuthResponse(resp, requestID)

	if resp.StatusCode >= 400 {
		err = &customErrors.AuthenticationError{Err: errors.New(resp.Status), Endpoint: tm.cfg.TokenURL}
		logAuthError(err, requestID)
		return accessToken{}, err
	}

	var tr tokenResponse
	if err = json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		err = &customErrors.AuthenticationError{Err: errors.Wrap(err, "unexpected token response format"), Endpoint: tm.cfg.TokenURL}
		logAuthError(err, requestID)
		return accessToken{}, err
	}
	if tr.AccessToken == "" {
		err = &customErrors.AuthenticationError{Err: errors.New("token response contained no access token"), Endpoint: tm.cfg.TokenURL}
		logAuthError(err, requestID)
		return accessToken{}, err
	}

	now := time.Now()
	token := accessToken{
		value:      tr.AccessToken,
		tokenType:  tr.TokenType,
		acquiredAt: now,
		expiresAt:  tm.expiry(now, tr),
	}
	if token.tokenType == "" {
		token.tokenType = "bearer"
	}
	return token, nil
}

// expiry works out when the token dies. Servers report expires_in as a
// number or a numeric string; when it is absent the token's own exp claim
// is consulted, and failing that a configured default lifetime applies.
func (tm *TokenManager) expiry(now time.Time, tr tokenResponse) time.Time {
	if secs, err := tr.ExpiresIn.Int64(); err == nil && secs > 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}

	claims := jwt.MapClaims{}
	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(tr.AccessToken, claims); err == nil {
		if exp, ok := claims["exp"].(float64); ok && exp > 0 {
			return time.Unix(int64(exp), 0)
		}
	}

	return now.Add(tm.cfg.DefaultTokenLifetime())
}

func logAuthRequest(req *http.Request, requestID uuid.UUID) *logrus.Entry {
	entry := log.Auth.WithFields(logrus.Fields{"request_id": requestID, "op": "token_exchange", "endpoint": req.URL.String()})
	entry.Info()
	return entry
}

func logAuthResponse(resp *http.Response, requestID uuid.UUID) *logrus.Entry {
	entry := log.Auth.WithFields(logrus.Fields{"request_id": requestID, "op": "token_exchange", "status": resp.StatusCode})
	entry.Info()
	return entry
}

func logAuthError(err error, requestID uuid.UUID) *logrus.Entry {
	entry := log.Auth.WithFields(logrus.Fields{"request_id": requestID, "op": "token_exchange"})
	entry.Error(err)
	return entry
}
