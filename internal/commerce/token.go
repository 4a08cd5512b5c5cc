// Package commerce – credential cache
//
// This file implements the lazy bearer-token cache. A token is exchanged via
// client credentials the first time it is needed and re-exchanged only when a
// caller finds the cached one expired. There is no background refresh
// goroutine: refresh happens on the calling goroutine that discovers expiry,
// and concurrent discoverers collapse onto a single in-flight exchange via
// singleflight (one winner performs the POST, the rest reuse its result).
package commerce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Credential is a bearer authorization value plus its expiry. The value is
// the full header payload ("Bearer <token>") as issued by the backend.
type Credential struct {
	Authorization string
	ExpiresAt     time.Time
}

// Valid reports whether the credential can still be used at time now.
func (c Credential) Valid(now time.Time) bool {
	return c.Authorization != "" && now.Before(c.ExpiresAt)
}

// tokenResponse is the wire shape of the OAuth token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Expires     int64  `json:"expires"` // unix seconds
}

// tokenSource owns the cached credential. All mutation goes through refresh;
// readers take the mutex only long enough to copy the value.
type tokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	http         *http.Client

	now func() time.Time // test seam

	mu    sync.Mutex
	cred  Credential
	group singleflight.Group
}

func newTokenSource(baseURL, clientID, clientSecret string, hc *http.Client) *tokenSource {
	return &tokenSource{
		tokenURL:     baseURL + "/oauth/token",
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         hc,
		now:          time.Now,
	}
}

// Authorization returns a non-expired authorization header value, performing
// a client-credentials exchange first when the cached one has expired.
// A failed exchange surfaces as *AuthError and is not retried here.
func (t *tokenSource) Authorization(ctx context.Context) (string, error) {
	t.mu.Lock()
	cred := t.cred
	t.mu.Unlock()
	if cred.Valid(t.now()) {
		return cred.Authorization, nil
	}

	v, err, _ := t.group.Do("token", func() (interface{}, error) {
		// Re-check under the flight: a waiter queued behind the winner must
		// not trigger a second exchange for the same expiry.
		t.mu.Lock()
		cred := t.cred
		t.mu.Unlock()
		if cred.Valid(t.now()) {
			return cred, nil
		}

		fresh, err := t.exchange(ctx)
		if err != nil {
			return Credential{}, err
		}
		t.mu.Lock()
		t.cred = fresh
		t.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return v.(Credential).Authorization, nil
}

// exchange performs one client-credentials POST against the token endpoint.
func (t *tokenSource) exchange(ctx context.Context) (Credential, error) {
	tokenRefreshes.Inc()

	form := url.Values{
		"client_id":     {t.clientID},
		"client_secret": {t.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return Credential{}, &AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Credential{}, &AuthError{Status: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Credential{}, &AuthError{Err: err}
	}
	return Credential{
		Authorization: tr.TokenType + " " + tr.AccessToken,
		ExpiresAt:     time.Unix(tr.Expires, 0),
	}, nil
}
