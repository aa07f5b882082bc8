// package testing contains shared testing utilities
package testing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
	calls    atomic.Int32
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	m.calls.Add(1)
	return m.response, m.err
}

// Calls returns how many requests went through the round tripper.
func (m *MockRoundTripper) Calls() int { return int(m.calls.Load()) }

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

const (
	FakeClientID     = "test-client"
	FakeClientSecret = "test-secret"
)

// ProviderResponse overrides the fake provider's reply for one request. A zero Status falls through to the default behavior.
type ProviderResponse struct {
	Status int
	Body   any
}

// FakeProvider is an OAuth2 token endpoint backed by [httptest.Server].
//
// Codes registered with Issue can be exchanged once. Every refresh token except revoked ones is accepted.
type FakeProvider struct {
	Server *httptest.Server

	// ExpiresIn is the lifetime in seconds reported for new access tokens. Zero omits expires_in.
	ExpiresIn int
	// RotateRefresh returns a new refresh token on every refresh.
	RotateRefresh bool
	// Respond, when set, is consulted before the default behavior.
	Respond func(grant string, form url.Values) ProviderResponse
	// Hold, when set, blocks every token request until it is closed. Entered receives one value per blocked request.
	Hold    chan struct{}
	Entered chan struct{}

	mu        sync.Mutex
	codes     map[string]bool
	revoked   map[string]bool
	exchanges atomic.Int32
	refreshes atomic.Int32
	issued    atomic.Int32
}

// NewFakeProvider starts a provider that is shut down when the test ends.
func NewFakeProvider(t *testing.T) *FakeProvider {
	t.Helper()

	p := &FakeProvider{
		ExpiresIn: 3600,
		codes:     make(map[string]bool),
		revoked:   make(map[string]bool),
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serveToken))
	t.Cleanup(p.Server.Close)
	return p
}

// TokenURL is the endpoint to configure as the OAuth2 token URL.
func (p *FakeProvider) TokenURL() string { return p.Server.URL + "/api/token" }

// AuthURL is a nominal authorize endpoint on the fake host. Nothing serves it.
func (p *FakeProvider) AuthURL() string { return p.Server.URL + "/authorize" }

// Issue registers code as exchangeable.
func (p *FakeProvider) Issue(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = true
}

// Revoke makes refresh attempts with token fail with invalid_grant.
func (p *FakeProvider) Revoke(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[token] = true
}

// Exchanges counts authorization_code grant requests.
func (p *FakeProvider) Exchanges() int { return int(p.exchanges.Load()) }

// Refreshes counts refresh_token grant requests.
func (p *FakeProvider) Refreshes() int { return int(p.refreshes.Load()) }

func (p *FakeProvider) serveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/api/token" {
		http.NotFound(w, r)
		return
	}

	if p.Hold != nil {
		if p.Entered != nil {
			p.Entered <- struct{}{}
		}
		<-p.Hold
	}

	id, secret, ok := r.BasicAuth()
	if !ok || id != FakeClientID || secret != FakeClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	grant := r.PostForm.Get("grant_type")
	switch grant {
	case "authorization_code":
		p.exchanges.Add(1)
	case "refresh_token":
		p.refreshes.Add(1)
	}

	if p.Respond != nil {
		if resp := p.Respond(grant, r.PostForm); resp.Status != 0 {
			writeJSON(w, resp.Status, resp.Body)
			return
		}
	}

	switch grant {
	case "authorization_code":
		code := r.PostForm.Get("code")
		p.mu.Lock()
		valid := p.codes[code]
		delete(p.codes, code)
		p.mu.Unlock()

		if !valid {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid authorization code"})
			return
		}
		n := p.issued.Add(1)
		writeJSON(w, http.StatusOK, p.tokenBody(n, fmt.Sprintf("refresh-%d", n)))

	case "refresh_token":
		rt := r.PostForm.Get("refresh_token")
		p.mu.Lock()
		revoked := p.revoked[rt]
		p.mu.Unlock()

		if rt == "" || revoked {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Refresh token revoked"})
			return
		}
		n := p.issued.Add(1)
		next := ""
		if p.RotateRefresh {
			next = fmt.Sprintf("refresh-%d", n)
		}
		writeJSON(w, http.StatusOK, p.tokenBody(n, next))

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (p *FakeProvider) tokenBody(n int32, refresh string) map[string]any {
	body := map[string]any{
		"access_token": fmt.Sprintf("access-%d", n),
		"token_type":   "Bearer",
		"scope":        "user-read-private playlist-modify-private",
	}
	if p.ExpiresIn > 0 {
		body["expires_in"] = p.ExpiresIn
	}
	if refresh != "" {
		body["refresh_token"] = refresh
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
