package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/tunegate/internal/auth"
	"github.com/desertthunder/tunegate/internal/services"
	"github.com/desertthunder/tunegate/internal/shared"
	"github.com/desertthunder/tunegate/internal/store"
	tu "github.com/desertthunder/tunegate/internal/testing"
	"github.com/prometheus/client_golang/prometheus"
)

type harness struct {
	t        *testing.T
	cfg      *shared.Config
	provider *tu.FakeProvider
	store    *store.MemoryStore
	srv      *httptest.Server
	client   *http.Client

	// vendorStatus, when non-zero, makes the fake Spotify API fail every call with that status.
	vendorStatus atomic.Int32
	vendorCalls  atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{t: t, provider: tu.NewFakeProvider(t), store: store.NewMemoryStore()}
	t.Cleanup(func() { h.store.Close() })

	spotify := httptest.NewServer(http.HandlerFunc(h.serveSpotify))
	t.Cleanup(spotify.Close)

	h.cfg = shared.DefaultConfig()
	h.cfg.Credentials.Spotify.ClientID = tu.FakeClientID
	h.cfg.Credentials.Spotify.ClientSecret = tu.FakeClientSecret
	h.cfg.Credentials.Spotify.AuthURL = h.provider.AuthURL()
	h.cfg.Credentials.Spotify.TokenURL = h.provider.TokenURL()

	logger := shared.NewLogger(io.Discard)
	reg := prometheus.NewRegistry()
	metrics, err := auth.NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}

	manager, err := auth.NewManager(auth.Options{
		OAuth:           auth.NewOAuthConfig(h.cfg.Credentials.Spotify),
		ShowDialog:      h.cfg.Credentials.Spotify.ShowDialog,
		ExpirySkew:      h.cfg.Auth.ExpirySkew,
		ExchangeTimeout: 2 * time.Second,
		RetryBackoff:    time.Millisecond,
		Store:           h.store,
		Logger:          logger,
		Metrics:         metrics,
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	svc := services.NewSpotifyService(services.SpotifyOptions{
		BaseURL:    spotify.URL + "/v1",
		HTTPClient: spotify.Client(),
		Logger:     logger,
	})

	s, err := New(Options{Config: h.cfg, Manager: manager, Service: svc, Store: h.store, Logger: logger, Registry: reg})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(h.srv.Close)

	jar, _ := cookiejar.New(nil)
	h.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return h
}

func (h *harness) serveSpotify(w http.ResponseWriter, r *http.Request) {
	h.vendorCalls.Add(1)
	if status := int(h.vendorStatus.Load()); status != 0 {
		writeJSON(w, status, map[string]any{"error": map[string]any{"status": status, "message": "secret provider detail"}})
		return
	}

	link := func(kind, id string) map[string]string {
		return map[string]string{"spotify": fmt.Sprintf("https://open.spotify.com/%s/%s", kind, id)}
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/me":
		writeJSON(w, http.StatusOK, map[string]any{"id": "user1"})
	case r.Method == http.MethodGet && r.URL.Path == "/v1/me/playlists":
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{"id": "p1", "name": "Mix", "external_urls": link("playlist", "p1")}},
			"next":  nil,
		})
	case r.Method == http.MethodPost && r.URL.Path == "/v1/users/user1/playlists":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusCreated, map[string]any{"id": "new1", "name": body["name"], "external_urls": link("playlist", "new1")})
	case r.Method == http.MethodGet && r.URL.Path == "/v1/search":
		items := []map[string]any{}
		for i := range 15 {
			id := fmt.Sprintf("t%d", i)
			items = append(items, map[string]any{"id": id, "name": "Song " + id, "artists": []map[string]string{{"name": "Artist"}}, "external_urls": link("track", id)})
		}
		writeJSON(w, http.StatusOK, map[string]any{"tracks": map[string]any{"items": items}})
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/v1/playlists/"):
		writeJSON(w, http.StatusCreated, map[string]any{"snapshot_id": "snap"})
	default:
		http.NotFound(w, r)
	}
}

func (h *harness) do(method, path string, body string) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	if err != nil {
		h.t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) session() string {
	h.t.Helper()
	u, _ := url.Parse(h.srv.URL)
	for _, c := range h.client.Jar.Cookies(u) {
		if c.Name == SessionCookie {
			return c.Value
		}
	}
	h.t.Fatal("no session cookie")
	return ""
}

// login runs the redirect dance and returns the session id.
func (h *harness) login() string {
	h.t.Helper()

	resp := h.do(http.MethodGet, "/", "")
	if resp.StatusCode != http.StatusFound {
		h.t.Fatalf("expected redirect to authorize, got %d", resp.StatusCode)
	}
	state := locationQuery(h.t, resp).Get("state")

	h.provider.Issue("good-code")
	resp = h.do(http.MethodGet, "/callback?code=good-code&state="+url.QueryEscape(state), "")
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != h.cfg.Frontend.NextURL {
		h.t.Fatalf("expected redirect to %s, got %d %s", h.cfg.Frontend.NextURL, resp.StatusCode, resp.Header.Get("Location"))
	}
	return h.session()
}

func locationQuery(t *testing.T, resp *http.Response) url.Values {
	t.Helper()
	u, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("bad Location header: %v", err)
	}
	return u.Query()
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func assertError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Errorf("expected status %d, got %d", status, resp.StatusCode)
	}
	body := decodeJSON[map[string]string](t, resp)
	if body["error"] != code {
		t.Errorf("expected error %q, got %q", code, body["error"])
	}
}

func TestHome(t *testing.T) {
	t.Run("Unauthenticated Redirects To Provider", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(http.MethodGet, "/", "")
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("expected 302, got %d", resp.StatusCode)
		}
		if !strings.HasPrefix(resp.Header.Get("Location"), h.provider.AuthURL()) {
			t.Errorf("expected authorize URL, got %s", resp.Header.Get("Location"))
		}

		pending, ok, _ := h.store.PendingState(context.Background(), h.session())
		if !ok || locationQuery(t, resp).Get("state") != pending {
			t.Error("redirect state should equal the session's pending state")
		}
	})

	t.Run("Authorized", func(t *testing.T) {
		h := newHarness(t)
		h.login()

		resp := h.do(http.MethodGet, "/", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if body := decodeJSON[map[string]bool](t, resp); !body["authorized"] {
			t.Error("expected authorized=true")
		}
	})

	t.Run("Refreshes Expired Credential", func(t *testing.T) {
		h := newHarness(t)
		session := h.login()

		rec, _ := h.store.Get(context.Background(), session)
		rec.ExpiresAt = time.Now().Add(-time.Minute)
		if err := h.store.Put(context.Background(), session, rec); err != nil {
			t.Fatal(err)
		}

		resp := h.do(http.MethodGet, "/", "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200 after refresh, got %d", resp.StatusCode)
		}
		if h.provider.Refreshes() != 1 {
			t.Errorf("expected 1 refresh, got %d", h.provider.Refreshes())
		}
	})

	t.Run("Failed Refresh Restarts Authorization", func(t *testing.T) {
		h := newHarness(t)
		session := h.login()
		h.provider.Respond = func(grant string, _ url.Values) tu.ProviderResponse {
			return tu.ProviderResponse{Status: http.StatusBadRequest, Body: map[string]string{"error": "invalid_client"}}
		}

		rec, _ := h.store.Get(context.Background(), session)
		rec.ExpiresAt = time.Now().Add(-time.Minute)
		if err := h.store.Put(context.Background(), session, rec); err != nil {
			t.Fatal(err)
		}

		resp := h.do(http.MethodGet, "/", "")
		if resp.StatusCode != http.StatusFound || !strings.HasPrefix(resp.Header.Get("Location"), h.provider.AuthURL()) {
			t.Errorf("expected redirect to authorize, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
		}
	})
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name  string
		query func(state string) string
	}{
		{"wrong state", func(string) string { return "code=c1&state=forged" }},
		{"missing state", func(string) string { return "code=c1" }},
		{"provider denied", func(state string) string {
			return "error=access_denied&error_description=User+secret+reason&state=" + url.QueryEscape(state)
		}},
		{"missing code", func(state string) string { return "state=" + url.QueryEscape(state) }},
		{"unknown code", func(state string) string { return "code=never-issued&state=" + url.QueryEscape(state) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			resp := h.do(http.MethodGet, "/", "")
			state := locationQuery(t, resp).Get("state")

			resp = h.do(http.MethodGet, "/callback?"+tt.query(state), "")
			if resp.StatusCode != http.StatusFound {
				t.Fatalf("expected 302, got %d", resp.StatusCode)
			}
			if loc := resp.Header.Get("Location"); loc != h.cfg.Frontend.LandingURL {
				t.Errorf("expected bare landing URL, got %q", loc)
			}

			if rec, _ := h.store.Get(context.Background(), h.session()); rec != nil {
				t.Error("no credential should be stored")
			}
		})
	}

	t.Run("Replay", func(t *testing.T) {
		h := newHarness(t)
		resp := h.do(http.MethodGet, "/", "")
		state := locationQuery(t, resp).Get("state")
		h.provider.Issue("c1")

		query := "/callback?code=c1&state=" + url.QueryEscape(state)
		if resp := h.do(http.MethodGet, query, ""); resp.Header.Get("Location") != h.cfg.Frontend.NextURL {
			t.Fatalf("first callback should succeed, got %s", resp.Header.Get("Location"))
		}
		if resp := h.do(http.MethodGet, query, ""); resp.Header.Get("Location") != h.cfg.Frontend.LandingURL {
			t.Errorf("replay should land on the landing page, got %s", resp.Header.Get("Location"))
		}
		if h.provider.Exchanges() != 1 {
			t.Errorf("expected 1 exchange, got %d", h.provider.Exchanges())
		}
	})
}

func TestProtectedRoutes(t *testing.T) {
	t.Run("Unauthenticated Redirects", func(t *testing.T) {
		h := newHarness(t)

		resp := h.do(http.MethodGet, "/get_playlists", "")
		if resp.StatusCode != http.StatusFound || !strings.HasPrefix(resp.Header.Get("Location"), h.provider.AuthURL()) {
			t.Errorf("expected redirect to authorize, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
		}
		if h.vendorCalls.Load() != 0 {
			t.Error("vendor must not be called without a credential")
		}
	})

	t.Run("Get Playlists", func(t *testing.T) {
		h := newHarness(t)
		h.login()

		resp := h.do(http.MethodGet, "/get_playlists", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		playlists := decodeJSON[[]services.PlaylistSummary](t, resp)
		if len(playlists) != 1 || playlists[0].Name != "Mix" || playlists[0].URL != "https://open.spotify.com/playlist/p1" {
			t.Errorf("unexpected playlists %+v", playlists)
		}
	})

	t.Run("Create Playlist", func(t *testing.T) {
		h := newHarness(t)
		h.login()

		resp := h.do(http.MethodPost, "/create_playlist", `{"name":"Road Trip"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		created := decodeJSON[services.CreatedPlaylist](t, resp)
		if created.ID != "new1" || created.Name != "Road Trip" {
			t.Errorf("unexpected playlist %+v", created)
		}
	})

	t.Run("Create Playlist Validation", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"empty body", ""},
			{"empty object", "{}"},
			{"blank name", `{"name":"   "}`},
			{"malformed json", `{"name":`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := newHarness(t)
				resp := h.do(http.MethodPost, "/create_playlist", tt.body)
				assertError(t, resp, http.StatusBadRequest, "missing_name")
			})
		}
	})

	t.Run("Search Song", func(t *testing.T) {
		h := newHarness(t)

		assertError(t, h.do(http.MethodGet, "/search_song", ""), http.StatusBadRequest, "missing_name")

		h.login()
		resp := h.do(http.MethodGet, "/search_song?name=hello", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		tracks := decodeJSON[[]services.TrackResult](t, resp)
		if len(tracks) != 10 {
			t.Errorf("expected 10 tracks, got %d", len(tracks))
		}
		if len(tracks[0].Artists) != 1 || tracks[0].Artists[0] != "Artist" {
			t.Errorf("unexpected artists %v", tracks[0].Artists)
		}
	})

	t.Run("Add Song To Playlist", func(t *testing.T) {
		h := newHarness(t)

		assertError(t, h.do(http.MethodPost, "/add_song_to_playlist", `{"playlist_id":"p1"}`), http.StatusBadRequest, "missing_playlist_id_or_track_id")
		assertError(t, h.do(http.MethodPost, "/add_song_to_playlist", `not json`), http.StatusBadRequest, "missing_playlist_id_or_track_id")
		assertError(t, h.do(http.MethodPost, "/add_song_to_playlist", `{"playlist_id":"p1","track_id":"../x"}`), http.StatusBadRequest, "invalid_playlist_id_or_track_id")

		h.login()
		resp := h.do(http.MethodPost, "/add_song_to_playlist", `{"playlist_id":"p1","track_id":"t1"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		body := decodeJSON[map[string]string](t, resp)
		if body["message"] != "Track t1 added to playlist p1" {
			t.Errorf("unexpected message %q", body["message"])
		}
	})

	t.Run("Vendor Errors", func(t *testing.T) {
		tests := []struct {
			vendor int
			status int
			code   string
		}{
			{http.StatusUnauthorized, http.StatusUnauthorized, "authentication_failed"},
			{http.StatusForbidden, http.StatusForbidden, "forbidden"},
			{http.StatusNotFound, http.StatusBadGateway, "upstream_error"},
			{http.StatusTooManyRequests, http.StatusBadGateway, "upstream_error"},
			{http.StatusInternalServerError, http.StatusBadGateway, "upstream_error"},
		}

		for _, tt := range tests {
			t.Run(http.StatusText(tt.vendor), func(t *testing.T) {
				h := newHarness(t)
				h.login()
				h.vendorStatus.Store(int32(tt.vendor))

				resp := h.do(http.MethodGet, "/get_playlists", "")
				b, _ := io.ReadAll(resp.Body)
				if resp.StatusCode != tt.status {
					t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
				}
				if strings.Contains(string(b), "secret provider detail") {
					t.Error("vendor error text leaked to the client")
				}
				if !strings.Contains(string(b), tt.code) {
					t.Errorf("expected error %q in %s", tt.code, b)
				}
			})
		}
	})

	t.Run("Refresh Failure", func(t *testing.T) {
		h := newHarness(t)
		session := h.login()
		h.provider.Respond = func(grant string, _ url.Values) tu.ProviderResponse {
			return tu.ProviderResponse{Status: http.StatusBadRequest, Body: map[string]string{"error": "invalid_client", "error_description": "secret"}}
		}

		rec, _ := h.store.Get(context.Background(), session)
		rec.ExpiresAt = time.Now().Add(-time.Minute)
		if err := h.store.Put(context.Background(), session, rec); err != nil {
			t.Fatal(err)
		}

		assertError(t, h.do(http.MethodGet, "/get_playlists", ""), http.StatusUnauthorized, "authentication_failed")

		resp := h.do(http.MethodGet, "/get_playlists", "")
		if resp.StatusCode != http.StatusFound {
			t.Errorf("expected the next call to redirect to authorize, got %d", resp.StatusCode)
		}
		if h.provider.Refreshes() != 1 {
			t.Errorf("expected a single refresh attempt, got %d", h.provider.Refreshes())
		}
	})

	t.Run("Revoked Refresh Token", func(t *testing.T) {
		h := newHarness(t)
		session := h.login()

		rec, _ := h.store.Get(context.Background(), session)
		h.provider.Revoke(rec.RefreshToken)
		rec.ExpiresAt = time.Now().Add(-time.Minute)
		if err := h.store.Put(context.Background(), session, rec); err != nil {
			t.Fatal(err)
		}

		resp := h.do(http.MethodGet, "/get_playlists", "")
		if resp.StatusCode != http.StatusFound {
			t.Errorf("expected redirect to authorize, got %d", resp.StatusCode)
		}
		if rec, _ := h.store.Get(context.Background(), session); rec != nil {
			t.Error("revoked credential should be cleared")
		}
	})
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	session := h.login()

	resp := h.do(http.MethodGet, "/logout", "")
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}

	var expired bool
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie && c.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Error("expected the session cookie to be expired")
	}

	if rec, _ := h.store.Get(context.Background(), session); rec != nil {
		t.Error("credential should be cleared")
	}
	if _, ok, _ := h.store.PendingState(context.Background(), session); ok {
		t.Error("pending state should be cleared")
	}

	resp = h.do(http.MethodGet, "/", "")
	if resp.StatusCode != http.StatusFound {
		t.Errorf("expected a fresh authorization after logout, got %d", resp.StatusCode)
	}
}

func TestSessions(t *testing.T) {
	h := newHarness(t)

	h.do(http.MethodGet, "/", "")
	first := h.session()
	if !shared.IsID(first) {
		t.Errorf("expected a uuid session id, got %q", first)
	}

	h.do(http.MethodGet, "/", "")
	if h.session() != first {
		t.Error("session id should be stable across requests")
	}

	t.Run("Malformed Cookie Replaced", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "not-a-uuid"})

		var seen string
		Sessions(false, shared.NewLogger(io.Discard))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = SessionID(r.Context())
		})).ServeHTTP(rec, req)

		if !shared.IsID(seen) {
			t.Errorf("expected a fresh session id, got %q", seen)
		}
		if len(rec.Result().Cookies()) != 1 || !rec.Result().Cookies()[0].HttpOnly {
			t.Error("expected an HTTP-only session cookie to be issued")
		}
	})
}

func TestInfrastructure(t *testing.T) {
	t.Run("CORS Preflight", func(t *testing.T) {
		h := newHarness(t)

		req, _ := http.NewRequest(http.MethodOptions, h.srv.URL+"/create_playlist", nil)
		req.Header.Set("Origin", "http://localhost:4200")
		req.Header.Set("Access-Control-Request-Method", "POST")
		resp, err := h.client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("expected 204, got %d", resp.StatusCode)
		}
		if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:4200" {
			t.Errorf("unexpected allow origin %q", resp.Header.Get("Access-Control-Allow-Origin"))
		}
		if resp.Header.Get("Access-Control-Allow-Credentials") != "true" {
			t.Error("expected credentials to be allowed")
		}
	})

	t.Run("CORS Rejects Unknown Origin", func(t *testing.T) {
		h := newHarness(t)

		req, _ := http.NewRequest(http.MethodOptions, h.srv.URL+"/create_playlist", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		resp, err := h.client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403, got %d", resp.StatusCode)
		}
		if resp.Header.Get("Access-Control-Allow-Origin") != "" {
			t.Error("unknown origin must not be allowed")
		}
	})

	t.Run("Health", func(t *testing.T) {
		h := newHarness(t)
		resp := h.do(http.MethodGet, "/healthz", "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
		if body := decodeJSON[map[string]string](t, resp); body["status"] != "ok" {
			t.Errorf("unexpected body %v", body)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		h := newHarness(t)
		h.login()

		resp := h.do(http.MethodGet, "/metrics", "")
		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		for _, name := range []string{"tunegate_http_requests_total", "tunegate_oauth_callbacks_total"} {
			if !strings.Contains(string(b), name) {
				t.Errorf("expected %s in exposition", name)
			}
		}
	})

	t.Run("Not Found", func(t *testing.T) {
		h := newHarness(t)
		assertError(t, h.do(http.MethodGet, "/nope", ""), http.StatusNotFound, "not_found")
	})

	t.Run("Method Not Allowed", func(t *testing.T) {
		h := newHarness(t)
		assertError(t, h.do(http.MethodGet, "/create_playlist", ""), http.StatusMethodNotAllowed, "method_not_allowed")
	})

	t.Run("Recover", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Recover(shared.NewLogger(io.Discard))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("New Requires Dependencies", func(t *testing.T) {
		if _, err := New(Options{}); err == nil {
			t.Error("expected an error without dependencies")
		}
	})
}

func TestGateVendorFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"vendor 401", &services.APIError{StatusCode: 401}, http.StatusUnauthorized, "authentication_failed"},
		{"vendor 403", &services.APIError{StatusCode: 403}, http.StatusForbidden, "forbidden"},
		{"vendor 500", &services.APIError{StatusCode: 500}, http.StatusBadGateway, "upstream_error"},
		{"transport", fmt.Errorf("%w: dial", shared.ErrAPIRequest), http.StatusBadGateway, "upstream_error"},
		{"bad input", fmt.Errorf("%w: id", shared.ErrInvalidArgument), http.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := vendorFailure(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("expected %d %s, got %d %s", tt.status, tt.code, status, code)
			}
		})
	}
}
