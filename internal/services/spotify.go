// Spotify API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/shared"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"

	playlistPageSize = 50
	maxSearchResults = 10
)

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	ExternalURLs externalURLs    `json:"external_urls"`
	URI          string          `json:"uri"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Public       bool         `json:"public"`
	ExternalURLs externalURLs `json:"external_urls"`
	URI          string       `json:"uri"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items  []SpotifySimplePlaylist `json:"items"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Next   *string                 `json:"next"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

type spotifyErrorResponse struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyOptions configures a [SpotifyService].
type SpotifyOptions struct {
	// BaseURL defaults to the public Web API.
	BaseURL    string
	HTTPClient *http.Client
	// RateLimit is in requests per second. Zero or less disables pacing.
	RateLimit float64
	Burst     int
	Logger    *log.Logger
}

// SpotifyService implements [Service] for the Spotify Web API.
type SpotifyService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewSpotifyService creates a new Spotify service.
func NewSpotifyService(opts SpotifyOptions) *SpotifyService {
	s := &SpotifyService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     opts.Logger,
	}

	if s.baseURL == "" {
		s.baseURL = spotifyBaseURL
	}
	if s.httpClient == nil {
		s.httpClient = http.DefaultClient
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if s.logger == nil {
		s.logger = shared.NewLogger(nil)
	}

	return s
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// doRequest performs an authenticated HTTP request to the Spotify API.
//
// endpoint is either a path below the base URL or an absolute URL on the API host, as found in "next" links.
func (s *SpotifyService) doRequest(ctx context.Context, cred *models.TokenRecord, method, endpoint string, body, result any) error {
	if cred == nil || cred.AccessToken == "" {
		return shared.ErrNotAuthenticated
	}

	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		apiURL = s.baseURL + endpoint
	} else if !strings.HasPrefix(endpoint, s.baseURL+"/") {
		return fmt.Errorf("%w: refusing to follow link off the API host", shared.ErrAPIRequest)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	tokenType := cred.TokenType
	if tokenType == "" {
		tokenType = models.DefaultTokenType
	}
	req.Header.Set("Authorization", tokenType+" "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload spotifyErrorResponse
		if b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil && json.Unmarshal(b, &payload) == nil {
			apiErr.Message = payload.Error.Message
		}
		s.logger.Warn("spotify request failed", "method", method, "endpoint", endpoint, "status", resp.StatusCode, "message", apiErr.Message)
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %w", shared.ErrAPIRequest, err)
		}
	}

	return nil
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context, cred *models.TokenRecord) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, cred, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) ListPlaylists(ctx context.Context, cred *models.TokenRecord) ([]PlaylistSummary, error) {
	playlists := []PlaylistSummary{}
	endpoint := fmt.Sprintf("/me/playlists?limit=%d", playlistPageSize)

	for endpoint != "" {
		var page SpotifyPaginatedPlaylists
		if err := s.doRequest(ctx, cred, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, sp := range page.Items {
			playlists = append(playlists, PlaylistSummary{Name: sp.Name, URL: sp.ExternalURLs.Spotify})
		}

		endpoint = ""
		if page.Next != nil {
			endpoint = *page.Next
		}
	}

	return playlists, nil
}

// CreatePlaylist creates a private playlist for the current user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, cred *models.TokenRecord, name string) (*CreatedPlaylist, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	user, err := s.UserProfile(ctx, cred)
	if err != nil {
		return nil, err
	}

	body := map[string]any{"name": name, "public": false}
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(user.ID))

	var created SpotifySimplePlaylist
	if err := s.doRequest(ctx, cred, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, err
	}

	return &CreatedPlaylist{ID: created.ID, Name: created.Name, URL: created.ExternalURLs.Spotify}, nil
}

// SearchTracks searches the catalog for tracks. limit is clamped to [1, 10].
func (s *SpotifyService) SearchTracks(ctx context.Context, cred *models.TokenRecord, query string, limit int) ([]TrackResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	limit = max(1, min(limit, maxSearchResults))

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))

	var response spotifySearchResponse
	if err := s.doRequest(ctx, cred, http.MethodGet, "/search?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]TrackResult, 0, len(response.Tracks.Items))
	for _, t := range response.Tracks.Items {
		artists := make([]string, 0, len(t.Artists))
		for _, a := range t.Artists {
			artists = append(artists, a.Name)
		}
		tracks = append(tracks, TrackResult{ID: t.ID, Name: t.Name, Artists: artists, URL: t.ExternalURLs.Spotify})
		if len(tracks) == limit {
			break
		}
	}

	return tracks, nil
}

// AddTrackToPlaylist appends a track to a playlist. Both arguments accept an id, a spotify: URI or an open.spotify.com link.
func (s *SpotifyService) AddTrackToPlaylist(ctx context.Context, cred *models.TokenRecord, playlistID, trackID string) error {
	pid, err := ParseID("playlist", playlistID)
	if err != nil {
		return err
	}
	tid, err := ParseID("track", trackID)
	if err != nil {
		return err
	}

	body := map[string]any{"uris": []string{"spotify:track:" + tid}}
	endpoint := fmt.Sprintf("/playlists/%s/tracks", pid)

	return s.doRequest(ctx, cred, http.MethodPost, endpoint, body, nil)
}

// ParseID extracts the base-62 id of a Spotify resource of the given kind ("track", "playlist")
// from a bare id, a spotify:<kind>:<id> URI or an https://open.spotify.com/<kind>/<id> link.
func ParseID(kind, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: %s id", shared.ErrMissingArgument, kind)
	}

	id := ref
	switch {
	case strings.HasPrefix(ref, "spotify:"):
		parts := strings.Split(ref, ":")
		if len(parts) != 3 || parts[1] != kind {
			return "", fmt.Errorf("%w: not a %s URI", shared.ErrInvalidArgument, kind)
		}
		id = parts[2]
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		u, err := url.Parse(ref)
		if err != nil || u.Host != "open.spotify.com" {
			return "", fmt.Errorf("%w: not a Spotify %s link", shared.ErrInvalidArgument, kind)
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		// links may carry a locale prefix such as /intl-de/track/<id>
		if len(segments) < 2 || segments[len(segments)-2] != kind {
			return "", fmt.Errorf("%w: not a Spotify %s link", shared.ErrInvalidArgument, kind)
		}
		id = segments[len(segments)-1]
	}

	if !isBase62(id) {
		return "", fmt.Errorf("%w: malformed %s id", shared.ErrInvalidArgument, kind)
	}
	return id, nil
}

func isBase62(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}
