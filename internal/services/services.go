// package services defines interface Service for forwarding calls to the Spotify Web API
package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/shared"
)

// Service forwards playlist and track operations to a music provider on behalf of one session.
//
// Every method takes the credential handed out by the gateway; implementations never refresh it.
type Service interface {
	// ListPlaylists returns every playlist of the authorized user, following pagination.
	ListPlaylists(ctx context.Context, cred *models.TokenRecord) ([]PlaylistSummary, error)

	// CreatePlaylist creates a private playlist owned by the authorized user.
	CreatePlaylist(ctx context.Context, cred *models.TokenRecord, name string) (*CreatedPlaylist, error)

	// SearchTracks returns at most limit tracks matching query.
	SearchTracks(ctx context.Context, cred *models.TokenRecord, query string, limit int) ([]TrackResult, error)

	// AddTrackToPlaylist appends a track to a playlist.
	AddTrackToPlaylist(ctx context.Context, cred *models.TokenRecord, playlistID, trackID string) error

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// PlaylistSummary is one entry of the playlist listing.
type PlaylistSummary struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CreatedPlaylist describes a newly created playlist.
type CreatedPlaylist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TrackResult is one search hit.
type TrackResult struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Artists []string `json:"artists"`
	URL     string   `json:"url"`
}

// APIError is a non-2xx response from the provider. Message is for logs only.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error: status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error { return shared.ErrAPIRequest }
