// Package services defines the [Service] interface for music providers and implements it for the Spotify Web API.
//
// # Spotify Implementation
//
// [SpotifyService] is stateless with respect to sessions: the caller passes the credential for each
// call, and the service only attaches it as a bearer token. Outbound calls share one rate limiter so a
// burst of sessions cannot exceed the configured request rate.
//
// # Error Handling
//
//   - [*APIError] : the provider answered with a non-2xx status; StatusCode is preserved for the gateway
//   - [shared.ErrAPIRequest] : transport failures and undecodable responses
//   - [shared.ErrInvalidArgument] : a playlist or track reference that is not a Spotify id, URI or link
//
// # API Mappings
//
//   - GET /me/playlists → [PlaylistSummary], following "next" links on the API host only
//   - GET /me, POST /users/{id}/playlists → [CreatedPlaylist]
//   - GET /search?type=track → [TrackResult]
//   - POST /playlists/{id}/tracks with spotify:track URIs
package services
