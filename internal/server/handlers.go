package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/tunegate/internal/auth"
	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/services"
	"github.com/desertthunder/tunegate/internal/store"
)

const (
	maxBodyBytes = 1 << 20
	searchLimit  = 10
)

// home reports {"authorized": true} for a session with a usable credential and otherwise
// sends the visitor to the provider.
func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := SessionID(ctx)

	_, err := s.manager.GetValidCredential(ctx, session)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"authorized": true})
		return
	}

	var required *auth.AuthorizationRequiredError
	if errors.As(err, &required) {
		http.Redirect(w, r, required.URL, http.StatusFound)
		return
	}
	s.logger.Warn("credential check failed, restarting authorization", "session", session, "err", err)

	authURL, err := s.manager.BeginAuthorization(ctx, session)
	if err != nil {
		s.logger.Error("failed to begin authorization", "session", session, "err", err)
		writeError(w, http.StatusServiceUnavailable, "service_unavailable")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// callback finishes the authorization and redirects to the front end. Failure details stay in the log.
func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := auth.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	session := SessionID(r.Context())
	if _, err := s.manager.CompleteAuthorization(r.Context(), session, params); err != nil {
		s.logger.Warn("authorization callback failed", "session", session, "err", err)
		http.Redirect(w, r, s.cfg.Frontend.LandingURL, http.StatusFound)
		return
	}

	http.Redirect(w, r, s.cfg.Frontend.NextURL, http.StatusFound)
}

func (s *Server) getPlaylists(w http.ResponseWriter, r *http.Request) {
	s.gate.Serve(w, r, func(ctx context.Context, cred *models.TokenRecord) (any, error) {
		return s.service.ListPlaylists(ctx, cred)
	})
}

type createPlaylistRequest struct {
	Name string `json:"name"`
}

func (s *Server) createPlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	decodeBody(r, &req)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing_name")
		return
	}

	s.gate.Serve(w, r, func(ctx context.Context, cred *models.TokenRecord) (any, error) {
		return s.service.CreatePlaylist(ctx, cred, name)
	})
}

func (s *Server) searchSong(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("name"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_name")
		return
	}

	s.gate.Serve(w, r, func(ctx context.Context, cred *models.TokenRecord) (any, error) {
		return s.service.SearchTracks(ctx, cred, query, searchLimit)
	})
}

type addSongRequest struct {
	PlaylistID string `json:"playlist_id"`
	TrackID    string `json:"track_id"`
}

func (s *Server) addSongToPlaylist(w http.ResponseWriter, r *http.Request) {
	var req addSongRequest
	decodeBody(r, &req)

	playlistID := strings.TrimSpace(req.PlaylistID)
	trackID := strings.TrimSpace(req.TrackID)
	if playlistID == "" || trackID == "" {
		writeError(w, http.StatusBadRequest, "missing_playlist_id_or_track_id")
		return
	}
	if _, err := services.ParseID("playlist", playlistID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_playlist_id_or_track_id")
		return
	}
	if _, err := services.ParseID("track", trackID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_playlist_id_or_track_id")
		return
	}

	s.gate.Serve(w, r, func(ctx context.Context, cred *models.TokenRecord) (any, error) {
		if err := s.service.AddTrackToPlaylist(ctx, cred, playlistID, trackID); err != nil {
			return nil, err
		}
		return map[string]string{"message": fmt.Sprintf("Track %s added to playlist %s", trackID, playlistID)}, nil
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	session := SessionID(r.Context())
	if err := s.manager.Logout(r.Context(), session); err != nil {
		s.logger.Error("logout failed", "session", session, "err", err)
		writeError(w, http.StatusServiceUnavailable, "service_unavailable")
		return
	}

	expireSession(w, s.cfg.Server.CookieSecure)
	http.Redirect(w, r, "/", http.StatusFound)
}

// decodeBody reads a JSON object into v. Malformed or missing bodies leave v at its zero value.
func decodeBody(r *http.Request, v any) {
	if r.Body == nil {
		return
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(b) == 0 {
		return
	}
	_ = json.Unmarshal(b, v)
}

// healthHandler reports whether the credential store is reachable.
type healthHandler struct {
	store store.Store
}

func (h *healthHandler) Routes() []string {
	return []string{"GET /healthz"}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
