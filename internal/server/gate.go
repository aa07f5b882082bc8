package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/auth"
	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/services"
	"github.com/desertthunder/tunegate/internal/shared"
)

// Operation is a vendor call made with a valid credential. Its result is written as JSON.
type Operation func(ctx context.Context, cred *models.TokenRecord) (any, error)

// Gate runs operations on behalf of the request's session.
type Gate struct {
	manager *auth.Manager
	logger  *log.Logger
}

// NewGate creates a [Gate] over manager.
func NewGate(manager *auth.Manager, logger *log.Logger) *Gate {
	return &Gate{manager: manager, logger: logger}
}

// Serve obtains a valid credential for the request's session and invokes op with it.
func (g *Gate) Serve(w http.ResponseWriter, r *http.Request, op Operation) {
	ctx := r.Context()
	session := SessionID(ctx)
	logger := g.logger.With("session", session, "route", r.URL.Path)

	cred, err := g.manager.GetValidCredential(ctx, session)
	if err != nil {
		var required *auth.AuthorizationRequiredError
		if errors.As(err, &required) {
			http.Redirect(w, r, required.URL, http.StatusFound)
			return
		}
		logger.Warn("could not obtain credential", "err", err)
		writeError(w, http.StatusUnauthorized, "authentication_failed")
		return
	}

	result, err := op(ctx, cred)
	if err != nil {
		status, code := vendorFailure(err)
		logger.Warn("vendor call failed", "err", err, "status", status)
		writeError(w, status, code)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// vendorFailure maps an operation error to a status and a generic error code.
func vendorFailure(err error) (int, string) {
	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, "authentication_failed"
		case http.StatusForbidden:
			return http.StatusForbidden, "forbidden"
		}
		return http.StatusBadGateway, "upstream_error"
	}

	if errors.Is(err, shared.ErrInvalidArgument) || errors.Is(err, shared.ErrMissingArgument) {
		return http.StatusBadRequest, "invalid_request"
	}
	return http.StatusBadGateway, "upstream_error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
