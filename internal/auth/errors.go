package auth

import (
	"fmt"

	"github.com/desertthunder/tunegate/internal/shared"
)

var (
	ErrStateMismatch   = fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed)
	ErrMissingCode     = fmt.Errorf("%w: missing authorization code", shared.ErrAuthFailed)
	ErrCodeAlreadyUsed = fmt.Errorf("%w: authorization code already used", shared.ErrAuthFailed)
	ErrExchangeFailed  = fmt.Errorf("%w: code exchange failed", shared.ErrAuthFailed)

	// ErrRefreshFailed is [shared.ErrRefreshFailed], re-exported for callers of this package.
	ErrRefreshFailed = shared.ErrRefreshFailed
)

// AuthorizationDeniedError reports an error returned by the provider on the callback, such as access_denied.
type AuthorizationDeniedError struct {
	Reason      string
	Description string
}

func (e *AuthorizationDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s (%s)", e.Reason, e.Description)
	}
	return "authorization denied: " + e.Reason
}

func (e *AuthorizationDeniedError) Unwrap() error { return shared.ErrAuthFailed }

// AuthorizationRequiredError means the session holds no usable credential.
// URL is the authorize URL the visitor should be redirected to.
type AuthorizationRequiredError struct {
	URL string
}

func (e *AuthorizationRequiredError) Error() string { return "authorization required" }

func (e *AuthorizationRequiredError) Unwrap() error { return shared.ErrNotAuthenticated }
