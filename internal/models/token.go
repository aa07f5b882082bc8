package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/tunegate/internal/shared"
)

// DefaultTokenType is used when the provider omits token_type.
const DefaultTokenType = "Bearer"

// TokenRecord is the credential held for a single session.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Scope        []string  `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`

	// Unrecoverable marks a record whose refresh was rejected by the provider.
	Unrecoverable bool `json:"unrecoverable,omitempty"`
}

// Validate checks that the record can be persisted.
func (t *TokenRecord) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil record", shared.ErrInvalidRecord)
	}
	if t.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", shared.ErrInvalidRecord)
	}
	if t.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: expiry is required", shared.ErrInvalidRecord)
	}
	return nil
}

// Clone returns a deep copy of the record.
func (t *TokenRecord) Clone() *TokenRecord {
	if t == nil {
		return nil
	}
	c := *t
	c.Scope = slices.Clone(t.Scope)
	return &c
}

// HasRefreshToken reports whether the record can be refreshed.
func (t *TokenRecord) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// ScopeString joins the granted scopes with spaces, the form used on the wire.
func (t *TokenRecord) ScopeString() string {
	return strings.Join(t.Scope, " ")
}

// ParseScope splits a space delimited scope string.
func ParseScope(s string) []string {
	return strings.Fields(s)
}

// AuthorizationState is the derived status of a session's credential.
type AuthorizationState int

const (
	Unauthenticated AuthorizationState = iota
	Valid
	Expired
	Unrecoverable
)

func (s AuthorizationState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case Unrecoverable:
		return "unrecoverable"
	default:
		return fmt.Sprintf("AuthorizationState(%d)", int(s))
	}
}

// Evaluate derives the [AuthorizationState] of rec at now.
//
// A record is Valid only while now is strictly before ExpiresAt minus skew.
// An expired record without a refresh token, or one flagged after a rejected refresh, is Unrecoverable.
func Evaluate(rec *TokenRecord, now time.Time, skew time.Duration) AuthorizationState {
	switch {
	case rec == nil:
		return Unauthenticated
	case rec.Unrecoverable:
		return Unrecoverable
	case now.Before(rec.ExpiresAt.Add(-skew)):
		return Valid
	case !rec.HasRefreshToken():
		return Unrecoverable
	default:
		return Expired
	}
}
