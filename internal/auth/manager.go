package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/shared"
	"github.com/desertthunder/tunegate/internal/store"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultExpirySkew      = 60 * time.Second
	DefaultExchangeTimeout = 10 * time.Second
	DefaultRetryBackoff    = 500 * time.Millisecond
	DefaultStateTTL        = 15 * time.Minute

	// defaultLifetime applies when the token response carries no expires_in.
	defaultLifetime = time.Hour

	// usedCodeTTL outlives any authorization code the provider would still accept.
	usedCodeTTL = 10 * time.Minute
)

// CallbackParams are the query parameters the provider sends to the redirect URI.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Options configures a [Manager]. Zero durations take the package defaults, except ExpirySkew where zero is honored.
type Options struct {
	OAuth           *oauth2.Config
	ShowDialog      bool
	ExpirySkew      time.Duration
	ExchangeTimeout time.Duration
	RetryBackoff    time.Duration
	StateTTL        time.Duration

	// HTTPClient is used for token endpoint requests. Defaults to [http.DefaultClient].
	HTTPClient *http.Client
	Store      store.Store
	Logger     *log.Logger
	Metrics    *Metrics
	Now        func() time.Time
}

// Manager owns the token lifecycle of every session.
type Manager struct {
	oauth      *oauth2.Config
	showDialog bool
	skew       time.Duration
	timeout    time.Duration
	backoff    time.Duration
	stateTTL   time.Duration
	httpClient *http.Client
	store      store.Store
	logger     *log.Logger
	metrics    *Metrics
	now        func() time.Time

	refreshes singleflight.Group
	states    singleflight.Group
	usedCodes *gocache.Cache
}

// NewOAuthConfig builds the client registration for the Spotify accounts service.
//
// Client credentials are always sent in the Authorization header so a failed exchange is never repeated
// with the alternate style.
func NewOAuthConfig(sp shared.SpotifyConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     sp.ClientID,
		ClientSecret: sp.ClientSecret,
		RedirectURL:  sp.RedirectURI,
		Scopes:       append([]string(nil), sp.Scopes...),
		Endpoint: oauth2.Endpoint{
			AuthURL:   sp.AuthURL,
			TokenURL:  sp.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// NewManager validates opts and creates a [Manager].
func NewManager(opts Options) (*Manager, error) {
	if opts.OAuth == nil {
		return nil, fmt.Errorf("%w: oauth config", shared.ErrMissingArgument)
	}
	if opts.OAuth.ClientID == "" || opts.OAuth.ClientSecret == "" {
		return nil, shared.ErrMissingCredentials
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: credential store", shared.ErrMissingArgument)
	}

	m := &Manager{
		oauth:      opts.OAuth,
		showDialog: opts.ShowDialog,
		skew:       opts.ExpirySkew,
		timeout:    opts.ExchangeTimeout,
		backoff:    opts.RetryBackoff,
		stateTTL:   opts.StateTTL,
		httpClient: opts.HTTPClient,
		store:      opts.Store,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
		usedCodes:  gocache.New(usedCodeTTL, time.Minute),
	}

	if m.skew < 0 {
		m.skew = DefaultExpirySkew
	}
	if m.timeout <= 0 {
		m.timeout = DefaultExchangeTimeout
	}
	if m.backoff <= 0 {
		m.backoff = DefaultRetryBackoff
	}
	if m.stateTTL <= 0 {
		m.stateTTL = DefaultStateTTL
	}
	if m.httpClient == nil {
		m.httpClient = http.DefaultClient
	}
	if m.logger == nil {
		m.logger = shared.NewLogger(nil)
	}
	if m.now == nil {
		m.now = time.Now
	}

	return m, nil
}

// BeginAuthorization returns the provider authorize URL for session.
//
// The session's pending state is reused when one exists so that every redirect handed to the same
// visitor stays valid until the callback arrives. The session's credential is not touched.
func (m *Manager) BeginAuthorization(ctx context.Context, session string) (string, error) {
	v, err, _ := m.states.Do(session, func() (any, error) {
		state, ok, err := m.store.PendingState(ctx, session)
		if err != nil {
			return "", fmt.Errorf("failed to read pending state: %w", err)
		}
		if ok {
			return state, nil
		}

		state, err = shared.GenerateState()
		if err != nil {
			return "", err
		}
		if err := m.store.PutPendingState(ctx, session, state, m.stateTTL); err != nil {
			return "", fmt.Errorf("failed to store pending state: %w", err)
		}
		return state, nil
	})
	if err != nil {
		return "", err
	}

	opts := []oauth2.AuthCodeOption{}
	if m.showDialog {
		opts = append(opts, oauth2.SetAuthURLParam("show_dialog", "true"))
	}
	return m.oauth.AuthCodeURL(v.(string), opts...), nil
}

// CompleteAuthorization handles the provider callback for session.
//
// Checks run in this order: a replayed code, the state, a provider error, a missing code.
// Only then is the code exchanged, and at most once for its lifetime.
func (m *Manager) CompleteAuthorization(ctx context.Context, session string, p CallbackParams) (*models.TokenRecord, error) {
	logger := m.logger.With("session", session)

	if p.Code != "" && m.codeUsed(p.Code) {
		m.metrics.callback("replay")
		logger.Warn("rejected replayed authorization code")
		return nil, ErrCodeAlreadyUsed
	}

	pending, ok, err := m.store.PendingState(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending state: %w", err)
	}
	if !ok || p.State == "" || subtle.ConstantTimeCompare([]byte(pending), []byte(p.State)) != 1 {
		m.metrics.callback("state_mismatch")
		logger.Warn("callback state does not match pending state")
		return nil, ErrStateMismatch
	}

	if p.Error != "" {
		m.clearPending(ctx, session)
		m.metrics.callback("denied")
		logger.Info("provider denied authorization", "reason", p.Error)
		return nil, &AuthorizationDeniedError{Reason: p.Error, Description: p.ErrorDescription}
	}

	if p.Code == "" {
		m.clearPending(ctx, session)
		m.metrics.callback("missing_code")
		return nil, ErrMissingCode
	}

	if !m.markCodeUsed(p.Code) {
		m.metrics.callback("replay")
		return nil, ErrCodeAlreadyUsed
	}

	start := m.now()
	tok, err := m.withRetry(ctx, logger, func(ctx context.Context) (*oauth2.Token, error) {
		return m.oauth.Exchange(ctx, p.Code)
	})
	if err != nil {
		m.clearPending(ctx, session)
		if isInvalidGrant(err) {
			m.metrics.callback("invalid_grant")
			logger.Warn("provider rejected authorization code")
			return nil, ErrCodeAlreadyUsed
		}
		m.metrics.callback("failed")
		logger.Error("code exchange failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	// the pending state is the session's claim on this exchange; a logout in the meantime drops it
	rec := m.recordFromToken(tok, start, nil)
	stored, err := m.store.Authorize(context.WithoutCancel(ctx), session, p.State, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	if !stored {
		m.metrics.callback("superseded")
		logger.Warn("session ended during code exchange, discarding credential")
		return nil, ErrStateMismatch
	}

	m.metrics.callback("ok")
	logger.Info("session authorized", "expires_at", rec.ExpiresAt)
	return rec.Clone(), nil
}

// GetValidCredential returns a credential usable for a vendor call right now.
//
// An expired credential is refreshed once per session no matter how many callers are waiting on it.
// When the session must re-authorize, the error is an [*AuthorizationRequiredError].
func (m *Manager) GetValidCredential(ctx context.Context, session string) (*models.TokenRecord, error) {
	rec, err := m.store.Get(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	switch models.Evaluate(rec, m.now(), m.skew) {
	case models.Valid:
		return rec, nil
	case models.Expired:
	default:
		return nil, m.authorizationRequired(ctx, session)
	}

	v, err, joined := m.refreshes.Do(session, func() (any, error) {
		return m.refresh(ctx, session)
	})
	if joined {
		m.logger.Debug("joined in-flight refresh", "session", session)
	}
	if err != nil {
		return nil, err
	}
	return v.(*models.TokenRecord).Clone(), nil
}

// State reports the session's current [models.AuthorizationState] without contacting the provider.
func (m *Manager) State(ctx context.Context, session string) (models.AuthorizationState, error) {
	rec, err := m.store.Get(ctx, session)
	if err != nil {
		return models.Unauthenticated, fmt.Errorf("failed to load credential: %w", err)
	}
	return models.Evaluate(rec, m.now(), m.skew), nil
}

// Logout drops the session's credential and pending state.
func (m *Manager) Logout(ctx context.Context, session string) error {
	if err := m.store.Delete(ctx, session); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.logger.Info("session logged out", "session", session)
	return nil
}

// refresh runs inside the session's flight.
func (m *Manager) refresh(ctx context.Context, session string) (*models.TokenRecord, error) {
	logger := m.logger.With("session", session)
	ctx = context.WithoutCancel(ctx)

	// an earlier flight may have finished between the caller's read and this one
	rec, err := m.store.Get(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	switch models.Evaluate(rec, m.now(), m.skew) {
	case models.Valid:
		return rec, nil
	case models.Expired:
	default:
		return nil, m.authorizationRequired(ctx, session)
	}

	start := m.now()
	tok, err := m.withRetry(ctx, logger, func(ctx context.Context) (*oauth2.Token, error) {
		return m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	})
	elapsed := m.now().Sub(start).Seconds()

	if err != nil {
		if isInvalidGrant(err) {
			m.metrics.refresh("invalid_grant", elapsed)
			logger.Warn("refresh token revoked, clearing session")
			if err := m.store.Delete(ctx, session); err != nil {
				return nil, fmt.Errorf("failed to clear session: %w", err)
			}
			return nil, m.authorizationRequired(ctx, session)
		}

		if !retryable(err) {
			m.metrics.refresh("rejected", elapsed)
			logger.Error("provider rejected refresh", "err", err)
			marked := rec.Clone()
			marked.Unrecoverable = true
			stored, perr := m.store.Replace(ctx, session, rec, marked)
			if perr != nil {
				logger.Error("failed to mark credential unrecoverable", "err", perr)
			} else if !stored {
				logger.Info("session changed during refresh, leaving it untouched")
				return m.current(ctx, session)
			}
			return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}

		m.metrics.refresh("failed", elapsed)
		logger.Error("refresh failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	next := m.recordFromToken(tok, start, rec)
	stored, err := m.store.Replace(ctx, session, rec, next)
	if err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	if !stored {
		m.metrics.refresh("superseded", elapsed)
		logger.Info("session changed during refresh, discarding new credential")
		return m.current(ctx, session)
	}

	m.metrics.refresh("ok", elapsed)
	logger.Info("credential refreshed", "expires_at", next.ExpiresAt)
	return next, nil
}

// withRetry runs fn once more after the backoff when the first attempt failed for a transient reason.
// Each attempt gets its own exchange timeout and ignores cancellation of ctx.
func (m *Manager) withRetry(ctx context.Context, logger *log.Logger, fn func(context.Context) (*oauth2.Token, error)) (*oauth2.Token, error) {
	ctx = context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, m.httpClient)

	attempt := func() (*oauth2.Token, error) {
		actx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return fn(actx)
	}

	tok, err := attempt()
	if err == nil || !retryable(err) {
		return tok, err
	}

	logger.Warn("token endpoint request failed, retrying", "err", err, "backoff", m.backoff)
	time.Sleep(m.backoff)
	return attempt()
}

// current returns the session's stored record if it is valid, and otherwise starts a new authorization.
func (m *Manager) current(ctx context.Context, session string) (*models.TokenRecord, error) {
	rec, err := m.store.Get(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if models.Evaluate(rec, m.now(), m.skew) == models.Valid {
		return rec, nil
	}
	return nil, m.authorizationRequired(ctx, session)
}

func (m *Manager) authorizationRequired(ctx context.Context, session string) error {
	url, err := m.BeginAuthorization(ctx, session)
	if err != nil {
		return err
	}
	return &AuthorizationRequiredError{URL: url}
}

// recordFromToken converts a token response received at issued. prev supplies the refresh token and scope
// when the provider omits them.
func (m *Manager) recordFromToken(tok *oauth2.Token, issued time.Time, prev *models.TokenRecord) *models.TokenRecord {
	rec := &models.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}

	switch {
	case tok.ExpiresIn > 0:
		rec.ExpiresAt = issued.Add(time.Duration(tok.ExpiresIn) * time.Second)
	case !tok.Expiry.IsZero():
		rec.ExpiresAt = tok.Expiry
	default:
		rec.ExpiresAt = issued.Add(defaultLifetime)
	}
	rec.ExpiresAt = rec.ExpiresAt.UTC()

	if rec.TokenType == "" {
		rec.TokenType = models.DefaultTokenType
	}

	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		rec.Scope = models.ParseScope(scope)
	}

	if prev != nil {
		if rec.RefreshToken == "" {
			rec.RefreshToken = prev.RefreshToken
		}
		if len(rec.Scope) == 0 {
			rec.Scope = append([]string(nil), prev.Scope...)
		}
	}
	if len(rec.Scope) == 0 {
		rec.Scope = append([]string(nil), m.oauth.Scopes...)
	}

	return rec
}

func (m *Manager) clearPending(ctx context.Context, session string) {
	if err := m.store.ClearPendingState(ctx, session); err != nil {
		m.logger.Error("failed to clear pending state", "session", session, "err", err)
	}
}

func codeKey(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func (m *Manager) codeUsed(code string) bool {
	_, ok := m.usedCodes.Get(codeKey(code))
	return ok
}

// markCodeUsed reports false when another caller consumed code first.
func (m *Manager) markCodeUsed(code string) bool {
	return m.usedCodes.Add(codeKey(code), struct{}{}, gocache.DefaultExpiration) == nil
}

func isInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.ErrorCode == "invalid_grant"
}

// retryable reports whether err is a transport failure, a timeout or a provider 5xx.
func retryable(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError
	}
	return true
}
