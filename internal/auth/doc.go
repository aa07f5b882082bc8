// Package auth manages the OAuth2 Authorization Code Grant for each browser session.
//
// [Manager] is the only component that talks to the provider's token endpoint. It:
//
//   - builds authorize URLs bound to a per-session CSRF state ([Manager.BeginAuthorization])
//   - validates the callback and exchanges the code exactly once ([Manager.CompleteAuthorization])
//   - hands out a usable credential, refreshing it when it is near expiry ([Manager.GetValidCredential])
//
// Refreshes are single-flight per session: concurrent callers holding the same expired credential share
// one token endpoint request. The exchange runs detached from the caller's context under its own timeout,
// so a client that disconnects mid-refresh does not cancel it for the others.
//
// # Errors
//
//   - [*AuthorizationRequiredError] : the visitor must be sent to the embedded authorize URL
//   - [ErrRefreshFailed] : the provider could not refresh the credential
//   - [ErrStateMismatch], [ErrMissingCode], [ErrCodeAlreadyUsed], [ErrExchangeFailed],
//     [*AuthorizationDeniedError] : callback outcomes
package auth
