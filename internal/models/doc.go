// Package models defines the session credential entities shared by the store, the token lifecycle manager and the HTTP gateway.
//
// # Types
//
//   - [TokenRecord] : the OAuth2 credential held for one browser session
//   - [AuthorizationState] : the derived status of a session's credential
//
// [Evaluate] is the single rule that maps a stored record and the current time to an [AuthorizationState].
// Every consumer of a session's authorization status goes through it so that the home status check
// and the authenticated call path cannot disagree.
package models
