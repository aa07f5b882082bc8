// Package server exposes the gateway's HTTP surface: routing, middleware, the authenticated-call [Gate] and the handlers.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] runs in the order it was added: the first added is outermost.
// Middleware added with Use only wraps routes registered after the call.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Sessions
//
// Every visitor carries an HTTP-only cookie holding a random v4 UUID. The [Sessions] middleware issues it on
// first contact and places the id in the request context, where [SessionID] reads it. All credential state
// lives server side in the configured store, keyed by that id.
//
// # Gate
//
// Protected endpoints run their vendor call through [Gate.Serve], which obtains a valid credential first:
//
//   - no usable credential : 302 to the provider's authorize URL
//   - refresh failure : 401 {"error":"authentication_failed"}
//   - vendor 401/403 : same status with a generic body
//   - any other vendor failure : 502 {"error":"upstream_error"}
//
// Provider and vendor error text is logged, never returned to the client.
package server
