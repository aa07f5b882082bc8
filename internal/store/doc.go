// Package store persists per-session OAuth2 credentials for the gateway.
//
// A [Store] maps an opaque session id to an optional [models.TokenRecord] and an optional pending
// authorization state. Three backends are provided, selected by the store.driver setting:
//
//   - [MemoryStore] : process-local, backed by go-cache
//   - [SQLiteStore] : durable, backed by the sessions table from the shared migrations
//   - [RedisStore] : shared between gateway replicas
//
// Stores never interpret token expiry. Only pending states carry a time-to-live, so that abandoned
// authorization attempts are swept.
package store
