package store

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/shared"
)

// Store is the credential store used by the token lifecycle manager.
//
// Every operation is atomic with respect to a single session id.
type Store interface {
	// Get returns the session's record, or nil without error when none is stored.
	Get(ctx context.Context, session string) (*models.TokenRecord, error)

	// Put replaces the session's record.
	Put(ctx context.Context, session string, rec *models.TokenRecord) error

	// Replace stores next only while the session still holds a record with prev's access token.
	// It reports whether the write happened.
	Replace(ctx context.Context, session string, prev, next *models.TokenRecord) (bool, error)

	// Authorize stores rec and clears the pending state, but only while the pending state is state.
	// It reports whether the write happened.
	Authorize(ctx context.Context, session, state string, rec *models.TokenRecord) (bool, error)

	// Delete removes the session's record and pending state. Deleting an unknown session is not an error.
	Delete(ctx context.Context, session string) error

	// PendingState returns the session's outstanding authorization state, if any.
	PendingState(ctx context.Context, session string) (string, bool, error)

	// PutPendingState records state for the session. A ttl of zero never expires.
	PutPendingState(ctx context.Context, session, state string, ttl time.Duration) error

	// ClearPendingState drops the session's pending state, keeping its record.
	ClearPendingState(ctx context.Context, session string) error

	Ping(ctx context.Context) error
	Close() error
}

// Open builds the [Store] selected by cfg.Store.Driver.
//
// The sqlite driver runs migrations before returning.
func Open(ctx context.Context, cfg *shared.Config, logger *log.Logger) (Store, error) {
	switch cfg.Store.Driver {
	case "", "memory":
		logger.Debug("using in-memory credential store")
		return NewMemoryStore(), nil
	case "sqlite":
		db, err := shared.NewDatabase(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
		}
		if cfg.Database.Path != shared.MemoryDatabase {
			shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		}
		if err := shared.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Debug("using sqlite credential store", "path", cfg.Database.Path)
		return NewSQLiteStore(db), nil
	case "redis":
		s, err := OpenRedis(cfg.Store.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
		}
		logger.Debug("using redis credential store")
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", shared.ErrUnsupportedStore, cfg.Store.Driver)
	}
}

func requireSession(session string) error {
	if session == "" {
		return fmt.Errorf("%w: empty session id", shared.ErrInvalidArgument)
	}
	return nil
}
