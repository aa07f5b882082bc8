package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunegate/internal/models"
)

// SQLiteStore persists sessions in the sessions table created by [shared.RunMigrations].
//
// Each operation is a single statement, so sqlite's write lock serializes writers per row.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new [SQLiteStore] over a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Get(ctx context.Context, session string) (*models.TokenRecord, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}

	query := `
		SELECT access_token, refresh_token, token_type, scope, expires_at, unrecoverable
		FROM sessions
		WHERE id = ?
	`

	var (
		accessToken   sql.NullString
		refreshToken  sql.NullString
		tokenType     sql.NullString
		scope         sql.NullString
		expiresAt     sql.NullTime
		unrecoverable bool
	)

	err := s.db.QueryRowContext(ctx, query, session).Scan(&accessToken, &refreshToken, &tokenType, &scope, &expiresAt, &unrecoverable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if !accessToken.Valid {
		return nil, nil
	}

	return &models.TokenRecord{
		AccessToken:   accessToken.String,
		RefreshToken:  refreshToken.String,
		TokenType:     tokenType.String,
		Scope:         models.ParseScope(scope.String),
		ExpiresAt:     expiresAt.Time.UTC(),
		Unrecoverable: unrecoverable,
	}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, session string, rec *models.TokenRecord) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	now := s.now().UTC()
	query := `
		INSERT INTO sessions (id, access_token, refresh_token, token_type, scope, expires_at, unrecoverable, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			scope = excluded.scope,
			expires_at = excluded.expires_at,
			unrecoverable = excluded.unrecoverable,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		session, rec.AccessToken, nullString(rec.RefreshToken), rec.TokenType, rec.ScopeString(),
		rec.ExpiresAt.UTC(), rec.Unrecoverable, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Replace(ctx context.Context, session string, prev, next *models.TokenRecord) (bool, error) {
	if err := requireSession(session); err != nil {
		return false, err
	}
	if err := next.Validate(); err != nil {
		return false, err
	}
	if prev == nil {
		return false, nil
	}

	query := `
		UPDATE sessions
		SET access_token = ?, refresh_token = ?, token_type = ?, scope = ?, expires_at = ?, unrecoverable = ?, updated_at = ?
		WHERE id = ? AND access_token = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		next.AccessToken, nullString(next.RefreshToken), next.TokenType, next.ScopeString(),
		next.ExpiresAt.UTC(), next.Unrecoverable, s.now().UTC(),
		session, prev.AccessToken,
	)
	if err != nil {
		return false, fmt.Errorf("failed to replace session: %w", err)
	}
	return affected(result)
}

// Authorize matches the state value only. Its expiry was checked when the callback was validated.
func (s *SQLiteStore) Authorize(ctx context.Context, session, state string, rec *models.TokenRecord) (bool, error) {
	if err := requireSession(session); err != nil {
		return false, err
	}
	if err := rec.Validate(); err != nil {
		return false, err
	}
	if state == "" {
		return false, nil
	}

	query := `
		UPDATE sessions
		SET access_token = ?, refresh_token = ?, token_type = ?, scope = ?, expires_at = ?, unrecoverable = ?,
			pending_state = NULL, state_expires_at = NULL, updated_at = ?
		WHERE id = ? AND pending_state = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.AccessToken, nullString(rec.RefreshToken), rec.TokenType, rec.ScopeString(),
		rec.ExpiresAt.UTC(), rec.Unrecoverable, s.now().UTC(),
		session, state,
	)
	if err != nil {
		return false, fmt.Errorf("failed to authorize session: %w", err)
	}
	return affected(result)
}

func (s *SQLiteStore) Delete(ctx context.Context, session string) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", session); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PendingState(ctx context.Context, session string) (string, bool, error) {
	if err := requireSession(session); err != nil {
		return "", false, err
	}

	var (
		state     sql.NullString
		expiresAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, "SELECT pending_state, state_expires_at FROM sessions WHERE id = ?", session).Scan(&state, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query pending state: %w", err)
	}

	if !state.Valid || state.String == "" {
		return "", false, nil
	}
	if expiresAt.Valid && !s.now().Before(expiresAt.Time) {
		return "", false, nil
	}
	return state.String, true, nil
}

func (s *SQLiteStore) PutPendingState(ctx context.Context, session, state string, ttl time.Duration) error {
	if err := requireSession(session); err != nil {
		return err
	}

	now := s.now().UTC()
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	query := `
		INSERT INTO sessions (id, pending_state, state_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pending_state = excluded.pending_state,
			state_expires_at = excluded.state_expires_at,
			updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, session, state, expiresAt, now, now); err != nil {
		return fmt.Errorf("failed to store pending state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearPendingState(ctx context.Context, session string) error {
	if err := requireSession(session); err != nil {
		return err
	}

	query := `
		UPDATE sessions
		SET pending_state = NULL, state_expires_at = NULL, updated_at = ?
		WHERE id = ?
	`

	if _, err := s.db.ExecContext(ctx, query, s.now().UTC(), session); err != nil {
		return fmt.Errorf("failed to clear pending state: %w", err)
	}
	return nil
}

// Prune deletes sessions not written since before, returning how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
