package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tunegate/internal/shared"
	"github.com/desertthunder/tunegate/internal/store"
	"github.com/urfave/cli/v3"
)

type sessionStatus struct {
	Session   string     `json:"session"`
	State     string     `json:"state"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Scope     string     `json:"scope,omitempty"`
	Pending   bool       `json:"pending_authorization"`
}

// SessionsStatus prints the authorization state of one session. Token values are never shown.
// A session with neither a credential nor a pending authorization is reported as not found.
func (r *Runner) SessionsStatus(ctx context.Context, cmd *cli.Command) error {
	session := strings.TrimSpace(cmd.StringArg("session"))
	if session == "" {
		return fmt.Errorf("%w: session id", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, config, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer st.Close()

	manager, err := newManager(config, st, r.logger, nil)
	if err != nil {
		return err
	}

	state, err := manager.State(ctx, session)
	if err != nil {
		return err
	}

	rec, err := st.Get(ctx, session)
	if err != nil {
		return err
	}
	_, pending, err := st.PendingState(ctx, session)
	if err != nil {
		return err
	}
	if rec == nil && !pending {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, session)
	}

	status := sessionStatus{Session: session, State: state.String(), Pending: pending}
	if rec != nil {
		expires := rec.ExpiresAt
		status.ExpiresAt = &expires
		status.Scope = rec.ScopeString()
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlain("Session:  %s\n", status.Session)
	r.writePlain("State:    %s\n", status.State)
	if status.ExpiresAt != nil {
		r.writePlain("Expires:  %s\n", status.ExpiresAt.Format(time.RFC3339))
		r.writePlain("Scope:    %s\n", status.Scope)
	}
	r.writePlain("Pending:  %t\n", status.Pending)
	return nil
}

// SessionsPrune deletes sqlite sessions whose last update is older than --older-than.
func (r *Runner) SessionsPrune(ctx context.Context, cmd *cli.Command) error {
	age := cmd.Duration("older-than")
	if age <= 0 {
		return fmt.Errorf("%w: --older-than must be positive", shared.ErrInvalidArgument)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if config.Store.Driver != "sqlite" {
		return fmt.Errorf("%w: prune needs the sqlite driver, got %q", shared.ErrUnsupportedStore, config.Store.Driver)
	}

	st, err := store.Open(ctx, config, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer st.Close()

	sqlite, ok := st.(*store.SQLiteStore)
	if !ok {
		return fmt.Errorf("%w: %T", shared.ErrUnsupportedStore, st)
	}

	cutoff := time.Now().Add(-age)
	n, err := sqlite.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune sessions: %w", err)
	}

	r.logger.Info("pruned sessions", "count", n, "before", cutoff.Format(time.RFC3339))
	r.writePlain("✓ Removed %d session(s) not updated since %s\n", n, cutoff.Format(time.RFC3339))
	return nil
}
