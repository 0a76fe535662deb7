package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/onnwee/playbypost/internal/policy"
	"github.com/onnwee/playbypost/internal/witness"
)

// AsViewer scopes the rest of tx to v: it publishes the viewer through the
// session settings the row-level security policies read, then drops to the
// reader role so those policies apply.
func AsViewer(ctx context.Context, tx *sql.Tx, readerRole string, v witness.Viewer) error {
	_, err := tx.ExecContext(ctx,
		`SELECT set_config($1, $2, true), set_config($3, $4, true), set_config($5, $6, true), set_config($7, $8, true)`,
		policy.SettingRole, string(v.Role),
		policy.SettingUser, v.UserID,
		policy.SettingCampaign, v.CampaignID,
		policy.SettingCharacter, v.CharacterID,
	)
	if err != nil {
		return fmt.Errorf("failed to set viewer settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "SET LOCAL ROLE "+pq.QuoteIdentifier(readerRole)); err != nil {
		return fmt.Errorf("failed to switch to reader role: %w", err)
	}
	return nil
}

// ReadAsViewer runs fn in a transaction scoped to v.
func ReadAsViewer(ctx context.Context, conn *sql.DB, readerRole string, v witness.Viewer, fn func(tx *sql.Tx) error) error {
	return WithTx(ctx, conn, func(tx *sql.Tx) error {
		if err := AsViewer(ctx, tx, readerRole, v); err != nil {
			return err
		}
		return fn(tx)
	})
}
