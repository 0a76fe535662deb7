package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/onnwee/playbypost/internal/db"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/internal/tracing"
	"github.com/onnwee/playbypost/internal/witness"
)

// PostgresTracker is a Tracker backed by the scene_presence table.
//
// Mutations lock the scene row FOR UPDATE; LockedRoster locks it FOR SHARE.
// Post creation already holds the row through its seq update when it calls
// LockedRoster. A unique partial index on open stays enforces single residency.
type PostgresTracker struct {
	db *sql.DB
}

// NewPostgresTracker creates a tracker over conn.
func NewPostgresTracker(conn *sql.DB) *PostgresTracker {
	return &PostgresTracker{db: conn}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func lockScene(ctx context.Context, tx *sql.Tx, sceneID, mode string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM scenes WHERE id = $1 FOR `+mode, sceneID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return scene.ErrSceneNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock scene: %w", err)
	}
	return nil
}

func queryRoster(ctx context.Context, q queryer, sceneID string) (witness.Set, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT character_id FROM scene_presence WHERE scene_id = $1 AND left_at IS NULL`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}
	defer rows.Close()

	roster := witness.Set{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan roster: %w", err)
		}
		roster[id] = struct{}{}
	}
	return roster, rows.Err()
}

// LockedRoster share-locks the scene row and returns its roster. The roster
// cannot change until tx ends.
func LockedRoster(ctx context.Context, tx *sql.Tx, sceneID string) (witness.Set, error) {
	if err := lockScene(ctx, tx, sceneID, "SHARE"); err != nil {
		return nil, err
	}
	return queryRoster(ctx, tx, sceneID)
}

// AddToScene makes the character present in the scene.
func (t *PostgresTracker) AddToScene(ctx context.Context, sceneID, characterID string) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "scene_presence", tracing.DBOperationInsert)
	defer func() { end(err) }()

	return db.WithTx(ctx, t.db, func(tx *sql.Tx) error {
		if err := lockScene(ctx, tx, sceneID, "UPDATE"); err != nil {
			return err
		}

		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT scene_id FROM scene_presence WHERE character_id = $1 AND left_at IS NULL`,
			characterID).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to look up residence: %w", err)
		case current == sceneID:
			return nil
		default:
			return witness.ErrCharacterInOtherScene
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO scene_presence (id, scene_id, character_id) VALUES ($1, $2, $3)`,
			uuid.New().String(), sceneID, characterID)
		if db.HasCode(err, db.CodeUniqueViolation) {
			// Added to another scene concurrently.
			return witness.ErrCharacterInOtherScene
		}
		if err != nil {
			return fmt.Errorf("failed to insert presence: %w", err)
		}
		return nil
	})
}

// RemoveFromScene ends the character's stay in the scene.
func (t *PostgresTracker) RemoveFromScene(ctx context.Context, sceneID, characterID string) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "scene_presence", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	return db.WithTx(ctx, t.db, func(tx *sql.Tx) error {
		if err := lockScene(ctx, tx, sceneID, "UPDATE"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE scene_presence SET left_at = NOW()
			WHERE scene_id = $1 AND character_id = $2 AND left_at IS NULL`,
			sceneID, characterID)
		if err != nil {
			return fmt.Errorf("failed to end presence: %w", err)
		}
		return nil
	})
}

// CurrentRoster returns a snapshot of the scene's roster.
func (t *PostgresTracker) CurrentRoster(ctx context.Context, sceneID string) (_ witness.Set, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "scene_presence", tracing.DBOperationQuery)
	defer func() { end(err) }()

	return queryRoster(ctx, t.db, sceneID)
}

// History returns every stay in the scene, in join order.
func (t *PostgresTracker) History(ctx context.Context, sceneID string) (_ []Presence, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "scene_presence", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := t.db.QueryContext(ctx, `
		SELECT id, scene_id, character_id, joined_at, left_at
		FROM scene_presence
		WHERE scene_id = $1
		ORDER BY joined_at, id`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to query presence history: %w", err)
	}
	defer rows.Close()

	var out []Presence
	for rows.Next() {
		var (
			p      Presence
			leftAt sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.SceneID, &p.CharacterID, &p.JoinedAt, &leftAt); err != nil {
			return nil, fmt.Errorf("failed to scan presence: %w", err)
		}
		if leftAt.Valid {
			left := leftAt.Time
			p.LeftAt = &left
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
