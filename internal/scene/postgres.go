package scene

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/db"
	"github.com/onnwee/playbypost/internal/tracing"
)

// PostgresRepository is a Repository backed by the scenes table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository over conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

const sceneColumns = `id, campaign_id, title, description, archived_at, created_at, updated_at`

func scanScene(row interface{ Scan(...any) error }) (*Scene, error) {
	var (
		s          Scene
		archivedAt sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.CampaignID, &s.Title, &s.Description, &archivedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSceneNotFound
		}
		return nil, err
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		s.ArchivedAt = &t
	}
	return &s, nil
}

// Create inserts a scene.
func (r *PostgresRepository) Create(ctx context.Context, s *Scene) (_ *Scene, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "scenes", tracing.DBOperationInsert)
	defer func() { end(err) }()

	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	out, err := scanScene(r.db.QueryRowContext(ctx, `
		INSERT INTO scenes (id, campaign_id, title, description)
		VALUES ($1, $2, $3, $4)
		RETURNING `+sceneColumns,
		id, s.CampaignID, s.Title, s.Description))
	if err != nil {
		if db.HasCode(err, db.CodeForeignKeyViolation) {
			return nil, campaign.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to insert scene: %w", err)
	}
	return out, nil
}

// GetByID loads a scene.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (_ *Scene, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "scenes", tracing.DBOperationQuery)
	defer func() { end(err) }()

	return scanScene(r.db.QueryRowContext(ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE id = $1`, id))
}

// ListByCampaign returns the campaign's scenes, oldest first.
func (r *PostgresRepository) ListByCampaign(ctx context.Context, campaignID string) (_ []*Scene, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "scenes", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := r.db.QueryContext(ctx, `SELECT `+sceneColumns+` FROM scenes
		WHERE campaign_id = $1
		ORDER BY created_at, id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	defer rows.Close()

	var out []*Scene
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Archive marks the scene archived, keeping an earlier timestamp if present.
func (r *PostgresRepository) Archive(ctx context.Context, id string) (_ *Scene, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "scenes", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	return scanScene(r.db.QueryRowContext(ctx, `
		UPDATE scenes
		SET archived_at = COALESCE(archived_at, NOW()), updated_at = NOW()
		WHERE id = $1
		RETURNING `+sceneColumns, id))
}
