package character

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/db"
	"github.com/onnwee/playbypost/internal/tracing"
)

// PostgresRepository is a Repository backed by the characters table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository over conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

const characterColumns = `id, campaign_id, name, kind, owner_user_id, archived_at, created_at, updated_at`

func scanCharacter(row interface{ Scan(...any) error }) (*Character, error) {
	var (
		c          Character
		owner      sql.NullString
		archivedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.CampaignID, &c.Name, &c.Kind, &owner, &archivedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCharacterNotFound
		}
		return nil, err
	}
	c.OwnerUserID = owner.String
	if archivedAt.Valid {
		t := archivedAt.Time
		c.ArchivedAt = &t
	}
	return &c, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a character.
func (r *PostgresRepository) Create(ctx context.Context, c *Character) (_ *Character, err error) {
	if !c.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	ctx, end := tracing.StartDBSpan(ctx, "characters", tracing.DBOperationInsert)
	defer func() { end(err) }()

	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}
	out, err := scanCharacter(r.db.QueryRowContext(ctx, `
		INSERT INTO characters (id, campaign_id, name, kind, owner_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+characterColumns,
		id, c.CampaignID, c.Name, string(c.Kind), nullable(c.OwnerUserID)))
	if err != nil {
		if db.HasCode(err, db.CodeForeignKeyViolation) {
			return nil, campaign.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to insert character: %w", err)
	}
	return out, nil
}

// GetByID loads a character.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (_ *Character, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "characters", tracing.DBOperationQuery)
	defer func() { end(err) }()

	return scanCharacter(r.db.QueryRowContext(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE id = $1`, id))
}

// GetMany loads the characters that exist among ids.
func (r *PostgresRepository) GetMany(ctx context.Context, ids []string) (_ []*Character, err error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, end := tracing.StartDBSpan(ctx, "characters", tracing.DBOperationQuery)
	defer func() { end(err) }()

	return r.list(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = ANY($1)`, pq.Array(ids))
}

// ListByOwner returns a user's characters in one campaign, by name.
func (r *PostgresRepository) ListByOwner(ctx context.Context, campaignID, userID string) (_ []*Character, err error) {
	if userID == "" {
		return nil, nil
	}
	ctx, end := tracing.StartDBSpan(ctx, "characters", tracing.DBOperationQuery)
	defer func() { end(err) }()

	return r.list(ctx, `SELECT `+characterColumns+` FROM characters
		WHERE campaign_id = $1 AND owner_user_id = $2
		ORDER BY name`, campaignID, userID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Character, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query characters: %w", err)
	}
	defer rows.Close()

	var out []*Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetOwner changes the owning user.
func (r *PostgresRepository) SetOwner(ctx context.Context, id, ownerUserID string) (_ *Character, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "characters", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	return scanCharacter(r.db.QueryRowContext(ctx, `
		UPDATE characters SET owner_user_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+characterColumns, id, nullable(ownerUserID)))
}

// Archive marks the character archived, keeping an earlier timestamp if present.
func (r *PostgresRepository) Archive(ctx context.Context, id string) (_ *Character, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "characters", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	return scanCharacter(r.db.QueryRowContext(ctx, `
		UPDATE characters
		SET archived_at = COALESCE(archived_at, NOW()), updated_at = NOW()
		WHERE id = $1
		RETURNING `+characterColumns, id))
}
