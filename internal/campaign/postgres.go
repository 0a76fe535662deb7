package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/onnwee/playbypost/internal/tracing"
)

// PostgresRepository is a Repository backed by the campaigns table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository over db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const campaignColumns = `id, name, gm_user_id, phase, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*Campaign, error) {
	var c Campaign
	if err := row.Scan(&c.ID, &c.Name, &c.GMUserID, &c.Phase, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts a campaign.
func (r *PostgresRepository) Create(ctx context.Context, c *Campaign) (_ *Campaign, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "campaigns", tracing.DBOperationInsert)
	defer func() { end(err) }()

	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}
	phase := c.Phase
	if phase == "" {
		phase = PhaseAdministrative
	}
	if !phase.Valid() {
		return nil, ErrInvalidPhase
	}

	out, err := scanCampaign(r.db.QueryRowContext(ctx, `
		INSERT INTO campaigns (id, name, gm_user_id, phase)
		VALUES ($1, $2, $3, $4)
		RETURNING `+campaignColumns,
		id, c.Name, c.GMUserID, string(phase)))
	if err != nil {
		return nil, fmt.Errorf("failed to insert campaign: %w", err)
	}
	return out, nil
}

// GetByID loads a campaign.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (_ *Campaign, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "campaigns", tracing.DBOperationQuery)
	defer func() { end(err) }()

	return scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
}

// SetPhase updates the campaign phase.
func (r *PostgresRepository) SetPhase(ctx context.Context, id string, phase Phase) (_ *Campaign, err error) {
	if !phase.Valid() {
		return nil, ErrInvalidPhase
	}
	ctx, end := tracing.StartDBSpan(ctx, "campaigns", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	return scanCampaign(r.db.QueryRowContext(ctx, `
		UPDATE campaigns SET phase = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+campaignColumns,
		id, string(phase)))
}
