package roll

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/playbypost/internal/db"
	"github.com/onnwee/playbypost/internal/tracing"
	"github.com/onnwee/playbypost/internal/witness"
)

// PostgresRepository is a Repository backed by the rolls table. Viewer reads
// run as the reader role so rolls_visibility filters them.
type PostgresRepository struct {
	db         *sql.DB
	readerRole string
}

// NewPostgresRepository creates a repository over conn. An empty readerRole
// uses db.DefaultReaderRole.
func NewPostgresRepository(conn *sql.DB, readerRole string) *PostgresRepository {
	if readerRole == "" {
		readerRole = db.DefaultReaderRole
	}
	return &PostgresRepository{db: conn, readerRole: readerRole}
}

const rollColumns = `r.id, r.campaign_id, r.scene_id, r.post_id, r.character_id, r.intention, r.modifier, r.dice, r.result, r.total, r.status, r.created_at, r.resolved_at`

func scanRoll(row interface{ Scan(...any) error }, extra ...any) (*Roll, error) {
	var (
		r          Roll
		postID     sql.NullString
		result     []int64
		total      sql.NullInt64
		status     string
		resolvedAt sql.NullTime
	)
	dest := []any{&r.ID, &r.CampaignID, &r.SceneID, &postID, &r.CharacterID, &r.Intention,
		&r.Modifier, &r.Dice, pq.Array(&result), &total, &status, &r.CreatedAt, &resolvedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRollNotFound
		}
		return nil, err
	}
	r.PostID = postID.String
	r.Status = Status(status)
	if len(result) > 0 {
		r.Result = make([]int, len(result))
		for i, v := range result {
			r.Result[i] = int(v)
		}
	}
	if total.Valid {
		t := int(total.Int64)
		r.Total = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
	return &r, nil
}

// Create inserts a pending roll.
func (p *PostgresRepository) Create(ctx context.Context, r *Roll) (_ *Roll, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "rolls", tracing.DBOperationInsert)
	defer func() { end(err) }()

	out, err := scanRoll(p.db.QueryRowContext(ctx, `
		INSERT INTO rolls AS r (id, campaign_id, scene_id, post_id, character_id, intention, modifier, dice)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+rollColumns,
		uuid.New().String(), r.CampaignID, r.SceneID,
		sql.NullString{String: r.PostID, Valid: r.PostID != ""},
		r.CharacterID, r.Intention, r.Modifier, r.Dice))
	if err != nil {
		return nil, fmt.Errorf("failed to insert roll: %w", err)
	}
	return out, nil
}

// GetByID loads a roll as the table owner.
func (p *PostgresRepository) GetByID(ctx context.Context, id string) (_ *Roll, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "rolls", tracing.DBOperationQuery)
	defer func() { end(err) }()

	return scanRoll(p.db.QueryRowContext(ctx, `SELECT `+rollColumns+` FROM rolls r WHERE r.id = $1`, id))
}

// transition updates a pending roll, telling a missing roll apart from one
// that has already left the pending state.
func (p *PostgresRepository) transition(ctx context.Context, id, query string, args ...any) (*Roll, error) {
	out, err := scanRoll(p.db.QueryRowContext(ctx, query, append([]any{id}, args...)...))
	if !errors.Is(err, ErrRollNotFound) {
		return out, err
	}
	if _, err := p.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, witness.ErrRollNotPending
}

// Resolve completes a pending roll.
func (p *PostgresRepository) Resolve(ctx context.Context, id string, result []int, total int) (_ *Roll, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "rolls", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	values := make([]int64, len(result))
	for i, v := range result {
		values[i] = int64(v)
	}
	return p.transition(ctx, id, `
		UPDATE rolls AS r SET status = 'completed', result = $2, total = $3, resolved_at = NOW()
		WHERE r.id = $1 AND r.status = 'pending'
		RETURNING `+rollColumns, pq.Array(values), total)
}

// Invalidate voids a pending roll.
func (p *PostgresRepository) Invalidate(ctx context.Context, id string) (_ *Roll, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "rolls", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	return p.transition(ctx, id, `
		UPDATE rolls AS r SET status = 'invalidated', resolved_at = NOW()
		WHERE r.id = $1 AND r.status = 'pending'
		RETURNING `+rollColumns)
}

// list runs a filtered read as v. The post columns come from a left join that
// is itself subject to posts_visibility.
func (p *PostgresRepository) list(ctx context.Context, v witness.Viewer, where string, arg string) ([]*Roll, error) {
	var out []*Roll
	err := db.ReadAsViewer(ctx, p.db, p.readerRole, v, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+rollColumns+`,
			p.campaign_id, p.author_user_id, p.witnesses, p.is_draft
			FROM rolls r LEFT JOIN posts p ON p.id = r.post_id
			WHERE `+where+`
			ORDER BY r.created_at, r.id`, arg)
		if err != nil {
			return fmt.Errorf("failed to query rolls: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				campaignID sql.NullString
				author     sql.NullString
				witnesses  []string
				draft      sql.NullBool
			)
			r, err := scanRoll(rows, &campaignID, &author, pq.Array(&witnesses), &draft)
			if err != nil {
				return fmt.Errorf("failed to scan roll: %w", err)
			}
			if campaignID.Valid {
				r.post = &witness.Record{
					CampaignID:   campaignID.String,
					AuthorUserID: author.String,
					Witnesses:    witness.NewSet(witnesses...),
					Draft:        draft.Bool,
				}
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListVisible lists the scene's rolls as v.
func (p *PostgresRepository) ListVisible(ctx context.Context, v witness.Viewer, sceneID string) (_ []*Roll, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "rolls", tracing.DBOperationQuery)
	defer func() { end(err) }()

	return p.list(ctx, v, "r.scene_id = $1", sceneID)
}

// ListVisibleForPost lists the post's rolls as v.
func (p *PostgresRepository) ListVisibleForPost(ctx context.Context, v witness.Viewer, postID string) (_ []*Roll, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "rolls", tracing.DBOperationQuery)
	defer func() { end(err) }()

	return p.list(ctx, v, "r.post_id = $1", postID)
}

// HasPendingRolls reports whether the campaign has a pending roll.
func (p *PostgresRepository) HasPendingRolls(ctx context.Context, campaignID string) (_ bool, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "rolls", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var pending bool
	err = p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM rolls WHERE campaign_id = $1 AND status = 'pending')`,
		campaignID).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("failed to check pending rolls: %w", err)
	}
	return pending, nil
}
