package post

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/playbypost/internal/db"
	"github.com/onnwee/playbypost/internal/roster"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/internal/tracing"
	"github.com/onnwee/playbypost/internal/witness"
)

// PostgresRepository is a Repository backed by the posts table. Viewer reads
// run as the reader role so the posts_visibility policy filters them.
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

const postColumns = `id, campaign_id, scene_id, character_id, author_user_id, blocks, ooc_note, seq, witnesses, is_draft, created_at, unhidden_at`

func scanPost(row interface{ Scan(...any) error }) (*Post, error) {
	var (
		p           Post
		characterID sql.NullString
		blocks      []byte
		witnesses   []string
		unhiddenAt  sql.NullTime
	)
	err := row.Scan(&p.ID, &p.CampaignID, &p.SceneID, &characterID, &p.AuthorUserID, &blocks,
		&p.OOCNote, &p.Seq, pq.Array(&witnesses), &p.Draft, &p.CreatedAt, &unhiddenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	p.CharacterID = characterID.String
	if err := json.Unmarshal(blocks, &p.Blocks); err != nil {
		return nil, fmt.Errorf("failed to decode blocks of post %s: %w", p.ID, err)
	}
	p.Witnesses = witness.NewSet(witnesses...)
	if unhiddenAt.Valid {
		t := unhiddenAt.Time
		p.UnhiddenAt = &t
	}
	return &p, nil
}

// nextSeq advances the scene's post counter. The row lock it takes is held
// until tx ends, so creates in one scene commit in seq order.
func nextSeq(ctx context.Context, tx *sql.Tx, sceneID string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`UPDATE scenes SET last_seq = last_seq + 1 WHERE id = $1 RETURNING last_seq`, sceneID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, scene.ErrSceneNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to allocate seq: %w", err)
	}
	return seq, nil
}

// Create allocates the post's seq and captures the roster under the scene row
// lock, then inserts the post in the same transaction.
func (r *PostgresRepository) Create(ctx context.Context, p *Post, hidden bool, check CaptureFunc) (_ *Post, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "posts", tracing.DBOperationInsert)
	defer func() { end(err) }()

	blocks, err := json.Marshal(p.Blocks)
	if err != nil {
		return nil, fmt.Errorf("failed to encode blocks: %w", err)
	}

	var out *Post
	err = db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		seq, err := nextSeq(ctx, tx, p.SceneID)
		if err != nil {
			return err
		}
		current, err := roster.LockedRoster(ctx, tx, p.SceneID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}
		captured := witness.Capture(current, hidden)

		out, err = scanPost(tx.QueryRowContext(ctx, `
			INSERT INTO posts (id, campaign_id, scene_id, character_id, author_user_id, blocks, ooc_note, seq, witnesses, is_draft)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING `+postColumns,
			uuid.New().String(), p.CampaignID, p.SceneID,
			sql.NullString{String: p.CharacterID, Valid: p.CharacterID != ""},
			p.AuthorUserID, string(blocks), p.OOCNote, seq, pq.Array(captured.Slice()), p.Draft))
		if err != nil {
			return fmt.Errorf("failed to insert post: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID loads a post as the table owner, bypassing the visibility policy.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (_ *Post, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "posts", tracing.DBOperationQuery)
	defer func() { end(err) }()

	return scanPost(r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
}

// Unhide locks the post, then share-locks its scene and reads the roster, and
// writes the planned witnesses in the same transaction. The update only
// matches a post whose witnesses are still empty; the posts_guard_update
// trigger rejects anything else.
func (r *PostgresRepository) Unhide(ctx context.Context, id string, plan PlanFunc) (_ *Post, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "posts", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	var out *Post
	err = db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		p, err := scanPost(tx.QueryRowContext(ctx,
			`SELECT `+postColumns+` FROM posts WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		current, err := roster.LockedRoster(ctx, tx, p.SceneID)
		if err != nil {
			return err
		}
		next, err := plan(p, current)
		if err != nil {
			return err
		}

		out, err = scanPost(tx.QueryRowContext(ctx, `
			UPDATE posts SET witnesses = $2, unhidden_at = NOW()
			WHERE id = $1 AND cardinality(witnesses) = 0
			RETURNING `+postColumns,
			id, pq.Array(next.Slice())))
		switch {
		case errors.Is(err, ErrPostNotFound):
			return witness.ErrPostAlreadyVisible
		case db.HasCode(err, db.CodeObjectNotInPrereqState):
			return witness.ErrPostAlreadyVisible
		case err != nil:
			return fmt.Errorf("failed to unhide post: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Finalize clears the draft flag.
func (r *PostgresRepository) Finalize(ctx context.Context, id string) (_ *Post, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "posts", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	p, err := scanPost(r.db.QueryRowContext(ctx, `
		UPDATE posts SET is_draft = FALSE
		WHERE id = $1 AND is_draft
		RETURNING `+postColumns, id))
	if !errors.Is(err, ErrPostNotFound) {
		return p, err
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, witness.ErrNotDraft
}

// GetVisible loads the post as v.
func (r *PostgresRepository) GetVisible(ctx context.Context, v witness.Viewer, id string) (_ *Post, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "posts", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var out *Post
	err = db.ReadAsViewer(ctx, r.db, r.readerRole, v, func(tx *sql.Tx) error {
		var err error
		out, err = scanPost(tx.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListVisible lists the scene's posts as v, in Seq order.
func (r *PostgresRepository) ListVisible(ctx context.Context, v witness.Viewer, sceneID string, page Page) (_ []*Post, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "posts", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var out []*Post
	err = db.ReadAsViewer(ctx, r.db, r.readerRole, v, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+postColumns+` FROM posts
			WHERE scene_id = $1 AND seq > $2
			ORDER BY seq
			LIMIT $3`, sceneID, page.AfterSeq, page.limit())
		if err != nil {
			return fmt.Errorf("failed to query posts: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPost(rows)
			if err != nil {
				return fmt.Errorf("failed to scan post: %w", err)
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
