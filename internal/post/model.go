// Package post stores in-character posts and applies the witness rules to
// them: capture at creation, GM unhide, and per-viewer reads.
package post

import (
	"context"
	"errors"
	"time"

	"github.com/onnwee/playbypost/internal/witness"
)

// Common errors for post operations.
var (
	ErrPostNotFound = errors.New("post not found")
)

// Block types.
const (
	BlockNarration = "narration"
	BlockDialogue  = "dialogue"
	BlockAction    = "action"
)

// Block is one ordered piece of a post's content.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Post is a message written in a scene, either through a character or in the
// narrator's voice (CharacterID empty).
type Post struct {
	ID           string      `json:"id"`
	CampaignID   string      `json:"campaign_id"`
	SceneID      string      `json:"scene_id"`
	CharacterID  string      `json:"character_id,omitempty"`
	AuthorUserID string      `json:"author_user_id"`
	Blocks       []Block     `json:"blocks"`
	OOCNote      string      `json:"ooc_note,omitempty"`
	Seq          int64       `json:"seq"`
	Witnesses    witness.Set `json:"witnesses"`
	Draft        bool        `json:"draft"`
	CreatedAt    time.Time   `json:"created_at"`
	UnhiddenAt   *time.Time  `json:"unhidden_at,omitempty"`
}

// Hidden reports whether no character has witnessed the post yet.
func (p *Post) Hidden() bool {
	return p.Witnesses.Empty()
}

// Record returns the fields the visibility rules read.
func (p *Post) Record() witness.Record {
	return witness.Record{
		CampaignID:   p.CampaignID,
		AuthorUserID: p.AuthorUserID,
		Witnesses:    p.Witnesses,
		Draft:        p.Draft,
	}
}

func (p *Post) clone() *Post {
	out := *p
	out.Blocks = append([]Block(nil), p.Blocks...)
	out.Witnesses = p.Witnesses.Clone()
	if p.UnhiddenAt != nil {
		t := *p.UnhiddenAt
		out.UnhiddenAt = &t
	}
	return &out
}

// Page selects a window of a scene's posts in Seq order.
type Page struct {
	AfterSeq int64 // return posts with Seq greater than this
	Limit    int   // 0 uses DefaultPageLimit
}

// Page limits.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

func (p Page) limit() int {
	switch {
	case p.Limit <= 0:
		return DefaultPageLimit
	case p.Limit > MaxPageLimit:
		return MaxPageLimit
	}
	return p.Limit
}

// CaptureFunc validates a new post against the roster it is about to capture.
type CaptureFunc func(roster witness.Set) error

// PlanFunc computes the new witness set of a hidden post from the stored post
// and the scene's current roster.
type PlanFunc func(p *Post, roster witness.Set) (witness.Set, error)

// Repository persists posts.
//
// Create and Unhide read the scene roster and write the post as one atomic
// step: no roster change of that scene can fall between the read and the write.
type Repository interface {
	// Create assigns ID and Seq, captures the witnesses from the scene's
	// roster (empty when hidden) and stores the post. check, if non-nil, runs
	// against the roster first and aborts the insert on error.
	Create(ctx context.Context, p *Post, hidden bool, check CaptureFunc) (*Post, error)

	// GetByID returns a post regardless of viewer. Write paths only.
	GetByID(ctx context.Context, id string) (*Post, error)

	// Unhide replaces the empty witness set of a post with the set plan returns.
	Unhide(ctx context.Context, id string, plan PlanFunc) (*Post, error)

	// Finalize clears the draft flag.
	Finalize(ctx context.Context, id string) (*Post, error)

	// GetVisible returns the post if v may see it, ErrPostNotFound otherwise.
	GetVisible(ctx context.Context, v witness.Viewer, id string) (*Post, error)

	// ListVisible returns the posts of a scene v may see, in Seq order.
	ListVisible(ctx context.Context, v witness.Viewer, sceneID string, page Page) ([]*Post, error)
}
