// Package roll stores dice rolls. A roll bound to a post is visible exactly
// when the post is; a roll without a post is visible to the GM only.
package roll

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/playbypost/internal/witness"
)

// ErrRollNotFound is returned when a roll does not exist or is not visible.
var ErrRollNotFound = errors.New("roll not found")

// Status is a roll's lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusCompleted   Status = "completed"
	StatusInvalidated Status = "invalidated"
)

// MaxModifier bounds the flat modifier in either direction.
const MaxModifier = 100

// Roll is a dice roll requested for a character.
type Roll struct {
	ID          string     `json:"id"`
	CampaignID  string     `json:"campaign_id"`
	SceneID     string     `json:"scene_id"`
	PostID      string     `json:"post_id,omitempty"`
	CharacterID string     `json:"character_id"`
	Intention   string     `json:"intention,omitempty"`
	Modifier    int        `json:"modifier"`
	Dice        string     `json:"dice"`
	Result      []int      `json:"result,omitempty"`
	Total       *int       `json:"total,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`

	// post is the visibility record of the bound post, filled by reads.
	post *witness.Record
}

// Record returns the visibility record the roll inherits. Without a bound
// post it is an unwitnessed record of the roll's campaign.
func (r *Roll) Record() witness.Record {
	if r.post != nil {
		return *r.post
	}
	return witness.Record{CampaignID: r.CampaignID, Witnesses: witness.Set{}}
}

func (r *Roll) clone() *Roll {
	out := *r
	out.Result = append([]int(nil), r.Result...)
	if r.Total != nil {
		t := *r.Total
		out.Total = &t
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		out.ResolvedAt = &t
	}
	if r.post != nil {
		p := *r.post
		p.Witnesses = r.post.Witnesses.Clone()
		out.post = &p
	}
	return &out
}

// ParseDice splits a normalized dice expression such as "2d6".
func ParseDice(notation string) (count, sides int, err error) {
	n, s, ok := strings.Cut(notation, "d")
	if !ok {
		return 0, 0, errors.New("dice must look like NdM")
	}
	if count, err = strconv.Atoi(n); err != nil {
		return 0, 0, err
	}
	if sides, err = strconv.Atoi(s); err != nil {
		return 0, 0, err
	}
	return count, sides, nil
}

// Repository persists rolls.
type Repository interface {
	Create(ctx context.Context, r *Roll) (*Roll, error)

	// GetByID loads a roll without visibility filtering.
	GetByID(ctx context.Context, id string) (*Roll, error)

	// Resolve completes a pending roll. A roll that is no longer pending
	// yields witness.ErrRollNotPending.
	Resolve(ctx context.Context, id string, result []int, total int) (*Roll, error)

	// Invalidate voids a pending roll.
	Invalidate(ctx context.Context, id string) (*Roll, error)

	// ListVisible returns the scene's rolls v may see, oldest first.
	ListVisible(ctx context.Context, v witness.Viewer, sceneID string) ([]*Roll, error)

	// ListVisibleForPost returns the post's rolls v may see, oldest first.
	ListVisibleForPost(ctx context.Context, v witness.Viewer, postID string) ([]*Roll, error)

	// HasPendingRolls reports whether any roll in the campaign is pending.
	HasPendingRolls(ctx context.Context, campaignID string) (bool, error)
}
