// Package scene provides the scene record: a location within a campaign where
// posts are written. The roster of a scene is owned by the roster package.
package scene

import (
	"context"
	"errors"
	"time"
)

// Scene-specific errors
var (
	ErrSceneNotFound = errors.New("scene not found")
)

// Scene is a location within a campaign.
type Scene struct {
	ID          string     `json:"id"`
	CampaignID  string     `json:"campaign_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Archived reports whether the scene has been archived.
func (s *Scene) Archived() bool {
	return s.ArchivedAt != nil
}

// Repository persists scenes.
type Repository interface {
	Create(ctx context.Context, s *Scene) (*Scene, error)
	GetByID(ctx context.Context, id string) (*Scene, error)

	// ListByCampaign returns a campaign's scenes, oldest first.
	ListByCampaign(ctx context.Context, campaignID string) ([]*Scene, error)

	// Archive sets ArchivedAt. Archiving an archived scene keeps the first timestamp.
	Archive(ctx context.Context, id string) (*Scene, error)
}
