// Package campaign holds the campaign record the visibility engine consults:
// who the GM is and which phase the campaign is in.
package campaign

import (
	"context"
	"errors"
	"time"
)

// Phase is the campaign's turn phase.
type Phase string

const (
	// PhaseAdministrative allows roster changes; players do not post.
	PhaseAdministrative Phase = "administrative"
	// PhaseOpen is the player posting phase.
	PhaseOpen Phase = "open"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrInvalidPhase     = errors.New("invalid campaign phase")
)

// Campaign is a single game.
type Campaign struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	GMUserID  string    `json:"gm_user_id"`
	Phase     Phase     `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p == PhaseAdministrative || p == PhaseOpen
}

// Repository persists campaigns. Campaign creation and membership are managed
// elsewhere; this service only reads them and moves the phase.
type Repository interface {
	Create(ctx context.Context, c *Campaign) (*Campaign, error)
	GetByID(ctx context.Context, id string) (*Campaign, error)
	SetPhase(ctx context.Context, id string, phase Phase) (*Campaign, error)
}

// PhaseGate answers whether roster changes are currently allowed.
type PhaseGate interface {
	IsAdministrative(ctx context.Context, campaignID string) (bool, error)
}

// PendingChecker answers whether any roll in the campaign awaits resolution.
type PendingChecker interface {
	HasPendingRolls(ctx context.Context, campaignID string) (bool, error)
}
