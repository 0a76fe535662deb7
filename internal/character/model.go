// Package character stores the characters of a campaign and their owning users.
//
// Witness sets hold character IDs, so changing a character's owner moves the
// whole witnessed history to the new owner, and archiving a character leaves
// that history in place.
package character

import (
	"context"
	"errors"
	"time"
)

// Kind distinguishes player characters from GM-run characters.
type Kind string

const (
	KindPC  Kind = "pc"
	KindNPC Kind = "npc"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPC || k == KindNPC
}

// Character-specific errors
var (
	ErrCharacterNotFound = errors.New("character not found")
	ErrInvalidKind       = errors.New("invalid character kind")
)

// Character is a persona a user writes as.
type Character struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	Name       string `json:"name"`
	Kind       Kind   `json:"kind"`

	// OwnerUserID is empty for unassigned characters.
	OwnerUserID string     `json:"owner_user_id,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Archived reports whether the character has been archived.
func (c *Character) Archived() bool {
	return c.ArchivedAt != nil
}

// Repository persists characters.
type Repository interface {
	Create(ctx context.Context, c *Character) (*Character, error)
	GetByID(ctx context.Context, id string) (*Character, error)

	// GetMany returns the characters that exist among ids, in no particular order.
	GetMany(ctx context.Context, ids []string) ([]*Character, error)

	// ListByOwner returns a user's characters in one campaign.
	ListByOwner(ctx context.Context, campaignID, userID string) ([]*Character, error)

	// SetOwner changes the owning user. An empty owner unassigns the character.
	SetOwner(ctx context.Context, id, ownerUserID string) (*Character, error)

	// Archive sets ArchivedAt. Archiving an archived character keeps the first timestamp.
	Archive(ctx context.Context, id string) (*Character, error)
}
