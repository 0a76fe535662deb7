package character

import (
	"context"

	"github.com/onnwee/playbypost/internal/audit"
	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/tracing"
	"github.com/onnwee/playbypost/internal/validate"
	"github.com/onnwee/playbypost/internal/witness"
)

// CreateInput is the input for Service.Create.
type CreateInput struct {
	CampaignID  string `json:"campaign_id"`
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	OwnerUserID string `json:"owner_user_id"`
}

// Service manages characters on behalf of a viewer.
type Service struct {
	characters Repository
	campaigns  campaign.Repository
	audit      audit.Repository
}

// NewService creates a character service. auditRepo may be nil.
func NewService(characters Repository, campaigns campaign.Repository, auditRepo audit.Repository) *Service {
	return &Service{characters: characters, campaigns: campaigns, audit: auditRepo}
}

// Create adds a character to a campaign. Only the GM may create characters.
func (s *Service) Create(ctx context.Context, actor witness.Viewer, in CreateInput) (*Character, error) {
	c, err := s.campaigns.GetByID(ctx, in.CampaignID)
	if err != nil {
		return nil, err
	}
	if !actor.IsGMOf(c.ID) {
		return nil, witness.ErrNotGM
	}
	name, err := validate.CharacterName(in.Name)
	if err != nil {
		return nil, witness.Invalid("name", err)
	}
	kind := in.Kind
	if kind == "" {
		kind = KindPC
	}
	if !kind.Valid() {
		return nil, witness.Invalid("kind", ErrInvalidKind)
	}
	return s.characters.Create(ctx, &Character{
		CampaignID:  c.ID,
		Name:        name,
		Kind:        kind,
		OwnerUserID: in.OwnerUserID,
	})
}

// Get returns a character.
func (s *Service) Get(ctx context.Context, id string) (*Character, error) {
	return s.characters.GetByID(ctx, id)
}

// ListOwned returns the characters userID owns in a campaign.
func (s *Service) ListOwned(ctx context.Context, campaignID, userID string) ([]*Character, error) {
	return s.characters.ListByOwner(ctx, campaignID, userID)
}

// Owners maps each owned character among ids to its owning user. Unknown and
// unassigned characters are left out.
func (s *Service) Owners(ctx context.Context, ids []string) (map[string]string, error) {
	chars, err := s.characters.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	owners := make(map[string]string, len(chars))
	for _, c := range chars {
		if c.OwnerUserID != "" {
			owners[c.ID] = c.OwnerUserID
		}
	}
	return owners, nil
}

// Reassign gives a character to another user, or unassigns it when
// newOwnerUserID is empty. Only the GM may reassign. The new owner sees
// everything the character witnessed.
func (s *Service) Reassign(ctx context.Context, actor witness.Viewer, id, newOwnerUserID string) (_ *Character, err error) {
	ctx, end := tracing.StartSpan(ctx, "character.reassign")
	defer func() { end(err) }()

	c, err := s.characters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsGMOf(c.CampaignID) {
		return nil, witness.ErrNotGM
	}
	if c.Archived() {
		return nil, witness.ErrCharacterArchived
	}
	if c.OwnerUserID == newOwnerUserID {
		return c, nil
	}

	updated, err := s.characters.SetOwner(ctx, id, newOwnerUserID)
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, s.audit, audit.Entry{
		EntityType: audit.EntityCharacter,
		EntityID:   id,
		Action:     audit.ActionCharacterReassign,
		Detail:     c.OwnerUserID + "->" + newOwnerUserID,
	})
	return updated, nil
}

// Archive retires a character. It can no longer be selected as a viewer, but
// its entries in existing witness sets stay.
func (s *Service) Archive(ctx context.Context, actor witness.Viewer, id string) (*Character, error) {
	c, err := s.characters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsGMOf(c.CampaignID) {
		return nil, witness.ErrNotGM
	}
	if c.Archived() {
		return c, nil
	}
	archived, err := s.characters.Archive(ctx, id)
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, s.audit, audit.Entry{
		EntityType: audit.EntityCharacter,
		EntityID:   id,
		Action:     audit.ActionCharacterArchive,
	})
	return archived, nil
}

// SelectViewer checks that userID may act as characterID: the character
// exists, is owned by the user and is not archived.
func (s *Service) SelectViewer(ctx context.Context, userID, characterID string) (*Character, error) {
	c, err := s.characters.GetByID(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if userID == "" || c.OwnerUserID != userID {
		return nil, witness.ErrNotCharacterOwner
	}
	if c.Archived() {
		return nil, witness.ErrCharacterArchived
	}
	return c, nil
}
