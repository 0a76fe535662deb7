package scene

import (
	"context"

	"github.com/onnwee/playbypost/internal/audit"
	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/validate"
	"github.com/onnwee/playbypost/internal/witness"
)

// CreateInput is the input for Service.Create.
type CreateInput struct {
	CampaignID  string `json:"campaign_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Service manages scenes on behalf of a viewer.
type Service struct {
	scenes    Repository
	campaigns campaign.Repository
	audit     audit.Repository
}

// NewService creates a scene service. auditRepo may be nil.
func NewService(scenes Repository, campaigns campaign.Repository, auditRepo audit.Repository) *Service {
	return &Service{scenes: scenes, campaigns: campaigns, audit: auditRepo}
}

// Create opens a new scene. Only the campaign GM may create scenes.
func (s *Service) Create(ctx context.Context, actor witness.Viewer, in CreateInput) (*Scene, error) {
	c, err := s.campaigns.GetByID(ctx, in.CampaignID)
	if err != nil {
		return nil, err
	}
	if !actor.IsGMOf(c.ID) {
		return nil, witness.ErrNotGM
	}
	title, err := validate.SceneTitle(in.Title)
	if err != nil {
		return nil, witness.Invalid("title", err)
	}
	desc, err := validate.Description(in.Description)
	if err != nil {
		return nil, witness.Invalid("description", err)
	}

	created, err := s.scenes.Create(ctx, &Scene{CampaignID: c.ID, Title: title, Description: desc})
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, s.audit, audit.Entry{
		EntityType: audit.EntityScene,
		EntityID:   created.ID,
		Action:     audit.ActionSceneCreate,
	})
	return created, nil
}

// Get returns a scene.
func (s *Service) Get(ctx context.Context, id string) (*Scene, error) {
	return s.scenes.GetByID(ctx, id)
}

// ListByCampaign returns the campaign's scenes, oldest first.
func (s *Service) ListByCampaign(ctx context.Context, campaignID string) ([]*Scene, error) {
	return s.scenes.ListByCampaign(ctx, campaignID)
}

// Archive closes a scene to new posts. Its roster and the witnesses of its
// posts are left as they are.
func (s *Service) Archive(ctx context.Context, actor witness.Viewer, id string) (*Scene, error) {
	sc, err := s.scenes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsGMOf(sc.CampaignID) {
		return nil, witness.ErrNotGM
	}
	if sc.Archived() {
		return sc, nil
	}
	archived, err := s.scenes.Archive(ctx, id)
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, s.audit, audit.Entry{
		EntityType: audit.EntityScene,
		EntityID:   id,
		Action:     audit.ActionSceneArchive,
	})
	return archived, nil
}
