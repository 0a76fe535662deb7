package roster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onnwee/playbypost/internal/audit"
	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/internal/tracing"
	"github.com/onnwee/playbypost/internal/witness"
)

// Service applies the GM and phase gates to roster changes.
type Service struct {
	tracker    Tracker
	scenes     scene.Repository
	characters character.Repository
	phases     campaign.PhaseGate
	audit      audit.Repository
}

// NewService creates a roster service. auditRepo may be nil.
func NewService(tracker Tracker, scenes scene.Repository, characters character.Repository, phases campaign.PhaseGate, auditRepo audit.Repository) *Service {
	return &Service{
		tracker:    tracker,
		scenes:     scenes,
		characters: characters,
		phases:     phases,
		audit:      auditRepo,
	}
}

// gate loads the scene and checks that actor may change its roster now.
func (s *Service) gate(ctx context.Context, actor witness.Viewer, sceneID string) (*scene.Scene, error) {
	sc, err := s.scenes.GetByID(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if !actor.IsGMOf(sc.CampaignID) {
		return nil, witness.ErrNotGM
	}
	admin, err := s.phases.IsAdministrative(ctx, sc.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign phase: %w", err)
	}
	if !admin {
		return nil, witness.ErrNotAdministrativePhase
	}
	return sc, nil
}

// Add places a character in a scene.
func (s *Service) Add(ctx context.Context, actor witness.Viewer, sceneID, characterID string) (err error) {
	ctx, end := tracing.StartSpan(ctx, "roster.add")
	defer func() { end(err) }()

	sc, err := s.gate(ctx, actor, sceneID)
	if err != nil {
		return err
	}
	if sc.Archived() {
		return witness.ErrSceneArchived
	}
	ch, err := s.characters.GetByID(ctx, characterID)
	if err != nil {
		return err
	}
	if ch.CampaignID != sc.CampaignID {
		return witness.ErrCampaignMismatch
	}
	if ch.Archived() {
		return witness.ErrCharacterArchived
	}

	if err := s.tracker.AddToScene(ctx, sc.ID, ch.ID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "character added to scene", "scene_id", sc.ID, "character_id", ch.ID)
	audit.Record(ctx, s.audit, audit.Entry{
		EntityType: audit.EntityScene,
		EntityID:   sc.ID,
		Action:     audit.ActionRosterAdd,
		Detail:     ch.ID,
	})
	return nil
}

// Remove takes a character out of a scene. Posts it already witnessed stay
// visible to it.
func (s *Service) Remove(ctx context.Context, actor witness.Viewer, sceneID, characterID string) (err error) {
	ctx, end := tracing.StartSpan(ctx, "roster.remove")
	defer func() { end(err) }()

	sc, err := s.gate(ctx, actor, sceneID)
	if err != nil {
		return err
	}
	if err := s.tracker.RemoveFromScene(ctx, sc.ID, characterID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "character removed from scene", "scene_id", sc.ID, "character_id", characterID)
	audit.Record(ctx, s.audit, audit.Entry{
		EntityType: audit.EntityScene,
		EntityID:   sc.ID,
		Action:     audit.ActionRosterRemove,
		Detail:     characterID,
	})
	return nil
}

// Roster returns the scene's roster to the GM or to a viewer whose selected
// character is present.
func (s *Service) Roster(ctx context.Context, viewer witness.Viewer, sceneID string) (witness.Set, error) {
	sc, err := s.scenes.GetByID(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	roster, err := s.tracker.CurrentRoster(ctx, sc.ID)
	if err != nil {
		return nil, err
	}
	if viewer.IsGMOf(sc.CampaignID) {
		return roster, nil
	}
	if viewer.HasCharacter() && viewer.CampaignID == sc.CampaignID && roster.Has(viewer.CharacterID) {
		return roster, nil
	}
	return nil, witness.ErrViewerNotInScene
}

// History returns every stay in the scene. GM only.
func (s *Service) History(ctx context.Context, actor witness.Viewer, sceneID string) ([]Presence, error) {
	sc, err := s.scenes.GetByID(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if !actor.IsGMOf(sc.CampaignID) {
		return nil, witness.ErrNotGM
	}
	return s.tracker.History(ctx, sc.ID)
}
