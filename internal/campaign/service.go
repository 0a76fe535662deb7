package campaign

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onnwee/playbypost/internal/audit"
	"github.com/onnwee/playbypost/internal/tracing"
	"github.com/onnwee/playbypost/internal/witness"
)

// Service gates phase changes and answers phase and role queries for the
// rest of the engine.
type Service struct {
	repo    Repository
	pending PendingChecker
	audit   audit.Repository
}

// NewService creates a campaign service. pending and auditRepo may be nil.
func NewService(repo Repository, pending PendingChecker, auditRepo audit.Repository) *Service {
	return &Service{repo: repo, pending: pending, audit: auditRepo}
}

// Get returns a campaign.
func (s *Service) Get(ctx context.Context, id string) (*Campaign, error) {
	return s.repo.GetByID(ctx, id)
}

// IsAdministrative implements PhaseGate.
func (s *Service) IsAdministrative(ctx context.Context, campaignID string) (bool, error) {
	c, err := s.repo.GetByID(ctx, campaignID)
	if err != nil {
		return false, err
	}
	return c.Phase == PhaseAdministrative, nil
}

// RoleOf resolves the role userID holds in a campaign.
func (s *Service) RoleOf(ctx context.Context, campaignID, userID string) (witness.Role, error) {
	c, err := s.repo.GetByID(ctx, campaignID)
	if err != nil {
		return "", err
	}
	if userID != "" && c.GMUserID == userID {
		return witness.RoleGM, nil
	}
	return witness.RolePlayer, nil
}

// SetPhase moves the campaign to phase. Only the GM may do so, and the move
// back to the administrative phase is refused while any roll is pending.
func (s *Service) SetPhase(ctx context.Context, actor witness.Viewer, campaignID string, phase Phase) (_ *Campaign, err error) {
	ctx, end := tracing.StartSpan(ctx, "campaign.set_phase")
	defer func() { end(err) }()

	if !phase.Valid() {
		return nil, ErrInvalidPhase
	}
	c, err := s.repo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !actor.IsGMOf(c.ID) || actor.UserID != c.GMUserID {
		return nil, witness.ErrNotGM
	}
	if c.Phase == phase {
		return c, nil
	}

	if phase == PhaseAdministrative && s.pending != nil {
		pending, err := s.pending.HasPendingRolls(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check pending rolls: %w", err)
		}
		if pending {
			return nil, witness.ErrRollsPending
		}
	}

	updated, err := s.repo.SetPhase(ctx, c.ID, phase)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "campaign phase changed",
		"campaign_id", c.ID, "from", string(c.Phase), "to", string(phase))
	audit.Record(ctx, s.audit, audit.Entry{
		UserID:     actor.UserID,
		EntityType: audit.EntityCampaign,
		EntityID:   c.ID,
		Action:     audit.ActionPhaseChange,
		Detail:     string(c.Phase) + "->" + string(phase),
	})
	return updated, nil
}
