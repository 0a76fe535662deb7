package roll

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/onnwee/playbypost/internal/audit"
	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/notify"
	"github.com/onnwee/playbypost/internal/policy"
	"github.com/onnwee/playbypost/internal/post"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/internal/tracing"
	"github.com/onnwee/playbypost/internal/validate"
	"github.com/onnwee/playbypost/internal/witness"
)

// RequestInput is the input for Service.Request.
type RequestInput struct {
	SceneID     string `json:"-"`
	CharacterID string `json:"character_id"`
	PostID      string `json:"post_id"`
	Intention   string `json:"intention"`
	Modifier    int    `json:"modifier"`
	Dice        string `json:"dice"`
}

// Service requests, resolves and lists rolls.
type Service struct {
	rolls       Repository
	scenes      scene.Repository
	characters  character.Repository
	posts       PostSource
	checker     *policy.Checker
	broadcaster *notify.Broadcaster
	audit       audit.Repository
}

// NewService creates a roll service. broadcaster and auditRepo may be nil.
func NewService(rolls Repository, scenes scene.Repository, characters character.Repository, posts PostSource, checker *policy.Checker, broadcaster *notify.Broadcaster, auditRepo audit.Repository) *Service {
	if checker == nil {
		checker = policy.NewChecker(nil)
	}
	return &Service{
		rolls:       rolls,
		scenes:      scenes,
		characters:  characters,
		posts:       posts,
		checker:     checker,
		broadcaster: broadcaster,
		audit:       auditRepo,
	}
}

// Request creates a pending roll for a character. The caller must own the
// character or be the GM. A bound post must belong to the same scene and be
// visible to the caller.
func (s *Service) Request(ctx context.Context, viewer witness.Viewer, in RequestInput) (_ *Roll, err error) {
	ctx, end := tracing.StartSpan(ctx, "roll.request")
	defer func() { end(err) }()

	sc, err := s.scenes.GetByID(ctx, in.SceneID)
	if err != nil {
		return nil, err
	}
	if sc.Archived() {
		return nil, witness.ErrSceneArchived
	}
	ch, err := s.characters.GetByID(ctx, in.CharacterID)
	if err != nil {
		return nil, err
	}
	if ch.CampaignID != sc.CampaignID {
		return nil, witness.ErrCampaignMismatch
	}
	if ch.Archived() {
		return nil, witness.ErrCharacterArchived
	}
	if !viewer.IsGMOf(sc.CampaignID) && (viewer.UserID == "" || ch.OwnerUserID != viewer.UserID) {
		return nil, witness.ErrNotCharacterOwner
	}

	dice, err := validate.Dice(in.Dice)
	if err != nil {
		return nil, witness.Invalid("dice", err)
	}
	intention, err := validate.Intention(in.Intention)
	if err != nil {
		return nil, witness.Invalid("intention", err)
	}
	if in.Modifier < -MaxModifier || in.Modifier > MaxModifier {
		return nil, witness.Invalid("modifier", fmt.Errorf("must be within ±%d", MaxModifier))
	}
	if in.PostID != "" {
		p, err := s.posts.GetByID(ctx, in.PostID)
		if err != nil {
			return nil, err
		}
		// A post the caller cannot read is indistinguishable from a missing one.
		if !witness.IsVisible(p.Record(), viewer) {
			return nil, post.ErrPostNotFound
		}
		if p.SceneID != sc.ID {
			return nil, witness.Invalid("post_id", fmt.Errorf("post %s is not in scene %s", p.ID, sc.ID))
		}
	}

	return s.rolls.Create(ctx, &Roll{
		CampaignID:  sc.CampaignID,
		SceneID:     sc.ID,
		PostID:      in.PostID,
		CharacterID: ch.ID,
		Intention:   intention,
		Modifier:    in.Modifier,
		Dice:        dice,
	})
}

// CampaignOf returns the campaign a roll belongs to.
func (s *Service) CampaignOf(ctx context.Context, id string) (string, error) {
	r, err := s.rolls.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return r.CampaignID, nil
}

// gmRoll loads a roll and checks that actor is its campaign's GM.
func (s *Service) gmRoll(ctx context.Context, actor witness.Viewer, id string) (*Roll, error) {
	r, err := s.rolls.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsGMOf(r.CampaignID) {
		return nil, witness.ErrNotGM
	}
	return r, nil
}

// Resolve records the faces rolled for a pending roll. result must hold one
// value per die, each within the die's range. GM only.
func (s *Service) Resolve(ctx context.Context, actor witness.Viewer, id string, result []int) (_ *Roll, err error) {
	ctx, end := tracing.StartSpan(ctx, "roll.resolve")
	defer func() { end(err) }()

	r, err := s.gmRoll(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	count, sides, err := ParseDice(r.Dice)
	if err != nil {
		return nil, fmt.Errorf("stored dice %q: %w", r.Dice, err)
	}
	if len(result) != count {
		return nil, witness.Invalid("result", fmt.Errorf("want %d values, got %d", count, len(result)))
	}
	total := r.Modifier
	for _, v := range result {
		if v < 1 || v > sides {
			return nil, witness.Invalid("result", fmt.Errorf("%d is not a face of a d%d", v, sides))
		}
		total += v
	}

	resolved, err := s.rolls.Resolve(ctx, id, result, total)
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, s.audit, audit.Entry{
		UserID:     actor.UserID,
		EntityType: audit.EntityRoll,
		EntityID:   id,
		Action:     audit.ActionRollResolve,
		Detail:     strconv.Itoa(total),
	})
	s.notifyOwner(ctx, resolved)
	return resolved, nil
}

// notifyOwner tells the character's owner about a resolved roll, but only when
// the owner acting as that character could see the roll.
func (s *Service) notifyOwner(ctx context.Context, r *Roll) {
	if s.broadcaster == nil {
		return
	}
	ch, err := s.characters.GetByID(ctx, r.CharacterID)
	if err != nil {
		slog.WarnContext(ctx, "failed to look up roll owner", "roll_id", r.ID, "error", err)
		return
	}
	if ch.OwnerUserID == "" {
		return
	}
	owner := witness.Viewer{UserID: ch.OwnerUserID, Role: witness.RolePlayer, CampaignID: r.CampaignID, CharacterID: ch.ID}

	row := policy.RollRow{CampaignID: r.CampaignID}
	if r.PostID != "" {
		p, err := s.posts.GetByID(ctx, r.PostID)
		if err != nil {
			slog.WarnContext(ctx, "failed to load roll post", "roll_id", r.ID, "error", err)
			return
		}
		postRow := policy.FromRecord(p.Record())
		row.Post = &postRow
	}
	if !policy.EvalRoll(row, owner) {
		return
	}
	s.broadcaster.Broadcast(ctx, []string{ch.OwnerUserID}, notify.EventRollResolved, map[string]string{
		"roll_id":  r.ID,
		"scene_id": r.SceneID,
		"total":    strconv.Itoa(*r.Total),
	})
}

// Invalidate voids a pending roll. GM only.
func (s *Service) Invalidate(ctx context.Context, actor witness.Viewer, id string) (*Roll, error) {
	if _, err := s.gmRoll(ctx, actor, id); err != nil {
		return nil, err
	}
	r, err := s.rolls.Invalidate(ctx, id)
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, s.audit, audit.Entry{
		UserID:     actor.UserID,
		EntityType: audit.EntityRoll,
		EntityID:   id,
		Action:     audit.ActionRollInvalidate,
	})
	return r, nil
}

func (s *Service) verify(ctx context.Context, viewer witness.Viewer, rolls []*Roll) error {
	ids := make([]string, len(rolls))
	records := make([]witness.Record, len(rolls))
	for i, r := range rolls {
		ids[i] = r.ID
		records[i] = r.Record()
	}
	return s.checker.Verify(ctx, "rolls", viewer, ids, records)
}

// ListVisible returns the scene's rolls visible to viewer.
func (s *Service) ListVisible(ctx context.Context, viewer witness.Viewer, sceneID string) (_ []*Roll, err error) {
	ctx, end := tracing.StartSpan(ctx, "roll.list_visible")
	defer func() { end(err) }()

	if _, err := s.scenes.GetByID(ctx, sceneID); err != nil {
		return nil, err
	}
	rolls, err := s.rolls.ListVisible(ctx, viewer, sceneID)
	if err != nil {
		return nil, err
	}
	if err := s.verify(ctx, viewer, rolls); err != nil {
		return nil, err
	}
	return rolls, nil
}

// ListForPost returns the post's rolls visible to viewer.
func (s *Service) ListForPost(ctx context.Context, viewer witness.Viewer, postID string) ([]*Roll, error) {
	rolls, err := s.rolls.ListVisibleForPost(ctx, viewer, postID)
	if err != nil {
		return nil, err
	}
	if err := s.verify(ctx, viewer, rolls); err != nil {
		return nil, err
	}
	return rolls, nil
}

// HasPendingRolls lets the service stand in as a campaign.PendingChecker.
func (s *Service) HasPendingRolls(ctx context.Context, campaignID string) (bool, error) {
	return s.rolls.HasPendingRolls(ctx, campaignID)
}
