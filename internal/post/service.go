package post

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/playbypost/internal/audit"
	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/notify"
	"github.com/onnwee/playbypost/internal/policy"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/internal/tracing"
	"github.com/onnwee/playbypost/internal/validate"
	"github.com/onnwee/playbypost/internal/witness"
)

// MaxBlocks caps the number of content blocks in one post.
const MaxBlocks = 50

// CreateInput is the input for Service.Create.
type CreateInput struct {
	SceneID     string  `json:"-"`
	CharacterID string  `json:"character_id"`
	Blocks      []Block `json:"blocks"`
	OOCNote     string  `json:"ooc_note"`
	Hidden      bool    `json:"hidden"`
	Draft       bool    `json:"draft"`
}

// Service is the entry point for post writes and viewer reads.
type Service struct {
	posts       Repository
	scenes      scene.Repository
	characters  character.Repository
	checker     *policy.Checker
	broadcaster *notify.Broadcaster
	audit       audit.Repository
}

// NewService creates a post service. broadcaster and auditRepo may be nil.
func NewService(posts Repository, scenes scene.Repository, characters character.Repository, checker *policy.Checker, broadcaster *notify.Broadcaster, auditRepo audit.Repository) *Service {
	if checker == nil {
		checker = policy.NewChecker(nil)
	}
	return &Service{
		posts:       posts,
		scenes:      scenes,
		characters:  characters,
		checker:     checker,
		broadcaster: broadcaster,
		audit:       auditRepo,
	}
}

func validateBlocks(blocks []Block) ([]Block, error) {
	if len(blocks) == 0 {
		return nil, witness.Invalid("blocks", validate.ErrEmpty)
	}
	if len(blocks) > MaxBlocks {
		return nil, witness.Invalid("blocks", fmt.Errorf("at most %d blocks allowed", MaxBlocks))
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		switch b.Type {
		case BlockNarration, BlockDialogue, BlockAction:
		case "":
			b.Type = BlockNarration
		default:
			return nil, witness.Invalid("blocks", fmt.Errorf("unknown block type %q", b.Type))
		}
		text, err := validate.PostBlock(b.Text)
		if err != nil {
			return nil, witness.Invalid("blocks", err)
		}
		out[i] = Block{Type: b.Type, Text: text}
	}
	return out, nil
}

// Create writes a post. Narrator posts (no character) are GM-only; a
// character post needs a character of the scene's campaign that the viewer
// owns, unless the viewer is the GM. Unless the post is hidden, the author's
// character must be present in the scene at capture time.
func (s *Service) Create(ctx context.Context, viewer witness.Viewer, in CreateInput) (_ *Post, err error) {
	ctx, end := tracing.StartSpan(ctx, "post.create")
	defer func() { end(err) }()

	sc, err := s.scenes.GetByID(ctx, in.SceneID)
	if err != nil {
		return nil, err
	}
	if sc.Archived() {
		return nil, witness.ErrSceneArchived
	}
	isGM := viewer.IsGMOf(sc.CampaignID)

	if in.CharacterID == "" {
		if !isGM {
			return nil, witness.ErrNotGM
		}
	} else {
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
		if !isGM && (viewer.UserID == "" || ch.OwnerUserID != viewer.UserID) {
			return nil, witness.ErrNotCharacterOwner
		}
	}

	blocks, err := validateBlocks(in.Blocks)
	if err != nil {
		return nil, err
	}
	note, err := validate.OOCNote(in.OOCNote)
	if err != nil {
		return nil, witness.Invalid("ooc_note", err)
	}

	var check CaptureFunc
	if in.CharacterID != "" && !in.Hidden {
		check = func(roster witness.Set) error {
			if !roster.Has(in.CharacterID) {
				return witness.ErrAuthorNotInScene
			}
			return nil
		}
	}

	created, err := s.posts.Create(ctx, &Post{
		CampaignID:   sc.CampaignID,
		SceneID:      sc.ID,
		CharacterID:  in.CharacterID,
		AuthorUserID: viewer.UserID,
		Blocks:       blocks,
		OOCNote:      note,
		Draft:        in.Draft,
	}, in.Hidden, check)
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, s.audit, audit.Entry{
		UserID:     viewer.UserID,
		EntityType: audit.EntityPost,
		EntityID:   created.ID,
		Action:     audit.ActionPostCreate,
		Detail:     fmt.Sprintf("witnesses=%d", created.Witnesses.Len()),
	})
	return created, nil
}

// Unhide reveals a hidden post to the scene's current roster, or to the
// subset of it in selection when selection is non-nil. The owners of the new
// witnesses are notified after the change is stored; notification failures
// do not undo it.
func (s *Service) Unhide(ctx context.Context, viewer witness.Viewer, postID string, selection []string) (_ *Post, err error) {
	ctx, end := tracing.StartSpan(ctx, "post.unhide")
	defer func() { end(err) }()

	updated, err := s.posts.Unhide(ctx, postID, func(p *Post, roster witness.Set) (witness.Set, error) {
		return witness.PlanUnhide(witness.UnhideRequest{
			Actor:     viewer,
			Post:      p.Record(),
			Roster:    roster,
			Selection: selection,
		})
	})
	if err != nil {
		return nil, err
	}

	ids := updated.Witnesses.Slice()
	audit.Record(ctx, s.audit, audit.Entry{
		UserID:     viewer.UserID,
		EntityType: audit.EntityPost,
		EntityID:   updated.ID,
		Action:     audit.ActionPostUnhide,
		Detail:     strings.Join(ids, ","),
	})
	s.notifyWitnesses(ctx, updated, ids)
	return updated, nil
}

func (s *Service) notifyWitnesses(ctx context.Context, p *Post, characterIDs []string) {
	if s.broadcaster == nil {
		return
	}
	chars, err := s.characters.GetMany(ctx, characterIDs)
	if err != nil {
		slog.WarnContext(ctx, "failed to look up witness owners", "post_id", p.ID, "error", err)
		return
	}
	users := make([]string, 0, len(chars))
	for _, c := range chars {
		users = append(users, c.OwnerUserID)
	}
	s.broadcaster.Broadcast(ctx, users, notify.EventPostUnhidden, map[string]string{
		"post_id":     p.ID,
		"scene_id":    p.SceneID,
		"campaign_id": p.CampaignID,
	})
}

// Finalize publishes a draft. Only its author may do so; witnesses are unchanged.
// A post viewer cannot see is reported as ErrPostNotFound.
func (s *Service) Finalize(ctx context.Context, viewer witness.Viewer, postID string) (*Post, error) {
	p, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !witness.IsVisible(p.Record(), viewer) {
		return nil, ErrPostNotFound
	}
	if viewer.UserID == "" || viewer.UserID != p.AuthorUserID {
		return nil, witness.ErrNotAuthor
	}
	if !p.Draft {
		return nil, witness.ErrNotDraft
	}
	finalized, err := s.posts.Finalize(ctx, postID)
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, s.audit, audit.Entry{
		UserID:     viewer.UserID,
		EntityType: audit.EntityPost,
		EntityID:   postID,
		Action:     audit.ActionPostFinalize,
	})
	return finalized, nil
}

// CampaignOf returns the campaign a post belongs to, regardless of who may
// read it. Used to resolve the viewer before a read.
func (s *Service) CampaignOf(ctx context.Context, postID string) (string, error) {
	p, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return "", err
	}
	return p.CampaignID, nil
}

// Get returns a post visible to viewer. Posts viewer may not see are reported
// as ErrPostNotFound.
func (s *Service) Get(ctx context.Context, viewer witness.Viewer, postID string) (*Post, error) {
	p, err := s.posts.GetVisible(ctx, viewer, postID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Verify(ctx, "posts", viewer, []string{p.ID}, []witness.Record{p.Record()}); err != nil {
		return nil, err
	}
	return p, nil
}

// ListVisible returns the scene's posts visible to viewer, in Seq order. Every
// returned row is re-checked with witness.IsVisible; a disagreement fails the
// whole read.
func (s *Service) ListVisible(ctx context.Context, viewer witness.Viewer, sceneID string, page Page) (_ []*Post, err error) {
	ctx, end := tracing.StartSpan(ctx, "post.list_visible")
	defer func() { end(err) }()

	if _, err := s.scenes.GetByID(ctx, sceneID); err != nil {
		return nil, err
	}
	posts, err := s.posts.ListVisible(ctx, viewer, sceneID, page)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(posts))
	records := make([]witness.Record, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
		records[i] = p.Record()
	}
	if err := s.checker.Verify(ctx, "posts", viewer, ids, records); err != nil {
		return nil, err
	}
	return posts, nil
}
