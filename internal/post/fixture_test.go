package post

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/onnwee/playbypost/internal/audit"
	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/notify"
	"github.com/onnwee/playbypost/internal/policy"
	"github.com/onnwee/playbypost/internal/roster"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/internal/witness"
)

type recordingNotifier struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingNotifier) Notify(_ context.Context, userID string, _ notify.EventKind, _ map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return nil
}

func (r *recordingNotifier) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.users...)
	sort.Strings(out)
	return out
}

// world is an in-memory campaign with one GM.
type world struct {
	t         *testing.T
	ctx       context.Context
	campaigns *campaign.InMemoryRepository
	scenes    *scene.InMemoryRepository
	chars     *character.InMemoryRepository
	tracker   *roster.InMemoryTracker
	posts     *InMemoryRepository
	audit     *audit.InMemoryRepository
	notifier  *recordingNotifier
	checker   *policy.Checker

	svc        *Service
	rosterSvc  *roster.Service
	charSvc    *character.Service
	campaignID string
	gm         witness.Viewer
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{
		t:         t,
		ctx:       context.Background(),
		campaigns: campaign.NewInMemoryRepository(),
		scenes:    scene.NewInMemoryRepository(),
		chars:     character.NewInMemoryRepository(),
		tracker:   roster.NewInMemoryTracker(),
		audit:     audit.NewInMemoryRepository(),
		notifier:  &recordingNotifier{},
		checker:   policy.NewChecker(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	w.posts = NewInMemoryRepository(w.tracker)

	c, err := w.campaigns.Create(w.ctx, &campaign.Campaign{Name: "Harrowmoor", GMUserID: "u-gm"})
	if err != nil {
		t.Fatalf("Create campaign: %v", err)
	}
	w.campaignID = c.ID
	w.gm = witness.Viewer{UserID: "u-gm", Role: witness.RoleGM, CampaignID: c.ID}

	w.svc = NewService(w.posts, w.scenes, w.chars, w.checker, notify.NewBroadcaster(w.notifier, nil), w.audit)
	w.rosterSvc = roster.NewService(w.tracker, w.scenes, w.chars, campaign.NewService(w.campaigns, nil, nil), w.audit)
	w.charSvc = character.NewService(w.chars, w.campaigns, w.audit)
	return w
}

func (w *world) scene(id string) {
	w.t.Helper()
	if _, err := w.scenes.Create(w.ctx, &scene.Scene{ID: id, CampaignID: w.campaignID, Title: id}); err != nil {
		w.t.Fatalf("Create scene: %v", err)
	}
}

// character creates a character with the given owner; the character's ID is its name.
func (w *world) character(name, owner string) {
	w.t.Helper()
	if _, err := w.chars.Create(w.ctx, &character.Character{ID: name, CampaignID: w.campaignID, Name: name, Kind: character.KindPC, OwnerUserID: owner}); err != nil {
		w.t.Fatalf("Create character: %v", err)
	}
}

func (w *world) add(sceneID, characterID string) {
	w.t.Helper()
	if err := w.rosterSvc.Add(w.ctx, w.gm, sceneID, characterID); err != nil {
		w.t.Fatalf("Add(%s, %s): %v", sceneID, characterID, err)
	}
}

func (w *world) remove(sceneID, characterID string) {
	w.t.Helper()
	if err := w.rosterSvc.Remove(w.ctx, w.gm, sceneID, characterID); err != nil {
		w.t.Fatalf("Remove(%s, %s): %v", sceneID, characterID, err)
	}
}

// as returns the viewer acting as characterID through its current owner.
func (w *world) as(characterID string) witness.Viewer {
	w.t.Helper()
	c, err := w.chars.GetByID(w.ctx, characterID)
	if err != nil {
		w.t.Fatalf("GetByID(%s): %v", characterID, err)
	}
	return witness.Viewer{UserID: c.OwnerUserID, Role: witness.RolePlayer, CampaignID: w.campaignID, CharacterID: characterID}
}

func (w *world) write(v witness.Viewer, sceneID, characterID string, hidden bool) *Post {
	w.t.Helper()
	p, err := w.svc.Create(w.ctx, v, CreateInput{
		SceneID:     sceneID,
		CharacterID: characterID,
		Blocks:      []Block{{Type: BlockNarration, Text: "Rain on the slate roof."}},
		Hidden:      hidden,
	})
	if err != nil {
		w.t.Fatalf("Create(): %v", err)
	}
	return p
}

func (w *world) visible(v witness.Viewer, sceneID string) []string {
	w.t.Helper()
	posts, err := w.svc.ListVisible(w.ctx, v, sceneID, Page{})
	if err != nil {
		w.t.Fatalf("ListVisible(): %v", err)
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func (w *world) sees(v witness.Viewer, postID string) bool {
	w.t.Helper()
	_, err := w.svc.Get(w.ctx, v, postID)
	return err == nil
}

func equalIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
