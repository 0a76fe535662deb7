package roll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/onnwee/playbypost/internal/audit"
	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/notify"
	"github.com/onnwee/playbypost/internal/policy"
	"github.com/onnwee/playbypost/internal/post"
	"github.com/onnwee/playbypost/internal/roster"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/internal/witness"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, userID string, kind notify.EventKind, payload map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notify.Event{UserID: userID, Kind: kind, Payload: payload})
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixture struct {
	ctx        context.Context
	campaigns  *campaign.InMemoryRepository
	scenes     *scene.InMemoryRepository
	chars      *character.InMemoryRepository
	tracker    *roster.InMemoryTracker
	posts      *post.InMemoryRepository
	postSvc    *post.Service
	rolls      *InMemoryRepository
	svc        *Service
	audit      *audit.InMemoryRepository
	notifier   *recordingNotifier
	campaignID string
	gm         witness.Viewer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		ctx:       ctx,
		campaigns: campaign.NewInMemoryRepository(),
		scenes:    scene.NewInMemoryRepository(),
		chars:     character.NewInMemoryRepository(),
		tracker:   roster.NewInMemoryTracker(),
		audit:     audit.NewInMemoryRepository(),
		notifier:  &recordingNotifier{},
	}
	f.posts = post.NewInMemoryRepository(f.tracker)
	f.rolls = NewInMemoryRepository(f.posts)

	checker := policy.NewChecker(slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.postSvc = post.NewService(f.posts, f.scenes, f.chars, checker, nil, nil)
	f.svc = NewService(f.rolls, f.scenes, f.chars, f.posts, checker, notify.NewBroadcaster(f.notifier, nil), f.audit)

	c, err := f.campaigns.Create(ctx, &campaign.Campaign{Name: "Harrowmoor", GMUserID: "u-gm"})
	if err != nil {
		t.Fatalf("Create campaign: %v", err)
	}
	f.campaignID = c.ID
	f.gm = witness.Viewer{UserID: "u-gm", Role: witness.RoleGM, CampaignID: c.ID}

	for _, id := range []string{"hall", "cellar"} {
		if _, err := f.scenes.Create(ctx, &scene.Scene{ID: id, CampaignID: c.ID, Title: id}); err != nil {
			t.Fatalf("Create scene: %v", err)
		}
	}
	for _, name := range []string{"alice", "bob"} {
		if _, err := f.chars.Create(ctx, &character.Character{ID: name, CampaignID: c.ID, Name: name, Kind: character.KindPC, OwnerUserID: "u-" + name}); err != nil {
			t.Fatalf("Create character: %v", err)
		}
	}
	if err := f.tracker.AddToScene(ctx, "hall", "alice"); err != nil {
		t.Fatalf("AddToScene: %v", err)
	}
	return f
}

func (f *fixture) player(name string) witness.Viewer {
	return witness.Viewer{UserID: "u-" + name, Role: witness.RolePlayer, CampaignID: f.campaignID, CharacterID: name}
}

func (f *fixture) post(t *testing.T, hidden bool) *post.Post {
	t.Helper()
	p, err := f.postSvc.Create(f.ctx, f.player("alice"), post.CreateInput{
		SceneID:     "hall",
		CharacterID: "alice",
		Blocks:      []post.Block{{Text: "Alice picks the lock."}},
		Hidden:      hidden,
	})
	if err != nil {
		t.Fatalf("Create post: %v", err)
	}
	return p
}

func (f *fixture) request(t *testing.T, postID string) *Roll {
	t.Helper()
	return f.requestAs(t, f.player("alice"), postID)
}

func (f *fixture) requestAs(t *testing.T, v witness.Viewer, postID string) *Roll {
	t.Helper()
	r, err := f.svc.Request(f.ctx, v, RequestInput{
		SceneID:     "hall",
		CharacterID: "alice",
		PostID:      postID,
		Intention:   "pick the lock",
		Modifier:    2,
		Dice:        "2D6",
	})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	return r
}

func TestParseDice(t *testing.T) {
	count, sides, err := ParseDice("3d20")
	if err != nil || count != 3 || sides != 20 {
		t.Errorf("ParseDice(3d20) = %d, %d, %v", count, sides, err)
	}
	if _, _, err := ParseDice("20"); err == nil {
		t.Error("ParseDice(20) should fail")
	}
}

func TestRequest(t *testing.T) {
	f := newFixture(t)
	r := f.request(t, "")
	if r.Status != StatusPending || r.Dice != "2d6" || r.Total != nil {
		t.Errorf("Request() = %+v, want pending 2d6 without total", r)
	}

	cellarPost, err := f.postSvc.Create(f.ctx, f.gm, post.CreateInput{SceneID: "cellar", Blocks: []post.Block{{Text: "Dripping."}}})
	if err != nil {
		t.Fatalf("Create post: %v", err)
	}

	tests := []struct {
		name    string
		viewer  witness.Viewer
		in      RequestInput
		wantErr error
	}{
		{"someone else's character", f.player("bob"), RequestInput{SceneID: "hall", CharacterID: "alice", Dice: "1d20"}, witness.ErrNotCharacterOwner},
		{"bad dice", f.player("alice"), RequestInput{SceneID: "hall", CharacterID: "alice", Dice: "d20"}, witness.ErrValidation},
		{"zero dice", f.player("alice"), RequestInput{SceneID: "hall", CharacterID: "alice", Dice: "0d6"}, witness.ErrValidation},
		{"modifier out of range", f.player("alice"), RequestInput{SceneID: "hall", CharacterID: "alice", Dice: "1d20", Modifier: 101}, witness.ErrValidation},
		{"post in another scene", f.gm, RequestInput{SceneID: "hall", CharacterID: "alice", Dice: "1d20", PostID: cellarPost.ID}, witness.ErrValidation},
		{"post the caller cannot see", f.player("alice"), RequestInput{SceneID: "hall", CharacterID: "alice", Dice: "1d20", PostID: cellarPost.ID}, post.ErrPostNotFound},
		{"unknown post", f.player("alice"), RequestInput{SceneID: "hall", CharacterID: "alice", Dice: "1d20", PostID: "no-such-post"}, post.ErrPostNotFound},
		{"unknown character", f.gm, RequestInput{SceneID: "hall", CharacterID: "nobody", Dice: "1d20"}, character.ErrCharacterNotFound},
		{"unknown scene", f.gm, RequestInput{SceneID: "nowhere", CharacterID: "alice", Dice: "1d20"}, scene.ErrSceneNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Request(f.ctx, tt.viewer, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Request() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequest_HiddenPostLooksMissing(t *testing.T) {
	f := newFixture(t)
	hidden := f.post(t, true)

	_, hiddenErr := f.svc.Request(f.ctx, f.player("alice"), RequestInput{SceneID: "hall", CharacterID: "alice", Dice: "1d6", PostID: hidden.ID})
	_, missingErr := f.svc.Request(f.ctx, f.player("alice"), RequestInput{SceneID: "hall", CharacterID: "alice", Dice: "1d6", PostID: "no-such-post"})
	if !errors.Is(hiddenErr, post.ErrPostNotFound) || !errors.Is(missingErr, post.ErrPostNotFound) {
		t.Errorf("hidden post error = %v, missing post error = %v; want ErrPostNotFound for both", hiddenErr, missingErr)
	}
	if hiddenErr.Error() != missingErr.Error() {
		t.Errorf("errors differ: %q vs %q", hiddenErr, missingErr)
	}

	rolls, err := f.svc.ListVisible(f.ctx, f.gm, "hall")
	if err != nil {
		t.Fatalf("ListVisible() error = %v", err)
	}
	if len(rolls) != 0 {
		t.Errorf("rolls stored = %d, want 0", len(rolls))
	}

	if r := f.requestAs(t, f.gm, hidden.ID); r.PostID != hidden.ID {
		t.Errorf("GM roll bound to %q, want %q", r.PostID, hidden.ID)
	}
}

func TestVisibilityFollowsPost(t *testing.T) {
	f := newFixture(t)
	visible := f.post(t, false)
	hidden := f.post(t, true)

	onVisible := f.request(t, visible.ID)
	onHidden := f.requestAs(t, f.gm, hidden.ID)
	unbound := f.request(t, "")

	ids := func(v witness.Viewer) map[string]bool {
		t.Helper()
		rolls, err := f.svc.ListVisible(f.ctx, v, "hall")
		if err != nil {
			t.Fatalf("ListVisible() error = %v", err)
		}
		out := map[string]bool{}
		for _, r := range rolls {
			out[r.ID] = true
		}
		return out
	}

	gm := ids(f.gm)
	if len(gm) != 3 {
		t.Errorf("gm sees %d rolls, want 3", len(gm))
	}
	alice := ids(f.player("alice"))
	if !alice[onVisible.ID] || alice[onHidden.ID] || alice[unbound.ID] {
		t.Errorf("alice sees %v, want only the roll on the visible post", alice)
	}
	if bob := ids(f.player("bob")); len(bob) != 0 {
		t.Errorf("bob sees %v, want nothing", bob)
	}

	if _, err := f.postSvc.Unhide(f.ctx, f.gm, hidden.ID, nil); err != nil {
		t.Fatalf("Unhide() error = %v", err)
	}
	if !ids(f.player("alice"))[onHidden.ID] {
		t.Error("roll should become visible with its post")
	}

	forPost, err := f.svc.ListForPost(f.ctx, f.player("bob"), visible.ID)
	if err != nil {
		t.Fatalf("ListForPost() error = %v", err)
	}
	if len(forPost) != 0 {
		t.Errorf("bob sees %d rolls on a post bob did not witness", len(forPost))
	}
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, false)
	r := f.request(t, p.ID)

	tests := []struct {
		name    string
		actor   witness.Viewer
		result  []int
		wantErr error
	}{
		{"player cannot resolve", f.player("alice"), []int{3, 4}, witness.ErrNotGM},
		{"too few values", f.gm, []int{3}, witness.ErrValidation},
		{"face out of range", f.gm, []int{3, 7}, witness.ErrValidation},
		{"zero face", f.gm, []int{0, 1}, witness.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Resolve(f.ctx, tt.actor, r.ID, tt.result); !errors.Is(err, tt.wantErr) {
				t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	resolved, err := f.svc.Resolve(f.ctx, f.gm, r.ID, []int{3, 4})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Status != StatusCompleted || resolved.Total == nil || *resolved.Total != 9 || resolved.ResolvedAt == nil {
		t.Errorf("Resolve() = %+v, want completed with total 9", resolved)
	}
	if _, err := f.svc.Resolve(f.ctx, f.gm, r.ID, []int{1, 1}); !errors.Is(err, witness.ErrRollNotPending) {
		t.Errorf("second Resolve() error = %v, want ErrRollNotPending", err)
	}

	if f.notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1", f.notifier.count())
	}
	ev := f.notifier.events[0]
	if ev.UserID != "u-alice" || ev.Kind != notify.EventRollResolved || ev.Payload["total"] != "9" {
		t.Errorf("notification = %+v", ev)
	}

	logs, err := f.audit.QueryByEntity(f.ctx, audit.EntityRoll, r.ID, 10)
	if err != nil {
		t.Fatalf("QueryByEntity() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Action != audit.ActionRollResolve || logs[0].Detail != "9" {
		t.Errorf("audit = %+v", logs)
	}
}

// The owner is not told about a roll their character cannot see.
func TestResolve_NoNotificationForInvisibleRoll(t *testing.T) {
	f := newFixture(t)
	r := f.request(t, "")
	if _, err := f.svc.Resolve(f.ctx, f.gm, r.ID, []int{6, 6}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if n := f.notifier.count(); n != 0 {
		t.Errorf("notifications = %d, want 0 for a GM-only roll", n)
	}
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	r := f.request(t, "")

	if _, err := f.svc.Invalidate(f.ctx, f.player("alice"), r.ID); !errors.Is(err, witness.ErrNotGM) {
		t.Errorf("player Invalidate() error = %v, want ErrNotGM", err)
	}
	voided, err := f.svc.Invalidate(f.ctx, f.gm, r.ID)
	if err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if voided.Status != StatusInvalidated {
		t.Errorf("Status = %q, want invalidated", voided.Status)
	}
	if _, err := f.svc.Resolve(f.ctx, f.gm, r.ID, []int{1, 2}); !errors.Is(err, witness.ErrRollNotPending) {
		t.Errorf("Resolve() after invalidation error = %v, want ErrRollNotPending", err)
	}
	if _, err := f.svc.Invalidate(f.ctx, f.gm, "missing"); !errors.Is(err, ErrRollNotFound) {
		t.Errorf("Invalidate() of unknown roll error = %v, want ErrRollNotFound", err)
	}
}

func TestPendingRollsBlockAdministrativePhase(t *testing.T) {
	f := newFixture(t)
	phases := campaign.NewService(f.campaigns, f.svc, nil)

	if _, err := phases.SetPhase(f.ctx, f.gm, f.campaignID, campaign.PhaseOpen); err != nil {
		t.Fatalf("SetPhase(open) error = %v", err)
	}
	r := f.request(t, "")

	if _, err := phases.SetPhase(f.ctx, f.gm, f.campaignID, campaign.PhaseAdministrative); !errors.Is(err, witness.ErrRollsPending) {
		t.Fatalf("SetPhase(administrative) error = %v, want ErrRollsPending", err)
	}
	if _, err := f.svc.Resolve(f.ctx, f.gm, r.ID, []int{2, 5}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, err := phases.SetPhase(f.ctx, f.gm, f.campaignID, campaign.PhaseAdministrative); err != nil {
		t.Errorf("SetPhase(administrative) after resolving error = %v", err)
	}
}
