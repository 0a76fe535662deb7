package witness

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCapture(t *testing.T) {
	tests := []struct {
		name   string
		roster Set
		hidden bool
		want   Set
	}{
		{"visible post copies roster", NewSet("alice", "bob"), false, NewSet("alice", "bob")},
		{"hidden post is empty", NewSet("alice", "bob"), true, Set{}},
		{"hidden post with empty roster", Set{}, true, Set{}},
		{"empty roster yields empty set", Set{}, false, Set{}},
		{"nil roster yields empty set", nil, false, Set{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Capture(tt.roster, tt.hidden)
			if got == nil {
				t.Fatal("Capture returned nil set")
			}
			if !got.Equal(tt.want) {
				t.Errorf("Capture() = %v, want %v", got.Slice(), tt.want.Slice())
			}
		})
	}
}

func TestCapture_IsDetachedFromRoster(t *testing.T) {
	roster := NewSet("alice")
	captured := Capture(roster, false)

	roster["bob"] = struct{}{}
	delete(roster, "alice")

	if !captured.Equal(NewSet("alice")) {
		t.Errorf("captured set changed with roster: %v", captured.Slice())
	}
}

func TestIsVisible(t *testing.T) {
	post := Record{CampaignID: "c1", AuthorUserID: "u-author", Witnesses: NewSet("alice", "thorne")}
	hidden := Record{CampaignID: "c1", AuthorUserID: "u-author", Witnesses: Set{}}
	draft := Record{CampaignID: "c1", AuthorUserID: "u-author", Witnesses: Set{}, Draft: true}

	gm := Viewer{UserID: "u-gm", Role: RoleGM, CampaignID: "c1"}
	otherGM := Viewer{UserID: "u-gm2", Role: RoleGM, CampaignID: "c2"}
	alice := Viewer{UserID: "u1", Role: RolePlayer, CampaignID: "c1", CharacterID: "alice"}
	bob := Viewer{UserID: "u2", Role: RolePlayer, CampaignID: "c1", CharacterID: "bob"}
	userOnly := Viewer{UserID: "u1", Role: RolePlayer, CampaignID: "c1"}
	author := Viewer{UserID: "u-author", Role: RolePlayer, CampaignID: "c1", CharacterID: "bob"}
	authorNoCharacter := Viewer{UserID: "u-author", Role: RolePlayer, CampaignID: "c1"}

	tests := []struct {
		name   string
		record Record
		viewer Viewer
		want   bool
	}{
		{"gm sees witnessed post", post, gm, true},
		{"gm sees hidden post", hidden, gm, true},
		{"gm of another campaign sees nothing", post, otherGM, false},
		{"witness sees post", post, alice, true},
		{"non-witness does not", post, bob, false},
		{"nobody sees hidden post", hidden, alice, false},
		{"user without character sees nothing", post, userOnly, false},
		{"author sees own draft", draft, author, true},
		{"author does not see own hidden non-draft", hidden, author, false},
		{"author needs a selected character", draft, authorNoCharacter, false},
		{"others do not see a draft", draft, alice, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsVisible(tt.record, tt.viewer); got != tt.want {
				t.Errorf("IsVisible() = %v, want %v", got, tt.want)
			}
		})
	}
}

// One user owns Alice and Thorne; visibility follows the selected character only.
func TestIsVisible_MultiCharacterUser(t *testing.T) {
	first := Record{CampaignID: "c1", Witnesses: NewSet("alice")}
	second := Record{CampaignID: "c1", Witnesses: NewSet("alice", "thorne")}
	posts := []Record{first, second}

	count := func(v Viewer) int {
		n := 0
		for _, p := range posts {
			if IsVisible(p, v) {
				n++
			}
		}
		return n
	}

	asAlice := Viewer{UserID: "u1", Role: RolePlayer, CampaignID: "c1", CharacterID: "alice"}
	asThorne := Viewer{UserID: "u1", Role: RolePlayer, CampaignID: "c1", CharacterID: "thorne"}
	asUser := Viewer{UserID: "u1", Role: RolePlayer, CampaignID: "c1"}

	if got := count(asAlice); got != 2 {
		t.Errorf("as alice: got %d posts, want 2", got)
	}
	if got := count(asThorne); got != 1 {
		t.Errorf("as thorne: got %d posts, want 1", got)
	}
	if IsVisible(first, asThorne) {
		t.Error("thorne must not see a post only alice witnessed")
	}
	if got := count(asUser); got != 0 {
		t.Errorf("as bare user: got %d posts, want 0", got)
	}
}

func TestPlanUnhide(t *testing.T) {
	gm := Viewer{UserID: "u-gm", Role: RoleGM, CampaignID: "c1"}
	player := Viewer{UserID: "u-author", Role: RolePlayer, CampaignID: "c1", CharacterID: "alice"}
	hidden := Record{CampaignID: "c1", AuthorUserID: "u-author", Witnesses: Set{}}
	visible := Record{CampaignID: "c1", Witnesses: NewSet("alice")}
	roster := NewSet("alice", "bob")

	tests := []struct {
		name    string
		req     UnhideRequest
		want    Set
		wantErr error
	}{
		{
			name: "whole roster",
			req:  UnhideRequest{Actor: gm, Post: hidden, Roster: roster},
			want: NewSet("alice", "bob"),
		},
		{
			name: "gm subset",
			req:  UnhideRequest{Actor: gm, Post: hidden, Roster: roster, Selection: []string{"alice"}},
			want: NewSet("alice"),
		},
		{
			name:    "author is not gm",
			req:     UnhideRequest{Actor: player, Post: hidden, Roster: roster},
			wantErr: ErrNotGM,
		},
		{
			name:    "gm of another campaign",
			req:     UnhideRequest{Actor: Viewer{Role: RoleGM, CampaignID: "c2"}, Post: hidden, Roster: roster},
			wantErr: ErrNotGM,
		},
		{
			name:    "already visible",
			req:     UnhideRequest{Actor: gm, Post: visible, Roster: roster},
			wantErr: ErrPostAlreadyVisible,
		},
		{
			name:    "empty selection",
			req:     UnhideRequest{Actor: gm, Post: hidden, Roster: roster, Selection: []string{}},
			wantErr: ErrNoWitnessesSelected,
		},
		{
			name:    "empty roster",
			req:     UnhideRequest{Actor: gm, Post: hidden, Roster: Set{}},
			wantErr: ErrNoWitnessesSelected,
		},
		{
			name:    "selection outside roster",
			req:     UnhideRequest{Actor: gm, Post: hidden, Roster: roster, Selection: []string{"carol"}},
			wantErr: ErrWitnessNotInScene,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlanUnhide(tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("PlanUnhide() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("PlanUnhide() unexpected error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("PlanUnhide() = %v, want %v", got.Slice(), tt.want.Slice())
			}
		})
	}
}

func TestPlanUnhide_ResultIsDetachedFromRoster(t *testing.T) {
	roster := NewSet("alice")
	got, err := PlanUnhide(UnhideRequest{
		Actor:  Viewer{Role: RoleGM, CampaignID: "c1"},
		Post:   Record{CampaignID: "c1", Witnesses: Set{}},
		Roster: roster,
	})
	if err != nil {
		t.Fatalf("PlanUnhide() error = %v", err)
	}
	roster["bob"] = struct{}{}
	if got.Has("bob") {
		t.Error("unhide result must not track later roster changes")
	}
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name    string
		prev    Set
		next    Set
		wantErr error
	}{
		{"unchanged empty", Set{}, Set{}, nil},
		{"unchanged populated", NewSet("a"), NewSet("a"), nil},
		{"reveal", Set{}, NewSet("a"), nil},
		{"shrink", NewSet("a", "b"), NewSet("a"), ErrPostAlreadyVisible},
		{"rewrite", NewSet("a"), NewSet("b"), ErrPostAlreadyVisible},
		{"rehide", NewSet("a"), Set{}, ErrPostAlreadyVisible},
		{"grow", NewSet("a"), NewSet("a", "b"), ErrPostAlreadyVisible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransition(tt.prev, tt.next)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("CheckTransition() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("CheckTransition() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	if !errors.Is(ErrNotGM, ErrUnauthorized) {
		t.Error("ErrNotGM should match the authorization kind")
	}
	if !errors.Is(ErrPostAlreadyVisible, ErrInvalidState) {
		t.Error("ErrPostAlreadyVisible should match the invalid state kind")
	}
	if errors.Is(ErrPostAlreadyVisible, ErrCharacterInOtherScene) {
		t.Error("different codes of the same kind must not match")
	}
	if errors.Is(ErrNoWitnessesSelected, ErrInvalidState) {
		t.Error("validation error must not match invalid state")
	}
	if !errors.Is(Invalid("title", errors.New("too long")), ErrValidation) {
		t.Error("Invalid() should match the validation kind")
	}
	if !errors.Is(Consistency("row p1"), ErrConsistency) {
		t.Error("Consistency() should match the consistency kind")
	}
}

func TestError_MessagesAreDistinct(t *testing.T) {
	msgs := map[string]bool{}
	for _, err := range []*Error{ErrNotGM, ErrPostAlreadyVisible, ErrNoWitnessesSelected} {
		if msgs[err.Error()] {
			t.Errorf("duplicate message %q", err.Error())
		}
		msgs[err.Error()] = true
	}
}

func TestSet_JSON(t *testing.T) {
	data, err := json.Marshal(NewSet("b", "a", "a"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `["a","b"]` {
		t.Errorf("Marshal() = %s, want [\"a\",\"b\"]", data)
	}

	var s Set
	if err := json.Unmarshal([]byte(`["x","y","x"]`), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !s.Equal(NewSet("x", "y")) {
		t.Errorf("Unmarshal() = %v", s.Slice())
	}
}
