package witness

// Role is a user's role within one campaign.
type Role string

const (
	RoleGM     Role = "gm"
	RolePlayer Role = "player"
)

// Viewer is the resolved principal for a read or write: who is asking, in
// which role, and which of their characters they are acting as.
//
// CampaignID scopes Role. A GM viewer is omniscient only for that campaign.
// CharacterID is empty when no character is selected; such a viewer sees nothing
// unless they are the GM.
type Viewer struct {
	UserID      string
	Role        Role
	CampaignID  string
	CharacterID string
}

// IsGMOf reports whether v holds the GM role for campaignID.
func (v Viewer) IsGMOf(campaignID string) bool {
	return v.Role == RoleGM && v.CampaignID != "" && v.CampaignID == campaignID
}

// HasCharacter reports whether a character is selected.
func (v Viewer) HasCharacter() bool { return v.CharacterID != "" }

// Record is the part of a post the visibility rules read.
type Record struct {
	CampaignID   string
	AuthorUserID string
	Witnesses    Set
	Draft        bool
}

// Hidden reports whether nobody has witnessed the post yet.
func (r Record) Hidden() bool { return r.Witnesses.Empty() }

// IsVisible decides whether v may see r.
//
// The GM of the campaign sees everything. Otherwise the selected character must
// be a witness, with one exception: an author acting through any character sees
// their own drafts. Characters a user owns but has not selected never count.
func IsVisible(r Record, v Viewer) bool {
	if v.IsGMOf(r.CampaignID) {
		return true
	}
	if !v.HasCharacter() {
		return false
	}
	if r.Witnesses.Has(v.CharacterID) {
		return true
	}
	return r.Draft && v.UserID != "" && r.AuthorUserID == v.UserID
}
