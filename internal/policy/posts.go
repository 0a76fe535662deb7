package policy

import (
	"fmt"

	"github.com/onnwee/playbypost/internal/witness"
)

// Posts is the visibility rule for the posts table.
var Posts = Or(
	GMOf(ColCampaignID),
	And(CharacterSelected(), Witnessed(ColWitnesses)),
	And(CharacterSelected(), Flag(ColDraft), ViewerIs(ColAuthorUserID)),
)

// PostsUsingClause is the USING clause of the posts_visibility policy.
func PostsUsingClause() string {
	return Posts.Render()
}

// RollsUsingClause is the USING clause of the rolls_visibility policy. A roll
// is visible exactly when its post is; rolls without a post are GM-only.
func RollsUsingClause() string {
	return fmt.Sprintf("(%s OR (rolls.post_id IS NOT NULL AND EXISTS (SELECT 1 FROM posts p WHERE p.id = rolls.post_id AND %s)))",
		GMOf("rolls.campaign_id").Render(), Posts.Render())
}

// RollRow is a roll together with the row of its post, if any.
type RollRow struct {
	CampaignID string
	Post       *Row
}

// EvalRoll applies the rolls policy in memory.
func EvalRoll(row RollRow, v witness.Viewer) bool {
	if GMOf(ColCampaignID).Eval(Row{CampaignID: row.CampaignID}, v) {
		return true
	}
	return row.Post != nil && Posts.Eval(*row.Post, v)
}

// FromRecord converts an application record into a storage row.
func FromRecord(r witness.Record) Row {
	return Row{
		CampaignID:   r.CampaignID,
		AuthorUserID: r.AuthorUserID,
		Witnesses:    r.Witnesses.Slice(),
		Draft:        r.Draft,
	}
}
