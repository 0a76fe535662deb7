// Package policy holds the storage-side visibility rule for posts and rolls.
//
// The rule is written once as an expression tree. Render turns it into the
// USING clause of the Postgres row-level security policy; Eval runs the same
// tree against in-memory rows. witness.IsVisible is the independent
// application-side version, and Checker compares the two at read time.
package policy

import (
	"fmt"
	"strings"

	"github.com/onnwee/playbypost/internal/witness"
)

// Session settings read by the row-level security policies. Readers set them
// with set_config(name, value, true) at the start of each transaction.
const (
	SettingRole      = "app.viewer_role"
	SettingUser      = "app.viewer_user"
	SettingCampaign  = "app.viewer_campaign"
	SettingCharacter = "app.viewer_character"
)

// Post columns referenced by the policy.
const (
	ColCampaignID   = "campaign_id"
	ColAuthorUserID = "author_user_id"
	ColWitnesses    = "witnesses"
	ColDraft        = "is_draft"
)

// Row is a post row as the storage layer sees it.
type Row struct {
	CampaignID   string
	AuthorUserID string
	Witnesses    []string
	Draft        bool
}

func (r Row) text(column string) string {
	switch column {
	case ColCampaignID:
		return r.CampaignID
	case ColAuthorUserID:
		return r.AuthorUserID
	}
	return ""
}

func (r Row) array(column string) []string {
	if column == ColWitnesses {
		return r.Witnesses
	}
	return nil
}

func (r Row) flag(column string) bool {
	if column == ColDraft {
		return r.Draft
	}
	return false
}

// Expr is a boolean expression over a Row and the current viewer.
type Expr interface {
	Eval(row Row, v witness.Viewer) bool
	Render() string
}

func setting(name string) string {
	return fmt.Sprintf("current_setting('%s', true)", name)
}

type anyOf []Expr

// Or is true when any operand is.
func Or(exprs ...Expr) Expr { return anyOf(exprs) }

func (e anyOf) Eval(row Row, v witness.Viewer) bool {
	for _, x := range e {
		if x.Eval(row, v) {
			return true
		}
	}
	return false
}

func (e anyOf) Render() string { return join(e, " OR ") }

type allOf []Expr

// And is true when every operand is.
func And(exprs ...Expr) Expr { return allOf(exprs) }

func (e allOf) Eval(row Row, v witness.Viewer) bool {
	for _, x := range e {
		if !x.Eval(row, v) {
			return false
		}
	}
	return true
}

func (e allOf) Render() string { return join(e, " AND ") }

func join(exprs []Expr, sep string) string {
	parts := make([]string, len(exprs))
	for i, x := range exprs {
		parts[i] = x.Render()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

type gmOfColumn string

// GMOf is true when the viewer is GM and the campaign setting equals column.
func GMOf(column string) Expr { return gmOfColumn(column) }

func (c gmOfColumn) Eval(row Row, v witness.Viewer) bool {
	return v.Role == witness.RoleGM && v.CampaignID != "" && v.CampaignID == row.text(string(c))
}

func (c gmOfColumn) Render() string {
	return fmt.Sprintf("(%s = '%s' AND coalesce(%s, '') <> '' AND %s = %s)",
		setting(SettingRole), witness.RoleGM, setting(SettingCampaign), setting(SettingCampaign), string(c))
}

type characterSelected struct{}

// CharacterSelected is true when the viewer acts as a character.
func CharacterSelected() Expr { return characterSelected{} }

func (characterSelected) Eval(_ Row, v witness.Viewer) bool { return v.CharacterID != "" }

func (characterSelected) Render() string {
	return fmt.Sprintf("coalesce(%s, '') <> ''", setting(SettingCharacter))
}

type witnessedIn string

// Witnessed is true when the selected character is an element of the array column.
func Witnessed(column string) Expr { return witnessedIn(column) }

func (c witnessedIn) Eval(row Row, v witness.Viewer) bool {
	if v.CharacterID == "" {
		return false
	}
	for _, id := range row.array(string(c)) {
		if id == v.CharacterID {
			return true
		}
	}
	return false
}

func (c witnessedIn) Render() string {
	return fmt.Sprintf("%s = ANY (%s)", setting(SettingCharacter), string(c))
}

type flagColumn string

// Flag is true when the boolean column is.
func Flag(column string) Expr { return flagColumn(column) }

func (c flagColumn) Eval(row Row, _ witness.Viewer) bool { return row.flag(string(c)) }

func (c flagColumn) Render() string { return string(c) }

type viewerIsColumn string

// ViewerIs is true when the viewer's user ID equals column.
func ViewerIs(column string) Expr { return viewerIsColumn(column) }

func (c viewerIsColumn) Eval(row Row, v witness.Viewer) bool {
	return v.UserID != "" && v.UserID == row.text(string(c))
}

func (c viewerIsColumn) Render() string {
	return fmt.Sprintf("(coalesce(%s, '') <> '' AND %s = %s)", setting(SettingUser), string(c), setting(SettingUser))
}
