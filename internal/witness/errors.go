package witness

// Kind classifies a domain error. Callers branch on the kind; the code carries
// the specific reason and is what clients see.
type Kind string

const (
	KindInvalidState  Kind = "invalid_state"
	KindAuthorization Kind = "authorization"
	KindValidation    Kind = "validation"
	// KindConsistency means the application predicate and the storage policy
	// disagreed about a row. It is never expected in a healthy deployment.
	KindConsistency Kind = "consistency_violation"
)

// Error is a domain error raised by the visibility engine.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is reports a match when target is a kind sentinel of the same kind, or an
// error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// Kind sentinels, for use with errors.Is.
var (
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrUnauthorized = &Error{Kind: KindAuthorization}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConsistency  = &Error{Kind: KindConsistency}
)

// Specific errors.
var (
	ErrPostAlreadyVisible = &Error{
		Kind:    KindInvalidState,
		Code:    "post_already_visible",
		Message: "post has already been unhidden",
	}
	ErrCharacterInOtherScene = &Error{
		Kind:    KindInvalidState,
		Code:    "character_in_other_scene",
		Message: "character is already present in another scene",
	}
	ErrCharacterArchived = &Error{
		Kind:    KindInvalidState,
		Code:    "character_archived",
		Message: "archived characters cannot be selected",
	}
	ErrSceneArchived = &Error{
		Kind:    KindInvalidState,
		Code:    "scene_archived",
		Message: "scene is archived",
	}
	ErrNotAdministrativePhase = &Error{
		Kind:    KindInvalidState,
		Code:    "campaign_not_administrative",
		Message: "roster changes are only allowed during an administrative phase",
	}
	ErrRollsPending = &Error{
		Kind:    KindInvalidState,
		Code:    "rolls_pending",
		Message: "campaign has rolls pending resolution",
	}
	ErrNotDraft = &Error{
		Kind:    KindInvalidState,
		Code:    "post_not_draft",
		Message: "post is not a draft",
	}
	ErrRollNotPending = &Error{
		Kind:    KindInvalidState,
		Code:    "roll_not_pending",
		Message: "roll is no longer pending",
	}

	ErrNotGM = &Error{
		Kind:    KindAuthorization,
		Code:    "not_gm",
		Message: "only the campaign GM may perform this action",
	}
	ErrNotCharacterOwner = &Error{
		Kind:    KindAuthorization,
		Code:    "not_character_owner",
		Message: "character is not owned by the current user",
	}
	ErrViewerNotInScene = &Error{
		Kind:    KindAuthorization,
		Code:    "viewer_not_in_scene",
		Message: "only the GM and characters present in the scene may see its roster",
	}
	ErrNotAuthor = &Error{
		Kind:    KindAuthorization,
		Code:    "not_author",
		Message: "only the author may change this post",
	}

	ErrNoWitnessesSelected = &Error{
		Kind:    KindValidation,
		Code:    "no_witnesses_selected",
		Message: "must select at least one witness",
	}
	ErrWitnessNotInScene = &Error{
		Kind:    KindValidation,
		Code:    "witness_not_in_scene",
		Message: "selected witnesses must be present in the scene",
	}
	ErrAuthorNotInScene = &Error{
		Kind:    KindValidation,
		Code:    "author_not_in_scene",
		Message: "authoring character is not present in the scene",
	}
	ErrCampaignMismatch = &Error{
		Kind:    KindValidation,
		Code:    "campaign_mismatch",
		Message: "character does not belong to this campaign",
	}
)

// Consistency builds a consistency violation for a single row.
func Consistency(message string) *Error {
	return &Error{Kind: KindConsistency, Code: "visibility_mismatch", Message: message}
}

// Invalid builds a validation error for a malformed input field.
func Invalid(field string, err error) *Error {
	return &Error{Kind: KindValidation, Code: "invalid_" + field, Message: field + ": " + err.Error()}
}
