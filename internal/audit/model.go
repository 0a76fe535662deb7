// Package audit records state changes to the visibility engine for incident
// review: roster moves, reveals, reassignments.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Entity types.
const (
	EntityPost      = "post"
	EntityScene     = "scene"
	EntityCharacter = "character"
	EntityCampaign  = "campaign"
	EntityRoll      = "roll"
)

// Actions.
const (
	ActionPostCreate        = "post_create"
	ActionPostUnhide        = "post_unhide"
	ActionPostFinalize      = "post_finalize"
	ActionRosterAdd         = "roster_add"
	ActionRosterRemove      = "roster_remove"
	ActionSceneCreate       = "scene_create"
	ActionSceneArchive      = "scene_archive"
	ActionCharacterReassign = "character_reassign"
	ActionCharacterArchive  = "character_archive"
	ActionPhaseChange       = "phase_change"
	ActionRollResolve       = "roll_resolve"
	ActionRollInvalidate    = "roll_invalidate"
)

var validEntityTypes = map[string]bool{
	EntityPost:      true,
	EntityScene:     true,
	EntityCharacter: true,
	EntityCampaign:  true,
	EntityRoll:      true,
}

var validActions = map[string]bool{
	ActionPostCreate:        true,
	ActionPostUnhide:        true,
	ActionPostFinalize:      true,
	ActionRosterAdd:         true,
	ActionRosterRemove:      true,
	ActionSceneCreate:       true,
	ActionSceneArchive:      true,
	ActionCharacterReassign: true,
	ActionCharacterArchive:  true,
	ActionPhaseChange:       true,
	ActionRollResolve:       true,
	ActionRollInvalidate:    true,
}

var (
	ErrNilRepository     = errors.New("audit repository cannot be nil")
	ErrInvalidEntityType = errors.New("invalid audit entity type")
	ErrInvalidEntityID   = errors.New("entity ID cannot be empty")
	ErrInvalidAction     = errors.New("invalid audit action")
)

// Log is a stored audit entry.
type Log struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	// PreviousHash is the hash of the entry logged just before this one.
	PreviousHash string `json:"previous_hash"`
}

// Entry is the input for a new audit log.
type Entry struct {
	UserID     string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string // defaults to success
	Detail     string
	RequestID  string
}

func (e Entry) validate() error {
	if !validEntityTypes[e.EntityType] {
		return ErrInvalidEntityType
	}
	if e.EntityID == "" {
		return ErrInvalidEntityID
	}
	if !validActions[e.Action] {
		return ErrInvalidAction
	}
	return nil
}

// Hash returns the SHA-256 of every field of l, PreviousHash included. The next
// entry stores it as its own PreviousHash.
func (l *Log) Hash() string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		l.ID,
		l.UserID,
		l.EntityType,
		l.EntityID,
		l.Action,
		l.Outcome,
		l.Detail,
		l.RequestID,
		l.CreatedAt.UTC().Format(time.RFC3339Nano),
		l.PreviousHash,
	}, "|")))
	return hex.EncodeToString(h[:])
}
