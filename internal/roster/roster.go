// Package roster tracks which characters are present in which scene.
//
// A character is resident in at most one scene at a time. Rosters are read as
// snapshots; witness capture and unhide read the roster while holding the
// scene's lock so that no mutation of that scene can interleave.
package roster

import (
	"context"
	"time"

	"github.com/onnwee/playbypost/internal/witness"
)

// Presence is one stay of a character in a scene. LeftAt is nil while the
// character is still present.
type Presence struct {
	ID          string     `json:"id"`
	SceneID     string     `json:"scene_id"`
	CharacterID string     `json:"character_id"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
}

// Tracker maintains scene rosters.
type Tracker interface {
	// AddToScene makes the character present in the scene. It is a no-op when
	// the character is already there and fails with
	// witness.ErrCharacterInOtherScene when it is present elsewhere.
	AddToScene(ctx context.Context, sceneID, characterID string) error

	// RemoveFromScene ends the character's stay. Removing a character that is
	// not present is a no-op. Witness sets of existing posts are untouched.
	RemoveFromScene(ctx context.Context, sceneID, characterID string) error

	// CurrentRoster returns a snapshot of the scene's roster.
	CurrentRoster(ctx context.Context, sceneID string) (witness.Set, error)

	// History returns every stay in the scene, in join order.
	History(ctx context.Context, sceneID string) ([]Presence, error)
}
