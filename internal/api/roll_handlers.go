package api

import (
	"net/http"

	"github.com/onnwee/playbypost/internal/post"
	"github.com/onnwee/playbypost/internal/roll"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/internal/witness"
)

// ResolveRollRequest is the body of POST /rolls/{id}/resolve: the faces
// reported by the dice service, one per die.
type ResolveRollRequest struct {
	Result []int `json:"result"`
}

// RollHandlers serves roll routes.
type RollHandlers struct {
	rolls   *roll.Service
	posts   *post.Service
	scenes  *scene.Service
	viewers *ViewerResolver
}

// NewRollHandlers creates roll handlers.
func NewRollHandlers(rolls *roll.Service, posts *post.Service, scenes *scene.Service, viewers *ViewerResolver) *RollHandlers {
	return &RollHandlers{rolls: rolls, posts: posts, scenes: scenes, viewers: viewers}
}

func (h *RollHandlers) rollViewer(w http.ResponseWriter, r *http.Request) (witness.Viewer, bool) {
	campaignID, err := h.rolls.CampaignOf(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return witness.Viewer{}, false
	}
	viewer, err := h.viewers.Resolve(r, campaignID)
	if err != nil {
		writeResolveError(w, r, err)
		return witness.Viewer{}, false
	}
	return viewer, true
}

func writeRolls(w http.ResponseWriter, r *http.Request, rolls []*roll.Roll) {
	if rolls == nil {
		rolls = []*roll.Roll{}
	}
	writeJSON(w, r.Context(), http.StatusOK, map[string]any{"rolls": rolls})
}

// RequestRoll handles POST /scenes/{id}/rolls.
func (h *RollHandlers) RequestRoll(w http.ResponseWriter, r *http.Request) {
	var in roll.RequestInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	sc, viewer, ok := sceneViewer(w, r, h.scenes, h.viewers)
	if !ok {
		return
	}
	in.SceneID = sc.ID
	created, err := h.rolls.Request(r.Context(), viewer, in)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, r.Context(), http.StatusCreated, created)
}

// ListSceneRolls handles GET /scenes/{id}/rolls.
func (h *RollHandlers) ListSceneRolls(w http.ResponseWriter, r *http.Request) {
	sc, viewer, ok := sceneViewer(w, r, h.scenes, h.viewers)
	if !ok {
		return
	}
	rolls, err := h.rolls.ListVisible(r.Context(), viewer, sc.ID)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeRolls(w, r, rolls)
}

// ListPostRolls handles GET /posts/{id}/rolls.
func (h *RollHandlers) ListPostRolls(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("id")
	campaignID, err := h.posts.CampaignOf(r.Context(), postID)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	viewer, err := h.viewers.Resolve(r, campaignID)
	if err != nil {
		writeResolveError(w, r, err)
		return
	}
	rolls, err := h.rolls.ListForPost(r.Context(), viewer, postID)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeRolls(w, r, rolls)
}

// ResolveRoll handles POST /rolls/{id}/resolve. GM only.
func (h *RollHandlers) ResolveRoll(w http.ResponseWriter, r *http.Request) {
	var req ResolveRollRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	viewer, ok := h.rollViewer(w, r)
	if !ok {
		return
	}
	resolved, err := h.rolls.Resolve(r.Context(), viewer, r.PathValue("id"), req.Result)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, resolved)
}

// InvalidateRoll handles POST /rolls/{id}/invalidate. GM only.
func (h *RollHandlers) InvalidateRoll(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.rollViewer(w, r)
	if !ok {
		return
	}
	invalidated, err := h.rolls.Invalidate(r.Context(), viewer, r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, invalidated)
}
