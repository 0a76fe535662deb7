package api

import (
	"net/http"

	"github.com/onnwee/playbypost/internal/roster"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/internal/witness"
)

// RosterResponse is the body of GET /scenes/{id}/roster.
type RosterResponse struct {
	SceneID    string      `json:"scene_id"`
	Characters witness.Set `json:"characters"`
}

// SceneHandlers serves scene and roster routes.
type SceneHandlers struct {
	scenes  *scene.Service
	roster  *roster.Service
	viewers *ViewerResolver
}

// NewSceneHandlers creates scene handlers.
func NewSceneHandlers(scenes *scene.Service, rosters *roster.Service, viewers *ViewerResolver) *SceneHandlers {
	return &SceneHandlers{scenes: scenes, roster: rosters, viewers: viewers}
}

// sceneViewer loads the scene named in the path and resolves the viewer in
// its campaign. It writes the error response and returns false on failure.
func sceneViewer(w http.ResponseWriter, r *http.Request, scenes *scene.Service, viewers *ViewerResolver) (*scene.Scene, witness.Viewer, bool) {
	sc, err := scenes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return nil, witness.Viewer{}, false
	}
	viewer, err := viewers.Resolve(r, sc.CampaignID)
	if err != nil {
		writeResolveError(w, r, err)
		return nil, witness.Viewer{}, false
	}
	return sc, viewer, true
}

// GetScene handles GET /scenes/{id}.
func (h *SceneHandlers) GetScene(w http.ResponseWriter, r *http.Request) {
	sc, _, ok := sceneViewer(w, r, h.scenes, h.viewers)
	if !ok {
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, sc)
}

// ArchiveScene handles POST /scenes/{id}/archive. GM only.
func (h *SceneHandlers) ArchiveScene(w http.ResponseWriter, r *http.Request) {
	sc, viewer, ok := sceneViewer(w, r, h.scenes, h.viewers)
	if !ok {
		return
	}
	archived, err := h.scenes.Archive(r.Context(), viewer, sc.ID)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, archived)
}

// GetRoster handles GET /scenes/{id}/roster.
func (h *SceneHandlers) GetRoster(w http.ResponseWriter, r *http.Request) {
	sc, viewer, ok := sceneViewer(w, r, h.scenes, h.viewers)
	if !ok {
		return
	}
	set, err := h.roster.Roster(r.Context(), viewer, sc.ID)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, RosterResponse{SceneID: sc.ID, Characters: set})
}

// GetPresence handles GET /scenes/{id}/presence: every stay in the scene,
// for the GM.
func (h *SceneHandlers) GetPresence(w http.ResponseWriter, r *http.Request) {
	sc, viewer, ok := sceneViewer(w, r, h.scenes, h.viewers)
	if !ok {
		return
	}
	stays, err := h.roster.History(r.Context(), viewer, sc.ID)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	if stays == nil {
		stays = []roster.Presence{}
	}
	writeJSON(w, r.Context(), http.StatusOK, map[string]any{"presence": stays})
}

// AddToRoster handles PUT /scenes/{id}/roster/{characterID}.
func (h *SceneHandlers) AddToRoster(w http.ResponseWriter, r *http.Request) {
	sc, viewer, ok := sceneViewer(w, r, h.scenes, h.viewers)
	if !ok {
		return
	}
	if err := h.roster.Add(r.Context(), viewer, sc.ID, r.PathValue("characterID")); err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFromRoster handles DELETE /scenes/{id}/roster/{characterID}.
func (h *SceneHandlers) RemoveFromRoster(w http.ResponseWriter, r *http.Request) {
	sc, viewer, ok := sceneViewer(w, r, h.scenes, h.viewers)
	if !ok {
		return
	}
	if err := h.roster.Remove(r.Context(), viewer, sc.ID, r.PathValue("characterID")); err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
