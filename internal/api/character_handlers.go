package api

import (
	"net/http"

	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/witness"
)

// ReassignRequest is the body of POST /characters/{id}/reassign.
type ReassignRequest struct {
	OwnerUserID string `json:"owner_user_id"`
}

// CharacterHandlers serves character routes.
type CharacterHandlers struct {
	characters *character.Service
	viewers    *ViewerResolver
}

// NewCharacterHandlers creates character handlers.
func NewCharacterHandlers(characters *character.Service, viewers *ViewerResolver) *CharacterHandlers {
	return &CharacterHandlers{characters: characters, viewers: viewers}
}

func (h *CharacterHandlers) load(w http.ResponseWriter, r *http.Request) (*character.Character, witness.Viewer, bool) {
	c, err := h.characters.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return nil, witness.Viewer{}, false
	}
	viewer, err := h.viewers.Resolve(r, c.CampaignID)
	if err != nil {
		writeResolveError(w, r, err)
		return nil, witness.Viewer{}, false
	}
	return c, viewer, true
}

// GetCharacter handles GET /characters/{id}.
func (h *CharacterHandlers) GetCharacter(w http.ResponseWriter, r *http.Request) {
	c, _, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, c)
}

// Reassign handles POST /characters/{id}/reassign. GM only. Posts the
// character witnessed become visible to the new owner and stop being visible
// to the old one.
func (h *CharacterHandlers) Reassign(w http.ResponseWriter, r *http.Request) {
	var req ReassignRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	c, viewer, ok := h.load(w, r)
	if !ok {
		return
	}
	updated, err := h.characters.Reassign(r.Context(), viewer, c.ID, req.OwnerUserID)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, updated)
}

// Archive handles POST /characters/{id}/archive. GM only.
func (h *CharacterHandlers) Archive(w http.ResponseWriter, r *http.Request) {
	c, viewer, ok := h.load(w, r)
	if !ok {
		return
	}
	archived, err := h.characters.Archive(r.Context(), viewer, c.ID)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, archived)
}
