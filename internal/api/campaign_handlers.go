package api

import (
	"net/http"

	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/scene"
)

// SetPhaseRequest is the body of PUT /campaigns/{id}/phase.
type SetPhaseRequest struct {
	Phase campaign.Phase `json:"phase"`
}

// CampaignHandlers serves campaign-scoped routes.
type CampaignHandlers struct {
	campaigns  *campaign.Service
	scenes     *scene.Service
	characters *character.Service
	viewers    *ViewerResolver
}

// NewCampaignHandlers creates campaign handlers.
func NewCampaignHandlers(campaigns *campaign.Service, scenes *scene.Service, characters *character.Service, viewers *ViewerResolver) *CampaignHandlers {
	return &CampaignHandlers{campaigns: campaigns, scenes: scenes, characters: characters, viewers: viewers}
}

// GetCampaign handles GET /campaigns/{id}.
func (h *CampaignHandlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.campaigns.Get(ctx, r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, ctx, err)
		return
	}
	if _, err := h.viewers.Resolve(r, c.ID); err != nil {
		writeResolveError(w, r, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, c)
}

// SetPhase handles PUT /campaigns/{id}/phase.
func (h *CampaignHandlers) SetPhase(w http.ResponseWriter, r *http.Request) {
	var req SetPhaseRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	ctx := r.Context()
	viewer, err := h.viewers.Resolve(r, r.PathValue("id"))
	if err != nil {
		writeResolveError(w, r, err)
		return
	}
	c, err := h.campaigns.SetPhase(ctx, viewer, viewer.CampaignID, req.Phase)
	if err != nil {
		WriteDomainError(w, ctx, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, c)
}

// CreateScene handles POST /campaigns/{id}/scenes.
func (h *CampaignHandlers) CreateScene(w http.ResponseWriter, r *http.Request) {
	var in scene.CreateInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	ctx := r.Context()
	viewer, err := h.viewers.Resolve(r, r.PathValue("id"))
	if err != nil {
		writeResolveError(w, r, err)
		return
	}
	in.CampaignID = viewer.CampaignID
	sc, err := h.scenes.Create(ctx, viewer, in)
	if err != nil {
		WriteDomainError(w, ctx, err)
		return
	}
	writeJSON(w, ctx, http.StatusCreated, sc)
}

// ListScenes handles GET /campaigns/{id}/scenes.
func (h *CampaignHandlers) ListScenes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, err := h.viewers.Resolve(r, r.PathValue("id"))
	if err != nil {
		writeResolveError(w, r, err)
		return
	}
	scenes, err := h.scenes.ListByCampaign(ctx, viewer.CampaignID)
	if err != nil {
		WriteDomainError(w, ctx, err)
		return
	}
	if scenes == nil {
		scenes = []*scene.Scene{}
	}
	writeJSON(w, ctx, http.StatusOK, map[string]any{"scenes": scenes})
}

// CreateCharacter handles POST /campaigns/{id}/characters. GM only.
func (h *CampaignHandlers) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	var in character.CreateInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	ctx := r.Context()
	viewer, err := h.viewers.Resolve(r, r.PathValue("id"))
	if err != nil {
		writeResolveError(w, r, err)
		return
	}
	in.CampaignID = viewer.CampaignID
	c, err := h.characters.Create(ctx, viewer, in)
	if err != nil {
		WriteDomainError(w, ctx, err)
		return
	}
	writeJSON(w, ctx, http.StatusCreated, c)
}

// ListCharacters handles GET /campaigns/{id}/characters: the characters the
// caller may select with X-Character-ID.
func (h *CampaignHandlers) ListCharacters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, err := h.viewers.Resolve(r, r.PathValue("id"))
	if err != nil {
		writeResolveError(w, r, err)
		return
	}
	owned, err := h.characters.ListOwned(ctx, viewer.CampaignID, viewer.UserID)
	if err != nil {
		WriteDomainError(w, ctx, err)
		return
	}
	if owned == nil {
		owned = []*character.Character{}
	}
	writeJSON(w, ctx, http.StatusOK, map[string]any{"characters": owned})
}
