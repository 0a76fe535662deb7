package api

import (
	"net/http"
	"strconv"

	"github.com/onnwee/playbypost/internal/post"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/internal/witness"
)

// UnhideRequest is the body of POST /posts/{id}/unhide. Omitting witnesses
// (or sending null) reveals the post to the whole current roster.
type UnhideRequest struct {
	Witnesses []string `json:"witnesses"`
}

// PostListResponse is a page of a scene's posts. NextAfter is the cursor for
// the following page and is absent when the page is empty.
type PostListResponse struct {
	Posts     []*post.Post `json:"posts"`
	NextAfter *int64       `json:"next_after,omitempty"`
}

// PostHandlers serves post routes.
type PostHandlers struct {
	posts   *post.Service
	scenes  *scene.Service
	viewers *ViewerResolver
}

// NewPostHandlers creates post handlers.
func NewPostHandlers(posts *post.Service, scenes *scene.Service, viewers *ViewerResolver) *PostHandlers {
	return &PostHandlers{posts: posts, scenes: scenes, viewers: viewers}
}

// postViewer resolves the viewer in the campaign of the post named in the path.
func (h *PostHandlers) postViewer(w http.ResponseWriter, r *http.Request) (witness.Viewer, bool) {
	campaignID, err := h.posts.CampaignOf(r.Context(), r.PathValue("id"))
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

// CreatePost handles POST /scenes/{id}/posts.
func (h *PostHandlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	var in post.CreateInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	sc, viewer, ok := sceneViewer(w, r, h.scenes, h.viewers)
	if !ok {
		return
	}
	in.SceneID = sc.ID
	created, err := h.posts.Create(r.Context(), viewer, in)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, r.Context(), http.StatusCreated, created)
}

// parsePage reads the after and limit query parameters.
func parsePage(r *http.Request) (post.Page, error) {
	var page post.Page
	q := r.URL.Query()
	if s := q.Get("after"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			return page, witness.Invalid("after", strconv.ErrSyntax)
		}
		page.AfterSeq = n
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return page, witness.Invalid("limit", strconv.ErrSyntax)
		}
		page.Limit = n
	}
	return page, nil
}

// ListPosts handles GET /scenes/{id}/posts?after=&limit=.
func (h *PostHandlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	sc, viewer, ok := sceneViewer(w, r, h.scenes, h.viewers)
	if !ok {
		return
	}
	posts, err := h.posts.ListVisible(r.Context(), viewer, sc.ID, page)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}

	resp := PostListResponse{Posts: posts}
	if len(posts) == 0 {
		resp.Posts = []*post.Post{}
	} else {
		last := posts[len(posts)-1].Seq
		resp.NextAfter = &last
	}
	writeJSON(w, r.Context(), http.StatusOK, resp)
}

// GetPost handles GET /posts/{id}. A post the viewer may not see is a 404.
func (h *PostHandlers) GetPost(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.postViewer(w, r)
	if !ok {
		return
	}
	p, err := h.posts.Get(r.Context(), viewer, r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, p)
}

// Unhide handles POST /posts/{id}/unhide. GM only.
func (h *PostHandlers) Unhide(w http.ResponseWriter, r *http.Request) {
	var req UnhideRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	viewer, ok := h.postViewer(w, r)
	if !ok {
		return
	}
	p, err := h.posts.Unhide(r.Context(), viewer, r.PathValue("id"), req.Witnesses)
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, p)
}

// Finalize handles POST /posts/{id}/finalize. Author only.
func (h *PostHandlers) Finalize(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.postViewer(w, r)
	if !ok {
		return
	}
	p, err := h.posts.Finalize(r.Context(), viewer, r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, r.Context(), err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, p)
}
