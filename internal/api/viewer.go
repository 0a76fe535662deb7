package api

import (
	"errors"
	"net/http"

	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/middleware"
	"github.com/onnwee/playbypost/internal/tracing"
	"github.com/onnwee/playbypost/internal/witness"
)

var errUnauthenticated = errors.New("request is not authenticated")

// ViewerResolver turns an authenticated request into the viewer that the
// visibility rules evaluate.
type ViewerResolver struct {
	campaigns  *campaign.Service
	characters *character.Service
}

// NewViewerResolver creates a resolver.
func NewViewerResolver(campaigns *campaign.Service, characters *character.Service) *ViewerResolver {
	return &ViewerResolver{campaigns: campaigns, characters: characters}
}

// Resolve builds the viewer for campaignID. The campaign GM is resolved as
// GM and the X-Character-ID header is ignored. Anyone else acts as the
// character named by the header, which must be theirs, belong to the
// campaign and not be archived. Without the header the viewer has no
// character and sees no posts.
func (res *ViewerResolver) Resolve(r *http.Request, campaignID string) (witness.Viewer, error) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return witness.Viewer{}, errUnauthenticated
	}

	role, err := res.campaigns.RoleOf(ctx, campaignID, userID)
	if err != nil {
		return witness.Viewer{}, err
	}
	v := witness.Viewer{UserID: userID, Role: role, CampaignID: campaignID}

	if role != witness.RoleGM {
		if id := r.Header.Get(middleware.CharacterIDHeader); id != "" {
			c, err := res.characters.SelectViewer(ctx, userID, id)
			if err != nil {
				return witness.Viewer{}, err
			}
			if c.CampaignID != campaignID {
				return witness.Viewer{}, witness.ErrCampaignMismatch
			}
			v.CharacterID = c.ID
		}
	}

	middleware.RecordViewer(ctx, v)
	tracing.SetViewer(ctx, v)
	return v, nil
}

// writeResolveError writes a viewer resolution failure.
func writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errUnauthenticated) {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required")
		return
	}
	WriteDomainError(w, r.Context(), err)
}
