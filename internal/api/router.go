package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/health"
	"github.com/onnwee/playbypost/internal/idempotency"
	"github.com/onnwee/playbypost/internal/middleware"
	"github.com/onnwee/playbypost/internal/post"
	"github.com/onnwee/playbypost/internal/roll"
	"github.com/onnwee/playbypost/internal/roster"
	"github.com/onnwee/playbypost/internal/scene"
)

// Rate limit scopes.
const (
	ScopePosts  = "posts"
	ScopeUnhide = "unhide"
)

// Deps are the services and infrastructure the router wires together.
type Deps struct {
	Campaigns  *campaign.Service
	Scenes     *scene.Service
	Characters *character.Service
	Roster     *roster.Service
	Posts      *post.Service
	Rolls      *roll.Service

	Tokens      middleware.TokenValidator
	Idempotency idempotency.Repository

	// RateLimitStore nil disables rate limiting.
	RateLimitStore middleware.RateLimitStore
	RateLimit      middleware.RateLimitConfig

	Metrics       *middleware.Metrics
	Gatherer      prometheus.Gatherer
	HealthChecks  map[string]health.Checker
	HealthTimeout time.Duration
}

// chain applies middleware so that the first one listed runs first.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NewRouter builds the API mux. Every domain route requires a bearer token;
// post creation and unhide are additionally rate limited per user, and post
// creation honours Idempotency-Key.
func NewRouter(d Deps) http.Handler {
	viewers := NewViewerResolver(d.Campaigns, d.Characters)
	campaigns := NewCampaignHandlers(d.Campaigns, d.Scenes, d.Characters, viewers)
	scenes := NewSceneHandlers(d.Scenes, d.Roster, viewers)
	characters := NewCharacterHandlers(d.Characters, viewers)
	posts := NewPostHandlers(d.Posts, d.Scenes, viewers)
	rolls := NewRollHandlers(d.Rolls, d.Posts, d.Scenes, viewers)
	probes := NewHealthHandlers(d.HealthChecks, d.HealthTimeout)

	auth := middleware.RequireAuth(d.Tokens)
	limited := func(scope string) func(http.Handler) http.Handler {
		if d.RateLimitStore == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RateLimiter(d.RateLimitStore, d.RateLimit, scope, middleware.UserKeyFunc(), d.Metrics)
	}
	idempotent := func(next http.Handler) http.Handler { return next }
	if d.Idempotency != nil {
		idempotent = middleware.Idempotency(d.Idempotency, d.Metrics)
	}

	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
		mux.Handle(pattern, chain(fn, append([]func(http.Handler) http.Handler{auth}, mws...)...))
	}

	handle("GET /campaigns/{id}", campaigns.GetCampaign)
	handle("PUT /campaigns/{id}/phase", campaigns.SetPhase)
	handle("GET /campaigns/{id}/scenes", campaigns.ListScenes)
	handle("POST /campaigns/{id}/scenes", campaigns.CreateScene)
	handle("GET /campaigns/{id}/characters", campaigns.ListCharacters)
	handle("POST /campaigns/{id}/characters", campaigns.CreateCharacter)

	handle("GET /scenes/{id}", scenes.GetScene)
	handle("POST /scenes/{id}/archive", scenes.ArchiveScene)
	handle("GET /scenes/{id}/roster", scenes.GetRoster)
	handle("GET /scenes/{id}/presence", scenes.GetPresence)
	handle("PUT /scenes/{id}/roster/{characterID}", scenes.AddToRoster)
	handle("DELETE /scenes/{id}/roster/{characterID}", scenes.RemoveFromRoster)

	handle("POST /scenes/{id}/posts", posts.CreatePost, limited(ScopePosts), idempotent)
	handle("GET /scenes/{id}/posts", posts.ListPosts)
	handle("GET /posts/{id}", posts.GetPost)
	handle("POST /posts/{id}/unhide", posts.Unhide, limited(ScopeUnhide))
	handle("POST /posts/{id}/finalize", posts.Finalize)

	handle("POST /scenes/{id}/rolls", rolls.RequestRoll)
	handle("GET /scenes/{id}/rolls", rolls.ListSceneRolls)
	handle("GET /posts/{id}/rolls", rolls.ListPostRolls)
	handle("POST /rolls/{id}/resolve", rolls.ResolveRoll)
	handle("POST /rolls/{id}/invalidate", rolls.InvalidateRoll)

	handle("GET /characters/{id}", characters.GetCharacter)
	handle("POST /characters/{id}/reassign", characters.Reassign)
	handle("POST /characters/{id}/archive", characters.Archive)

	mux.HandleFunc("GET /health", probes.Health)
	mux.HandleFunc("GET /ready", probes.Ready)
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
