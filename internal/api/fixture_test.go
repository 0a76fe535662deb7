package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/playbypost/internal/audit"
	"github.com/onnwee/playbypost/internal/auth"
	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/health"
	"github.com/onnwee/playbypost/internal/idempotency"
	"github.com/onnwee/playbypost/internal/middleware"
	"github.com/onnwee/playbypost/internal/notify"
	"github.com/onnwee/playbypost/internal/policy"
	"github.com/onnwee/playbypost/internal/post"
	"github.com/onnwee/playbypost/internal/roll"
	"github.com/onnwee/playbypost/internal/roster"
	"github.com/onnwee/playbypost/internal/scene"
)

const (
	testSecret = "test-secret-that-is-at-least-32-characters"
	gmUser     = "u-gm"
)

// app is the full in-memory stack behind the router.
type app struct {
	t          *testing.T
	handler    http.Handler
	jwt        *auth.JWTService
	campaignID string
	metrics    *middleware.Metrics
}

type appOptions struct {
	rateLimit    *middleware.RateLimitConfig
	healthChecks map[string]health.Checker
}

func newApp(t *testing.T, opts appOptions) *app {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	campaigns := campaign.NewInMemoryRepository()
	scenes := scene.NewInMemoryRepository()
	chars := character.NewInMemoryRepository()
	tracker := roster.NewInMemoryTracker()
	posts := post.NewInMemoryRepository(tracker)
	rolls := roll.NewInMemoryRepository(posts)
	auditRepo := audit.NewInMemoryRepository()
	checker := policy.NewChecker(logger)
	broadcaster := notify.NewBroadcaster(notify.NewLogNotifier(logger), nil)

	rollSvc := roll.NewService(rolls, scenes, chars, posts, checker, broadcaster, auditRepo)
	campaignSvc := campaign.NewService(campaigns, rollSvc, auditRepo)

	c, err := campaigns.Create(ctx, &campaign.Campaign{Name: "Harrowmoor", GMUserID: gmUser})
	if err != nil {
		t.Fatalf("Create campaign: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register metrics: %v", err)
	}

	jwtSvc := auth.NewJWTService(testSecret)
	deps := Deps{
		Campaigns:     campaignSvc,
		Scenes:        scene.NewService(scenes, campaigns, auditRepo),
		Characters:    character.NewService(chars, campaigns, auditRepo),
		Roster:        roster.NewService(tracker, scenes, chars, campaignSvc, auditRepo),
		Posts:         post.NewService(posts, scenes, chars, checker, broadcaster, auditRepo),
		Rolls:         rollSvc,
		Tokens:        jwtSvc,
		Idempotency:   idempotency.NewInMemoryRepository(),
		Metrics:       metrics,
		Gatherer:      reg,
		HealthChecks:  opts.healthChecks,
		HealthTimeout: time.Second,
	}
	if opts.rateLimit != nil {
		deps.RateLimitStore = middleware.NewInMemoryRateLimitStore()
		deps.RateLimit = *opts.rateLimit
	}

	return &app{
		t:          t,
		handler:    NewRouter(deps),
		jwt:        jwtSvc,
		campaignID: c.ID,
		metrics:    metrics,
	}
}

// call describes one request. An empty user sends no token.
type call struct {
	method    string
	path      string
	user      string
	character string
	body      any
	headers   map[string]string
}

func (a *app) do(c call) *httptest.ResponseRecorder {
	a.t.Helper()
	var body io.Reader
	if c.body != nil {
		data, err := json.Marshal(c.body)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		token, err := a.jwt.GenerateAccessToken(c.user)
		if err != nil {
			a.t.Fatalf("GenerateAccessToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.character != "" {
		req.Header.Set(middleware.CharacterIDHeader, c.character)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

// must performs c and fails the test unless it returns want, decoding the
// body into out when out is non-nil.
func (a *app) must(c call, want int, out any) {
	a.t.Helper()
	w := a.do(c)
	if w.Code != want {
		a.t.Fatalf("%s %s: status = %d, want %d; body = %s", c.method, c.path, w.Code, want, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode: %v", c.method, c.path, err)
		}
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error.Code
}

// table is a campaign with one scene and two characters, alice owned by u1
// and bob owned by u2, both present in the scene.
type table struct {
	*app
	sceneID string
	alice   string
	bob     string
}

func newTable(t *testing.T, opts appOptions) *table {
	t.Helper()
	a := newApp(t, opts)
	tb := &table{app: a}

	var sc scene.Scene
	a.must(call{method: http.MethodPost, path: "/campaigns/" + a.campaignID + "/scenes", user: gmUser,
		body: map[string]string{"title": "The Drowned Chapel"}}, http.StatusCreated, &sc)
	tb.sceneID = sc.ID

	tb.alice = tb.createCharacter("Alice", "u1")
	tb.bob = tb.createCharacter("Bob", "u2")
	tb.addToScene(tb.alice)
	tb.addToScene(tb.bob)
	return tb
}

func (tb *table) createCharacter(name, owner string) string {
	tb.t.Helper()
	var c character.Character
	tb.must(call{method: http.MethodPost, path: "/campaigns/" + tb.campaignID + "/characters", user: gmUser,
		body: map[string]string{"name": name, "kind": "pc", "owner_user_id": owner}}, http.StatusCreated, &c)
	return c.ID
}

func (tb *table) addToScene(characterID string) {
	tb.t.Helper()
	tb.must(call{method: http.MethodPut, path: "/scenes/" + tb.sceneID + "/roster/" + characterID, user: gmUser},
		http.StatusNoContent, nil)
}

func (tb *table) removeFromScene(characterID string) {
	tb.t.Helper()
	tb.must(call{method: http.MethodDelete, path: "/scenes/" + tb.sceneID + "/roster/" + characterID, user: gmUser},
		http.StatusNoContent, nil)
}

func textBlocks(text string) []post.Block {
	return []post.Block{{Type: post.BlockNarration, Text: text}}
}

// postAs creates a post written by user as characterID.
func (tb *table) postAs(user, characterID, text string) *post.Post {
	tb.t.Helper()
	var p post.Post
	tb.must(call{method: http.MethodPost, path: "/scenes/" + tb.sceneID + "/posts", user: user, character: characterID,
		body: post.CreateInput{CharacterID: characterID, Blocks: textBlocks(text)}}, http.StatusCreated, &p)
	return &p
}

// hiddenGMPost creates a hidden narrator post.
func (tb *table) hiddenGMPost(text string) *post.Post {
	tb.t.Helper()
	var p post.Post
	tb.must(call{method: http.MethodPost, path: "/scenes/" + tb.sceneID + "/posts", user: gmUser,
		body: post.CreateInput{Blocks: textBlocks(text), Hidden: true}}, http.StatusCreated, &p)
	return &p
}

// visiblePostIDs lists the scene's posts as user acting as characterID.
func (tb *table) visiblePostIDs(user, characterID string) []string {
	tb.t.Helper()
	var resp PostListResponse
	tb.must(call{method: http.MethodGet, path: "/scenes/" + tb.sceneID + "/posts", user: user, character: characterID},
		http.StatusOK, &resp)
	ids := make([]string, len(resp.Posts))
	for i, p := range resp.Posts {
		ids[i] = p.ID
	}
	return ids
}
