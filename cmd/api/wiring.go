package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/playbypost/internal/api"
	"github.com/onnwee/playbypost/internal/audit"
	"github.com/onnwee/playbypost/internal/auth"
	"github.com/onnwee/playbypost/internal/campaign"
	"github.com/onnwee/playbypost/internal/character"
	"github.com/onnwee/playbypost/internal/config"
	"github.com/onnwee/playbypost/internal/db"
	"github.com/onnwee/playbypost/internal/health"
	"github.com/onnwee/playbypost/internal/idempotency"
	"github.com/onnwee/playbypost/internal/jobs"
	"github.com/onnwee/playbypost/internal/middleware"
	"github.com/onnwee/playbypost/internal/notify"
	"github.com/onnwee/playbypost/internal/policy"
	"github.com/onnwee/playbypost/internal/post"
	"github.com/onnwee/playbypost/internal/roll"
	"github.com/onnwee/playbypost/internal/roster"
	"github.com/onnwee/playbypost/internal/scene"
	"github.com/onnwee/playbypost/migrations"
)

const serviceName = "playbypost-api"

// storage is one complete set of repositories.
type storage struct {
	campaigns   campaign.Repository
	scenes      scene.Repository
	characters  character.Repository
	tracker     roster.Tracker
	posts       post.Repository
	rolls       roll.Repository
	audit       audit.Repository
	idempotency idempotency.Repository
}

func memoryStorage() storage {
	tracker := roster.NewInMemoryTracker()
	posts := post.NewInMemoryRepository(tracker)
	return storage{
		campaigns:   campaign.NewInMemoryRepository(),
		scenes:      scene.NewInMemoryRepository(),
		characters:  character.NewInMemoryRepository(),
		tracker:     tracker,
		posts:       posts,
		rolls:       roll.NewInMemoryRepository(posts),
		audit:       audit.NewInMemoryRepository(),
		idempotency: idempotency.NewInMemoryRepository(),
	}
}

func postgresStorage(conn *sql.DB, readerRole string) storage {
	return storage{
		campaigns:   campaign.NewPostgresRepository(conn),
		scenes:      scene.NewPostgresRepository(conn),
		characters:  character.NewPostgresRepository(conn),
		tracker:     roster.NewPostgresTracker(conn),
		posts:       post.NewPostgresRepository(conn, readerRole),
		rolls:       roll.NewPostgresRepository(conn, readerRole),
		audit:       audit.NewPostgresRepository(conn),
		idempotency: idempotency.NewPostgresRepository(conn),
	}
}

// server is the assembled application.
type server struct {
	handler   http.Handler
	storage   storage
	jobs      *jobs.Metrics
	memLimits *middleware.InMemoryRateLimitStore
	closers   []func() error
}

// Close releases database and Redis connections.
func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
}

// buildServer connects the configured backends and wires services, router
// and the outer middleware chain. With no DATABASE_URL everything lives in
// memory; with no REDIS_URL notifications go to the log and rate limits are
// kept in process.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *server, err error) {
	srv := &server{}
	defer func() {
		if err != nil {
			srv.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	notifyMetrics := notify.NewMetrics()
	srv.jobs = jobs.NewMetrics()
	checker := policy.NewChecker(logger)
	for _, r := range []interface{ Register(prometheus.Registerer) error }{httpMetrics, notifyMetrics, srv.jobs, checker} {
		if err := r.Register(reg); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	checks := map[string]health.Checker{}

	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		srv.storage = memoryStorage()
	} else {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, conn.Close)
		if err := db.Migrate(ctx, conn, migrations.FS); err != nil {
			return nil, err
		}
		srv.storage = postgresStorage(conn, cfg.DBReaderRole)
		checks["database"] = health.NewDBChecker(conn)
	}

	var (
		notifier  notify.Notifier
		rateStore middleware.RateLimitStore
	)
	if cfg.RedisURL == "" {
		notifier = notify.NewLogNotifier(logger)
		srv.memLimits = middleware.NewInMemoryRateLimitStore()
		rateStore = srv.memLimits
	} else {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		srv.closers = append(srv.closers, client.Close)
		notifier = notify.NewRedisNotifier(client, notify.DefaultQueue)
		rateStore = middleware.NewRedisRateLimitStore(client)
		checks["redis"] = health.NewRedisChecker(client)
	}
	broadcaster := notify.NewBroadcaster(notifier, notifyMetrics)

	st := srv.storage
	rolls := roll.NewService(st.rolls, st.scenes, st.characters, st.posts, checker, broadcaster, st.audit)
	campaigns := campaign.NewService(st.campaigns, rolls, st.audit)

	router := api.NewRouter(api.Deps{
		Campaigns:      campaigns,
		Scenes:         scene.NewService(st.scenes, st.campaigns, st.audit),
		Characters:     character.NewService(st.characters, st.campaigns, st.audit),
		Roster:         roster.NewService(st.tracker, st.scenes, st.characters, campaigns, st.audit),
		Posts:          post.NewService(st.posts, st.scenes, st.characters, checker, broadcaster, st.audit),
		Rolls:          rolls,
		Tokens:         auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret, auth.DefaultLeeway),
		Idempotency:    st.idempotency,
		RateLimitStore: rateStore,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimitRequests,
			WindowDuration:    cfg.RateLimitWindow,
		},
		Metrics:       httpMetrics,
		Gatherer:      reg,
		HealthChecks:  checks,
		HealthTimeout: health.DefaultTimeout,
	})

	// RequestID -> Tracing -> HTTPMetrics -> Logging -> CORS -> routes
	var handler http.Handler = router
	handler = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins))(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	srv.handler = middleware.RequestID(handler)
	return srv, nil
}

// seedCampaign creates a campaign run by gmUserID. Campaign management lives
// outside this service, so in-memory development needs one to start from.
func seedCampaign(ctx context.Context, repo campaign.Repository, gmUserID string) (*campaign.Campaign, error) {
	return repo.Create(ctx, &campaign.Campaign{Name: "Development campaign", GMUserID: gmUserID})
}
