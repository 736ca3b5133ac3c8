package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var errNoChecker = errors.New("dependency not configured")

type RouterConfig struct {
	Scheduler    Scheduler
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       *zap.Logger
	RateLimitRPM int
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if cfg.RateLimitRPM > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPM, time.Minute))
	}

	health := NewHealthHandler(postgresChecker(cfg.PgPool), redisChecker(cfg.Redis), cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Scheduler
	r.Post("/availability/check", checkAvailabilityHandler(svc, log))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", createSessionHandler(svc, log))
		r.Post("/bulk", scheduleBulkHandler(svc, log))
		r.Get("/{id}", getSessionHandler(svc, log))
		r.Post("/{id}/{action}", transitionSessionHandler(svc, log))
	})

	r.Route("/therapists/{id}", func(r chi.Router) {
		r.Get("/sessions", listTherapistSessionsHandler(svc, log))
		r.Get("/schedule", getScheduleHandler(svc, log))
		r.Put("/schedule", replaceScheduleHandler(svc, log))
	})

	return r
}

func postgresChecker(pool *pgxpool.Pool) Checker {
	if pool == nil {
		return nil
	}
	return pool.Ping
}

func redisChecker(client *redis.Client) Checker {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
