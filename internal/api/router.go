package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/slot-booking-service/internal/appointment"
)

type RouterConfig struct {
	Service      *appointment.Service
	Logger       *zap.Logger
	PgPool       *pgxpool.Pool // nil skips the readiness check
	Redis        *redis.Client // nil skips the readiness check
	Broker       BrokerHealth  // nil skips the readiness check
	Env          string
	Version      string
	CORSOrigins  []string
	RateLimitRPS int // requests per second per client IP; 0 disables
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
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Broker, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))
		}

		h := &handlers{svc: cfg.Service, log: log}

		r.Get("/specialists/{id}/availability", h.availability)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.createAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/{id}", h.getAppointment)
			r.Post("/{id}/cancel", h.cancelAppointment)
			r.Post("/{id}/confirm", h.confirmAppointment)
			r.Post("/{id}/complete", h.completeAppointment)
			r.Post("/{id}/no-show", h.markNoShow)
		})
	})

	return r
}
