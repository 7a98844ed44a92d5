package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Config controls server construction. CORSAllowedOrigins applies only to
// this edge's TLS termination — it has no bearing on the upstream-TLS trust
// decision made per credential in the service adapters.
type Config struct {
	CORSAllowedOrigins []string
}

// Server is the gateway's HTTP edge: the ambient middleware chain and the
// three ops endpoints (/healthz, /readyz, /metrics). Domain routes
// (GET/POST /gateway/{endpoint_id}) are mounted onto Router by the caller,
// which keeps this package free of any knowledge of the dispatcher or the
// metadata store.
type Server struct {
	Router *chi.Mux

	logger    *slog.Logger
	db        *pgxpool.Pool
	rdb       *redis.Client
	registry  *prometheus.Registry
	startedAt time.Time
}

// NewServer builds the chi router with the ambient middleware chain and
// mounts /healthz, /readyz, and /metrics.
func NewServer(cfg Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, registry *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		logger:    logger,
		db:        db,
		rdb:       rdb,
		registry:  registry,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler by delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = "unavailable: " + err.Error()
		ready = false
	} else {
		checks["database"] = "ok"
	}

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unavailable: " + err.Error()
		ready = false
	} else {
		checks["redis"] = "ok"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	Respond(w, status, map[string]any{
		"ready":  ready,
		"checks": checks,
		"uptime": time.Since(s.startedAt).String(),
	})
}
