package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	logx "lightup/pkg/logx"
)

// RouterOption tunes NewRouter.
type RouterOption func(*handlers, *routerCfg)

type routerCfg struct {
	origins  []string
	profiler bool
	token    string
}

func WithHealth(fn HealthFunc) RouterOption {
	return func(h *handlers, _ *routerCfg) { h.health = fn }
}

func WithJobs(fn JobsFunc) RouterOption {
	return func(h *handlers, _ *routerCfg) { h.jobs = fn }
}

func WithCORSOrigins(origins []string) RouterOption {
	return func(_ *handlers, c *routerCfg) { c.origins = origins }
}

// WithProfiler mounts net/http/pprof under /debug. A non-empty token is
// required as "Authorization: Bearer <token>".
func WithProfiler(token string) RouterOption {
	return func(_ *handlers, c *routerCfg) {
		c.profiler = true
		c.token = token
	}
}

func WithNow(now func() time.Time) RouterOption {
	return func(h *handlers, _ *routerCfg) {
		if now != nil {
			h.now = now
		}
	}
}

// NewRouter builds the API handler.
func NewRouter(alarms Alarms, log logx.Logger, opts ...RouterOption) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handlers{alarms: alarms, now: time.Now, log: log}
	var cfg routerCfg
	for _, o := range opts {
		o(h, &cfg)
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	if len(cfg.origins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		}).Handler)
	}

	r.Get("/healthz", h.healthz)
	r.Route("/alarms", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.add)
		r.Delete("/", h.removeAll)
		r.Get("/active", h.active)
		r.Get("/running", h.running)
		r.Get("/next", h.next)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.edit)
		r.Delete("/{id}", h.remove)
	})
	r.Get("/alarms.ics", h.calendar)
	r.Get("/settings", h.settings)
	r.Put("/settings", h.putSettings)
	r.Post("/reconcile", h.reconcile)
	if cfg.profiler {
		r.With(bearer(cfg.token)).Mount("/debug", middleware.Profiler())
	}
	return r
}

func bearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := "Bearer " + token
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestID keeps a caller supplied id and otherwise assigns a UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
