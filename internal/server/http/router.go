package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Broker reports whether notifications can currently be delivered.
type Broker interface {
	Available() bool
}

// Pinger checks a storage backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps collects everything NewRouter wires together.
type RouterDeps struct {
	Handler  *Handler
	Verifier Verifier
	Log      *zap.Logger

	CORSOrigin  string
	RateLimiter *RateLimiter // nil disables per-IP limiting
	Recorder    HTTPRecorder // optional
	Metrics     http.Handler // optional, served at /metrics
	Broker      Broker       // optional, reported by /healthz
	DB          Pinger       // optional, checked by /healthz
}

// NewRouter builds the API router.
//
// Middleware order: Logging -> Recover -> CORS -> RateLimit, so recovered
// panics are still logged and counted as 500s. The /api routes other than
// login and registration additionally require a bearer token.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(Logging(d.Log, d.Recorder))
	r.Use(Recover(d.Log))
	r.Use(CORS(d.CORSOrigin))

	r.Get("/healthz", healthz(d.Broker, d.DB))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	h := d.Handler
	r.Group(func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Middleware)
		}

		r.Post("/api/auth/login", h.Login)
		r.Post("/api/users/register", h.Register)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(d.Verifier))

			r.Get("/api/users", h.ListUsers)

			r.Route("/api/tasks", func(r chi.Router) {
				r.Get("/", h.ListTasks)
				r.Post("/", h.CreateTask)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetTask)
					r.Put("/", h.UpdateTask)
					r.Delete("/", h.DeleteTask)
					r.Post("/assign/{assigneeId}", h.AssignTask)
				})
			})
		})
	})

	return r
}

// healthz reports liveness. A broker outage only degrades notifications, so
// it never fails the check; an unreachable database does.
func healthz(b Broker, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok", "broker": "disabled"}
		if b != nil {
			body["broker"] = "down"
			if b.Available() {
				body["broker"] = "up"
			}
		}
		code := http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			body["database"] = "up"
			if err := db.Ping(ctx); err != nil {
				body["database"] = "down"
				body["status"] = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, body)
	}
}
