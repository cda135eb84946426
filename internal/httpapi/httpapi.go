// Package httpapi serves the HTTP side of Frinny: the WebSocket upgrade at
// the root, the fallback routes clients use when the socket is unavailable,
// the probes and the metrics scrape endpoint.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Monterroso/Frinny-Backend/internal/feedback"
	"github.com/Monterroso/Frinny-Backend/internal/health"
	"github.com/Monterroso/Frinny-Backend/internal/observe"
)

// maxBodyBytes caps a fallback request body.
const maxBodyBytes = 1 << 20

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Endpoints returns the socket and HTTP base URLs advertised to clients in
// env.
func Endpoints(env string) map[string][]string {
	if strings.EqualFold(env, EnvProduction) {
		return map[string][]string{
			"ws":   {"wss://api.frinny.ai", "ws://api.frinny.ai"},
			"http": {"https://api.frinny.ai", "http://api.frinny.ai"},
		}
	}
	return map[string][]string{
		"ws":   {"ws://localhost:5001", "ws://127.0.0.1:5001"},
		"http": {"http://localhost:5001", "http://127.0.0.1:5001"},
	}
}

// Config holds the dependencies of the HTTP handler.
type Config struct {
	// Environment selects the advertised endpoints.
	Environment string

	// Feedback receives POST /api/feedback bodies. Nil keeps them in memory.
	Feedback feedback.Sink

	// Health serves /healthz and /readyz. Nil registers a checker-less handler.
	Health *health.Handler

	// Socket, when set, serves WebSocket upgrades at "/" and "/ws".
	Socket http.Handler

	// Metrics is used by the request middleware. Nil uses the defaults.
	Metrics *observe.Metrics

	// MetricsHandler serves /metrics. Nil uses the default Prometheus
	// registry, which the OpenTelemetry exporter writes to.
	MetricsHandler http.Handler

	Now func() time.Time
}

type api struct {
	env       string
	endpoints map[string][]string
	feedback  feedback.Sink
	now       func() time.Time
}

// New builds the routed and instrumented handler.
func New(cfg Config) http.Handler {
	a := &api{
		env:       cfg.Environment,
		endpoints: Endpoints(cfg.Environment),
		feedback:  cfg.Feedback,
		now:       cfg.Now,
	}
	if a.env == "" {
		a.env = EnvDevelopment
	}
	if a.feedback == nil {
		a.feedback = &feedback.MemoryStore{}
	}
	if a.now == nil {
		a.now = time.Now
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.health)
	mux.HandleFunc("GET /api/health", a.apiHealth)
	mux.HandleFunc("POST /api/feedback", a.postFeedback)

	h := cfg.Health
	if h == nil {
		h = health.New()
	}
	h.Register(mux)

	mh := cfg.MetricsHandler
	if mh == nil {
		mh = promhttp.Handler()
	}
	mux.Handle("GET /metrics", mh)

	if cfg.Socket != nil {
		mux.Handle("GET /ws", cfg.Socket)
		mux.Handle("GET /{$}", cfg.Socket)
	}

	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return observe.Middleware(m)(mux)
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	health.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"environment": a.env,
	})
}

func (a *api) apiHealth(w http.ResponseWriter, _ *http.Request) {
	health.WriteJSON(w, http.StatusOK, map[string]any{
		"status":              "healthy",
		"available_endpoints": a.endpoints,
	})
}

func (a *api) postFeedback(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())

	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		log.Error("feedback body rejected", "err", err)
		a.internalError(w)
		return
	}
	userID, _ := body["userId"].(string)
	if strings.TrimSpace(userID) == "" {
		health.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": "userId is required",
		})
		return
	}

	e := feedback.Entry{
		Timestamp: a.now(),
		UserID:    userID,
		Source:    feedback.SourceHTTP,
		Data:      body,
	}
	e.RequestID, _ = body["request_id"].(string)
	e.ContextID, _ = body["context_id"].(string)
	e.Comment, _ = body["comment"].(string)
	if n, ok := body["rating"].(float64); ok {
		e.Rating = int(n)
	}
	if err := a.feedback.Save(r.Context(), e); err != nil {
		log.Error("feedback not recorded", slog.String("user_id", userID), slog.Any("err", err))
		a.internalError(w)
		return
	}
	log.Info("feedback received", "user_id", userID)
	health.WriteJSON(w, http.StatusOK, map[string]any{
		"status":             "success",
		"message":            "Feedback received",
		"fallback_endpoints": a.endpoints,
	})
}

func (a *api) internalError(w http.ResponseWriter) {
	health.WriteJSON(w, http.StatusInternalServerError, map[string]any{
		"status":             "error",
		"message":            "Internal server error",
		"fallback_endpoints": a.endpoints,
	})
}
