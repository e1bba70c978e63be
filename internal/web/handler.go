// Package web serves the diagnosis API and a small dashboard.
package web

import (
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/database"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/metrics"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed static
var staticFiles embed.FS

// SessionStore is the persistence the session endpoints and the replay
// recorder need. *database.DB implements it.
type SessionStore interface {
	database.SessionWriter
	ListSessions(ctx context.Context, limit, offset int) ([]database.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*database.Session, error)
	ListEvents(ctx context.Context, id uuid.UUID) ([]database.StoredEvent, error)
}

// Options configures a Handler. Store and Metrics are optional.
type Options struct {
	Config  tdp.Config
	Store   SessionStore
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Handler serves the web dashboard and API endpoints.
type Handler struct {
	mux     *http.ServeMux
	cfg     tdp.Config
	store   SessionStore
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewHandler creates a new web handler with all routes registered.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		mux:     http.NewServeMux(),
		cfg:     opts.Config,
		store:   opts.Store,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}

	staticFS, _ := fs.Sub(staticFiles, "static")
	h.mux.Handle("GET /", http.FileServer(http.FS(staticFS)))
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("POST /api/diagnose", h.handleDiagnose)
	h.mux.HandleFunc("POST /api/plan", h.handlePlan)
	h.mux.HandleFunc("POST /api/replay", h.handleReplay)
	h.mux.HandleFunc("GET /api/sessions", h.handleListSessions)
	h.mux.HandleFunc("GET /api/sessions/{id}", h.handleGetSession)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics.Handler())
	}

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if p, ok := h.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, status)
}
