package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/database"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/gzoltar"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/oracle"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// catalogEntry is an extra candidate test with its estimated trace.
type catalogEntry struct {
	Name  string   `json:"name"`
	Trace []string `json:"trace"`
}

// sessionRequest is the body of the diagnose, plan and replay endpoints.
// Observe lists the initially observed tests by name or 1-based index;
// empty means all tests of the spectrum.
type sessionRequest struct {
	Elements      []string            `json:"elements"`
	Tests         []coverage.TestCase `json:"tests"`
	Matrix        [][]int             `json:"matrix"`
	Observe       []string            `json:"observe,omitempty"`
	Catalog       []catalogEntry      `json:"catalog,omitempty"`
	MaxIterations int                 `json:"max_iterations,omitempty"`
}

type diagnoseResponse struct {
	Diagnoses  []diagnosis.Diagnosis `json:"diagnoses"`
	Statistics planner.Statistics    `json:"statistics"`
	Conflicts  int                   `json:"conflicts"`
}

type planResponse struct {
	diagnoseResponse
	Selection *planner.Selection `json:"selection"`
}

// state decodes a session request and builds its initial state. On failure
// it writes the error response and returns false.
func (h *Handler) state(w http.ResponseWriter, r *http.Request) (sessionRequest, coverage.Spectrum, tdp.State, bool) {
	var req sessionRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, coverage.Spectrum{}, tdp.State{}, false
	}
	spectrum, err := gzoltar.FromJSON(req.Elements, req.Tests, req.Matrix)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, coverage.Spectrum{}, tdp.State{}, false
	}

	extra := make([]planner.AvailableTest, 0, len(req.Catalog))
	for _, c := range req.Catalog {
		extra = append(extra, planner.AvailableTest{Name: c.Name, EstimatedTrace: coverage.NewElementSet(c.Trace...)})
	}
	st, err := tdp.NewState(spectrum, tdp.Options{Observe: req.Observe, Catalog: extra})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, coverage.Spectrum{}, tdp.State{}, false
	}
	return req, spectrum, st, true
}

func (h *Handler) diagnose(w http.ResponseWriter, r *http.Request, st tdp.State) (diagnoseResponse, bool) {
	cfg := h.config()
	ds, err := tdp.Diagnose(r.Context(), st, cfg.DiagnosisOptions())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return diagnoseResponse{}, false
	}
	return diagnoseResponse{
		Diagnoses:  ds,
		Statistics: planner.Summarize(ds, cfg.ConvergenceThreshold),
		Conflicts:  len(st.Conflicts()),
	}, true
}

func (h *Handler) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	_, _, st, ok := h.state(w, r)
	if !ok {
		return
	}
	resp, ok := h.diagnose(w, r, st)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	_, _, st, ok := h.state(w, r)
	if !ok {
		return
	}
	resp, ok := h.diagnose(w, r, st)
	if !ok {
		return
	}

	cfg := h.config()
	sel, err := planner.New(st.Stats(), planner.Options{
		Workers: cfg.Workers,
		Rand:    cfg.Rand,
		Logger:  h.log,
	}).SelectBest(r.Context(), st.Pool(), resp.Diagnoses)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, planResponse{diagnoseResponse: resp, Selection: sel})
}

// handleReplay runs a full session against the outcomes recorded in the
// request's spectrum and streams its events.
func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	req, spectrum, st, ok := h.state(w, r)
	if !ok {
		return
	}

	sse := NewSSEObserver(w)
	if sse == nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	observers := tdp.MultiObserver{sse}
	if h.metrics != nil {
		observers = append(observers, h.metrics)
	}
	if h.store != nil {
		observers = append(observers, database.NewRecorder(r.Context(), h.store, "api/replay", h.log))
	}

	cfg := h.config()
	// Clients may lower the budget, never raise it.
	if req.MaxIterations > 0 && req.MaxIterations < cfg.MaxIterations {
		cfg.MaxIterations = req.MaxIterations
	}
	runner := &tdp.Runner{
		Oracle:   oracle.NewReplay(spectrum),
		Observer: observers,
		Logger:   h.log,
		Config:   cfg,
	}
	if _, err := runner.Run(r.Context(), st); err != nil {
		sse.Error(err.Error())
	}
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := h.store.ListSessions(r.Context(), limit, offset)
	if err != nil {
		h.log.Error("failed to list sessions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if sessions == nil {
		sessions = []database.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	s, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	events, err := h.store.ListEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if events == nil {
		events = []database.StoredEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": s, "events": events})
}

func (h *Handler) config() tdp.Config {
	cfg := h.cfg
	d := tdp.DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = d.MaxIterations
	}
	if cfg.ConvergenceThreshold <= 0 {
		cfg.ConvergenceThreshold = d.ConvergenceThreshold
	}
	return cfg
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}
