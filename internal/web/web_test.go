package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/database"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/metrics"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// suiteBody is a spectrum over A, B, C where f1 and f2 fail and both cover A.
func suiteBody(observe ...string) string {
	req := map[string]any{
		"elements": []string{"A", "B", "C"},
		"tests": []map[string]any{
			{"name": "f1", "failed": true},
			{"name": "f2", "failed": true},
			{"name": "p1", "failed": false},
			{"name": "p2", "failed": false},
		},
		"matrix": [][]int{{1, 1, 0}, {1, 0, 0}, {0, 1, 1}, {0, 0, 1}},
	}
	if len(observe) > 0 {
		req["observe"] = observe
	}
	data, _ := json.Marshal(req)
	return string(data)
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type sseEvent struct {
	Type    string `json:"type"`
	Test    string `json:"test"`
	Outcome *struct {
		Status string `json:"status"`
		Best   *struct {
			Components []string `json:"components"`
		} `json:"best"`
	} `json:"outcome"`
}

func readSSEEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var events []sseEvent
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		var ev sseEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &ev), "raw: %s", payload)
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(NewHandler(Options{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestDashboard(t *testing.T) {
	srv := httptest.NewServer(NewHandler(Options{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDiagnose(t *testing.T) {
	srv := httptest.NewServer(NewHandler(Options{}))
	defer srv.Close()

	resp := post(t, srv, "/api/diagnose", suiteBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body diagnoseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Diagnoses, 1)
	assert.Equal(t, []string{"A"}, body.Diagnoses[0].Components)
	assert.InDelta(t, 1.0, body.Diagnoses[0].Probability, 1e-9)
	assert.True(t, body.Statistics.Complete)
	assert.Equal(t, 2, body.Conflicts)
}

func TestDiagnose_BadRequests(t *testing.T) {
	srv := httptest.NewServer(NewHandler(Options{}))
	defer srv.Close()

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"bad cell", `{"elements":["A"],"tests":[{"name":"t","failed":true}],"matrix":[[2]]}`},
		{"dimension mismatch", `{"elements":["A"],"tests":[{"name":"t","failed":true}],"matrix":[]}`},
		{"unknown observe", suiteBody("nope")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv, "/api/diagnose", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestPlan(t *testing.T) {
	srv := httptest.NewServer(NewHandler(Options{}))
	defer srv.Close()

	resp := post(t, srv, "/api/plan", suiteBody("f1", "p1"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Diagnoses []json.RawMessage `json:"diagnoses"`
		Selection *struct {
			Test struct {
				Name string `json:"name"`
			} `json:"test"`
			InfoGain float64 `json:"info_gain"`
			Gains    []struct {
				Test string `json:"test"`
			} `json:"gains"`
		} `json:"selection"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Diagnoses, 2)
	require.NotNil(t, body.Selection)
	assert.Equal(t, "f2", body.Selection.Test.Name)
	assert.Greater(t, body.Selection.InfoGain, 0.0)
	assert.Len(t, body.Selection.Gains, 2)
}

func TestPlan_NothingToPlan(t *testing.T) {
	srv := httptest.NewServer(NewHandler(Options{}))
	defer srv.Close()

	resp := post(t, srv, "/api/plan", suiteBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "null", string(body["selection"]))
}

func TestReplaySSE(t *testing.T) {
	m := metrics.New()
	srv := httptest.NewServer(NewHandler(Options{Metrics: m}))
	defer srv.Close()

	resp := post(t, srv, "/api/replay", suiteBody("f1", "p1"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSEEvents(t, resp)
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"session_start", "diagnose", "plan", "test", "update", "diagnose", "done"}, types)
	assert.Equal(t, "f2", events[2].Test)

	last := events[len(events)-1]
	require.NotNil(t, last.Outcome)
	assert.Equal(t, "converged", last.Outcome.Status)
	require.NotNil(t, last.Outcome.Best)
	assert.Equal(t, []string{"A"}, last.Outcome.Best.Components)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
}

func TestReplay_MaxIterationsCappedByConfig(t *testing.T) {
	srv := httptest.NewServer(NewHandler(Options{Config: tdp.Config{MaxIterations: 1}}))
	defer srv.Close()

	// f2 passes here, so one test cannot single out A or B.
	data, err := json.Marshal(map[string]any{
		"elements": []string{"A", "B", "C"},
		"tests": []map[string]any{
			{"name": "f1", "failed": true},
			{"name": "f2", "failed": false},
			{"name": "p1", "failed": false},
			{"name": "p2", "failed": false},
		},
		"matrix":         [][]int{{1, 1, 0}, {1, 0, 0}, {0, 1, 1}, {0, 0, 1}},
		"observe":        []string{"f1"},
		"max_iterations": 5,
	})
	require.NoError(t, err)

	resp := post(t, srv, "/api/replay", string(data))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readSSEEvents(t, resp)
	var tests int
	for _, ev := range events {
		if ev.Type == "test" {
			tests++
		}
	}
	assert.Equal(t, 1, tests)
	last := events[len(events)-1]
	require.NotNil(t, last.Outcome)
	assert.Equal(t, "budget_exceeded", last.Outcome.Status)
}

func TestReplay_BadRequest(t *testing.T) {
	srv := httptest.NewServer(NewHandler(Options{}))
	defer srv.Close()

	resp := post(t, srv, "/api/replay", "[]")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type fakeStore struct {
	sessions map[uuid.UUID]*database.Session
	events   map[uuid.UUID][]database.StoredEvent
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[uuid.UUID]*database.Session{}, events: map[uuid.UUID][]database.StoredEvent{}}
}

func (f *fakeStore) CreateSession(_ context.Context, id uuid.UUID, source string, observed, pool int) (*database.Session, error) {
	s := &database.Session{ID: id, Source: source, Observed: observed, Pool: pool}
	f.sessions[id] = s
	return s, nil
}

func (f *fakeStore) AppendEvent(_ context.Context, id uuid.UUID, ev tdp.Event) error {
	f.events[id] = append(f.events[id], database.StoredEvent{Type: string(ev.Type), Iteration: ev.Iteration})
	return nil
}

func (f *fakeStore) FinishSession(_ context.Context, id uuid.UUID, out *tdp.Outcome) error {
	status := string(out.Status)
	f.sessions[id].Status = &status
	f.sessions[id].Iterations = out.Iterations
	return nil
}

func (f *fakeStore) ListSessions(_ context.Context, _, _ int) ([]database.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []database.Session
	for _, s := range f.sessions {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeStore) GetSession(_ context.Context, id uuid.UUID) (*database.Session, error) {
	return f.sessions[id], nil
}

func (f *fakeStore) ListEvents(_ context.Context, id uuid.UUID) ([]database.StoredEvent, error) {
	return f.events[id], nil
}

func TestSessions_RecordedReplay(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewServer(NewHandler(Options{Store: store}))
	defer srv.Close()

	resp := post(t, srv, "/api/replay", suiteBody("f1", "p1"))
	readSSEEvents(t, resp)

	list, err := http.Get(srv.URL + "/api/sessions")
	require.NoError(t, err)
	defer list.Body.Close()
	require.Equal(t, http.StatusOK, list.StatusCode)

	var listed struct {
		Sessions []database.Session `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&listed))
	require.Len(t, listed.Sessions, 1)
	id := listed.Sessions[0].ID
	require.NotNil(t, listed.Sessions[0].Status)
	assert.Equal(t, "converged", *listed.Sessions[0].Status)
	assert.Equal(t, "api/replay", listed.Sessions[0].Source)

	get, err := http.Get(srv.URL + "/api/sessions/" + id.String())
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	var detail struct {
		Events []database.StoredEvent `json:"events"`
	}
	require.NoError(t, json.NewDecoder(get.Body).Decode(&detail))
	assert.Len(t, detail.Events, 7)
}

func TestSessions_Errors(t *testing.T) {
	tests := []struct {
		name   string
		store  SessionStore
		path   string
		status int
	}{
		{"no store list", nil, "/api/sessions", http.StatusServiceUnavailable},
		{"no store get", nil, "/api/sessions/" + uuid.NewString(), http.StatusServiceUnavailable},
		{"bad id", newFakeStore(), "/api/sessions/nope", http.StatusBadRequest},
		{"missing", newFakeStore(), "/api/sessions/" + uuid.NewString(), http.StatusNotFound},
		{"bad limit", newFakeStore(), "/api/sessions?limit=x", http.StatusBadRequest},
		{"negative offset", newFakeStore(), "/api/sessions?offset=-1", http.StatusBadRequest},
		{"store failure", &fakeStore{err: errors.New("down")}, "/api/sessions", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(NewHandler(Options{Store: tt.store}))
			defer srv.Close()

			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestSSEObserver_Frames(t *testing.T) {
	rec := httptest.NewRecorder()
	sse := NewSSEObserver(rec)
	require.NotNil(t, sse)

	sse.Emit(tdp.Event{Type: tdp.EventSessionStart})
	sse.Error("boom")

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[0], "id: 1\nevent: session_start\ndata: {"), frames[0])
	assert.Equal(t, "id: 2\nevent: error\ndata: {\"error\":\"boom\"}", frames[1])
}
