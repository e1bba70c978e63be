package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Emit(t *testing.T) {
	m := New()
	pass, fail := true, false

	m.Emit(tdp.Event{Type: tdp.EventSessionStart})
	m.Emit(tdp.Event{Type: tdp.EventPlan, Random: true})
	m.Emit(tdp.Event{Type: tdp.EventPlan})
	m.Emit(tdp.Event{Type: tdp.EventTest, Passed: &pass})
	m.Emit(tdp.Event{Type: tdp.EventTest, Passed: &fail})
	m.Emit(tdp.Event{Type: tdp.EventDone, Outcome: &tdp.Outcome{
		Status:     tdp.StatusConverged,
		Iterations: 2,
		Diagnoses:  []diagnosis.Diagnosis{diagnosis.New(1, "A")},
		Statistics: planner.Statistics{Count: 1},
		Executed:   []tdp.TestResult{{Name: "a", Duration: time.Second}, {Name: "b", Duration: time.Second}},
	}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.randomPicks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tests.WithLabelValues("pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tests.WithLabelValues("fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("converged")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessions.WithLabelValues("interrupted")))
}

func TestMetrics_DoneWithoutOutcome(t *testing.T) {
	m := New()
	m.Emit(tdp.Event{Type: tdp.EventDone})
	assert.Equal(t, 0, testutil.CollectAndCount(m.sessions))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Emit(tdp.Event{Type: tdp.EventSessionStart})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tdp_sessions_started_total 1")
}
