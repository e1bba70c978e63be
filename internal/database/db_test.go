package database

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDB returns a connected, migrated DB or skips if DATABASE_URL is not set.
func testDB(t *testing.T) *DB {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	return connect(t, dbURL)
}

func connect(t *testing.T, dbURL string) *DB {
	t.Helper()
	require.NoError(t, Migrate(dbURL))

	db, err := New(context.Background(), dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleOutcome(id uuid.UUID) *tdp.Outcome {
	best := diagnosis.New(0.9, "Calc#add")
	return &tdp.Outcome{
		SessionID:  id.String(),
		Status:     tdp.StatusConverged,
		Iterations: 2,
		Diagnoses:  []diagnosis.Diagnosis{best, diagnosis.New(0.1, "Calc#sub")},
		Best:       &best,
		Statistics: planner.Statistics{Count: 2, Entropy: 0.325},
	}
}

func TestMigrations(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	// Migrations are idempotent; MigrateDown is left out so parallel
	// packages sharing the database are not disturbed.
	require.NoError(t, Migrate(dbURL))
	require.NoError(t, Migrate(dbURL))

	version, dirty, err := SchemaVersion(dbURL)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestSessionLifecycle(t *testing.T) {
	runSessionLifecycle(t, testDB(t))
}

func runSessionLifecycle(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()

	created, err := db.CreateSession(ctx, id, "sfl/txt", 4, 2)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, id, created.ID)
	assert.Nil(t, created.Status)
	assert.Nil(t, created.FinishedAt)

	require.NoError(t, db.AppendEvent(ctx, id, tdp.Event{Type: tdp.EventSessionStart, SessionID: id.String()}))
	require.NoError(t, db.AppendEvent(ctx, id, tdp.Event{Type: tdp.EventPlan, SessionID: id.String(), Iteration: 1, Test: "T#a"}))
	require.NoError(t, db.FinishSession(ctx, id, sampleOutcome(id)))

	found, err := db.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.Status)
	assert.Equal(t, "converged", *found.Status)
	assert.Equal(t, 2, found.Iterations)
	assert.Equal(t, []string{"Calc#add"}, found.Best)
	require.NotNil(t, found.BestProbability)
	assert.InDelta(t, 0.9, *found.BestProbability, 1e-9)
	assert.NotNil(t, found.FinishedAt)
	assert.Contains(t, string(found.Outcome), `"status": "converged"`)

	events, err := db.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "session_start", events[0].Type)
	assert.Equal(t, "plan", events[1].Type)
	assert.Equal(t, 1, events[1].Iteration)

	list, err := db.ListSessions(ctx, 1000, 0)
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, id)

	missing, err := db.GetSession(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, db.FinishSession(ctx, uuid.New(), sampleOutcome(id)))
}

type fakeWriter struct {
	created  []uuid.UUID
	events   []tdp.EventType
	finished []tdp.Status
	err      error
}

func (f *fakeWriter) CreateSession(_ context.Context, id uuid.UUID, _ string, _, _ int) (*Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, id)
	return &Session{ID: id}, nil
}

func (f *fakeWriter) AppendEvent(_ context.Context, _ uuid.UUID, ev tdp.Event) error {
	f.events = append(f.events, ev.Type)
	return nil
}

func (f *fakeWriter) FinishSession(_ context.Context, _ uuid.UUID, out *tdp.Outcome) error {
	f.finished = append(f.finished, out.Status)
	return nil
}

func TestRecorder(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(context.Background(), w, "test", nil)
	id := uuid.New()

	r.Emit(tdp.Event{Type: tdp.EventSessionStart, SessionID: id.String()})
	r.Emit(tdp.Event{Type: tdp.EventDiagnose, SessionID: id.String()})
	r.Emit(tdp.Event{Type: tdp.EventDone, SessionID: id.String(), Outcome: sampleOutcome(id)})

	assert.Equal(t, []uuid.UUID{id}, w.created)
	assert.Equal(t, []tdp.EventType{tdp.EventSessionStart, tdp.EventDiagnose, tdp.EventDone}, w.events)
	assert.Equal(t, []tdp.Status{tdp.StatusConverged}, w.finished)
}

func TestRecorder_StopsAfterCreateFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("down")}
	r := NewRecorder(context.Background(), w, "test", nil)
	id := uuid.New().String()

	r.Emit(tdp.Event{Type: tdp.EventSessionStart, SessionID: id})
	r.Emit(tdp.Event{Type: tdp.EventDiagnose, SessionID: id})

	assert.Empty(t, w.events)
}

func TestRecorder_InvalidSessionID(t *testing.T) {
	w := &fakeWriter{}
	NewRecorder(context.Background(), w, "test", nil).Emit(tdp.Event{Type: tdp.EventDiagnose, SessionID: "nope"})
	assert.Empty(t, w.events)
}

func TestRecorder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &fakeWriter{}
	id := uuid.New()
	r := NewRecorder(ctx, w, "test", nil)
	r.Emit(tdp.Event{Type: tdp.EventSessionStart, SessionID: id.String()})
	assert.Equal(t, []uuid.UUID{id}, w.created)
}
