package database

import (
	"context"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionWriter is the part of DB a Recorder needs.
type SessionWriter interface {
	CreateSession(ctx context.Context, id uuid.UUID, source string, observed, pool int) (*Session, error)
	AppendEvent(ctx context.Context, id uuid.UUID, ev tdp.Event) error
	FinishSession(ctx context.Context, id uuid.UUID, out *tdp.Outcome) error
}

var _ SessionWriter = (*DB)(nil)

// Recorder is a tdp.Observer that persists sessions. Store failures are
// logged and never interrupt the session.
type Recorder struct {
	store  SessionWriter
	ctx    context.Context
	source string
	log    *zap.Logger

	failed bool
}

// NewRecorder returns a Recorder writing to store. source labels the input
// the sessions were started from.
func NewRecorder(ctx context.Context, store SessionWriter, source string, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, ctx: ctx, source: source, log: log}
}

// Emit persists ev.
func (r *Recorder) Emit(ev tdp.Event) {
	id, err := uuid.Parse(ev.SessionID)
	if err != nil {
		r.log.Warn("event without a valid session id", zap.String("session", ev.SessionID))
		return
	}
	// Writes outlive a cancelled session so that its outcome is kept.
	ctx := context.WithoutCancel(r.ctx)

	if ev.Type == tdp.EventSessionStart {
		r.failed = false
		if _, err := r.store.CreateSession(ctx, id, r.source, ev.Observed, ev.Pool); err != nil {
			r.fail("create session", err)
			return
		}
	}
	if r.failed {
		return
	}
	if err := r.store.AppendEvent(ctx, id, ev); err != nil {
		r.fail("append event", err)
		return
	}
	if ev.Type == tdp.EventDone && ev.Outcome != nil {
		if err := r.store.FinishSession(ctx, id, ev.Outcome); err != nil {
			r.fail("finish session", err)
		}
	}
}

func (r *Recorder) fail(op string, err error) {
	r.failed = true
	r.log.Warn("failed to record session", zap.String("op", op), zap.Error(err))
}
