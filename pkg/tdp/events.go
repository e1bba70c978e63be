package tdp

import (
	"time"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
)

// EventType names a step of a session.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventDiagnose     EventType = "diagnose"
	EventPlan         EventType = "plan"
	EventTest         EventType = "test"
	EventUpdate       EventType = "update"
	EventDone         EventType = "done"
)

// Event is a single progress update emitted by a Runner.
type Event struct {
	Type          EventType             `json:"type"`
	SessionID     string                `json:"session_id"`
	Time          time.Time             `json:"time"`
	Iteration     int                   `json:"iteration,omitempty"`
	MaxIterations int                   `json:"max,omitempty"`
	Entropy       float64               `json:"entropy"`
	Diagnoses     []diagnosis.Diagnosis `json:"diagnoses,omitempty"`
	Statistics    *planner.Statistics   `json:"statistics,omitempty"`
	Test          string                `json:"test,omitempty"`
	InfoGain      float64               `json:"info_gain,omitempty"`
	Gains         []planner.Gain        `json:"gains,omitempty"`
	Random        bool                  `json:"random,omitempty"`
	Passed        *bool                 `json:"passed,omitempty"`
	Observed      int                   `json:"observed,omitempty"`
	Pool          int                   `json:"pool,omitempty"`
	Outcome       *Outcome              `json:"outcome,omitempty"` // set on "done"
}

// Observer receives events while a session runs. Emit is called from the
// goroutine running the session and must not block for long.
type Observer interface {
	Emit(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

// Emit calls f.
func (f ObserverFunc) Emit(ev Event) { f(ev) }

// MultiObserver fans events out to every non-nil observer in order.
type MultiObserver []Observer

// Emit forwards ev to each observer.
func (m MultiObserver) Emit(ev Event) {
	for _, o := range m {
		if o != nil {
			o.Emit(ev)
		}
	}
}
