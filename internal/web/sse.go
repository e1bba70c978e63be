package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
)

// SSEObserver streams session events to a client as Server-Sent Events.
// Each frame carries the event type, a sequence id and the JSON event.
type SSEObserver struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
}

// NewSSEObserver sets the event-stream headers on w and returns an observer
// writing to it, or nil if w cannot flush.
func NewSSEObserver(w http.ResponseWriter) *SSEObserver {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return &SSEObserver{w: w, flusher: f}
}

func (o *SSEObserver) Emit(ev tdp.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	o.frame(string(ev.Type), data)
}

// Error ends the stream with an error frame.
func (o *SSEObserver) Error(msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})
	o.frame("error", data)
}

func (o *SSEObserver) frame(event string, data []byte) {
	o.seq++
	_, _ = fmt.Fprintf(o.w, "id: %d\nevent: %s\ndata: %s\n\n", o.seq, event, data)
	o.flusher.Flush()
}
