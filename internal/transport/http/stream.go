package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// streamConsultation pushes progress events as server-sent events until
// the consultation reaches a terminal state or the client disconnects.
func (h *Handlers) streamConsultation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range h.Notifier.Watch(r.Context(), c.ID) {
		payload, err := json.Marshal(ev)
		if err != nil {
			slog.Warn("marshal progress event", "consultation_id", c.ID, "err", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}
