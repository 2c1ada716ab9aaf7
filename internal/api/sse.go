package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poisonednumber/scanner-map/internal/livefeed"
)

// LiveFeedHandler streams livefeed.Bus events to clients as Server-Sent
// Events, per spec.md §4.5. Each connection is its own subscriber; the
// handler holds the connection open until the client disconnects or the
// request context is cancelled by server shutdown.
type LiveFeedHandler struct {
	bus *livefeed.Bus
}

func NewLiveFeedHandler(bus *livefeed.Bus) *LiveFeedHandler {
	return &LiveFeedHandler{bus: bus}
}

func (h *LiveFeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev.Call)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

func (h *LiveFeedHandler) Routes(r chi.Router) {
	// Path ends in "events/stream" so api.ResponseTimeout's streaming-route
	// exemption applies and doesn't clip this long-lived connection.
	r.Get("/api/live-feed/events/stream", h.ServeHTTP)
}
