package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poisonednumber/scanner-map/internal/summarize"
)

// SummaryHandler serves the periodic summariser's latest snapshot as JSON
// (spec.md §4.6 step 5: "a JSON file served to the web client").
type SummaryHandler struct {
	store *summarize.LatestStore
}

func NewSummaryHandler(store *summarize.LatestStore) *SummaryHandler {
	return &SummaryHandler{store: store}
}

func (h *SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.store.Get())
}

func (h *SummaryHandler) Routes(r chi.Router) {
	r.Get("/api/summary", h.ServeHTTP)
}
