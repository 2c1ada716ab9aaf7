package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poisonednumber/scanner-map/internal/database"
)

// TalkgroupsHandler serves `GET /api/talkgroups` (spec.md §6).
type TalkgroupsHandler struct {
	db *database.DB
}

func NewTalkgroupsHandler(db *database.DB) *TalkgroupsHandler {
	return &TalkgroupsHandler{db: db}
}

func (h *TalkgroupsHandler) ListTalkgroups(w http.ResponseWriter, r *http.Request) {
	tgs, err := h.db.ListTalkgroups(r.Context())
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to list talkgroups")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"talkgroups": tgs})
}

// Routes registers talkgroup routes on the given router.
func (h *TalkgroupsHandler) Routes(r chi.Router) {
	r.Get("/api/talkgroups", h.ListTalkgroups)
}
