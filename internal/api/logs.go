package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poisonednumber/scanner-map/internal/database"
)

// LogsHandler serves the append-only correction/deletion report endpoints
// of spec.md §6. Both accept an arbitrary JSON payload tied to an optional
// call id and never return anything but acknowledgement.
type LogsHandler struct {
	db *database.DB
}

func NewLogsHandler(db *database.DB) *LogsHandler {
	return &LogsHandler{db: db}
}

type logRequest struct {
	CallID  *int64          `json:"call_id"`
	Payload json.RawMessage `json:"payload"`
}

// Correction handles `POST /api/log/correction`.
func (h *LogsHandler) Correction(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return
	}
	if err := h.db.InsertCorrectionLog(r.Context(), req.CallID, req.Payload); err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to record correction")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Deletion handles `POST /api/log/deletion`.
func (h *LogsHandler) Deletion(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return
	}
	if err := h.db.InsertDeletionLog(r.Context(), req.CallID, req.Payload); err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to record deletion")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *LogsHandler) Routes(r chi.Router) {
	r.Post("/api/log/correction", h.Correction)
	r.Post("/api/log/deletion", h.Deletion)
}
