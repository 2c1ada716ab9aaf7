package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/poisonednumber/scanner-map/internal/database"
)

// MarkersHandler serves the admin marker-mutation endpoints of spec.md §6.
// Both routes are write operations and rely on the server's WriteAuth
// middleware for authorization; the handler itself only touches coordinates.
type MarkersHandler struct {
	db *database.DB
}

func NewMarkersHandler(db *database.DB) *MarkersHandler {
	return &MarkersHandler{db: db}
}

type setLocationRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SetLocation handles `PUT /api/markers/:id/location`.
func (h *MarkersHandler) SetLocation(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "invalid call id")
		return
	}
	var req setLocationRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid request body")
		return
	}
	if err := h.db.SetMarkerLocation(r.Context(), id, req.Lat, req.Lon); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "call not found")
			return
		}
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to update marker")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Delete handles `DELETE /api/markers/:id` — clears a call's map presence
// without deleting the underlying Call row.
func (h *MarkersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "invalid call id")
		return
	}
	if err := h.db.DeleteMarker(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "call not found")
			return
		}
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to delete marker")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *MarkersHandler) Routes(r chi.Router) {
	r.Put("/api/markers/{id}/location", h.SetLocation)
	r.Delete("/api/markers/{id}", h.Delete)
}
