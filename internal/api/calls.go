package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/poisonednumber/scanner-map/internal/database"
	"github.com/poisonednumber/scanner-map/internal/storage"
)

// CallsHandler serves the read endpoints of spec.md §6.
type CallsHandler struct {
	db    *database.DB
	store storage.AudioStore
}

func NewCallsHandler(db *database.DB, store storage.AudioStore) *CallsHandler {
	return &CallsHandler{db: db, store: store}
}

// ListCalls handles `GET /api/calls?hours=H` — calls within the last H
// hours that have non-null coordinates (spec.md §6).
func (h *CallsHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hours = n
		}
	}
	calls, err := h.db.CallsSinceHours(r.Context(), hours)
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to list calls")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

// GetCallDetails handles `GET /api/call/:id/details`.
func (h *CallsHandler) GetCallDetails(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "invalid call id")
		return
	}
	call, err := h.db.GetCall(r.Context(), id)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "call not found")
		return
	}
	WriteJSON(w, http.StatusOK, call)
}

// GetAdditionalTranscriptions handles
// `GET /api/additional-transcriptions/:callId?skip=K`.
func (h *CallsHandler) GetAdditionalTranscriptions(w http.ResponseWriter, r *http.Request) {
	callID, err := PathInt64(r, "callId")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "invalid call id")
		return
	}
	skip := 0
	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			skip = n
		}
	}
	calls, err := h.db.AdditionalTranscriptions(r.Context(), callID, skip)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "call not found")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

// GetTalkgroupCalls handles
// `GET /api/talkgroup/:id/calls?sinceId&limit&offset`.
func (h *CallsHandler) GetTalkgroupCalls(w http.ResponseWriter, r *http.Request) {
	tgID := chi.URLParam(r, "id")
	var sinceID int64
	if v := r.URL.Query().Get("sinceId"); v != "" {
		sinceID, _ = strconv.ParseInt(v, 10, 64)
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	calls, err := h.db.TalkgroupCalls(r.Context(), tgID, sinceID, limit, offset)
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to list calls")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

// GetAudio handles `GET /audio/:id`. Content type is audio/mp4 for a
// `.m4a` key, else audio/mpeg (spec.md §6).
func (h *CallsHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "invalid call id")
		return
	}
	call, err := h.db.GetCall(r.Context(), id)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "call not found")
		return
	}

	rc, err := h.store.Open(r.Context(), call.AudioKey)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "audio not found")
		return
	}
	defer rc.Close()

	if strings.HasSuffix(call.AudioKey, ".m4a") {
		w.Header().Set("Content-Type", "audio/mp4")
	} else {
		w.Header().Set("Content-Type", "audio/mpeg")
	}
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

// Routes registers call routes on the given router.
func (h *CallsHandler) Routes(r chi.Router) {
	r.Get("/api/calls", h.ListCalls)
	r.Get("/api/call/{id}/details", h.GetCallDetails)
	r.Get("/api/additional-transcriptions/{callId}", h.GetAdditionalTranscriptions)
	r.Get("/api/talkgroup/{id}/calls", h.GetTalkgroupCalls)
	r.Get("/audio/{id}", h.GetAudio)
}
