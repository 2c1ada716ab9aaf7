package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CallUploader processes one call-upload request end to end (parse, auth,
// persist audio, insert Call, enqueue transcription) and reports the
// spec.md §4.1 response body and status.
type CallUploader interface {
	ProcessUpload(ctx context.Context, r *http.Request) (body string, status int, err error)
}

// UploadHandler serves `POST /api/call-upload` (spec.md §4.1).
type UploadHandler struct {
	uploader CallUploader
	log      zerolog.Logger
}

func NewUploadHandler(uploader CallUploader, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, log: log.With().Str("handler", "upload").Logger()}
}

func (h *UploadHandler) Routes(r chi.Router) {
	r.Post("/api/call-upload", h.Upload)
}

// Upload handles POST /api/call-upload. A request-scoped sync.Once keeps
// the response idempotent against duplicate response attempts within a
// single request, as spec.md §4.1 requires.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var once sync.Once
	respond := func(status int, body string) {
		once.Do(func() {
			w.WriteHeader(status)
			w.Write([]byte(body))
		})
	}

	body, status, err := h.uploader.ProcessUpload(r.Context(), r)
	if err != nil {
		h.log.Warn().Err(err).Int("status", status).Msg("call upload rejected")
		respond(status, err.Error())
		return
	}
	respond(status, body)
}
