// Package ingest implements the call-upload contract (spec.md §4.1) and the
// in-process fan-out of an accepted call into transcription and, eventually,
// address extraction.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/poisonednumber/scanner-map/internal/config"
	"github.com/poisonednumber/scanner-map/internal/database"
	"github.com/poisonednumber/scanner-map/internal/storage"
	"github.com/poisonednumber/scanner-map/internal/transcribe"
)

// maxUploadBytes bounds the multipart body the ingestion endpoint will parse.
const maxUploadBytes = 64 << 20

// fromUnitRe pulls a trailing `_FROM_<digits>` out of an SDRTrunk filename
// when the dialect didn't supply a source field (spec.md §4.1).
var fromUnitRe = regexp.MustCompile(`_FROM_(\d+)`)

// Transcriber is the subset of transcribe.WorkerPool the uploader needs.
type Transcriber interface {
	Enqueue(job transcribe.Job) bool
}

// PostTranscribe runs whatever happens after a call gets its transcription
// text (address extraction today). Process is called synchronously on the
// transcription worker goroutine, under the job's 30s completion context,
// so a slow implementation delays that worker's next job.
type PostTranscribe interface {
	Process(ctx context.Context, callID int64, talkgroupID, town, transcription string)
}

// FanOut publishes a finished call to the Discord per-talkgroup coalescer
// (spec.md §4.4). Unlike PostTranscribe it runs for every call, even ones
// with an empty transcription (spec.md §7: "Discord messages appear for
// every call with at least an empty or placeholder transcription").
type FanOut interface {
	Publish(ctx context.Context, call *database.Call)
}

// Uploader implements api.CallUploader: it owns the whole ingest contract
// from multipart form to persisted Call row and queued transcription job.
type Uploader struct {
	db             *database.DB
	store          storage.AudioStore
	transcriber    Transcriber
	postTranscribe PostTranscribe
	fanOut         FanOut
	log            zerolog.Logger
}

func NewUploader(db *database.DB, store storage.AudioStore, transcriber Transcriber, log zerolog.Logger) *Uploader {
	return &Uploader{db: db, store: store, transcriber: transcriber, log: log.With().Str("component", "uploader").Logger()}
}

// SetPostTranscribe wires the post-transcription hook. Separate from
// NewUploader because the hook (internal/extract.Extractor) is itself built
// from an LLM client and geocoder that may fail to initialize independently
// of the uploader's own dependencies; main.go decides whether ingestion
// should still run without it.
func (u *Uploader) SetPostTranscribe(p PostTranscribe) {
	u.postTranscribe = p
}

// SetFanOut wires the Discord fan-out hook, same rationale as
// SetPostTranscribe: the Discord bot may fail to connect independently of
// the uploader's own dependencies.
func (u *Uploader) SetFanOut(f FanOut) {
	u.fanOut = f
}

// dialect distinguishes the two upstream upload shapes (spec.md §4.1).
type dialect int

const (
	dialectRdioScanner dialect = iota
	dialectSDRTrunk
)

// parsedUpload holds every field the contract extracts from the multipart
// form, before the audio is persisted or the Call row inserted.
type parsedUpload struct {
	talkgroup string
	system    string
	source    string
	ts        time.Time
	errors    int
	spikes    int
	hasSignal bool
	audio     []byte
	ext       string
}

// ProcessUpload handles one `POST /api/call-upload` request end to end. It
// returns the response body and status code per spec.md §4.1; the caller
// (api.UploadHandler) writes them verbatim so the "responded" idempotence
// the contract requires lives entirely in the HTTP layer's sync.Once guard.
func (u *Uploader) ProcessUpload(ctx context.Context, r *http.Request) (body string, status int, err error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	isSDRTrunk := strings.Contains(strings.ToLower(r.Header.Get("User-Agent")), "sdrtrunk")

	key := formValue(r, "key")
	if key == "" {
		return "", http.StatusBadRequest, fmt.Errorf("missing key")
	}

	// SDRTrunk health probe: test=1 on an otherwise empty request is answered
	// after the key check alone; nothing is written to the database or the
	// audio store.
	if isSDRTrunk && formValue(r, "test") == "1" {
		if ok, authErr := u.authorize(ctx, key); authErr != nil {
			return "", http.StatusInternalServerError, authErr
		} else if !ok {
			return "", http.StatusUnauthorized, fmt.Errorf("invalid key")
		}
		return "incomplete call data: no talkgroup", http.StatusOK, nil
	}

	ok, err := u.authorize(ctx, key)
	if err != nil {
		return "", http.StatusInternalServerError, err
	}
	if !ok {
		return "", http.StatusUnauthorized, fmt.Errorf("invalid key")
	}

	d := dialectRdioScanner
	if isSDRTrunk {
		d = dialectSDRTrunk
	}

	parsed, err := u.parseFields(r, d)
	if err != nil {
		return "", http.StatusBadRequest, err
	}

	// .pcm is silently discarded: no record, no error, no persistence.
	if parsed.ext == "pcm" {
		return "Call imported successfully.", http.StatusOK, nil
	}
	if parsed.audio == nil {
		return "", http.StatusBadRequest, fmt.Errorf("no audio part present")
	}

	genKey := storage.GenerateKey(storage.KeyMeta{
		Timestamp: parsed.ts,
		System:    parsed.system,
		Talkgroup: parsed.talkgroup,
		Source:    parsed.source,
		Ext:       parsed.ext,
	})

	contentType := "audio/mpeg"
	if parsed.ext == "m4a" {
		contentType = "audio/mp4"
	}
	if err := u.store.Save(ctx, genKey, parsed.audio, contentType); err != nil {
		return "", http.StatusInternalServerError, fmt.Errorf("audio persistence failed: %w", err)
	}

	call := &database.Call{
		TalkgroupID:  parsed.talkgroup,
		Timestamp:    parsed.ts.Unix(),
		AudioKey:     genKey,
		SourceUnitID: parsed.source,
	}
	if parsed.hasSignal {
		call.SignalErrors = &parsed.errors
		call.SignalSpikes = &parsed.spikes
	}

	callID, err := u.db.InsertCall(ctx, call)
	if err != nil {
		// Audio is already on disk/S3; the Call row is the thing that failed,
		// so the audio blob must be cleaned up (spec.md §4.1 atomicity).
		u.cleanupAudio(genKey)
		return "", http.StatusInternalServerError, fmt.Errorf("call insert failed: %w", err)
	}
	call.ID = callID

	if err := u.db.UpsertTalkgroup(ctx, &database.Talkgroup{
		ID:       parsed.talkgroup,
		AlphaTag: firstNonEmpty(formValue(r, "talkgroupTag"), formValue(r, "talkgroup_tag")),
		Tag:      firstNonEmpty(formValue(r, "talkgroupDescription"), formValue(r, "talkgroup_description")),
		Category: firstNonEmpty(formValue(r, "talkgroupGroup"), formValue(r, "talkgroup_group")),
		Town:     config.TalkGroupTown(parsed.talkgroup),
	}); err != nil {
		u.log.Warn().Err(err).Str("talkgroup", parsed.talkgroup).Msg("talkgroup upsert failed")
	}

	u.enqueueTranscription(call, parsed)

	return "Call imported successfully.", http.StatusOK, nil
}

func (u *Uploader) cleanupAudio(key string) {
	// Best effort: local store removal; S3/tiered backends have their own
	// reconciler sweeping orphaned keys, so a failure here is not fatal.
	if path := u.store.LocalPath(key); path != "" {
		_ = os.Remove(path)
	}
}

func (u *Uploader) enqueueTranscription(call *database.Call, parsed parsedUpload) {
	if u.transcriber == nil {
		// No transcription will ever be attempted for this call
		// (TRANSCRIPTION_MODE=none); mark it terminal immediately so the
		// live feed poller doesn't wait forever on it (spec.md §4.5).
		ctx := context.Background()
		if err := u.db.MarkTranscriptionSkipped(ctx, call.ID); err != nil {
			u.log.Error().Err(err).Int64("call_id", call.ID).Msg("failed to mark call as transcription-skipped")
		}
		u.publishFanOut(ctx, call)
		return
	}
	ref := transcribe.AudioRef{Bytes: parsed.audio, Ext: parsed.ext}
	// Path lets the worker pool's optional sox preprocessing step run
	// (local/tiered backends only); S3-only backends have no local path and
	// fall back to Bytes.
	if path := u.store.LocalPath(call.AudioKey); path != "" {
		ref.Path = path
	}
	job := transcribe.Job{
		CallID: call.ID,
		Ref:    ref,
		Complete: func(ctx context.Context, callID int64, text string) {
			if err := u.db.UpdateTranscription(ctx, callID, text); err != nil {
				u.log.Error().Err(err).Int64("call_id", callID).Msg("failed to persist transcription")
				return
			}
			call.Transcription = text
			if u.postTranscribe != nil {
				u.postTranscribe.Process(ctx, callID, parsed.talkgroup, config.TalkGroupTown(parsed.talkgroup), text)
			}
			u.publishFanOut(ctx, call)
		},
	}
	if !u.transcriber.Enqueue(job) {
		u.log.Warn().Int64("call_id", call.ID).Msg("transcription queue full, job dropped")
		ctx := context.Background()
		if err := u.db.MarkTranscriptionSkipped(ctx, call.ID); err != nil {
			u.log.Error().Err(err).Int64("call_id", call.ID).Msg("failed to mark call as transcription-skipped")
		}
		u.publishFanOut(ctx, call)
	}
}

// publishFanOut hands the call to the Discord coalescer, per spec.md §7:
// Discord messages post for every call, even ones that never got a real
// transcription (TRANSCRIPTION_MODE=none, queue full, or ASR failure all
// persist an empty transcription and still fan out).
func (u *Uploader) publishFanOut(ctx context.Context, call *database.Call) {
	if u.fanOut != nil {
		u.fanOut.Publish(ctx, call)
	}
}

// authorize validates key by constant-time bcrypt comparison against every
// stored disabled=false key hash (spec.md §4.1).
func (u *Uploader) authorize(ctx context.Context, key string) (bool, error) {
	hashes, err := u.db.ActiveKeyHashes(ctx)
	if err != nil {
		return false, err
	}
	return database.ValidateAPIKey(key, hashes), nil
}

// parseFields extracts talkgroup/system/source/timestamp/signal-quality and
// reads the audio part, dispatching on dialect-specific field names.
func (u *Uploader) parseFields(r *http.Request, d dialect) (parsedUpload, error) {
	var p parsedUpload

	p.talkgroup = formValue(r, "talkgroup")
	if p.talkgroup == "" {
		return p, fmt.Errorf("missing talkgroup")
	}
	p.system = firstNonEmpty(formValue(r, "systemLabel"), formValue(r, "system"), "unknown")

	p.ts = parseDateTime(formValue(r, "dateTime"))

	switch d {
	case dialectSDRTrunk:
		p.source = formValue(r, "source")
	default:
		p.source = parseSourcesField(formValue(r, "sources"))
		if freq := formValue(r, "frequencies"); freq != "" {
			if errs, spikes, ok := sumFrequencies(freq); ok {
				p.errors, p.spikes, p.hasSignal = errs, spikes, true
			}
		}
	}

	file, header, ferr := formFile(r, "file")
	if ferr != nil {
		file, header, ferr = formFile(r, "audio")
	}
	if ferr != nil {
		// No recognized audio part at all; not necessarily an error yet,
		// the caller decides (ext stays empty, audio stays nil).
		return p, nil
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return p, fmt.Errorf("failed to read audio: %w", err)
	}

	ext := strings.TrimPrefix(strings.ToLower(fileExt(header.Filename)), ".")
	if ext == "" {
		ext = "mp3"
	}

	if p.source == "" {
		if m := fromUnitRe.FindStringSubmatch(header.Filename); m != nil {
			p.source = m[1]
		}
	}

	p.audio = data
	p.ext = ext
	return p, nil
}

func formValue(r *http.Request, name string) string {
	if r.MultipartForm == nil {
		return ""
	}
	if v, ok := r.MultipartForm.Value[name]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

func formFile(r *http.Request, name string) (multipart.File, *multipart.FileHeader, error) {
	return r.FormFile(name)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func fileExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// parseDateTime implements spec.md §4.1's dialect heuristic: Unix-seconds
// above 1e9 is TrunkRecorder/rdio-scanner, else try ISO-8601, else now.
func parseDateTime(v string) time.Time {
	if v == "" {
		return time.Now().UTC()
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 1_000_000_000 {
		return time.Unix(n, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

// rdioSource mirrors one element of rdio-scanner's "sources" JSON array
// field: [{"src": 1234567, "time": ..., "pos": ..., ...}].
type rdioSource struct {
	Src int `json:"src"`
}

// rdioFrequency mirrors one element of rdio-scanner's "frequencies" JSON
// array field: [{"freq": ..., "errorCount": 0, "spikeCount": 0, ...}].
type rdioFrequency struct {
	ErrorCount int `json:"errorCount"`
	SpikeCount int `json:"spikeCount"`
}

// parseSourcesField decodes the "sources" JSON array field and returns the
// first element's src, the same field rdio-scanner treats as the
// transmitting unit.
func parseSourcesField(raw string) string {
	if raw == "" {
		return ""
	}
	var items []rdioSource
	if err := json.Unmarshal([]byte(raw), &items); err != nil || len(items) == 0 {
		return ""
	}
	return strconv.Itoa(items[0].Src)
}

// sumFrequencies decodes the "frequencies" JSON array field and sums
// errorCount/spikeCount across every element. ok is false when the field
// doesn't parse into at least one entry, so the caller can tell "wholly
// malformed" apart from "parsed, totals happen to be zero".
func sumFrequencies(raw string) (errors, spikes int, ok bool) {
	var items []rdioFrequency
	if err := json.Unmarshal([]byte(raw), &items); err != nil || len(items) == 0 {
		return 0, 0, false
	}
	for _, it := range items {
		errors += it.ErrorCount
		spikes += it.SpikeCount
	}
	return errors, spikes, true
}
