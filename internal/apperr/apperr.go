// Package apperr defines the error-kind taxonomy shared across the pipeline.
// Each kind names a recovery policy, not a Go type: most kinds are recovered
// locally by the stage that produced them and never reach the HTTP layer.
package apperr

import "errors"

// Kind identifies which stage-recovery policy applies to an error.
type Kind string

const (
	// UploadMalformed — missing key/parts on ingestion. No side effects. 400.
	UploadMalformed Kind = "upload_malformed"
	// AuthFailed — unknown or disabled API key. 401.
	AuthFailed Kind = "auth_failed"
	// StorageUnavailable — object-store or disk write failed. 500; caller must roll back.
	StorageUnavailable Kind = "storage_unavailable"
	// TranscriptionFailed — transport, timeout, or invalid audio. Recovered with empty transcript.
	TranscriptionFailed Kind = "transcription_failed"
	// ExtractionSkipped — transcript too short, talkgroup unmapped, or LLM sentinel. Recovered.
	ExtractionSkipped Kind = "extraction_skipped"
	// GeocodeRejected — provider error, out-of-region, or low-specificity match. Recovered.
	GeocodeRejected Kind = "geocode_rejected"
	// FanoutTransient — Discord API failure. Cache entry evicted, retried on next call.
	FanoutTransient Kind = "fanout_transient"
	// ChildDied — local ASR child exited. Pending jobs failed, restart scheduled.
	ChildDied Kind = "child_died"

	// NotFound and Forbidden round out the HTTP-facing admin/query surface;
	// they are not part of the pipeline taxonomy in spec.md §7 but are needed
	// by the read/admin API (marker mutation, log endpoints).
	NotFound    Kind = "not_found"
	Forbidden   Kind = "forbidden"
	RateLimited Kind = "rate_limited"
	BadRequest  Kind = "bad_request"
	Internal    Kind = "internal"
)

// Error wraps an underlying cause with a recovery Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error of the given kind around an existing error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, if any, defaulting to "" (unknown).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
