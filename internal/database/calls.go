package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateAudioKey is returned by InsertCall when the audio_key already
// exists, per spec.md §3's "audio_key unique-per-call" invariant.
var ErrDuplicateAudioKey = errors.New("duplicate audio_key: call already exists")

const callColumns = `id, talkgroup_id, ts, transcription, audio_key, address, lat, lon, category, source_unit_id, signal_errors, signal_spikes, transcribed_at`

// Call mirrors the spec.md §3 Call entity.
type Call struct {
	ID            int64
	TalkgroupID   string
	Timestamp     int64 // Unix seconds
	Transcription string
	AudioKey      string
	Address       *string
	Lat           *float64
	Lon           *float64
	Category      *string
	SourceUnitID  string
	SignalErrors  *int
	SignalSpikes  *int
	// TranscribedAt is set once the transcription pipeline has finished with
	// this call, success or failure, or once the call is otherwise known to
	// never receive one (TRANSCRIPTION_MODE=none, queue full). nil means
	// still genuinely in flight. Lets live-feed polling (internal/livefeed)
	// tell "transcription legitimately empty" apart from "not done yet" —
	// schema.sql has no other field that distinguishes the two.
	TranscribedAt *time.Time
}

// InsertCall creates the Call record. The caller is responsible for having
// already persisted the audio blob; per spec.md §4.1, if this insert fails
// the caller must clean up the blob.
func (db *DB) InsertCall(ctx context.Context, c *Call) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO calls (talkgroup_id, ts, transcription, audio_key, source_unit_id, signal_errors, signal_spikes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, c.TalkgroupID, c.Timestamp, c.Transcription, c.AudioKey, c.SourceUnitID, c.SignalErrors, c.SignalSpikes).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateAudioKey
		}
		return 0, err
	}
	return id, nil
}

// UpdateTranscription sets the transcription text for a call and marks it
// transcribed (the pipeline only ever calls this once per call, per
// spec.md §3 lifecycle) — this fires whether the text is real ASR output
// or empty after a failed/skipped attempt, since either way nothing more
// will ever update this call's transcription.
func (db *DB) UpdateTranscription(ctx context.Context, callID int64, text string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE calls SET transcription = $1, transcribed_at = now() WHERE id = $2`, text, callID)
	return err
}

// MarkTranscriptionSkipped marks a call as terminally transcription-less
// without touching its (already empty) text, for paths that never enqueue
// a transcription job at all: TRANSCRIPTION_MODE=none, or a full worker
// queue dropping the job outright (spec.md §4.2, non-retried).
func (db *DB) MarkTranscriptionSkipped(ctx context.Context, callID int64) error {
	_, err := db.Pool.Exec(ctx, `UPDATE calls SET transcribed_at = now() WHERE id = $1`, callID)
	return err
}

// UpdateCoordinates sets (lat, lon, address) at most once per call, and
// optionally rewrites the transcription to hyperlink the address occurrence
// (spec.md §4.3 "On acceptance ... rewrite the stored transcript").
func (db *DB) UpdateCoordinates(ctx context.Context, callID int64, lat, lon float64, address string, rewrittenTranscription *string) error {
	if rewrittenTranscription != nil {
		_, err := db.Pool.Exec(ctx,
			`UPDATE calls SET lat = $1, lon = $2, address = $3, transcription = $4 WHERE id = $5`,
			lat, lon, address, *rewrittenTranscription, callID)
		return err
	}
	_, err := db.Pool.Exec(ctx,
		`UPDATE calls SET lat = $1, lon = $2, address = $3 WHERE id = $4`,
		lat, lon, address, callID)
	return err
}

// UpdateCategory persists the Live Fan-out map loop's one-time LLM
// classification (spec.md §4.5).
func (db *DB) UpdateCategory(ctx context.Context, callID int64, category string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE calls SET category = $1 WHERE id = $2`, category, callID)
	return err
}

// GetCall fetches a single call by id.
func (db *DB) GetCall(ctx context.Context, id int64) (*Call, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id)
	return scanCall(row)
}

// FindCallByAudioKey supports the ingestion endpoint's content-identity dedup
// check (spec.md §3 AudioBlob: "uploads are deduplicated by content-identity").
func (db *DB) FindCallByAudioKey(ctx context.Context, key string) (*Call, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE audio_key = $1`, key)
	c, err := scanCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// CallsSinceHours returns calls within the last `hours` that have non-null
// coordinates, per spec.md §6 `GET /api/calls?hours=H`.
func (db *DB) CallsSinceHours(ctx context.Context, hours int) ([]*Call, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+callColumns+`
		FROM calls
		WHERE lat IS NOT NULL AND ts >= extract(epoch from now() - ($1 || ' hours')::interval)
		ORDER BY id DESC
	`, hours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalls(rows)
}

// TalkgroupCalls returns calls for a talkgroup with pagination, per spec.md
// §6 `GET /api/talkgroup/:id/calls?sinceId&limit&offset`.
func (db *DB) TalkgroupCalls(ctx context.Context, talkgroupID string, sinceID int64, limit, offset int) ([]*Call, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+callColumns+`
		FROM calls
		WHERE talkgroup_id = $1 AND id > $2
		ORDER BY id DESC
		LIMIT $3 OFFSET $4
	`, talkgroupID, sinceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalls(rows)
}

// AdditionalTranscriptions returns calls for the same talkgroup after a
// given call id, per spec.md §6 `GET /api/additional-transcriptions/:callId?skip=K`.
func (db *DB) AdditionalTranscriptions(ctx context.Context, afterCallID int64, skip int) ([]*Call, error) {
	call, err := db.GetCall(ctx, afterCallID)
	if err != nil {
		return nil, err
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT `+callColumns+`
		FROM calls
		WHERE talkgroup_id = $1 AND id > $2
		ORDER BY id ASC
		OFFSET $3
	`, call.TalkgroupID, afterCallID, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalls(rows)
}

// CallsAfterID returns up to limit calls with id > afterID, ordered
// ascending, optionally filtered to those with coordinates. It backs both
// Live Fan-out polling loops (spec.md §4.5).
func (db *DB) CallsAfterID(ctx context.Context, afterID int64, limit int, requireCoords bool) ([]*Call, error) {
	q := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE id > $1
	`
	if requireCoords {
		q += ` AND lat IS NOT NULL`
	}
	q += ` ORDER BY id ASC LIMIT $2`

	rows, err := db.Pool.Query(ctx, q, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalls(rows)
}

// CallsInWindow returns all calls with a non-empty transcription whose
// timestamp falls in [sinceUnix, untilUnix), ordered ascending. It backs the
// periodic summariser's highlight selection (spec.md §4.6).
func (db *DB) CallsInWindow(ctx context.Context, sinceUnix, untilUnix int64) ([]*Call, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+callColumns+`
		FROM calls
		WHERE ts >= $1 AND ts < $2 AND transcription <> ''
		ORDER BY id ASC
	`, sinceUnix, untilUnix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalls(rows)
}

// TalkgroupCallsSinceHours returns a single talkgroup's transcribed calls
// from the last `hours`, ordered ascending. It backs Ask-AI's windowed
// Q&A (spec.md §4.6).
func (db *DB) TalkgroupCallsSinceHours(ctx context.Context, talkgroupID string, hours int) ([]*Call, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+callColumns+`
		FROM calls
		WHERE talkgroup_id = $1 AND transcription <> '' AND ts >= extract(epoch from now() - ($2 || ' hours')::interval)
		ORDER BY id ASC
	`, talkgroupID, hours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalls(rows)
}

// SetMarkerLocation admin-mutates a single call's coordinates (spec.md §6
// `PUT /api/markers/:id/location`).
func (db *DB) SetMarkerLocation(ctx context.Context, callID int64, lat, lon float64) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE calls SET lat = $1, lon = $2 WHERE id = $3`, lat, lon, callID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteMarker admin-clears a call's coordinates (spec.md §6 `DELETE /api/markers/:id`).
// The call row itself is never removed; only its map presence is cleared.
func (db *DB) DeleteMarker(ctx context.Context, callID int64) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE calls SET lat = NULL, lon = NULL, address = NULL WHERE id = $1`, callID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanCall(row pgx.Row) (*Call, error) {
	c := &Call{}
	err := row.Scan(&c.ID, &c.TalkgroupID, &c.Timestamp, &c.Transcription, &c.AudioKey,
		&c.Address, &c.Lat, &c.Lon, &c.Category, &c.SourceUnitID, &c.SignalErrors, &c.SignalSpikes, &c.TranscribedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanCalls(rows pgx.Rows) ([]*Call, error) {
	var calls []*Call
	for rows.Next() {
		c := &Call{}
		if err := rows.Scan(&c.ID, &c.TalkgroupID, &c.Timestamp, &c.Transcription, &c.AudioKey,
			&c.Address, &c.Lat, &c.Lon, &c.Category, &c.SourceUnitID, &c.SignalErrors, &c.SignalSpikes, &c.TranscribedAt); err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
