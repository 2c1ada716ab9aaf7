package database

import (
	"context"
	"encoding/json"
)

// InsertCorrectionLog appends a correction report, per spec.md §6
// `POST /api/log/correction` ("append-only JSON logs").
func (db *DB) InsertCorrectionLog(ctx context.Context, callID *int64, payload json.RawMessage) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO correction_logs (call_id, payload) VALUES ($1, $2)`, callID, payload)
	return err
}

// InsertDeletionLog appends a deletion report, per spec.md §6
// `POST /api/log/deletion`.
func (db *DB) InsertDeletionLog(ctx context.Context, callID *int64, payload json.RawMessage) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO deletion_logs (call_id, payload) VALUES ($1, $2)`, callID, payload)
	return err
}
