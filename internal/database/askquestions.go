package database

import "context"

// InsertAskQuestion audits an Ask-AI question/answer pair (spec.md §4.6), so
// that asked questions and their answers can be inspected or rate-limited
// per talkgroup later.
func (db *DB) InsertAskQuestion(ctx context.Context, talkgroupID, question, answer string) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO ask_questions (talkgroup_id, question, answer) VALUES ($1, $2, $3)`,
		talkgroupID, question, answer)
	return err
}
