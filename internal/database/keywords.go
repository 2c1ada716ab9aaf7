package database

import "context"

// AlertKeyword mirrors spec.md §3's AlertKeyword entity. CRUD for these is
// out of scope per spec.md §1 ("slash-command CRUD for alert keywords" is an
// external collaborator); this package only exposes the read path the
// pipeline needs to check a finished transcription against.
type AlertKeyword struct {
	ID          int64
	Keyword     string
	TalkgroupID *string
}

// MatchingKeywords returns every keyword that either has no talkgroup
// restriction or matches the given talkgroup, for the pipeline's final
// stored-transcription keyword check (spec.md §7 "alerts fire only for exact
// keyword matches on the final stored transcription").
func (db *DB) MatchingKeywords(ctx context.Context, talkgroupID string) ([]AlertKeyword, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, keyword, talkgroup_id FROM alert_keywords
		WHERE talkgroup_id IS NULL OR talkgroup_id = $1
	`, talkgroupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertKeyword
	for rows.Next() {
		var k AlertKeyword
		if err := rows.Scan(&k.ID, &k.Keyword, &k.TalkgroupID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
