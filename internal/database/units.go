package database

import "context"

// UpsertUnitHeard records that a unit transmitted on a talkgroup, for the
// supplemental "who talked" directory named in SPEC_FULL.md §12.
func (db *DB) UpsertUnitHeard(ctx context.Context, talkgroupID, unitID, alphaTag string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO units (talkgroup_id, unit_id, alpha_tag, last_heard)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (talkgroup_id, unit_id) DO UPDATE SET
			alpha_tag = CASE WHEN EXCLUDED.alpha_tag <> '' THEN EXCLUDED.alpha_tag ELSE units.alpha_tag END,
			last_heard = now()
	`, talkgroupID, unitID, alphaTag)
	return err
}
