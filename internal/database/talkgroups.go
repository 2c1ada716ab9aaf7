package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Talkgroup mirrors spec.md §3's Talkgroup entity.
type Talkgroup struct {
	ID       string
	AlphaTag string
	Tag      string
	County   string
	Category string
	Town     string
}

// UpsertTalkgroup creates a talkgroup on first sight or updates its known
// fields. Per spec.md §3, a Talkgroup is "effectively immutable at runtime"
// once created, but the alpha_tag/county/category may be enriched as more
// metadata arrives from upstream capture software.
func (db *DB) UpsertTalkgroup(ctx context.Context, tg *Talkgroup) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO talkgroups (id, alpha_tag, tag, county, category, town)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			alpha_tag = CASE WHEN EXCLUDED.alpha_tag <> '' THEN EXCLUDED.alpha_tag ELSE talkgroups.alpha_tag END,
			tag       = CASE WHEN EXCLUDED.tag <> ''       THEN EXCLUDED.tag       ELSE talkgroups.tag END,
			county    = CASE WHEN EXCLUDED.county <> ''    THEN EXCLUDED.county    ELSE talkgroups.county END,
			category  = CASE WHEN EXCLUDED.category <> ''  THEN EXCLUDED.category  ELSE talkgroups.category END,
			town      = CASE WHEN EXCLUDED.town <> ''      THEN EXCLUDED.town      ELSE talkgroups.town END
	`, tg.ID, tg.AlphaTag, tg.Tag, tg.County, tg.Category, tg.Town)
	return err
}

// GetTalkgroup fetches a talkgroup by id.
func (db *DB) GetTalkgroup(ctx context.Context, id string) (*Talkgroup, error) {
	tg := &Talkgroup{}
	err := db.Pool.QueryRow(ctx,
		`SELECT id, alpha_tag, tag, county, category, town FROM talkgroups WHERE id = $1`, id,
	).Scan(&tg.ID, &tg.AlphaTag, &tg.Tag, &tg.County, &tg.Category, &tg.Town)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tg, nil
}

// ListTalkgroups returns every known talkgroup, per spec.md §6 `GET /api/talkgroups`.
func (db *DB) ListTalkgroups(ctx context.Context) ([]*Talkgroup, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, alpha_tag, tag, county, category, town FROM talkgroups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Talkgroup
	for rows.Next() {
		tg := &Talkgroup{}
		if err := rows.Scan(&tg.ID, &tg.AlphaTag, &tg.Tag, &tg.County, &tg.Category, &tg.Town); err != nil {
			return nil, err
		}
		out = append(out, tg)
	}
	return out, rows.Err()
}
