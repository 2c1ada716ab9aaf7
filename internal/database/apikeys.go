package database

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// ApiKey mirrors spec.md §3's ApiKey entity. Validation is constant-time by
// virtue of bcrypt's own comparison, not a secondary subtle.ConstantTimeCompare.
type ApiKey struct {
	ID       int64
	Hash     string
	Disabled bool
}

// ActiveKeyHashes loads every non-disabled key hash, for the ingestion
// endpoint to check an incoming key against (spec.md §4.1 "constant-time
// comparison against bcrypt hashes of the stored disabled=false keys").
func (db *DB) ActiveKeyHashes(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `SELECT hash FROM api_keys WHERE disabled = false`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// InsertAPIKey hashes and stores a new key, returning its id.
func (db *DB) InsertAPIKey(ctx context.Context, plaintext string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.Pool.QueryRow(ctx,
		`INSERT INTO api_keys (hash, disabled) VALUES ($1, false) RETURNING id`, string(hash),
	).Scan(&id)
	return id, err
}

// CountAPIKeys is used at boot to decide whether a first key needs
// generating (spec.md §3 ApiKey lifecycle: "written once on first boot if empty").
func (db *DB) CountAPIKeys(ctx context.Context) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM api_keys`).Scan(&n)
	return n, err
}

// ValidateAPIKey checks a plaintext key against every active hash. It is
// O(n) in the number of active keys, which is acceptable at the scale
// spec.md targets (a handful of keys, not a multi-tenant key store).
func ValidateAPIKey(plaintext string, hashes []string) bool {
	for _, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(plaintext)) == nil {
			return true
		}
	}
	return false
}
