package database

import (
	"fmt"
)

// TokenRepository stores the credential blob: an opaque map of secret
// strings, carried verbatim and never reinterpreted.
type TokenRepository struct {
	db *StateDB
}

func NewTokenRepository(db *StateDB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Get() (map[string]string, error) {
	rows, err := r.db.Query(`SELECT key, value FROM tokens`)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokens: %w", err)
	}
	defer rows.Close()

	blob := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan token row: %w", err)
		}
		blob[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token rows: %w", err)
	}

	return blob, nil
}

// Put replaces the stored blob with the given one.
func (r *TokenRepository) Put(blob map[string]string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin token update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tokens`); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}

	for key, value := range blob {
		if _, err := tx.Exec(`INSERT INTO tokens (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("failed to store token %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token update: %w", err)
	}

	return nil
}
