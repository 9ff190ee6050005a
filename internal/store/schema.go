package store

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Older layouts hold nothing worth migrating.
	if version != 0 {
		if _, err := tx.Exec(`DROP TABLE IF EXISTS results`); err != nil {
			return fmt.Errorf("failed to drop old results: %w", err)
		}
	}
	if err := createTables(tx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return tx.Commit()
}

func createTables(tx *sql.Tx) error {
	queries := []string{
		// One analysis result per document content and language.
		// markers holds the msgpack-encoded marker list.
		`CREATE TABLE IF NOT EXISTS results (
            uri TEXT NOT NULL,
            hash TEXT NOT NULL,
            language TEXT NOT NULL,
            markers BLOB NOT NULL,
            created_at INTEGER NOT NULL,
            PRIMARY KEY (uri, hash, language)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_results_created
            ON results(created_at)`,
	}

	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", query, err)
		}
	}
	return nil
}
