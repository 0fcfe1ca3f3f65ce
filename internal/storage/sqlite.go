package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage mirrors checkpoints into SQLite and keeps per-component progress
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tickers (
		ticker TEXT PRIMARY KEY,
		discovered_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS snapshot_values (
		ticker TEXT NOT NULL,
		field_idx INTEGER NOT NULL,
		field TEXT NOT NULL,
		value TEXT,
		schema_version INTEGER NOT NULL,
		collected_at TIMESTAMP NOT NULL,
		PRIMARY KEY (ticker, field_idx)
	);

	CREATE TABLE IF NOT EXISTS progress (
		component TEXT PRIMARY KEY,
		page INTEGER NOT NULL DEFAULT 0,
		last_key TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshot_values_field ON snapshot_values(field);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertTickers records tickers, keeping the first discovery time
func (s *Storage) UpsertTickers(tickers []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO tickers (ticker) VALUES (?) ON CONFLICT(ticker) DO NOTHING`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare ticker insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tickers {
		if _, err := stmt.Exec(t); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert ticker %s: %w", t, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tickers: %w", err)
	}
	return nil
}

// CountTickers returns the number of mirrored tickers
func (s *Storage) CountTickers() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM tickers").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tickers: %w", err)
	}
	return n, nil
}

// UpsertSnapshots overwrites the stored field vectors of the given tickers
func (s *Storage) UpsertSnapshots(schema Schema, rows map[string]Row) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO snapshot_values (ticker, field_idx, field, value, schema_version, collected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, field_idx) DO UPDATE SET
			field = EXCLUDED.field,
			value = EXCLUDED.value,
			schema_version = EXCLUDED.schema_version,
			collected_at = EXCLUDED.collected_at
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare snapshot upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for ticker, row := range rows {
		if len(row) != schema.Width() {
			tx.Rollback()
			return fmt.Errorf("snapshot %s has %d fields, schema has %d", ticker, len(row), schema.Width())
		}
		for i, v := range row {
			if _, err := stmt.Exec(ticker, i, schema.Fields[i], v, schema.Version, now); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to upsert snapshot %s: %w", ticker, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}
	return nil
}

// GetSnapshot retrieves a stored field vector, returns nil if not found
func (s *Storage) GetSnapshot(schema Schema, ticker string) (Row, error) {
	rows, err := s.db.Query(`
		SELECT field_idx, value
		FROM snapshot_values
		WHERE ticker = ? AND schema_version = ?
		ORDER BY field_idx ASC
	`, ticker, schema.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var row Row
	for rows.Next() {
		var idx int
		var v sql.NullString
		if err := rows.Scan(&idx, &v); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot value: %w", err)
		}
		if row == nil {
			row = make(Row, schema.Width())
		}
		if idx >= 0 && idx < len(row) {
			row[idx] = v
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot values: %w", err)
	}

	return row, nil
}

// SaveProgress records where a component stopped
func (s *Storage) SaveProgress(p Progress) error {
	_, err := s.db.Exec(`
		INSERT INTO progress (component, page, last_key, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(component) DO UPDATE SET
			page = EXCLUDED.page,
			last_key = EXCLUDED.last_key,
			updated_at = EXCLUDED.updated_at
	`, p.Component, p.Page, p.LastKey, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// LoadProgress retrieves a component's progress, returns nil if none was saved
func (s *Storage) LoadProgress(component string) (*Progress, error) {
	var p Progress
	err := s.db.QueryRow(`
		SELECT component, page, last_key, updated_at
		FROM progress
		WHERE component = ?
	`, component).Scan(&p.Component, &p.Page, &p.LastKey, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	return &p, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
