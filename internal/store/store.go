package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the label index.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT,
  def_hash        TEXT,
  is_main         BOOLEAN DEFAULT TRUE,
  line_count      INTEGER DEFAULT 0,
  last_indexed    TIMESTAMP
);

-- Only lines that define or use at least one label are stored.
CREATE TABLE IF NOT EXISTS lines (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  line_number     INTEGER NOT NULL,
  is_main         BOOLEAN DEFAULT TRUE,
  UNIQUE (file_id, line_number)
);

CREATE TABLE IF NOT EXISTS label_defs (
  id              INTEGER PRIMARY KEY,
  line_id         INTEGER NOT NULL REFERENCES lines(id),
  name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS label_usages (
  id              INTEGER PRIMARY KEY,
  line_id         INTEGER NOT NULL REFERENCES lines(id),
  name            TEXT NOT NULL,
  bare            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

CREATE INDEX IF NOT EXISTS idx_lines_file ON lines(file_id);
CREATE INDEX IF NOT EXISTS idx_label_defs_line ON label_defs(line_id);
CREATE INDEX IF NOT EXISTS idx_label_defs_name ON label_defs(name);
CREATE INDEX IF NOT EXISTS idx_label_usages_line ON label_usages(line_id);
CREATE INDEX IF NOT EXISTS idx_label_usages_name ON label_usages(name);
CREATE INDEX IF NOT EXISTS idx_label_usages_bare ON label_usages(bare);
`

// DeleteFileData transactionally removes every line of a file together with
// the definitions and usages recorded on those lines. The file row is kept.
func (s *Store) DeleteFileData(fileID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFileDataTx(tx, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteFile removes a file row and all of its data.
func (s *Store) DeleteFile(fileID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFileDataTx(tx, fileID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM files WHERE id = ?", fileID); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return tx.Commit()
}

func deleteFileDataTx(tx *sql.Tx, fileID int64) error {
	// Children first to respect FK constraints.
	for _, q := range []string{
		"DELETE FROM label_defs WHERE line_id IN (SELECT id FROM lines WHERE file_id = ?)",
		"DELETE FROM label_usages WHERE line_id IN (SELECT id FROM lines WHERE file_id = ?)",
		"DELETE FROM lines WHERE file_id = ?",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("delete file data: %w", err)
		}
	}
	return nil
}

// GetMetadata returns the value stored under key, or "" when unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return value.String, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
