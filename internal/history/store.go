// Package history persists similarity records so earlier runs can be
// listed and redisplayed.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// Store is implemented by the SQLite store used by the CLI and by the
// MongoDB results repository used by the server.
type Store interface {
	SaveRecords(ctx context.Context, records []models.HistoryRecord) error
	RecordsFor(ctx context.Context, id string) ([]models.HistoryRecord, error)
	RecordsForCorpus(ctx context.Context, corpusID string) ([]models.HistoryRecord, error)
}

// SQLiteStore keeps history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the database at path. ":memory:" opens a
// private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	memory := path == ":memory:"

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// one connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	if !memory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		corpus_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		main_code_id TEXT NOT NULL,
		sub_code_id TEXT NOT NULL,
		similarity REAL NOT NULL,
		label TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_main ON history(main_code_id);
	CREATE INDEX IF NOT EXISTS idx_history_sub ON history(sub_code_id);
	CREATE INDEX IF NOT EXISTS idx_history_corpus ON history(corpus_id, id DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRecords inserts all records in one transaction
func (s *SQLiteStore) SaveRecords(ctx context.Context, records []models.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO history (corpus_id, run_id, main_code_id, sub_code_id, similarity, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, r.CorpusID, r.RunID, r.MainID, r.SubID, r.Similarity, r.Label, created.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("failed to insert history record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history records: %w", err)
	}

	log.Debug().Int("records", len(records)).Msg("History records saved")
	return nil
}

// RecordsFor returns every record in which id appears on either side,
// newest first
func (s *SQLiteStore) RecordsFor(ctx context.Context, id string) ([]models.HistoryRecord, error) {
	return s.query(ctx, `
		SELECT corpus_id, run_id, main_code_id, sub_code_id, similarity, label, created_at
		FROM history
		WHERE main_code_id = ? OR sub_code_id = ?
		ORDER BY id DESC`, id, id)
}

// RecordsForCorpus returns the records of the latest run over corpusID in
// insertion order
func (s *SQLiteStore) RecordsForCorpus(ctx context.Context, corpusID string) ([]models.HistoryRecord, error) {
	return s.query(ctx, `
		SELECT corpus_id, run_id, main_code_id, sub_code_id, similarity, label, created_at
		FROM history
		WHERE corpus_id = ? AND run_id = (
			SELECT run_id FROM history WHERE corpus_id = ? ORDER BY id DESC LIMIT 1
		)
		ORDER BY id ASC`, corpusID, corpusID)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := make([]models.HistoryRecord, 0)
	for rows.Next() {
		var r models.HistoryRecord
		var created string
		if err := rows.Scan(&r.CorpusID, &r.RunID, &r.MainID, &r.SubID, &r.Similarity, &r.Label, &created); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = t
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	return records, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
