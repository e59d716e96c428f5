package outcomes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOutcome(s scanner) (*Outcome, error) {
	o := &Outcome{}
	err := s.Scan(&o.ID, &o.SubjectRef, &o.RetinalPred, &o.LifestylePred, &o.YTrue, &o.Source, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_ref TEXT NOT NULL,
		retinal_pred REAL NOT NULL,
		lifestyle_pred REAL NOT NULL,
		y_true REAL NOT NULL,
		source TEXT NOT NULL DEFAULT 'clinical',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(subject_ref, source)
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_created_at ON outcomes(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

const outcomeColumns = `id, subject_ref, retinal_pred, lifestyle_pred, y_true, source, created_at`

// Save stores or replaces the outcome for its subject and source.
func (s *SQLiteStore) Save(ctx context.Context, outcome *Outcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}
	outcome.normalize()

	var existingID int64
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM outcomes WHERE subject_ref = ? AND source = ?",
		outcome.SubjectRef, outcome.Source,
	).Scan(&existingID, &createdAt)

	if err == nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE outcomes SET
				retinal_pred = ?,
				lifestyle_pred = ?,
				y_true = ?
			WHERE id = ?
		`, outcome.RetinalPred, outcome.LifestylePred, outcome.YTrue, existingID)
		if err != nil {
			return fmt.Errorf("failed to update outcome: %w", err)
		}
		outcome.ID = existingID
		outcome.CreatedAt = createdAt
		return nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (subject_ref, retinal_pred, lifestyle_pred, y_true, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		outcome.SubjectRef,
		outcome.RetinalPred,
		outcome.LifestylePred,
		outcome.YTrue,
		outcome.Source,
		outcome.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	outcome.ID = id
	return nil
}

// Get returns the outcome for subjectRef and source, or nil.
func (s *SQLiteStore) Get(ctx context.Context, subjectRef, source string) (*Outcome, error) {
	if source == "" {
		source = SourceClinical
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+outcomeColumns+" FROM outcomes WHERE subject_ref = ? AND source = ? LIMIT 1",
		subjectRef, source,
	)

	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return o, nil
}

// List returns outcomes, most recently stored first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+outcomeColumns+" FROM outcomes ORDER BY id DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// Count returns the total number of outcomes.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outcomes").Scan(&count)
	return count, err
}

// Delete removes an outcome by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM outcomes WHERE id = ?", id)
	return err
}

// TrainingSet returns all outcomes oldest first.
func (s *SQLiteStore) TrainingSet(ctx context.Context) (domain.TrainingSet, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT y_true, retinal_pred, lifestyle_pred FROM outcomes ORDER BY id")
	if err != nil {
		return domain.TrainingSet{}, fmt.Errorf("failed to query training data: %w", err)
	}
	defer rows.Close()
	return scanTrainingSet(rows)
}

func scanTrainingSet(rows *sql.Rows) (domain.TrainingSet, error) {
	var set domain.TrainingSet
	for rows.Next() {
		var y, r, l float64
		if err := rows.Scan(&y, &r, &l); err != nil {
			return domain.TrainingSet{}, fmt.Errorf("failed to scan training row: %w", err)
		}
		set.Add(y, r, l)
	}
	return set, rows.Err()
}

// ExportJSON writes every outcome as an Export document.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports an Export document.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (int, int, error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
