package outcomes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore expects the outcomes table to exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL opens a pooled connection to databaseURL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Save upserts on (subject_ref, source).
func (s *PostgresStore) Save(ctx context.Context, outcome *Outcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}
	outcome.normalize()
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO outcomes (subject_ref, retinal_pred, lifestyle_pred, y_true, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject_ref, source) DO UPDATE SET
			retinal_pred = EXCLUDED.retinal_pred,
			lifestyle_pred = EXCLUDED.lifestyle_pred,
			y_true = EXCLUDED.y_true
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		outcome.SubjectRef,
		outcome.RetinalPred,
		outcome.LifestylePred,
		outcome.YTrue,
		outcome.Source,
		outcome.CreatedAt,
	).Scan(&outcome.ID, &outcome.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

// Get returns the outcome for subjectRef and source, or nil.
func (s *PostgresStore) Get(ctx context.Context, subjectRef, source string) (*Outcome, error) {
	if source == "" {
		source = SourceClinical
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+outcomeColumns+" FROM outcomes WHERE subject_ref = $1 AND source = $2 LIMIT 1",
		subjectRef, source,
	)

	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}
	return o, nil
}

// List returns outcomes, most recently stored first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+outcomeColumns+" FROM outcomes ORDER BY id DESC LIMIT $1 OFFSET $2",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outcomes").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count outcomes: %w", err)
	}
	return count, nil
}

// Delete removes an outcome by ID.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM outcomes WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete outcome: %w", err)
	}
	return nil
}

// TrainingSet returns all outcomes oldest first.
func (s *PostgresStore) TrainingSet(ctx context.Context) (domain.TrainingSet, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT y_true, retinal_pred, lifestyle_pred FROM outcomes ORDER BY id")
	if err != nil {
		return domain.TrainingSet{}, fmt.Errorf("failed to query training data: %w", err)
	}
	defer rows.Close()
	return scanTrainingSet(rows)
}

// ExportJSON writes every outcome as an Export document.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports an Export document.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (int, int, error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
