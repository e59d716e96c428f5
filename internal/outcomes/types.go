// Package outcomes stores labeled assessment outcomes: the per-modality
// predictions made for a subject together with the diagnosis observed later.
// These records are the training data for the fusion weight optimizer.
package outcomes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/diabetes-risk-fusion/internal/domain"
)

// Outcome sources.
const (
	SourceClinical  = "clinical"
	SourceSynthetic = "synthetic"
	SourceImport    = "import"
)

// Outcome is one labeled example. LifestylePred is the raw classifier output,
// before calibration.
type Outcome struct {
	ID            int64     `json:"id,omitempty"`
	SubjectRef    string    `json:"subject_ref"`
	RetinalPred   float64   `json:"retinal_pred"`
	LifestylePred float64   `json:"lifestyle_pred"`
	YTrue         float64   `json:"y_true"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks predictions are probabilities and the label is 0 or 1.
func (o *Outcome) Validate() error {
	if !isProbability(o.RetinalPred) {
		return domain.NewValidationError("retinal_pred", "must be within [0, 1]", o.RetinalPred)
	}
	if !isProbability(o.LifestylePred) {
		return domain.NewValidationError("lifestyle_pred", "must be within [0, 1]", o.LifestylePred)
	}
	if o.YTrue != 0 && o.YTrue != 1 {
		return domain.NewValidationError("y_true", "must be 0 or 1", o.YTrue)
	}
	return nil
}

func isProbability(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// normalize fills defaults before storage.
func (o *Outcome) normalize() {
	if o.SubjectRef == "" {
		o.SubjectRef = uuid.NewString()
	}
	if o.Source == "" {
		o.Source = SourceClinical
	}
}

// Store defines the interface for outcome storage operations.
type Store interface {
	// Save stores an outcome. An existing record for the same subject and
	// source is replaced.
	Save(ctx context.Context, outcome *Outcome) error

	// Get returns the outcome for subjectRef and source, or nil if none exists.
	Get(ctx context.Context, subjectRef, source string) (*Outcome, error)

	// List returns outcomes, most recently stored first.
	List(ctx context.Context, limit, offset int) ([]*Outcome, error)

	Count(ctx context.Context) (int64, error)

	Delete(ctx context.Context, id int64) error

	// TrainingSet returns every outcome as optimizer input, oldest first.
	TrainingSet(ctx context.Context) (domain.TrainingSet, error)

	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports outcomes, skipping subjects already present.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string     `json:"version"`
	ExportedAt time.Time  `json:"exported_at"`
	Count      int        `json:"count"`
	Outcomes   []*Outcome `json:"outcomes"`
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

func exportJSON(ctx context.Context, s Store, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list outcomes: %w", err)
	}
	if all == nil {
		all = []*Outcome{}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&Export{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Outcomes:   all,
	})
}

func importJSON(ctx context.Context, s Store, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, o := range export.Outcomes {
		if o.SubjectRef != "" {
			existing, err := s.Get(ctx, o.SubjectRef, o.Source)
			if err != nil {
				return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
			}
			if existing != nil {
				skipped++
				continue
			}
		}

		o.ID = 0
		if err := s.Save(ctx, o); err != nil {
			return imported, skipped, fmt.Errorf("failed to save %s: %w", o.SubjectRef, err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Open returns the store for driver, "sqlite" (dsn is a file path) or
// "postgres" (dsn is a connection URL).
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres", "postgresql":
		return NewPostgresStoreFromURL(dsn)
	default:
		return nil, domain.NewValidationError("driver", "must be sqlite or postgres", driver)
	}
}
