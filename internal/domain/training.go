package domain

import (
	"fmt"
)

// TrainingSet holds labeled (ground truth, retinal prediction, lifestyle prediction)
// triples as parallel arrays.
type TrainingSet struct {
	YTrue          []float64 `json:"y_true"`
	RetinalPreds   []float64 `json:"retinal_preds"`
	LifestylePreds []float64 `json:"lifestyle_preds"`
}

// Len returns the number of examples. Call Validate first.
func (s TrainingSet) Len() int {
	return len(s.YTrue)
}

// Validate returns an error wrapping ErrShapeMismatch when the arrays differ
// in length, and ErrEmptyTrainingSet when they are empty.
func (s TrainingSet) Validate() error {
	if len(s.YTrue) != len(s.RetinalPreds) || len(s.YTrue) != len(s.LifestylePreds) {
		return fmt.Errorf("%w: y_true=%d retinal=%d lifestyle=%d",
			ErrShapeMismatch, len(s.YTrue), len(s.RetinalPreds), len(s.LifestylePreds))
	}
	if len(s.YTrue) == 0 {
		return ErrEmptyTrainingSet
	}
	return nil
}

// Slice returns the examples in [from, to). The returned set shares storage.
func (s TrainingSet) Slice(from, to int) TrainingSet {
	return TrainingSet{
		YTrue:          s.YTrue[from:to],
		RetinalPreds:   s.RetinalPreds[from:to],
		LifestylePreds: s.LifestylePreds[from:to],
	}
}

// Add appends one example.
func (s *TrainingSet) Add(yTrue, retinal, lifestyle float64) {
	s.YTrue = append(s.YTrue, yTrue)
	s.RetinalPreds = append(s.RetinalPreds, retinal)
	s.LifestylePreds = append(s.LifestylePreds, lifestyle)
}

// WithLifestyle returns a copy whose lifestyle predictions are replaced.
func (s TrainingSet) WithLifestyle(preds []float64) TrainingSet {
	return TrainingSet{YTrue: s.YTrue, RetinalPreds: s.RetinalPreds, LifestylePreds: preds}
}

// Folds splits the set into k contiguous folds. The last fold takes the remainder.
func (s TrainingSet) Folds(k int) ([]TrainingSet, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 || k > s.Len() {
		return nil, NewValidationError("folds", "must be between 1 and the number of examples", k)
	}
	size := s.Len() / k
	folds := make([]TrainingSet, 0, k)
	for i := 0; i < k; i++ {
		from := i * size
		to := from + size
		if i == k-1 {
			to = s.Len()
		}
		folds = append(folds, s.Slice(from, to))
	}
	return folds, nil
}
