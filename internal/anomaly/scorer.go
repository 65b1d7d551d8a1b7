// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package anomaly scores movement feature vectors and trains the model that
// does the scoring.
//
// A feature vector is [speed_mps, accuracy_m, battery_pct], with a missing
// battery replaced by 50. Lower scores are more anomalous; the detection
// pipeline flags scores below its threshold.
package anomaly

import (
	"errors"
	"sync/atomic"
)

// FeatureNames labels the three positions of a feature vector.
var FeatureNames = [3]string{"speed_mps", "accuracy_m", "battery_pct"}

var (
	// ErrModelNotTrained is returned by a Holder that has no scorer installed.
	ErrModelNotTrained = errors.New("anomaly model not trained")

	// ErrInvalidFeatures is returned for NaN or infinite features.
	ErrInvalidFeatures = errors.New("feature vector contains non-finite values")
)

// Scorer maps a feature vector to an anomaly score. Implementations must be
// immutable and safe for concurrent use.
type Scorer interface {
	Score(features [3]float64) (float64, error)
}

// NeutralScorer scores every vector 0. It is installed when there is too
// little data to train a model.
type NeutralScorer struct{}

func (NeutralScorer) Score([3]float64) (float64, error) { return 0, nil }

type scorerBox struct {
	scorer Scorer
}

// Holder is the active scorer. Retraining swaps it with Store while
// concurrent Score calls continue against the old or new scorer.
type Holder struct {
	p atomic.Pointer[scorerBox]
}

// NewHolder returns a Holder with initial installed. initial may be nil.
func NewHolder(initial Scorer) *Holder {
	h := &Holder{}
	if initial != nil {
		h.Store(initial)
	}
	return h
}

// Store installs s.
func (h *Holder) Store(s Scorer) {
	h.p.Store(&scorerBox{scorer: s})
}

// Load returns the installed scorer, or nil.
func (h *Holder) Load() Scorer {
	b := h.p.Load()
	if b == nil {
		return nil
	}
	return b.scorer
}

// Score delegates to the installed scorer.
func (h *Holder) Score(features [3]float64) (float64, error) {
	s := h.Load()
	if s == nil {
		return 0, ErrModelNotTrained
	}
	return s.Score(features)
}

// Ready reports whether a trained model, rather than nothing or the neutral
// fallback, is installed.
func (h *Holder) Ready() bool {
	switch h.Load().(type) {
	case nil, NeutralScorer, *NeutralScorer:
		return false
	default:
		return true
	}
}
