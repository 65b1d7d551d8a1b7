// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package anomaly

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"
)

const eulerGamma = 0.5772156649015329

// ErrNoTrainingData is returned by Fit with fewer than MinFitRows rows.
var ErrNoTrainingData = errors.New("not enough training rows")

// MinFitRows is the fewest rows a forest can be fitted on. A single-row
// sample has no average path length to normalize by.
const MinFitRows = 2

// ForestOptions configures Fit.
type ForestOptions struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          uint64
}

// DefaultForestOptions are 200 trees of up to 256 samples, 5% contamination, seed 42.
func DefaultForestOptions() ForestOptions {
	return ForestOptions{Trees: 200, SampleSize: 256, Contamination: 0.05, Seed: 42}
}

// node is one tree node. Left < 0 marks a leaf.
type node struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Left    int32   `json:"l"`
	Right   int32   `json:"r"`
	Size    int     `json:"n"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

// IsolationForest is a trained isolation forest. Score returns
// -2^(-E[h(x)]/c(ψ)) minus the contamination offset, so roughly the
// contamination fraction of training rows score below zero.
type IsolationForest struct {
	Trees         []tree     `json:"trees"`
	SampleSize    int        `json:"sample_size"`
	Offset        float64    `json:"offset"`
	Contamination float64    `json:"contamination"`
	Seed          uint64     `json:"seed"`
	TrainedRows   int        `json:"trained_rows"`
	TrainedAt     time.Time  `json:"trained_at"`
	Importances   [3]float64 `json:"feature_importances"`
}

// Fit trains a forest on rows. Identical rows and options give an identical
// forest.
func Fit(rows [][3]float64, opts ForestOptions) (*IsolationForest, error) {
	if len(rows) < MinFitRows {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNoTrainingData, len(rows), MinFitRows)
	}
	for i := range rows {
		if !finite(rows[i]) {
			return nil, fmt.Errorf("row %d: %w", i, ErrInvalidFeatures)
		}
	}
	def := DefaultForestOptions()
	if opts.Trees <= 0 {
		opts.Trees = def.Trees
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = def.SampleSize
	}
	if opts.Contamination <= 0 || opts.Contamination > 0.5 {
		return nil, fmt.Errorf("contamination must be in (0, 0.5], got %v", opts.Contamination)
	}

	psi := min(opts.SampleSize, len(rows))
	maxDepth := int(math.Ceil(math.Log2(float64(max(psi, 2)))))
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	f := &IsolationForest{
		Trees:         make([]tree, opts.Trees),
		SampleSize:    psi,
		Contamination: opts.Contamination,
		Seed:          opts.Seed,
		TrainedRows:   len(rows),
		TrainedAt:     time.Now().UTC(),
	}

	perm := make([]int, len(rows))
	var splits [3]int
	for t := range f.Trees {
		for i := range perm {
			perm[i] = i
		}
		// partial Fisher-Yates: the first psi entries are a sample without replacement
		for i := 0; i < psi; i++ {
			j := i + rng.IntN(len(perm)-i)
			perm[i], perm[j] = perm[j], perm[i]
		}
		sample := make([]int, psi)
		copy(sample, perm[:psi])

		b := builder{rows: rows, rng: rng, maxDepth: maxDepth}
		b.build(sample, 0)
		f.Trees[t] = tree{Nodes: b.nodes}
		for i := range splits {
			splits[i] += b.splits[i]
		}
	}

	total := splits[0] + splits[1] + splits[2]
	if total > 0 {
		for i := range splits {
			f.Importances[i] = float64(splits[i]) / float64(total)
		}
	}

	scores := make([]float64, len(rows))
	for i := range rows {
		scores[i] = f.rawScore(rows[i])
	}
	f.Offset = percentile(scores, 100*opts.Contamination)
	return f, nil
}

type builder struct {
	rows     [][3]float64
	rng      *rand.Rand
	maxDepth int
	nodes    []node
	splits   [3]int
}

// build appends the subtree for idx and returns its node index.
func (b *builder) build(idx []int, depth int) int32 {
	at := int32(len(b.nodes))
	b.nodes = append(b.nodes, node{Left: -1, Right: -1, Size: len(idx)})
	if depth >= b.maxDepth || len(idx) <= 1 {
		return at
	}

	feature, lo, hi, ok := b.pickFeature(idx)
	if !ok {
		return at
	}
	split := lo + b.rng.Float64()*(hi-lo)

	// left takes x <= split; split < hi keeps both sides non-empty
	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.rows[i][feature] <= split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.splits[feature]++
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[at] = node{Feature: feature, Split: split, Left: l, Right: r, Size: len(idx)}
	return at
}

// pickFeature tries the features in random order and returns the first that
// is not constant over idx.
func (b *builder) pickFeature(idx []int) (feature int, lo, hi float64, ok bool) {
	order := b.rng.Perm(3)
	for _, f := range order {
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := b.rows[i][f]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi > lo {
			return f, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

// Score returns the offset-adjusted anomaly score of x.
func (f *IsolationForest) Score(x [3]float64) (float64, error) {
	if !finite(x) {
		return 0, ErrInvalidFeatures
	}
	if len(f.Trees) == 0 {
		return 0, ErrModelNotTrained
	}
	return f.rawScore(x) - f.Offset, nil
}

func (f *IsolationForest) rawScore(x [3]float64) float64 {
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].pathLength(x)
	}
	mean := sum / float64(len(f.Trees))
	return -math.Pow(2, -mean/averagePathLength(f.SampleSize))
}

// FeatureImportances returns the share of splits made on each feature.
func (f *IsolationForest) FeatureImportances() map[string]float64 {
	out := make(map[string]float64, len(FeatureNames))
	for i, name := range FeatureNames {
		out[name] = f.Importances[i]
	}
	return out
}

func (t *tree) pathLength(x [3]float64) float64 {
	depth := 0
	i := int32(0)
	for {
		n := &t.Nodes[i]
		if n.Left < 0 {
			return float64(depth) + averagePathLength(n.Size)
		}
		if x[n.Feature] <= n.Split {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

// percentile is the linearly interpolated q-th percentile of values.
func percentile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func finite(x [3]float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
