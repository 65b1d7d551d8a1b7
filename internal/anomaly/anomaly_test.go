// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package anomaly

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tourguard/internal/models"
)

// walkingRows generates n plausible walking pings around 1.2 m/s.
func walkingRows(n int, seed uint64) [][3]float64 {
	rng := rand.New(rand.NewPCG(seed, seed))
	rows := make([][3]float64, n)
	for i := range rows {
		rows[i] = [3]float64{
			math.Max(0, 1.2+0.3*rng.NormFloat64()),
			math.Max(1, 5+rng.NormFloat64()),
			math.Min(100, math.Max(5, 70+10*rng.NormFloat64())),
		}
	}
	return rows
}

func TestAveragePathLength(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{256, 2*(math.Log(255)+eulerGamma) - 2*255.0/256.0},
	}
	for _, tt := range tests {
		if got := averagePathLength(tt.n); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("c(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{4, 1, 3, 2, 5}
	tests := []struct {
		q    float64
		want float64
	}{
		{0, 1},
		{50, 3},
		{100, 5},
		{5, 1.2},
	}
	for _, tt := range tests {
		if got := percentile(values, tt.q); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("percentile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}
	if values[0] != 4 {
		t.Error("percentile sorted its input in place")
	}
}

func TestFitSeparatesOutliers(t *testing.T) {
	rows := walkingRows(500, 7)
	f, err := Fit(rows, DefaultForestOptions())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(f.Trees) != 200 || f.SampleSize != 256 {
		t.Fatalf("trees=%d sample=%d", len(f.Trees), f.SampleSize)
	}

	below := 0
	for _, r := range rows {
		s, err := f.Score(r)
		if err != nil {
			t.Fatal(err)
		}
		if s < 0 {
			below++
		}
	}
	if frac := float64(below) / float64(len(rows)); frac < 0.03 || frac > 0.07 {
		t.Errorf("fraction of training rows below zero = %v, want about 0.05", frac)
	}

	typical, _ := f.Score([3]float64{1.2, 5, 70})
	outlier, _ := f.Score([3]float64{45, 250, 3})
	if typical <= 0 {
		t.Errorf("typical walking ping scored %v, want > 0", typical)
	}
	if outlier >= 0 || outlier >= typical {
		t.Errorf("outlier scored %v (typical %v)", outlier, typical)
	}

	imp := f.FeatureImportances()
	sum := imp["speed_mps"] + imp["accuracy_m"] + imp["battery_pct"]
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("importances sum to %v", sum)
	}
}

func TestFitDeterministic(t *testing.T) {
	rows := walkingRows(300, 1)
	a, err := Fit(rows, DefaultForestOptions())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Fit(rows, DefaultForestOptions())

	probe := [3]float64{3, 12, 40}
	sa, _ := a.Score(probe)
	sb, _ := b.Score(probe)
	if sa != sb || a.Offset != b.Offset {
		t.Errorf("same seed gave different models: %v vs %v", sa, sb)
	}

	opts := DefaultForestOptions()
	opts.Seed = 43
	c, _ := Fit(rows, opts)
	if sc, _ := c.Score(probe); sc == sa {
		t.Error("different seed gave an identical score")
	}
}

func TestFitSmallAndConstant(t *testing.T) {
	rows := [][3]float64{{1, 5, 50}, {1, 5, 50}, {1, 5, 50}}
	f, err := Fit(rows, DefaultForestOptions())
	if err != nil {
		t.Fatal(err)
	}
	if f.SampleSize != 3 {
		t.Errorf("SampleSize = %d, want 3", f.SampleSize)
	}
	if s, err := f.Score([3]float64{1, 5, 50}); err != nil || math.IsNaN(s) {
		t.Errorf("Score = %v, %v", s, err)
	}
}

func TestFitErrors(t *testing.T) {
	if _, err := Fit(nil, DefaultForestOptions()); !errors.Is(err, ErrNoTrainingData) {
		t.Errorf("empty rows: %v", err)
	}
	if _, err := Fit([][3]float64{{1, 5, 50}}, DefaultForestOptions()); !errors.Is(err, ErrNoTrainingData) {
		t.Errorf("single row: %v", err)
	}
	if _, err := Fit([][3]float64{{math.NaN(), 1, 1}}, DefaultForestOptions()); !errors.Is(err, ErrInvalidFeatures) {
		t.Errorf("nan row: %v", err)
	}
	opts := DefaultForestOptions()
	opts.Contamination = 0.9
	if _, err := Fit(walkingRows(10, 1), opts); err == nil {
		t.Error("expected contamination error")
	}
}

func TestScoreRejectsNonFinite(t *testing.T) {
	f, _ := Fit(walkingRows(50, 2), DefaultForestOptions())
	if _, err := f.Score([3]float64{math.Inf(1), 1, 1}); !errors.Is(err, ErrInvalidFeatures) {
		t.Errorf("err = %v", err)
	}
}

func TestSaveLoadModel(t *testing.T) {
	f, _ := Fit(walkingRows(100, 3), DefaultForestOptions())
	path := filepath.Join(t.TempDir(), "models", "forest.json")
	if err := SaveModel(path, f); err != nil {
		t.Fatalf("SaveModel: %v", err)
	}
	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	probe := [3]float64{8, 30, 20}
	want, _ := f.Score(probe)
	got, _ := loaded.Score(probe)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("loaded model scores %v, want %v", got, want)
	}
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadModel(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing: %v", err)
	}

	tests := []struct {
		name string
		body string
	}{
		{"garbage", `not json`},
		{"wrong version", `{"version":9,"forest":{"trees":[{"nodes":[{"l":-1,"r":-1,"n":1}]}]}}`},
		{"no trees", `{"version":1,"forest":{"trees":[]}}`},
		{"single sample", `{"version":1,"forest":{"sample_size":1,"trees":[{"nodes":[{"l":-1,"r":-1,"n":1}]}]}}`},
		{"bad child", `{"version":1,"forest":{"sample_size":2,"trees":[{"nodes":[{"f":0,"s":1,"l":0,"r":5,"n":2}]}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadModel(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHolder(t *testing.T) {
	var h Holder
	if _, err := h.Score([3]float64{}); !errors.Is(err, ErrModelNotTrained) {
		t.Errorf("empty holder: %v", err)
	}
	if h.Ready() {
		t.Error("empty holder is not ready")
	}

	h.Store(NeutralScorer{})
	if s, err := h.Score([3]float64{100, 100, 0}); s != 0 || err != nil {
		t.Errorf("neutral = %v, %v", s, err)
	}
	if h.Ready() {
		t.Error("neutral holder is not ready")
	}

	f, _ := Fit(walkingRows(64, 4), DefaultForestOptions())
	h.Store(f)
	if !h.Ready() {
		t.Error("forest holder should be ready")
	}
}

func TestHolderConcurrentSwap(t *testing.T) {
	f, _ := Fit(walkingRows(64, 5), DefaultForestOptions())
	h := NewHolder(NeutralScorer{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, err := h.Score([3]float64{1, 5, 50}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	for j := 0; j < 50; j++ {
		if j%2 == 0 {
			h.Store(f)
		} else {
			h.Store(NeutralScorer{})
		}
	}
	wg.Wait()
}

type sliceSource []models.Observation

func (s sliceSource) Iterate(ctx context.Context, fn func(*models.Observation) error) error {
	for i := range s {
		if err := fn(&s[i]); err != nil {
			return err
		}
	}
	return nil
}

type failingSource struct{}

func (failingSource) Iterate(context.Context, func(*models.Observation) error) error {
	return errors.New("journal unavailable")
}

func observations(n int) sliceSource {
	rows := walkingRows(n, 9)
	out := make(sliceSource, n)
	for i, r := range rows {
		b := r[2]
		out[i] = models.Observation{TouristID: "t", TripID: "trip", SpeedMPS: r[0], AccuracyM: r[1], BatteryPct: &b}
	}
	// one ping without battery takes the default
	out[0].BatteryPct = nil
	return out
}

func newTestTrainer(t *testing.T, minRows int, sources ...ObservationSource) (*Trainer, *Holder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "isolation_forest.json")
	h := NewHolder(nil)
	tr := NewTrainer(h, TrainerConfig{
		Forest:          ForestOptions{Trees: 50, SampleSize: 64, Contamination: 0.05, Seed: 42},
		ModelPath:       path,
		MinTrainingRows: minRows,
	}, zerolog.Nop(), sources...)
	return tr, h, path
}

func TestTrainerKeepsConfiguredBattery(t *testing.T) {
	src := observations(4)
	tr := NewTrainer(NewHolder(nil), TrainerConfig{MinTrainingRows: 1, DefaultBatteryPct: 0}, zerolog.Nop(), src)

	if tr.cfg.MinTrainingRows != MinFitRows {
		t.Errorf("MinTrainingRows = %d, want %d", tr.cfg.MinTrainingRows, MinFitRows)
	}
	rows, err := tr.collectRows(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// observations leaves the first battery reading empty
	if rows[0][2] != 0 {
		t.Errorf("missing battery trained as %v, want 0", rows[0][2])
	}
}

func TestTrainerTrainPersist(t *testing.T) {
	tr, h, path := newTestTrainer(t, 32, observations(80), observations(20))

	res, err := tr.Train(context.Background(), true)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if res.TrainedOnRows != 100 || res.Neutral {
		t.Errorf("result = %+v", res)
	}
	if res.ModelPath == nil || *res.ModelPath != path {
		t.Errorf("ModelPath = %v", res.ModelPath)
	}
	if len(res.FeatureImportances) != 3 {
		t.Errorf("importances = %v", res.FeatureImportances)
	}
	if !h.Ready() {
		t.Error("holder should hold the forest")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("model not persisted: %v", err)
	}
	if last, ok := tr.Last(); !ok || last.TrainedOnRows != 100 {
		t.Errorf("Last = %+v", last)
	}
}

func TestTrainerWithoutPersist(t *testing.T) {
	tr, _, path := newTestTrainer(t, 32, observations(64))
	res, err := tr.Train(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.ModelPath != nil {
		t.Errorf("ModelPath = %v, want nil", *res.ModelPath)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("model should not be written")
	}
}

func TestTrainerNeutralFallback(t *testing.T) {
	tr, h, _ := newTestTrainer(t, 32, observations(10))
	res, err := tr.Train(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Neutral || res.TrainedOnRows != 10 || res.ModelPath != nil {
		t.Errorf("result = %+v", res)
	}
	if _, ok := h.Load().(NeutralScorer); !ok {
		t.Errorf("holder has %T, want NeutralScorer", h.Load())
	}
}

func TestTrainerSourceError(t *testing.T) {
	tr, h, _ := newTestTrainer(t, 32, failingSource{})
	if _, err := tr.Train(context.Background(), true); err == nil {
		t.Fatal("expected error")
	}
	if h.Load() != nil {
		t.Error("holder should be untouched on failure")
	}
}

func TestTrainerLoadOrTrain(t *testing.T) {
	tr, _, path := newTestTrainer(t, 32, observations(64))

	first, err := tr.LoadOrTrain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first.Loaded {
		t.Error("first call should train, not load")
	}

	// a new trainer with no data still comes up with the persisted model
	h := NewHolder(nil)
	again := NewTrainer(h, TrainerConfig{ModelPath: path}, zerolog.Nop())
	res, err := again.HandleTrainRequest(context.Background(), false, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Loaded || res.TrainedOnRows != 64 || !h.Ready() {
		t.Errorf("result = %+v ready=%v", res, h.Ready())
	}
}

func TestTrainerCorruptModelRetrains(t *testing.T) {
	tr, h, path := newTestTrainer(t, 32, observations(64))
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	res, err := tr.LoadOrTrain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Loaded || !h.Ready() {
		t.Errorf("expected retrain, got %+v", res)
	}
	if time.Since(res.TrainedAt) > time.Minute {
		t.Errorf("TrainedAt = %v", res.TrainedAt)
	}
}
