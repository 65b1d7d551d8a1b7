// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package anomaly

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

const modelFormatVersion = 1

type modelFile struct {
	Version int              `json:"version"`
	Forest  *IsolationForest `json:"forest"`
}

// SaveModel writes f to path atomically, creating parent directories.
func SaveModel(path string, f *IsolationForest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	data, err := json.Marshal(modelFile{Version: modelFormatVersion, Forest: f})
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*.json")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install model: %w", err)
	}
	return nil
}

// LoadModel reads a model written by SaveModel. A missing file wraps
// os.ErrNotExist.
func LoadModel(path string) (*IsolationForest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if mf.Version != modelFormatVersion {
		return nil, fmt.Errorf("unsupported model version %d", mf.Version)
	}
	if mf.Forest == nil || len(mf.Forest.Trees) == 0 {
		return nil, errors.New("model file contains no trees")
	}
	if mf.Forest.SampleSize < MinFitRows {
		return nil, fmt.Errorf("sample size %d is below %d", mf.Forest.SampleSize, MinFitRows)
	}
	for i := range mf.Forest.Trees {
		if err := mf.Forest.Trees[i].validate(); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return mf.Forest, nil
}

// validate rejects node graphs that would index out of range or loop.
func (t *tree) validate() error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	n := int32(len(t.Nodes))
	for i, nd := range t.Nodes {
		if nd.Left < 0 {
			continue
		}
		if nd.Feature < 0 || nd.Feature > 2 {
			return fmt.Errorf("node %d: feature %d out of range", i, nd.Feature)
		}
		// children are always appended after their parent
		if nd.Left <= int32(i) || nd.Right <= int32(i) || nd.Left >= n || nd.Right >= n {
			return fmt.Errorf("node %d: bad child index", i)
		}
	}
	return nil
}
