// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"path/filepath"
	"testing"

	"github.com/shuLhan/rfedge/internal/platform"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := platform.NewPosix()
	path := filepath.Join(dir, "m1_config.json")

	c := Default()
	c.NumTrees = 77
	c.Criterion = CriterionEntropy
	c.MetricScore = MetricF1
	c.TrainRatio = 0.6

	if err := c.Save(fs, path); err != nil {
		t.Fatal(err)
	}

	got, err := Load(fs, path)
	if err != nil {
		t.Fatal(err)
	}
	if got.NumTrees != 77 {
		t.Fatalf("NumTrees = %d, want 77", got.NumTrees)
	}
	if got.Criterion != CriterionEntropy {
		t.Fatalf("Criterion = %s, want entropy", got.Criterion)
	}
	if got.MetricScore != MetricF1 {
		t.Fatalf("MetricScore = %s, want F1_SCORE", got.MetricScore)
	}
	if got.TrainRatio != 0.6 {
		t.Fatalf("TrainRatio = %v, want 0.6", got.TrainRatio)
	}
}

func TestThresholdCandidatesQ1(t *testing.T) {
	got := ThresholdCandidates(1)
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("Q=1 candidates = %v, want [0]", got)
	}
}

func TestThresholdCandidatesAreOddAndBounded(t *testing.T) {
	got := ThresholdCandidates(8)
	maxVal := uint8(255)
	for i, v := range got {
		if v%2 == 0 {
			t.Fatalf("candidate %d = %d is even", i, v)
		}
		if v >= maxVal {
			t.Fatalf("candidate %d = %d not below %d", i, v, maxVal)
		}
		if i > 0 && v <= got[i-1] {
			t.Fatalf("candidates not strictly increasing at %d: %v", i, got)
		}
	}
}

func TestAutoConfigureMetricDerivation(t *testing.T) {
	cases := []struct {
		name   string
		stats  DatasetParams
		metric Metric
	}{
		{"balanced", DatasetParams{NumLabels: 2, SamplesPerLabel: []int{100, 100}}, MetricAccuracy},
		{"mild", DatasetParams{NumLabels: 2, SamplesPerLabel: []int{200, 100}}, MetricPrecision},
		{"moderate", DatasetParams{NumLabels: 2, SamplesPerLabel: []int{500, 100}}, MetricF1},
		{"severe", DatasetParams{NumLabels: 2, SamplesPerLabel: []int{1200, 100}}, MetricRecall},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.stats.NumSamples = tc.stats.SamplesPerLabel[0] + tc.stats.SamplesPerLabel[1]
			tc.stats.NumFeatures = 10
			c.AutoConfigure(tc.stats, true, false)
			if c.MetricScore != tc.metric {
				t.Fatalf("metric = %s, want %s", c.MetricScore, tc.metric)
			}
		})
	}
}

func TestAutoConfigureRatioFoldingWhenNotValidScore(t *testing.T) {
	c := Default()
	c.TrainRatio, c.TestRatio, c.ValidRatio = 0.6, 0.2, 0.2
	stats := DatasetParams{
		NumSamples: 50, NumLabels: 2, NumFeatures: 8,
		SamplesPerLabel: []int{400, 400}, // avg 50/2=25 -> k-fold, not valid score
	}
	c.AutoConfigure(stats, true, false)
	if c.TrainingScore == ScoreValid {
		t.Fatal("expected a non-valid training score for this sample density")
	}
	if c.ValidRatio != 0 {
		t.Fatalf("ValidRatio = %v, want 0 after folding", c.ValidRatio)
	}
	if c.TrainRatio != 0.8 {
		t.Fatalf("TrainRatio = %v, want 0.8 after folding valid_ratio in", c.TrainRatio)
	}
}

func TestMinLeafRangeScalesDownForSmallDatasets(t *testing.T) {
	small := minLeafRange(80) // 80/40 = 2
	if len(small) != 2 || small[0] != 1 || small[len(small)-1] != 2 {
		t.Fatalf("minLeafRange(80) = %v, want [1 2]", small)
	}

	large := minLeafRange(100000)
	if len(large) != 12 || large[len(large)-1] != 12 {
		t.Fatalf("minLeafRange(100000) = %v, want 12 values capped at 12", large)
	}

	tiny := minLeafRange(0)
	if len(tiny) != 1 || tiny[0] != 1 {
		t.Fatalf("minLeafRange(0) = %v, want [1]", tiny)
	}
}

func TestDatasetParamsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := platform.NewPosix()
	path := filepath.Join(dir, "m1_dp.csv")

	d := DatasetParams{
		QuantizationCoefficient: 4,
		MaxFeatureValue:         15,
		FeaturesPerByte:         2,
		NumFeatures:             8,
		NumSamples:              1000,
		NumLabels:               3,
		SamplesPerLabel:         []int{400, 350, 250},
	}
	if err := d.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := LoadDatasetParams(fs, path)
	if err != nil {
		t.Fatal(err)
	}
	if got.NumSamples != 1000 || got.NumLabels != 3 || got.NumFeatures != 8 {
		t.Fatalf("got = %+v", got)
	}
	if len(got.SamplesPerLabel) != 3 || got.SamplesPerLabel[0] != 400 || got.SamplesPerLabel[2] != 250 {
		t.Fatalf("SamplesPerLabel = %v", got.SamplesPerLabel)
	}
}
