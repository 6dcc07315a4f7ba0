// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package config holds the engine's hyperparameters, the dataset
statistics that drive auto-configuration, and the precomputed
threshold-candidate table every tree builder consults. Config is
persisted as flat JSON, but parsed with a tight key-value scanner
instead of encoding/json: the key set is small, fixed, and known ahead
of time, in the same spirit as the teacher's own aversion to pulling in
heavyweight parsers for things a scanner handles directly (see
`set`/`gain/gini`, which are pure stdlib+glog).
*/
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/shuLhan/rfedge/internal/platform"
)

// Metric selects the scoring metric used both for auto-configuration
// and for ScoreMatrix.Combined.
type Metric string

const (
	MetricAccuracy  Metric = "ACCURACY"
	MetricPrecision Metric = "PRECISION"
	MetricRecall    Metric = "RECALL"
	MetricF1        Metric = "F1_SCORE"
)

// TrainingScore selects how the grid search evaluates a candidate forest.
type TrainingScore string

const (
	ScoreOOB   TrainingScore = "oob_score"
	ScoreValid TrainingScore = "valid_score"
	ScoreKFold TrainingScore = "k_fold_score"
)

// Criterion selects the impurity measure, mirrored here as a string so
// it round-trips through JSON the way the embedded config file does.
type Criterion string

const (
	CriterionGini    Criterion = "gini"
	CriterionEntropy Criterion = "entropy"
)

// Config is the full set of recognised JSON keys from the engine's
// config file (spec section 4.9).
type Config struct {
	NumTrees       int     `json:"numTrees"`
	RandomSeed     uint64  `json:"randomSeed"`
	MinSplit       int     `json:"minSplit"`
	MaxDepth       int     `json:"maxDepth"`
	TrainRatio     float64 `json:"train_ratio"`
	TestRatio      float64 `json:"test_ratio"`
	ValidRatio     float64 `json:"valid_ratio"`
	UseBootstrap   bool    `json:"useBootstrap"`
	BootstrapRatio float64 `json:"boostrapRatio"`
	Criterion      Criterion `json:"criterion"`
	KFolds         int     `json:"k_folds"`
	ImpurityThreshold float64     `json:"impurityThreshold"`
	MetricScore       Metric        `json:"metric_score"`
	TrainingScore     TrainingScore `json:"trainingScore"`
	ExtendBaseData    bool          `json:"extendBaseData"`
	EnableRetrain     bool          `json:"enableRetrain"`
	EnableAutoConfig  bool          `json:"enableAutoConfig"`
	ResultScore       float64       `json:"resultScore"`
}

// Default returns the engine's out-of-the-box configuration, used when
// no config file is present and auto-configuration has not yet run.
func Default() *Config {
	return &Config{
		NumTrees:          100,
		RandomSeed:        1,
		MinSplit:          2,
		MaxDepth:          12,
		TrainRatio:        0.7,
		TestRatio:         0.15,
		ValidRatio:        0.15,
		UseBootstrap:      true,
		BootstrapRatio:    1.0,
		Criterion:         CriterionGini,
		KFolds:            5,
		ImpurityThreshold: 0.003,
		MetricScore:       MetricAccuracy,
		TrainingScore:     ScoreOOB,
		ExtendBaseData:    true,
		EnableRetrain:     true,
		EnableAutoConfig:  true,
	}
}

// Save writes cfg as flat JSON to path.
func (c *Config) Save(fs platform.FS, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString("{\n")
	fmt.Fprintf(&b, "  \"numTrees\": %d,\n", c.NumTrees)
	fmt.Fprintf(&b, "  \"randomSeed\": %d,\n", c.RandomSeed)
	fmt.Fprintf(&b, "  \"minSplit\": %d,\n", c.MinSplit)
	fmt.Fprintf(&b, "  \"maxDepth\": %d,\n", c.MaxDepth)
	fmt.Fprintf(&b, "  \"train_ratio\": %g,\n", c.TrainRatio)
	fmt.Fprintf(&b, "  \"test_ratio\": %g,\n", c.TestRatio)
	fmt.Fprintf(&b, "  \"valid_ratio\": %g,\n", c.ValidRatio)
	fmt.Fprintf(&b, "  \"useBootstrap\": %t,\n", c.UseBootstrap)
	fmt.Fprintf(&b, "  \"boostrapRatio\": %g,\n", c.BootstrapRatio)
	fmt.Fprintf(&b, "  \"criterion\": \"%s\",\n", c.Criterion)
	fmt.Fprintf(&b, "  \"k_folds\": %d,\n", c.KFolds)
	fmt.Fprintf(&b, "  \"impurityThreshold\": %g,\n", c.ImpurityThreshold)
	fmt.Fprintf(&b, "  \"metric_score\": \"%s\",\n", c.MetricScore)
	fmt.Fprintf(&b, "  \"trainingScore\": \"%s\",\n", c.TrainingScore)
	fmt.Fprintf(&b, "  \"extendBaseData\": %t,\n", c.ExtendBaseData)
	fmt.Fprintf(&b, "  \"enableRetrain\": %t,\n", c.EnableRetrain)
	fmt.Fprintf(&b, "  \"enableAutoConfig\": %t,\n", c.EnableAutoConfig)
	fmt.Fprintf(&b, "  \"resultScore\": %g\n", c.ResultScore)
	b.WriteString("}\n")

	_, err = f.Write([]byte(b.String()))
	return err
}

// Load reads cfg back from a config file written by Save, or by the
// embedded firmware's own writer. Parsing is permissive per spec
// section 6: the first match of "key" then ':' then a value up to the
// next ',' or '}'.
func Load(fs platform.FS, path string) (*Config, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}
	raw := sb.String()

	c := Default()
	scanString(raw, "criterion", func(v string) { c.Criterion = Criterion(v) })
	scanString(raw, "metric_score", func(v string) { c.MetricScore = Metric(v) })
	scanString(raw, "trainingScore", func(v string) { c.TrainingScore = TrainingScore(v) })

	scanInt(raw, "numTrees", func(v int) { c.NumTrees = v })
	scanInt(raw, "minSplit", func(v int) { c.MinSplit = v })
	scanInt(raw, "maxDepth", func(v int) { c.MaxDepth = v })
	scanInt(raw, "k_folds", func(v int) { c.KFolds = v })
	scanUint64(raw, "randomSeed", func(v uint64) { c.RandomSeed = v })

	scanFloat(raw, "train_ratio", func(v float64) { c.TrainRatio = v })
	scanFloat(raw, "test_ratio", func(v float64) { c.TestRatio = v })
	scanFloat(raw, "valid_ratio", func(v float64) { c.ValidRatio = v })
	scanFloat(raw, "boostrapRatio", func(v float64) { c.BootstrapRatio = v })
	scanFloat(raw, "impurityThreshold", func(v float64) { c.ImpurityThreshold = v })
	scanFloat(raw, "resultScore", func(v float64) { c.ResultScore = v })

	scanBool(raw, "useBootstrap", func(v bool) { c.UseBootstrap = v })
	scanBool(raw, "extendBaseData", func(v bool) { c.ExtendBaseData = v })
	scanBool(raw, "enableRetrain", func(v bool) { c.EnableRetrain = v })
	scanBool(raw, "enableAutoConfig", func(v bool) { c.EnableAutoConfig = v })

	return c, nil
}

// rawValue returns the substring between "key" : and the next , or }.
func rawValue(raw, key string) (string, bool) {
	needle := "\"" + key + "\""
	i := strings.Index(raw, needle)
	if i < 0 {
		return "", false
	}
	rest := raw[i+len(needle):]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return "", false
	}
	rest = rest[colon+1:]
	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		end = len(rest)
	}
	return strings.TrimSpace(rest[:end]), true
}

func scanString(raw, key string, set func(string)) {
	v, ok := rawValue(raw, key)
	if !ok {
		return
	}
	v = strings.Trim(v, "\"")
	set(v)
}

func scanInt(raw, key string, set func(int)) {
	v, ok := rawValue(raw, key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		glog.Warningf("config: key %s: %v", key, err)
		return
	}
	set(n)
}

func scanUint64(raw, key string, set func(uint64)) {
	v, ok := rawValue(raw, key)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		glog.Warningf("config: key %s: %v", key, err)
		return
	}
	set(n)
}

func scanFloat(raw, key string, set func(float64)) {
	v, ok := rawValue(raw, key)
	if !ok {
		return
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		glog.Warningf("config: key %s: %v", key, err)
		return
	}
	set(n)
}

func scanBool(raw, key string, set func(bool)) {
	v, ok := rawValue(raw, key)
	if !ok {
		return
	}
	set(v == "true")
}

// ThresholdCandidates returns up to 8 odd values evenly spaced across
// [1, 2^Q-2], strictly increasing and bounded below 2^Q-1. For Q=1 the
// single candidate is 0.
func ThresholdCandidates(q uint) []uint8 {
	if q == 1 {
		return []uint8{0}
	}
	maxVal := (1 << q) - 1
	hi := maxVal - 1
	if hi < 1 {
		return []uint8{0}
	}

	const wantCount = 8
	count := wantCount
	if count > hi {
		count = hi
	}

	seen := make(map[int]bool, count)
	out := make([]uint8, 0, count)
	for i := 1; i <= count; i++ {
		v := (i*hi + count/2) / (count + 1)
		if v < 1 {
			v = 1
		}
		if v%2 == 0 {
			v++
		}
		if v >= maxVal {
			v = maxVal - 1
		}
		if v < 1 || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, uint8(v))
	}
	return out
}

// AutoConfigure derives metric, training score, ratios, search grids,
// and impurity threshold base from dataset statistics, per spec
// section 4.9. It mutates c in place and returns the computed
// min_split/min_leaf/max_depth search grids.
func (c *Config) AutoConfigure(stats DatasetParams, testEnabled bool, criterionIsEntropy bool) (minSplitGrid, minLeafGrid, maxDepthGrid []int) {
	c.MetricScore = deriveMetric(stats)
	c.TrainingScore = deriveTrainingScore(stats)

	c.normalizeRatios(testEnabled)

	n := stats.NumSamples
	f := stats.NumFeatures
	minSplitGrid = minSplitRange(n, f)
	minLeafGrid = minLeafRange(n)
	maxDepthGrid = maxDepthRange(n)

	c.ImpurityThreshold = impurityThresholdBase(stats, criterionIsEntropy)
	return minSplitGrid, minLeafGrid, maxDepthGrid
}

func deriveMetric(stats DatasetParams) Metric {
	ratio := stats.ImbalanceRatio()
	switch {
	case ratio > 10:
		return MetricRecall
	case ratio > 3:
		return MetricF1
	case ratio > 1.5:
		return MetricPrecision
	default:
		return MetricAccuracy
	}
}

func deriveTrainingScore(stats DatasetParams) TrainingScore {
	s := stats.AvgSamplesPerLabel()
	switch {
	case s < 200:
		return ScoreKFold
	case s < 500:
		return ScoreOOB
	default:
		return ScoreValid
	}
}

// normalizeRatios folds valid_ratio into train_ratio unless the
// training score needs a held-out validation split, folds test_ratio
// in when test evaluation is disabled at build time, then renormalises
// if the sum exceeds 1.
func (c *Config) normalizeRatios(testEnabled bool) {
	if c.TrainingScore != ScoreValid {
		c.TrainRatio += c.ValidRatio
		c.ValidRatio = 0
	}
	if !testEnabled {
		c.TrainRatio += c.TestRatio
		c.TestRatio = 0
	}
	sum := c.TrainRatio + c.TestRatio + c.ValidRatio
	if sum > 1 {
		c.TrainRatio /= sum
		c.TestRatio /= sum
		c.ValidRatio /= sum
	}
}

// minSplitRange computes the min_split grid search bounds: minimum 2,
// maximum 24, scaled down for small datasets.
func minSplitRange(n, f int) []int {
	hi := 24
	if n/20 < hi {
		hi = n / 20
	}
	if hi < 2 {
		hi = 2
	}
	var out []int
	for v := 2; v <= hi; v += 2 {
		out = append(out, v)
	}
	if len(out) == 0 {
		out = []int{2}
	}
	return out
}

// minLeafRange computes the min_leaf grid search bounds: minimum 1,
// maximum 12, scaled down for small datasets, analogous to
// minSplitRange but stepping by 1 (spec section 9's min_leaf ∈
// [min..max step 1]).
func minLeafRange(n int) []int {
	hi := 12
	if n/40 < hi {
		hi = n / 40
	}
	if hi < 1 {
		hi = 1
	}
	out := make([]int, 0, hi)
	for v := 1; v <= hi; v++ {
		out = append(out, v)
	}
	return out
}

// maxDepthRange computes the max_depth grid search bounds: 4 to
// max(6, floor(log2(2N))).
func maxDepthRange(n int) []int {
	hi := int(math.Floor(math.Log2(float64(2 * n))))
	if hi < 6 {
		hi = 6
	}
	var out []int
	for v := 4; v <= hi; v++ {
		out = append(out, v)
	}
	return out
}

// impurityThresholdBase computes 0.003*max_gini or 0.02*max_entropy
// scaled by sample count, class imbalance, and feature count factors.
func impurityThresholdBase(stats DatasetParams, entropy bool) float64 {
	var base float64
	if entropy {
		maxEntropy := math.Log2(float64(stats.NumLabels))
		base = 0.02 * maxEntropy
	} else {
		maxGini := 1 - 1/float64(stats.NumLabels)
		base = 0.003 * maxGini
	}

	sampleFactor := 1 / (1 + math.Log2(float64(stats.NumSamples+1)))
	imbalanceFactor := 1 - 0.5*stats.Imbalance()
	featureFactor := 1 / (1 + math.Log2(float64(stats.NumFeatures+1)))

	return base * sampleFactor * imbalanceFactor * featureFactor
}
