// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package training implements the grid-search training driver
("RandomForest::training"): it sweeps min_split/min_leaf candidates
from config.AutoConfigure's search grid, scores each candidate forest
by OOB, validation-split, or k-fold evaluation, and keeps the
best-scoring forest's tree files as `best_tree_<i>.bin` until the
search completes or early-stops.
*/
package training

import (
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/shuLhan/numerus"
	"github.com/shuLhan/tekstus"

	"github.com/shuLhan/rfedge/internal/config"
	"github.com/shuLhan/rfedge/internal/forest"
	"github.com/shuLhan/rfedge/internal/idvector"
	"github.com/shuLhan/rfedge/internal/platform"
	"github.com/shuLhan/rfedge/internal/rng"
	"github.com/shuLhan/rfedge/internal/scorematrix"
	"github.com/shuLhan/rfedge/internal/tree"
)

// DefaultPatience and DefaultMinImprovement match spec section 4.12's
// early-stopping defaults.
const (
	DefaultPatience       = 3
	DefaultMinImprovement = 0.003
)

// Driver owns the shared layout and hyperparameters that do not vary
// across one grid search.
type Driver struct {
	fs  platform.FS
	dir string

	Layout      tree.Layout
	NumTrees    int
	NumLabels   int
	NumFeatures int
	Criterion   forest.Criterion
	Thresholds  []uint8
	BaseSeed    uint64

	Patience       int
	MinImprovement float64

	// Metric is the scoring function applied to each grid point's
	// confusion matrix (config.AutoConfigure's deriveMetric, or
	// Engine.SetMetric).
	Metric config.Metric
}

// NewDriver constructs a driver bound to the model directory where
// per-tree and best-state files are written during the search.
func NewDriver(fs platform.FS, dir string, layout tree.Layout, numTrees, numLabels, numFeatures int, criterion forest.Criterion, thresholds []uint8, baseSeed uint64, metric config.Metric) *Driver {
	return &Driver{
		fs: fs, dir: dir,
		Layout: layout, NumTrees: numTrees, NumLabels: numLabels, NumFeatures: numFeatures,
		Criterion: criterion, Thresholds: thresholds, BaseSeed: baseSeed,
		Patience: DefaultPatience, MinImprovement: DefaultMinImprovement,
		Metric: metric,
	}
}

// GridPoint is one (min_split, min_leaf) candidate.
type GridPoint struct {
	MinSplit int
	MinLeaf  int
}

// Accessor is the read surface the driver needs over the full dataset
// to build and score candidate forests; sampledata.Store satisfies it.
type Accessor interface {
	forest.Accessor
	NumSamples() int
}

// Result is the outcome of a completed grid search.
type Result struct {
	Best      *forest.Forest
	BestScore float64
	Grid      GridPoint
}

// Run sweeps minSplitGrid x minLeafGrid, building one forest per point
// using trainIDs (the train-split sample ids, one count each) and
// scoring it per scoreMode. Under ScoreValid the forest is scored over
// trainIDs themselves; no separate validation split is passed in.
// kFolds is only consulted under ScoreKFold. It stops early once
// Patience consecutive grid points fail to improve the best score by
// at least MinImprovement.
func (d *Driver) Run(acc Accessor, trainIDs *idvector.Vector, minSplitGrid, minLeafGrid []int, scoreMode config.TrainingScore, maxDepth int, impurityBase float64, kFolds int) (Result, error) {
	trainIndices := flatten(trainIDs)

	var best Result
	best.BestScore = -1
	noImprove := 0

	for _, minSplit := range minSplitGrid {
		for _, minLeaf := range minLeafGrid {
			if noImprove >= d.Patience {
				glog.V(1).Infof("training: early stop after %d grid points with no improvement", noImprove)
				return best, nil
			}

			point := GridPoint{MinSplit: minSplit, MinLeaf: minLeaf}
			cfg := forest.BuildConfig{
				MinSplit: minSplit, MaxDepth: maxDepth, MinLeaf: minLeaf,
				Criterion: d.Criterion, ImpurityBase: impurityBase,
				NumFeatures: d.NumFeatures, NumLabels: d.NumLabels, Thresholds: d.Thresholds,
			}

			f, bagIndices, err := d.buildForest(acc, trainIndices, cfg)
			if err != nil {
				return best, err
			}

			score, err := d.score(acc, f, bagIndices, trainIndices, scoreMode, kFolds, cfg)
			if err != nil {
				return best, err
			}
			glog.V(1).Infof("training: grid min_split=%d min_leaf=%d score=%.4f", minSplit, minLeaf, score)

			if score > best.BestScore+d.MinImprovement {
				best = Result{Best: f, BestScore: score, Grid: point}
				if err := d.saveBestState(f); err != nil {
					return best, err
				}
				noImprove = 0
			} else {
				noImprove++
			}
		}
	}

	return best, nil
}

// buildForest builds one tree per d.NumTrees, deriving each tree's
// bootstrap sample and RNG substream from BaseSeed and the tree index,
// retrying with an incremented nonce on multiset collision against an
// earlier tree (spec section 5/9). Alongside the idvector bags used for
// bootstrap sampling itself, it also returns each tree's bag flattened
// to a plain sorted []int, the shape numerus.IntsIsExist expects for
// the OOB membership check (the teacher's forest.bagIndices in
// classifier/rf/rf.go).
func (d *Driver) buildForest(acc Accessor, trainIndices []int, cfg forest.BuildConfig) (*forest.Forest, [][]int, error) {
	f := forest.New(d.Layout, d.NumLabels)
	builder := forest.NewBuilder(d.Layout)

	bagIndices := make([][]int, 0, d.NumTrees)
	seen := make(map[string]bool, d.NumTrees)

	minID, maxID := minMax(trainIndices)

	for i := 0; i < d.NumTrees; i++ {
		nonce := 0
		var bag *idvector.Vector
		var seed uint64
		for {
			seed = rng.DeriveTreeSeed(d.BaseSeed, i, nonce)
			bag = bootstrapBag(trainIndices, minID, maxID, seed)
			key := bagKey(bag, minID, maxID)
			if !seen[key] {
				seen[key] = true
				break
			}
			nonce++
		}
		bagIndices = append(bagIndices, flattenBag(bag, minID, maxID))

		t := builder.BuildTree(acc, bag, cfg, seed)
		f.AddTree(t)

		if err := t.Release(d.fs, treePath(d.dir, i), true); err != nil {
			return nil, nil, err
		}
	}
	return f, bagIndices, nil
}

func (d *Driver) score(acc Accessor, f *forest.Forest, bagIndices [][]int, trainIndices []int, mode config.TrainingScore, kFolds int, cfg forest.BuildConfig) (float64, error) {
	switch mode {
	case config.ScoreOOB:
		return d.scoreOOB(acc, f, bagIndices, trainIndices), nil
	case config.ScoreValid:
		return d.scoreOverIDs(acc, f, trainIndices), nil
	case config.ScoreKFold:
		return d.scoreKFold(acc, trainIndices, cfg, kFolds)
	default:
		return d.scoreOOB(acc, f, bagIndices, trainIndices), nil
	}
}

// scoreOOB votes each training sample using only the trees whose
// bootstrap multiset does not contain it (the teacher's ClassifySet
// out-of-bag exclusion, classifier/randomforest/randomforest.go,
// generalised from one forest-wide vote to a per-sample tree subset).
// Membership uses numerus.IntsIsExist against the flattened bag, the
// same primitive the teacher uses for its own OOB check.
func (d *Driver) scoreOOB(acc Accessor, f *forest.Forest, bagIndices [][]int, ids []int) float64 {
	m := scorematrix.New(d.NumLabels)
	labelIDs := make([]int64, d.NumLabels)
	for i := range labelIDs {
		labelIDs[i] = int64(i)
	}
	for _, id := range ids {
		var votes []int64
		for ti, t := range f.Trees {
			if numerus.IntsIsExist(bagIndices[ti], id) {
				continue
			}
			label := t.Predict(featuresOf(acc, id, d.NumFeatures), d.Thresholds)
			if int(label) < d.NumLabels {
				votes = append(votes, int64(label))
			}
		}
		if len(votes) == 0 {
			continue
		}
		predicted := uint8(tekstus.Int64MaxCountOf(votes, labelIDs))
		m.Update(acc.GetLabel(id), predicted)
	}
	return m.Combined(combinedMetric(d))
}

func (d *Driver) scoreOverIDs(acc Accessor, f *forest.Forest, ids []int) float64 {
	m := scorematrix.New(d.NumLabels)
	for _, id := range ids {
		predicted := f.Predict(featuresOf(acc, id, d.NumFeatures), d.Thresholds)
		m.Update(acc.GetLabel(id), predicted)
	}
	return m.Combined(combinedMetric(d))
}

// scoreKFold partitions ids into kFolds contiguous folds, rebuilding a
// forest on each fold's complement and scoring on the held-out fold,
// then averages across folds. Fold boundaries are generated with
// numerus.IntCreateSeq, matching the teacher's own index-sequence
// construction in classifier/runtime.go.
func (d *Driver) scoreKFold(acc Accessor, ids []int, cfg forest.BuildConfig, kFolds int) (float64, error) {
	if kFolds < 2 {
		kFolds = 2
	}
	n := len(ids)
	foldSize := n / kFolds
	if foldSize < 1 {
		foldSize = 1
	}

	var total float64
	var folds int
	for k := 0; k < kFolds; k++ {
		lo := k * foldSize
		hi := lo + foldSize
		if k == kFolds-1 {
			hi = n
		}
		if lo >= hi {
			continue
		}
		heldOutPos := numerus.IntCreateSeq(lo, hi-1)
		heldOut := make([]int, len(heldOutPos))
		for i, pos := range heldOutPos {
			heldOut[i] = ids[pos]
		}
		complement := append(append([]int{}, ids[:lo]...), ids[hi:]...)
		if len(complement) == 0 {
			continue
		}

		foldForest, _, err := d.buildForest(acc, complement, cfg)
		if err != nil {
			return 0, err
		}
		total += d.scoreOverIDs(acc, foldForest, heldOut)
		folds++
	}
	if folds == 0 {
		return 0, nil
	}
	return total / float64(folds), nil
}

func combinedMetric(d *Driver) config.Metric {
	if d.Metric == "" {
		return config.MetricAccuracy
	}
	return d.Metric
}

func featuresOf(acc Accessor, id, numFeatures int) []uint8 {
	feats := make([]uint8, numFeatures)
	for j := range feats {
		feats[j] = acc.GetFeature(id, j)
	}
	return feats
}

func flatten(v *idvector.Vector) []int {
	var out []int
	v.Iterate(func(id int) { out = append(out, id) })
	return out
}

func minMax(ids []int) (int, int) {
	if len(ids) == 0 {
		return 0, 0
	}
	lo, hi := ids[0], ids[0]
	for _, id := range ids[1:] {
		if id < lo {
			lo = id
		}
		if id > hi {
			hi = id
		}
	}
	return lo, hi
}

// bootstrapBag samples len(trainIndices) ids with replacement from
// trainIndices using a PCG32 stream derived from seed.
func bootstrapBag(trainIndices []int, minID, maxID int, seed uint64) *idvector.Vector {
	p := rng.NewPCG32(seed, 1)
	bag := idvector.New(minID, maxID, 8)
	n := len(trainIndices)
	for i := 0; i < n; i++ {
		bag.PushBack(trainIndices[p.Intn(n)])
	}
	return bag
}

// flattenBag expands bag's per-id counts into a sorted []int of ids
// present at least once, the shape numerus.IntsIsExist scans over.
func flattenBag(bag *idvector.Vector, minID, maxID int) []int {
	var out []int
	for id := minID; id <= maxID; id++ {
		if bag.Count(id) > 0 {
			out = append(out, id)
		}
	}
	return out
}

func bagKey(bag *idvector.Vector, minID, maxID int) string {
	var sb []byte
	for id := minID; id <= maxID; id++ {
		sb = append(sb, bag.Count(id))
	}
	return string(sb)
}

func treePath(dir string, i int) string {
	return fmt.Sprintf("%s/tree_%d.bin", dir, i)
}

func bestTreePath(dir string, i int) string {
	return fmt.Sprintf("%s/best_tree_%d.bin", dir, i)
}

// saveBestState copies every tree's current on-disk file to
// best_tree_<i>.bin, the atomic best-state checkpoint the driver
// restores from once the search completes or early-stops.
func (d *Driver) saveBestState(f *forest.Forest) error {
	for i := range f.Trees {
		if err := copyFile(d.fs, treePath(d.dir, i), bestTreePath(d.dir, i)); err != nil {
			return err
		}
	}
	return nil
}

// RestoreBestState copies best_tree_<i>.bin back over the canonical
// tree_<i>.bin names, for the caller to then compact via
// forest.ReleaseForest.
func (d *Driver) RestoreBestState(numTrees int) error {
	for i := 0; i < numTrees; i++ {
		if err := copyFile(d.fs, bestTreePath(d.dir, i), treePath(d.dir, i)); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(fs platform.FS, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
