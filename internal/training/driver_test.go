// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package training

import (
	"testing"

	"github.com/shuLhan/rfedge/internal/config"
	"github.com/shuLhan/rfedge/internal/forest"
	"github.com/shuLhan/rfedge/internal/idvector"
	"github.com/shuLhan/rfedge/internal/platform"
	"github.com/shuLhan/rfedge/internal/tree"
)

type memoryDataset struct {
	labels   []uint8
	features [][]uint8
}

func (m memoryDataset) GetLabel(id int) uint8     { return m.labels[id] }
func (m memoryDataset) GetFeature(id, j int) uint8 { return m.features[id][j] }
func (m memoryDataset) NumSamples() int           { return len(m.labels) }

func binaryDataset() memoryDataset {
	return memoryDataset{
		labels: []uint8{0, 0, 1, 1, 0, 1, 0, 1},
		features: [][]uint8{
			{0, 0, 0, 0}, {1, 0, 0, 0}, {1, 1, 1, 1}, {0, 1, 1, 1},
			{0, 0, 0, 1}, {1, 1, 0, 1}, {1, 0, 0, 1}, {0, 1, 1, 0},
		},
	}
}

func TestRunOOBSelectsAPositiveScoringGrid(t *testing.T) {
	fs := platform.NewPosix()
	dir := t.TempDir()

	acc := binaryDataset()
	layout := tree.NewLayout(2, 4, 16)
	d := NewDriver(fs, dir, layout, 5, 2, 4, forest.CriterionGini, []uint8{0}, 7, config.MetricAccuracy)

	trainIDs := idvector.New(0, acc.NumSamples()-1, 1)
	for i := 0; i < acc.NumSamples(); i++ {
		trainIDs.PushBack(i)
	}

	result, err := d.Run(acc, trainIDs, []int{2, 4}, []int{1, 2}, config.ScoreOOB, 4, 0.003, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Best == nil {
		t.Fatal("expected a best forest")
	}
	if len(result.Best.Trees) != 5 {
		t.Fatalf("Trees = %d, want 5", len(result.Best.Trees))
	}
}

func TestRestoreBestStateCopiesBackToCanonicalNames(t *testing.T) {
	fs := platform.NewPosix()
	dir := t.TempDir()

	acc := binaryDataset()
	layout := tree.NewLayout(2, 4, 16)
	d := NewDriver(fs, dir, layout, 2, 2, 4, forest.CriterionGini, []uint8{0}, 3, config.MetricAccuracy)

	trainIDs := idvector.New(0, acc.NumSamples()-1, 1)
	for i := 0; i < acc.NumSamples(); i++ {
		trainIDs.PushBack(i)
	}

	_, err := d.Run(acc, trainIDs, []int{2}, []int{1}, config.ScoreOOB, 4, 0.003, 0)
	if err != nil {
		t.Fatal(err)
	}

	if !fs.Exists(bestTreePath(dir, 0)) {
		t.Fatal("expected best_tree_0.bin to exist after an improving grid point")
	}

	if err := d.RestoreBestState(2); err != nil {
		t.Fatal(err)
	}
	if !fs.Exists(treePath(dir, 0)) || !fs.Exists(treePath(dir, 1)) {
		t.Fatal("expected tree_<i>.bin restored from best state")
	}
}
