// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rfengine

import (
	"path/filepath"
	"testing"

	"github.com/shuLhan/rfedge/internal/platform"
)

func TestNodePredictorSaveLoadRoundTrip(t *testing.T) {
	fs := platform.NewPosix()
	path := filepath.Join(t.TempDir(), "m1_node_pred.bin")

	want := &NodePredictor{
		IsTrained:       true,
		AccuracyPercent: 87,
		PeakPercent:     95,
		Bias:            4,
		MinSplitCoeff:   1.5,
		MaxDepthCoeff:   2.25,
	}
	if err := saveNodePredictor(fs, path, want); err != nil {
		t.Fatal(err)
	}

	got, err := loadNodePredictor(fs, path)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *want {
		t.Fatalf("loaded = %+v, want %+v", got, want)
	}
}

func TestNodePredictorPredictArithmetic(t *testing.T) {
	p := &NodePredictor{IsTrained: true, Bias: 10, MinSplitCoeff: 2, MaxDepthCoeff: 3}
	got := p.Predict(2, 4)
	want := int(10 + 2*2 + 3*4) // 26
	if got != want {
		t.Fatalf("Predict(2,4) = %d, want %d", got, want)
	}
}

func TestNodePredictorPredictUntrainedOrNil(t *testing.T) {
	var p *NodePredictor
	if p.Predict(2, 4) != 0 {
		t.Fatal("nil NodePredictor.Predict should be 0")
	}

	untrained := &NodePredictor{IsTrained: false, Bias: 100}
	if untrained.Predict(2, 4) != 0 {
		t.Fatal("untrained NodePredictor.Predict should be 0")
	}
}

func TestNodePredictorPredictFloorsAtOne(t *testing.T) {
	p := &NodePredictor{IsTrained: true, Bias: -50}
	if got := p.Predict(1, 1); got != 1 {
		t.Fatalf("Predict with negative estimate = %d, want floor of 1", got)
	}
}

func TestLoadNodePredictorRejectsBadMagic(t *testing.T) {
	fs := platform.NewPosix()
	path := filepath.Join(t.TempDir(), "bad_node_pred.bin")

	f, err := fs.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(make([]byte, 8)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := loadNodePredictor(fs, path); err != ErrBadNodePredMagic {
		t.Fatalf("err = %v, want ErrBadNodePredMagic", err)
	}
}
