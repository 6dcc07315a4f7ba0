// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tree

import (
	"path/filepath"
	"testing"

	"github.com/shuLhan/rfedge/internal/platform"
)

// buildBinaryExample builds the spec's worked example: root splits on
// feature 3 at threshold 0, left child leaf(0), right child leaf(1).
func buildBinaryExample() *Store {
	layout := NewLayout(2, 4, 3)
	st := New(layout)
	st.PushLeaf(0) // root placeholder, index 0
	left := st.PushLeaf(0)
	st.PushLeaf(1)
	st.SetSplit(0, 3, 0, left)
	return st
}

func TestPredictMatchesWorkedExample(t *testing.T) {
	st := buildBinaryExample()
	thresholds := []uint8{0}

	samples := [][]uint8{
		{0, 0, 0, 0},
		{1, 0, 0, 0},
		{1, 1, 1, 1},
		{0, 1, 1, 1},
	}
	want := []uint8{0, 0, 1, 1}
	for i, s := range samples {
		got := st.Predict(s, thresholds)
		if got != want[i] {
			t.Fatalf("sample %d: predict = %d, want %d", i, got, want[i])
		}
	}

	if got := st.Predict([]uint8{0, 1, 0, 1}, thresholds); got != 1 {
		t.Fatalf("predict([0,1,0,1]) = %d, want 1", got)
	}
}

func TestPredictNeverReturnsErrorForWellFormedTree(t *testing.T) {
	st := buildBinaryExample()
	thresholds := []uint8{0}
	for _, s := range [][]uint8{{0, 0, 0, 0}, {1, 1, 1, 1}} {
		if got := st.Predict(s, thresholds); got == RFErrorLabel {
			t.Fatalf("predict(%v) returned error label", s)
		}
	}
}

func TestReleaseLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := platform.NewPosix()
	path := filepath.Join(dir, "tree_0.bin")

	st := buildBinaryExample()
	nodesBefore := st.NodeCount()
	if err := st.Release(fs, path, true); err != nil {
		t.Fatal(err)
	}

	loaded := New(st.Layout)
	if err := loaded.Load(fs, path, true); err != nil {
		t.Fatal(err)
	}
	if loaded.NodeCount() != nodesBefore {
		t.Fatalf("node count after load = %d, want %d", loaded.NodeCount(), nodesBefore)
	}

	thresholds := []uint8{0}
	for _, s := range [][]uint8{{0, 0, 0, 0}, {1, 1, 1, 1}} {
		if got, want := loaded.Predict(s, thresholds), st.Predict(s, thresholds); got != want {
			t.Fatalf("prediction mismatch after round trip: got %d want %d", got, want)
		}
	}
}

func TestLoadRejectsOutOfRangeNodeCount(t *testing.T) {
	dir := t.TempDir()
	fs := platform.NewPosix()
	path := filepath.Join(dir, "bad.bin")

	f, err := fs.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	hdr := make([]byte, 8)
	hdr[0], hdr[1], hdr[2], hdr[3] = 0x45, 0x45, 0x52, 0x54 // little-endian "TREE"
	hdr[4] = 0xFF
	hdr[5] = 0xFF
	f.Write(hdr)
	f.Close()

	st := New(NewLayout(2, 4, 3))
	if err := st.Load(fs, path, true); err != ErrNodeCountOutOfRange {
		t.Fatalf("err = %v, want ErrNodeCountOutOfRange", err)
	}
}
