// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pending

import (
	"path/filepath"
	"testing"

	"github.com/shuLhan/rfedge/internal/config"
	"github.com/shuLhan/rfedge/internal/platform"
	"github.com/shuLhan/rfedge/internal/sampledata"
)

func TestPendingTimeoutInsertsSkipSentinels(t *testing.T) {
	b := New(100, 1000)
	for i := 0; i < 5; i++ {
		b.AddPendingSample(sampledata.Sample{Label: 0, Features: []uint8{0}})
	}

	b.AddActualLabel(1, 0)
	b.AddActualLabel(2, 3000) // 3*W after previous -> 2 skip sentinels precede it

	if len(b.actualLabels) != 4 {
		t.Fatalf("actualLabels len = %d, want 4 (1 real + 2 skip + 1 real)", len(b.actualLabels))
	}
	if *b.actualLabels[0] != 1 {
		t.Fatalf("actualLabels[0] = %d, want 1", *b.actualLabels[0])
	}
	if *b.actualLabels[1] != SkipSentinel || *b.actualLabels[2] != SkipSentinel {
		t.Fatalf("expected 2 skip sentinels, got %v %v", *b.actualLabels[1], *b.actualLabels[2])
	}
	if *b.actualLabels[3] != 2 {
		t.Fatalf("actualLabels[3] = %d, want 2", *b.actualLabels[3])
	}
}

func TestAddPendingSampleTriggersFlushOverMax(t *testing.T) {
	b := New(2, 1000)
	if b.AddPendingSample(sampledata.Sample{Label: 0, Features: []uint8{0}}) {
		t.Fatal("should not flush yet")
	}
	if b.AddPendingSample(sampledata.Sample{Label: 0, Features: []uint8{0}}) {
		t.Fatal("should not flush yet")
	}
	if !b.AddPendingSample(sampledata.Sample{Label: 0, Features: []uint8{0}}) {
		t.Fatal("should signal flush once MaxPending exceeded")
	}
}

func TestFlushScenario(t *testing.T) {
	dir := t.TempDir()
	fs := platform.NewPosix()

	store := sampledata.New(fs)
	if err := store.Init(filepath.Join(dir, "m1_nml.bin"), 1, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := store.ReleaseData(false); err != nil {
		t.Fatal(err)
	}

	log, err := OpenInferenceLog(fs, filepath.Join(dir, "m1_infer_log.bin"), 2048)
	if err != nil {
		t.Fatal(err)
	}

	b := New(100, 1000)
	labelsPredicted := []uint8{0, 0, 1} // a,a,b
	for _, lp := range labelsPredicted {
		b.AddPendingSample(sampledata.Sample{Label: lp, Features: []uint8{0}})
	}
	b.AddActualLabel(0, 0) // a
	b.AddActualLabel(0, 1) // a
	b.AddActualLabel(1, 2) // c (reusing label id 1 as the test's "c")

	cfg := config.Default()
	cfg.ExtendBaseData = true
	dp := &config.DatasetParams{}

	if err := b.Flush(store, cfg, dp, log); err != nil {
		t.Fatal(err)
	}

	if store.NumSamples() != 3 {
		t.Fatalf("NumSamples = %d, want 3", store.NumSamples())
	}

	pairs, err := log.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := []Pair{{0, 0}, {0, 0}, {1, 1}}
	if len(pairs) != len(want) {
		t.Fatalf("pairs = %v, want %v", pairs, want)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Fatalf("pair %d = %v, want %v", i, pairs[i], want[i])
		}
	}

	if b.PendingCount() != 0 {
		t.Fatal("buffer should be cleared after flush")
	}
}
