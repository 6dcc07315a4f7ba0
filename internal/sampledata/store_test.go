// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampledata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shuLhan/rfedge/internal/idvector"
	"github.com/shuLhan/rfedge/internal/platform"
)

func writeCSV(t *testing.T, dir string, lines []string) string {
	t.Helper()
	p := filepath.Join(dir, "in.csv")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestConvertCSVThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCSV(t, dir, []string{
		"0,0,0,0,0",
		"0,1,0,0,0",
		"1,1,1,1,1",
		"1,0,1,1,1",
	})

	fs := platform.NewPosix()
	s := New(fs)
	binPath := filepath.Join(dir, "data.bin")
	if err := s.Init(binPath, 4, 1, 1); err != nil {
		t.Fatal(err)
	}

	dropped, err := s.ConvertCSVToBinary(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
	if _, err := os.Stat(csvPath); err == nil {
		t.Fatal("csv source should have been removed")
	}

	wantLabels := []uint8{0, 0, 1, 1}
	wantFeats := [][]uint8{
		{0, 0, 0, 0},
		{1, 0, 0, 0},
		{1, 1, 1, 1},
		{0, 1, 1, 1},
	}

	if err := s.LoadData(false); err != nil {
		t.Fatal(err)
	}
	if s.NumSamples() != 4 {
		t.Fatalf("numSamples = %d, want 4", s.NumSamples())
	}
	for i := 0; i < 4; i++ {
		if s.GetLabel(i) != wantLabels[i] {
			t.Fatalf("sample %d: label = %d, want %d", i, s.GetLabel(i), wantLabels[i])
		}
		for j := 0; j < 4; j++ {
			if s.GetFeature(i, j) != wantFeats[i][j] {
				t.Fatalf("sample %d feature %d: got %d want %d", i, j, s.GetFeature(i, j), wantFeats[i][j])
			}
		}
	}
}

func TestLoadSubsetMatchesSourceOrder(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCSV(t, dir, []string{
		"0,0,0", "1,1,1", "2,2,2", "3,3,3", "4,4,4",
	})

	fs := platform.NewPosix()
	source := New(fs)
	if err := source.Init(filepath.Join(dir, "src.bin"), 2, 4, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := source.ConvertCSVToBinary(csvPath); err != nil {
		t.Fatal(err)
	}
	if err := source.LoadData(true); err != nil {
		t.Fatal(err)
	}

	ids := idvector.New(0, 4, 1)
	ids.PushBack(1)
	ids.PushBack(3)

	dest := New(fs)
	if err := dest.Init(filepath.Join(dir, "dst.bin"), 2, 4, 4); err != nil {
		t.Fatal(err)
	}
	if err := dest.LoadSubset(source, ids, false); err != nil {
		t.Fatal(err)
	}

	if dest.NumSamples() != 2 {
		t.Fatalf("numSamples = %d, want 2", dest.NumSamples())
	}
	if dest.GetLabel(0) != 1 || dest.GetLabel(1) != 3 {
		t.Fatalf("labels = [%d %d], want [1 3]", dest.GetLabel(0), dest.GetLabel(1))
	}
}

func TestAddNewDataExtendVsOverwrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCSV(t, dir, []string{"0,0", "1,1", "2,2"})

	fs := platform.NewPosix()
	s := New(fs)
	if err := s.Init(filepath.Join(dir, "data.bin"), 1, 2, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ConvertCSVToBinary(csvPath); err != nil {
		t.Fatal(err)
	}

	overwritten, err := s.AddNewData([]Sample{{Label: 9, Features: []uint8{1}}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(overwritten) != 1 || overwritten[0] != 0 {
		t.Fatalf("overwritten = %v, want [0]", overwritten)
	}
	if s.NumSamples() != 3 {
		t.Fatalf("numSamples after overwrite = %d, want 3", s.NumSamples())
	}

	_, err = s.AddNewData([]Sample{{Label: 3, Features: []uint8{3}}}, true)
	if err != nil {
		t.Fatal(err)
	}
	if s.NumSamples() != 4 {
		t.Fatalf("numSamples after extend = %d, want 4", s.NumSamples())
	}

	if err := s.LoadData(false); err != nil {
		t.Fatal(err)
	}
	if s.GetLabel(0) != 9 {
		t.Fatalf("overwritten label = %d, want 9", s.GetLabel(0))
	}
	if s.GetLabel(3) != 3 {
		t.Fatalf("appended label = %d, want 3", s.GetLabel(3))
	}
}

func TestChunkingSizes(t *testing.T) {
	fs := platform.NewPosix()
	s := New(fs)
	if err := s.Init("unused.bin", 128, 2, 8); err != nil {
		t.Fatal(err)
	}
	if s.ChunkSize != 256 {
		t.Fatalf("chunk size = %d, want 256", s.ChunkSize)
	}
}
