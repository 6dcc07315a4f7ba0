// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rfengine

import (
	"path/filepath"
	"testing"

	"github.com/shuLhan/rfedge/internal/platform"
)

func TestCategoryTableSaveLoadRoundTrip(t *testing.T) {
	fs := platform.NewPosix()
	path := filepath.Join(t.TempDir(), "m1_ctg.csv")

	names := []string{"normal", "attack", "unknown"}
	if err := saveCategoryTable(fs, path, names); err != nil {
		t.Fatal(err)
	}

	got, err := loadCategoryTable(fs, path)
	if err != nil {
		t.Fatal(err)
	}
	if got.NumLabels() != len(names) {
		t.Fatalf("NumLabels = %d, want %d", got.NumLabels(), len(names))
	}
	for i, name := range names {
		if got.TextFor(uint8(i)) != name {
			t.Fatalf("TextFor(%d) = %q, want %q", i, got.TextFor(uint8(i)), name)
		}
		id, ok := got.IDFor(name)
		if !ok || id != uint8(i) {
			t.Fatalf("IDFor(%q) = (%d, %v), want (%d, true)", name, id, ok, i)
		}
	}
}

func TestCategoryTableUnknownLookups(t *testing.T) {
	fs := platform.NewPosix()
	path := filepath.Join(t.TempDir(), "m1_ctg.csv")
	if err := saveCategoryTable(fs, path, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	cats, err := loadCategoryTable(fs, path)
	if err != nil {
		t.Fatal(err)
	}

	if cats.TextFor(9) != "" {
		t.Fatalf("TextFor(9) = %q, want empty", cats.TextFor(9))
	}
	if _, ok := cats.IDFor("nope"); ok {
		t.Fatal("IDFor(\"nope\") should not be found")
	}
}

func TestNilCategoryTableIsSafe(t *testing.T) {
	var cats *categoryTable
	if cats.NumLabels() != 0 {
		t.Fatal("nil categoryTable.NumLabels should be 0")
	}
	if cats.TextFor(0) != "" {
		t.Fatal("nil categoryTable.TextFor should be empty")
	}
	if _, ok := cats.IDFor("x"); ok {
		t.Fatal("nil categoryTable.IDFor should never be found")
	}
}
