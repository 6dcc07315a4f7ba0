// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package idvector

import "testing"

func TestPushBackCountAndSize(t *testing.T) {
	v := New(0, 99, 2)
	for k := 0; k < 3; k++ {
		v.PushBack(5)
	}
	if v.Count(5) != 3 {
		t.Fatalf("count(5) = %d, want 3", v.Count(5))
	}
	if v.Size() != 3 {
		t.Fatalf("size = %d, want 3", v.Size())
	}
}

func TestPushBackSaturates(t *testing.T) {
	v := New(0, 10, 2)
	for k := 0; k < 10; k++ {
		v.PushBack(1)
	}
	if v.Count(1) != 3 {
		t.Fatalf("count should saturate at 2^2-1=3, got %d", v.Count(1))
	}
}

func TestIterateAscendingWithMultiplicity(t *testing.T) {
	v := New(0, 10, 3)
	v.PushBack(3)
	v.PushBack(1)
	v.PushBack(1)
	v.PushBack(7)

	var got []int
	v.Iterate(func(id int) { got = append(got, id) })

	want := []int{1, 1, 3, 7}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSetIDRangeRejectsOutOfRangeIds(t *testing.T) {
	v := New(0, 10, 2)
	v.PushBack(5)

	if err := v.SetIDRange(6, 20); err == nil {
		t.Fatal("expected error when stored id falls outside new range")
	}
	if v.Min != 0 || v.Max != 10 {
		t.Fatal("range must be unchanged after a failed SetIDRange")
	}

	if err := v.SetIDRange(0, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Count(5) != 1 {
		t.Fatal("count must be preserved across a successful SetIDRange")
	}
}

func TestUnionIntersectDifference(t *testing.T) {
	a := New(0, 5, 3)
	b := New(0, 5, 3)
	a.PushBack(1)
	a.PushBack(1)
	b.PushBack(1)
	b.PushBack(2)

	u := a.Union(b)
	if u.Count(1) != 2 || u.Count(2) != 1 {
		t.Fatalf("union wrong: count(1)=%d count(2)=%d", u.Count(1), u.Count(2))
	}

	i := a.Intersect(b)
	if i.Count(1) != 1 || i.Count(2) != 0 {
		t.Fatalf("intersect wrong: count(1)=%d count(2)=%d", i.Count(1), i.Count(2))
	}

	d := a.Difference(b)
	if d.Count(1) != 1 || d.Count(2) != 0 {
		t.Fatalf("difference wrong: count(1)=%d count(2)=%d", d.Count(1), d.Count(2))
	}
}
