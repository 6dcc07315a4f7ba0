// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitpack

import "testing"

func TestVectorPushBackGrowth(t *testing.T) {
	v := NewVector(8, 4)
	n := 100
	for i := 0; i < n; i++ {
		v.PushBack(uint32(i % 16))
	}
	if v.Len() != n {
		t.Fatalf("len = %d, want %d", v.Len(), n)
	}
	var got []uint32
	v.Iterate(func(_ int, val uint32) bool {
		got = append(got, val)
		return true
	})
	for i, val := range got {
		if val != uint32(i%16) {
			t.Fatalf("i=%d: got %d want %d", i, val, i%16)
		}
	}
}

func TestVectorFit(t *testing.T) {
	v := NewVector(8, 8)
	for i := 0; i < 5; i++ {
		v.PushBack(uint32(i))
	}
	v.Fit()
	if v.Cap() != 5 {
		t.Fatalf("cap after fit = %d, want 5", v.Cap())
	}
	for i := 0; i < 5; i++ {
		if v.Get(i) != uint32(i) {
			t.Fatalf("i=%d: got %d want %d", i, v.Get(i), i)
		}
	}
}

func TestNodeVectorWideElements(t *testing.T) {
	nv := NewNodeVector()
	vals := []uint32{0, 1, 0xFFFFFFFF, 0x12345678, 1 << 20}
	for _, v := range vals {
		nv.PushBack(v)
	}
	for i, want := range vals {
		if got := nv.Get(i); got != want {
			t.Fatalf("i=%d: got %#x want %#x", i, got, want)
		}
	}
}
