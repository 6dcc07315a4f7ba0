// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitpack

import "testing"

func TestArrayGetSetRoundTrip(t *testing.T) {
	for b := uint(1); b <= 8; b++ {
		n := 37
		buf := make([]byte, BytesForLen(n, b))
		a := NewArray(buf, b)

		max := uint8(1<<b - 1)
		vs := make([]uint8, n)
		for i := range vs {
			vs[i] = uint8(i % (int(max) + 1))
			a.Set(i, vs[i])
		}

		for i := range vs {
			got := a.Get(i)
			if got != vs[i] {
				t.Fatalf("b=%d i=%d: got %d want %d", b, i, got, vs[i])
			}
		}
	}
}

func TestArraySetDoesNotDisturbNeighbors(t *testing.T) {
	buf := make([]byte, BytesForLen(10, 3))
	a := NewArray(buf, 3)

	for i := 0; i < 10; i++ {
		a.Set(i, 5)
	}

	a.Set(4, 2)

	for i := 0; i < 10; i++ {
		want := uint8(5)
		if i == 4 {
			want = 2
		}
		if got := a.Get(i); got != want {
			t.Fatalf("i=%d: got %d want %d", i, got, want)
		}
	}
}

func TestArrayCopyElements(t *testing.T) {
	b := uint(5)
	n := 20
	src := NewArray(make([]byte, BytesForLen(n, b)), b)
	dst := NewArray(make([]byte, BytesForLen(n, b)), b)

	for i := 0; i < n; i++ {
		src.Set(i, uint8(i*3)%32)
	}
	dst.CopyElements(src, n)

	for i := 0; i < n; i++ {
		if got, want := dst.Get(i), src.Get(i); got != want {
			t.Fatalf("i=%d: got %d want %d", i, got, want)
		}
	}
}
