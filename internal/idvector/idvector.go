// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package idvector implements a multiset of integer ids over a bounded
range, stored as a packed count per id. It is used to represent a
tree's bootstrap sample: an id repeated three times by sampling with
replacement costs 2 bits, not three 16-bit entries.
*/
package idvector

import (
	"errors"

	"github.com/shuLhan/rfedge/internal/bitpack"
)

// ErrOutOfRange is returned by SetIDRange when an id currently stored
// in the vector would fall outside the requested range.
var ErrOutOfRange = errors.New("idvector: stored id outside requested range")

// Vector is a counting multiset over ids in [Min,Max], bpv bits per
// count (saturating).
type Vector struct {
	Min int
	Max int
	Bpv uint
	arr *bitpack.Array
	buf []byte
}

// New creates a multiset over [min,max] with bpv count-bits per id
// (1..8). Saturates at 2^bpv-1 occurrences per id.
func New(min, max int, bpv uint) *Vector {
	n := max - min + 1
	buf := make([]byte, bitpack.BytesForLen(n, bpv))
	return &Vector{
		Min: min,
		Max: max,
		Bpv: bpv,
		arr: bitpack.NewArray(buf, bpv),
		buf: buf,
	}
}

func (v *Vector) maxCount() uint8 {
	return uint8(1<<v.Bpv - 1)
}

func (v *Vector) idxOf(id int) int { return id - v.Min }

// Count returns the number of times id has been pushed (0 if out of
// range or never seen).
func (v *Vector) Count(id int) uint8 {
	if id < v.Min || id > v.Max {
		return 0
	}
	return v.arr.Get(v.idxOf(id))
}

// Contains reports whether id has a non-zero count.
func (v *Vector) Contains(id int) bool {
	return v.Count(id) > 0
}

// PushBack increments id's count, saturating at 2^Bpv-1.
func (v *Vector) PushBack(id int) {
	i := v.idxOf(id)
	c := v.arr.Get(i)
	if c < v.maxCount() {
		v.arr.Set(i, c+1)
	}
}

// Erase decrements id's count once (no-op at zero).
func (v *Vector) Erase(id int) {
	i := v.idxOf(id)
	c := v.arr.Get(i)
	if c > 0 {
		v.arr.Set(i, c-1)
	}
}

// EraseAll zeroes id's count.
func (v *Vector) EraseAll(id int) {
	v.arr.Set(v.idxOf(id), 0)
}

// Size returns the sum of all counts (not the number of distinct ids).
func (v *Vector) Size() int {
	total := 0
	for id := v.Min; id <= v.Max; id++ {
		total += int(v.arr.Get(v.idxOf(id)))
	}
	return total
}

// Iterate yields every id in ascending order, repeated by its count.
func (v *Vector) Iterate(fn func(id int)) {
	for id := v.Min; id <= v.Max; id++ {
		c := v.arr.Get(v.idxOf(id))
		for k := uint8(0); k < c; k++ {
			fn(id)
		}
	}
}

// SetIDRange rebinds the vector to [min,max], succeeding only if every
// currently stored id already falls within the new range (or the
// vector is empty). On failure the vector is left unchanged.
func (v *Vector) SetIDRange(min, max int) error {
	if v.Size() > 0 {
		for id := v.Min; id <= v.Max; id++ {
			if v.arr.Get(v.idxOf(id)) > 0 && (id < min || id > max) {
				return ErrOutOfRange
			}
		}
	}

	n := max - min + 1
	buf := make([]byte, bitpack.BytesForLen(n, v.Bpv))
	na := bitpack.NewArray(buf, v.Bpv)
	for id := v.Min; id <= v.Max; id++ {
		c := v.arr.Get(v.idxOf(id))
		if c > 0 {
			na.Set(id-min, c)
		}
	}
	v.Min, v.Max = min, max
	v.arr, v.buf = na, buf
	return nil
}

func (v *Vector) combine(other *Vector, f func(a, b uint8) uint8) *Vector {
	min, max := v.Min, v.Max
	if other.Min < min {
		min = other.Min
	}
	if other.Max > max {
		max = other.Max
	}
	out := New(min, max, v.Bpv)
	for id := min; id <= max; id++ {
		out.arr.Set(id-min, f(v.Count(id), other.Count(id)))
	}
	return out
}

// Union returns a new vector holding, per id, the max of the two
// input counts.
func (v *Vector) Union(other *Vector) *Vector {
	return v.combine(other, func(a, b uint8) uint8 {
		if a > b {
			return a
		}
		return b
	})
}

// Intersect returns a new vector holding, per id, the min of the two
// input counts.
func (v *Vector) Intersect(other *Vector) *Vector {
	return v.combine(other, func(a, b uint8) uint8 {
		if a < b {
			return a
		}
		return b
	})
}

// Difference returns a new vector holding, per id, the saturating
// subtraction v.Count(id) - other.Count(id).
func (v *Vector) Difference(other *Vector) *Vector {
	return v.combine(other, func(a, b uint8) uint8 {
		if a <= b {
			return 0
		}
		return a - b
	})
}
