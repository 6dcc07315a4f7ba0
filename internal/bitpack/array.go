// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package bitpack implement fixed-width bit-packed storage over a plain
byte buffer.

An Array holds elements of a uniform width B in [1,8] bits packed
contiguously, independent of whether B divides 8. It performs no bounds
checking: the caller is expected to size the underlying buffer and
keep indices in range, the same way the original embedded engine
favors unchecked accessors in its innermost loops.
*/
package bitpack

// Array is a bit-packed view over a byte buffer with a fixed element
// width B (1..8 bits).
type Array struct {
	Buf []byte
	B   uint
}

// NewArray wraps buf as a packed array of B-bit elements.
func NewArray(buf []byte, b uint) *Array {
	return &Array{Buf: buf, B: b}
}

// BytesForLen returns the number of bytes needed to hold n elements of
// b bits each.
func BytesForLen(n int, b uint) int {
	bits := n * int(b)
	return (bits + 7) / 8
}

// Get reads the element at index i, masked to B bits.
func (a *Array) Get(i int) uint8 {
	bitPos := i * int(a.B)
	byteIdx := bitPos >> 3
	bitOff := uint(bitPos & 7)

	var v uint16
	v = uint16(a.Buf[byteIdx]) >> bitOff
	if bitOff+a.B > 8 {
		v |= uint16(a.Buf[byteIdx+1]) << (8 - bitOff)
	}
	mask := uint16(1)<<a.B - 1
	return uint8(v & mask)
}

// Set writes v (masked to B bits) at index i without disturbing any
// other bits in the buffer.
func (a *Array) Set(i int, v uint8) {
	bitPos := i * int(a.B)
	byteIdx := bitPos >> 3
	bitOff := uint(bitPos & 7)
	mask := uint16(1)<<a.B - 1
	val := uint16(v) & mask

	lowMask := uint8(mask << bitOff)
	a.Buf[byteIdx] = (a.Buf[byteIdx] &^ lowMask) | uint8(val<<bitOff)

	if bitOff+a.B > 8 {
		spill := a.B - (8 - bitOff)
		spillMask := uint8(1)<<spill - 1
		a.Buf[byteIdx+1] = (a.Buf[byteIdx+1] &^ spillMask) | uint8(val>>(8-bitOff))
	}
}

// CopyElements copies the first n elements (n*B bits) from src into a,
// starting at element 0 of both. Complete bytes are copied in bulk;
// any trailing partial byte is masked so unrelated high bits in the
// destination's tail byte are preserved.
func (a *Array) CopyElements(src *Array, n int) {
	totalBits := n * int(a.B)
	fullBytes := totalBits / 8
	tailBits := uint(totalBits % 8)

	copy(a.Buf[:fullBytes], src.Buf[:fullBytes])

	if tailBits > 0 {
		tailMask := uint8(1)<<tailBits - 1
		a.Buf[fullBytes] = (a.Buf[fullBytes] &^ tailMask) | (src.Buf[fullBytes] & tailMask)
	}
}
