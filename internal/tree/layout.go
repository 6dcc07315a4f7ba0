// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package tree implements one decision tree's packed 32-bit-per-node
representation and persistence ("Rf_tree"). Nodes form a contiguous
array addressed by index; a node's children, once pushed, always
occupy indices k and k+1 for some k, so no parent pointers or
intra-tree pointer graph exist.
*/
package tree

import "math/bits"

// RFMaxNodes is the upper bound NewLayout applies to a tree's node
// count.
const RFMaxNodes = 2047

// RFErrorLabel is returned by Predict when the walk leaves the node
// array (a corrupted tree).
const RFErrorLabel = 0xFF

// ceilLog2 returns ceil(log2(x)) for x>=1, 0 for x<=1.
func ceilLog2(x int) uint {
	if x <= 1 {
		return 0
	}
	return uint(bits.Len(uint(x - 1)))
}

func capAt(v, max uint) uint {
	if v > max {
		return max
	}
	return v
}

// Layout is the frozen bit-field layout for one forest's nodes,
// derived from the dataset's label/feature/estimated-node-count
// bounds and recorded alongside every tree built under it.
type Layout struct {
	FeatureBits uint // fb
	LabelBits   uint // lb
	ChildBits   uint // cb
	MaxNodes    int
}

// NewLayout computes field widths from (numLabels, numFeatures,
// estimatedNodes), each taken as ceil(log2(x)) and capped at (8,10,10)
// respectively for label/feature/child-index bits.
func NewLayout(numLabels, numFeatures, estimatedNodes int) Layout {
	fb := capAt(ceilLog2(numFeatures), 10)
	lb := capAt(ceilLog2(numLabels), 8)

	maxNodes := estimatedNodes
	if maxNodes > RFMaxNodes {
		maxNodes = RFMaxNodes
	}
	if maxNodes < 1 {
		maxNodes = 1
	}
	cb := capAt(ceilLog2(maxNodes), 10)

	return Layout{
		FeatureBits: fb,
		LabelBits:   lb,
		ChildBits:   cb,
		MaxNodes:    maxNodes,
	}
}

// TotalBits reports the field width sum (always <=32 by construction:
// 1 is_leaf + 3 threshold-slot + fb<=10 + lb<=8 + cb<=10 = 32 worst case).
func (l Layout) TotalBits() uint {
	return 1 + 3 + l.FeatureBits + l.LabelBits + l.ChildBits
}
