// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package forest

import (
	"math"

	"github.com/shuLhan/rfedge/internal/idvector"
	"github.com/shuLhan/rfedge/internal/rng"
	"github.com/shuLhan/rfedge/internal/tree"
)

// Criterion selects the impurity measure used to score candidate splits.
type Criterion int

const (
	// CriterionGini scores splits by weighted Gini impurity.
	CriterionGini Criterion = iota
	// CriterionEntropy scores splits by weighted entropy.
	CriterionEntropy
)

// Accessor is the minimal read surface the builder needs over a
// dataset: label and feature lookup by sample id. sampledata.Store
// satisfies this directly; a chunk-batched accessor can satisfy it
// too without the builder knowing the difference.
type Accessor interface {
	GetLabel(id int) uint8
	GetFeature(id, j int) uint8
}

// BuildConfig carries the hyperparameters and derived constants one
// BuildTree call needs.
type BuildConfig struct {
	MinSplit          int
	MaxDepth          int
	MinLeaf           int
	Criterion         Criterion
	ImpurityBase      float64
	NumFeatures       int
	NumLabels         int
	Thresholds        []uint8 // candidate threshold values for this Q
}

// Builder constructs trees under one shared layout.
type Builder struct {
	Layout tree.Layout
}

// NewBuilder creates a builder for the given layout.
func NewBuilder(layout tree.Layout) *Builder {
	return &Builder{Layout: layout}
}

type frame struct {
	nodeIndex int
	begin     int
	end       int
	depth     int
}

// BuildTree grows one tree breadth-first over the ids in bag (a
// bootstrap multiset), using acc to read labels/features, seeded
// deterministically by seed.
func (b *Builder) BuildTree(acc Accessor, bag *idvector.Vector, cfg BuildConfig, seed uint64) *tree.Store {
	indices := flattenBag(bag)

	t := tree.New(b.Layout)
	root := t.PushLeaf(0) // tentative, overwritten once stats are known

	p := rng.NewPCG32(seed, 1)

	queue := []frame{{nodeIndex: root, begin: 0, end: len(indices), depth: 0}}

	for len(queue) > 0 {
		fr := queue[0]
		queue = queue[1:]

		window := indices[fr.begin:fr.end]
		stats := computeNodeStats(acc, window, cfg.NumLabels)

		if shouldStop(t, fr, stats, cfg, b.Layout) {
			t.OverwriteLeaf(fr.nodeIndex, stats.majority)
			continue
		}

		feature, slot, gain := findBestSplit(acc, window, cfg, p)
		adaptive := adaptiveImpurityThreshold(cfg.ImpurityBase, len(window))
		if gain <= adaptive {
			t.OverwriteLeaf(fr.nodeIndex, stats.majority)
			continue
		}

		threshold := cfg.Thresholds[slot]
		mid := lomutoPartition(acc, window, feature, threshold)

		leftLen := mid
		rightLen := len(window) - mid
		if leftLen < cfg.MinLeaf || rightLen < cfg.MinLeaf {
			t.OverwriteLeaf(fr.nodeIndex, stats.majority)
			continue
		}

		leftIdx := t.PushLeaf(stats.majority)
		t.PushLeaf(stats.majority)
		t.SetSplit(fr.nodeIndex, feature, slot, leftIdx)

		if leftLen > 0 {
			queue = append(queue, frame{nodeIndex: leftIdx, begin: fr.begin, end: fr.begin + mid, depth: fr.depth + 1})
		}
		if rightLen > 0 {
			queue = append(queue, frame{nodeIndex: leftIdx + 1, begin: fr.begin + mid, end: fr.end, depth: fr.depth + 1})
		}
	}

	return t
}

func flattenBag(bag *idvector.Vector) []int {
	var indices []int
	bag.Iterate(func(id int) {
		indices = append(indices, id)
	})
	return indices
}

type nodeStats struct {
	counts       []int
	majority     uint8
	distinctCount int
	total        int
}

func computeNodeStats(acc Accessor, window []int, numLabels int) nodeStats {
	counts := make([]int, numLabels)
	for _, id := range window {
		counts[acc.GetLabel(id)]++
	}
	best := 0
	distinct := 0
	for l, c := range counts {
		if c > 0 {
			distinct++
		}
		if c > counts[best] {
			best = l
		}
	}
	return nodeStats{counts: counts, majority: uint8(best), distinctCount: distinct, total: len(window)}
}

func shouldStop(t *tree.Store, fr frame, stats nodeStats, cfg BuildConfig, layout tree.Layout) bool {
	if stats.distinctCount <= 1 {
		return true
	}
	if stats.total < cfg.MinSplit {
		return true
	}
	if fr.depth+1 >= cfg.MaxDepth {
		return true
	}
	if t.NodeCount()+2 > layout.MaxNodes {
		return true
	}
	return false
}

func adaptiveImpurityThreshold(base float64, totalSamples int) float64 {
	v := base / (1 + math.Log2(float64(totalSamples+1)))
	if v < 0.0001 {
		return 0.0001
	}
	return v
}

func ceilSqrt(f int) int {
	r := int(math.Ceil(math.Sqrt(float64(f))))
	if r < 1 {
		return 1
	}
	if r > f {
		return f
	}
	return r
}

// findBestSplit selects a random feature subset of size ceil(sqrt(F))
// and returns the (feature, threshold slot, gain) maximizing
// impurity gain, tie-broken by lower feature id then lower slot.
func findBestSplit(acc Accessor, window []int, cfg BuildConfig, p *rng.PCG32) (bestFeature int, bestSlot uint8, bestGain float64) {
	allFeatures := make([]int, cfg.NumFeatures)
	for i := range allFeatures {
		allFeatures[i] = i
	}
	rng.FisherYatesShuffle(allFeatures, p)
	subset := allFeatures[:ceilSqrt(cfg.NumFeatures)]

	parentImpurity := impurityOf(nodeLabelCounts(acc, window, cfg.NumLabels), cfg.Criterion)

	bestGain = -1
	for _, feature := range subset {
		// counts[value][label]
		maxValue := 0
		for _, id := range window {
			if v := int(acc.GetFeature(id, feature)); v > maxValue {
				maxValue = v
			}
		}
		counts := make([][]int, maxValue+1)
		for v := range counts {
			counts[v] = make([]int, cfg.NumLabels)
		}
		for _, id := range window {
			v := acc.GetFeature(id, feature)
			counts[v][acc.GetLabel(id)]++
		}

		for slot, threshold := range cfg.Thresholds {
			leftCounts := make([]int, cfg.NumLabels)
			rightCounts := make([]int, cfg.NumLabels)
			for v := 0; v <= maxValue; v++ {
				if uint8(v) <= threshold {
					addCounts(leftCounts, counts[v])
				} else {
					addCounts(rightCounts, counts[v])
				}
			}
			nLeft := sumCounts(leftCounts)
			nRight := sumCounts(rightCounts)
			if nLeft == 0 || nRight == 0 {
				continue
			}
			n := float64(nLeft + nRight)
			weighted := (float64(nLeft)/n)*impurityOf(leftCounts, cfg.Criterion) +
				(float64(nRight)/n)*impurityOf(rightCounts, cfg.Criterion)
			gain := parentImpurity - weighted

			if gain > bestGain ||
				(gain == bestGain && (feature < bestFeature || (feature == bestFeature && slot < int(bestSlot)))) {
				bestGain = gain
				bestFeature = feature
				bestSlot = uint8(slot)
			}
		}
	}
	return bestFeature, bestSlot, bestGain
}

func nodeLabelCounts(acc Accessor, window []int, numLabels int) []int {
	counts := make([]int, numLabels)
	for _, id := range window {
		counts[acc.GetLabel(id)]++
	}
	return counts
}

func addCounts(dst, src []int) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func sumCounts(c []int) int {
	s := 0
	for _, v := range c {
		s += v
	}
	return s
}

func impurityOf(counts []int, criterion Criterion) float64 {
	total := sumCounts(counts)
	if total == 0 {
		return 0
	}
	switch criterion {
	case CriterionEntropy:
		var h float64
		for _, c := range counts {
			if c == 0 {
				continue
			}
			p := float64(c) / float64(total)
			h -= p * math.Log2(p)
		}
		return h
	default: // CriterionGini
		var sumSq float64
		for _, c := range counts {
			p := float64(c) / float64(total)
			sumSq += p * p
		}
		return 1 - sumSq
	}
}

// lomutoPartition reorders window in place so that every id with
// feature value <= threshold precedes every id with a greater value,
// returning the split point.
func lomutoPartition(acc Accessor, window []int, feature int, threshold uint8) int {
	i := 0
	for j := 0; j < len(window); j++ {
		if acc.GetFeature(window[j], feature) <= threshold {
			window[i], window[j] = window[j], window[i]
			i++
		}
	}
	return i
}
