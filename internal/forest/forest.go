// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package forest owns an ordered collection of decision trees
("Rf_tree_container") plus their shared node layout, aggregating their
votes into one prediction and persisting them either as one file per
tree (during training, to free RAM as each tree finishes) or as a
single unified file (after training, for deployment).
*/
package forest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/shuLhan/tekstus"

	"github.com/shuLhan/rfedge/internal/platform"
	"github.com/shuLhan/rfedge/internal/tree"
)

const (
	magicForest uint32 = 0x464F5253 // "FORS"
	// RFMaxTrees bounds the per-tree-file fallback's tree index search.
	RFMaxTrees = 255
	// fixedVoteLabels is the cap below which Predict uses a stack
	// array instead of a map for vote counting.
	fixedVoteLabels = 32
)

// ErrBadMagic is returned when a unified forest file's magic mismatches.
var ErrBadMagic = errors.New("forest: bad magic")

// Forest is an ordered collection of trees sharing one node layout.
type Forest struct {
	Layout  tree.Layout
	Trees   []*tree.Store
	Unified bool

	NumLabels int
}

// New creates an empty forest under the given layout.
func New(layout tree.Layout, numLabels int) *Forest {
	return &Forest{Layout: layout, NumLabels: numLabels}
}

// AddTree appends a fully-built tree.
func (f *Forest) AddTree(t *tree.Store) {
	f.Trees = append(f.Trees, t)
}

// Predict runs every tree's Predict and returns the plurality label,
// breaking ties by the lowest label id. Returns tree.RFErrorLabel if
// every tree voted out of range.
func (f *Forest) Predict(packedFeatures []uint8, thresholds []uint8) uint8 {
	if f.NumLabels <= fixedVoteLabels {
		var votes [fixedVoteLabels]int
		any := false
		for _, t := range f.Trees {
			label := t.Predict(packedFeatures, thresholds)
			if int(label) < f.NumLabels {
				votes[label]++
				any = true
			}
		}
		if !any {
			return tree.RFErrorLabel
		}
		return plurality(votes[:f.NumLabels])
	}

	var votes []int64
	for _, t := range f.Trees {
		label := t.Predict(packedFeatures, thresholds)
		if int(label) < f.NumLabels {
			votes = append(votes, int64(label))
		}
	}
	if len(votes) == 0 {
		return tree.RFErrorLabel
	}

	vs := make([]int64, f.NumLabels)
	for i := range vs {
		vs[i] = int64(i)
	}
	return uint8(tekstus.Int64MaxCountOf(votes, vs))
}

// plurality picks the index of the highest count, breaking ties by
// the lowest index (lowest label id).
func plurality(votes []int) uint8 {
	best := 0
	for i := 1; i < len(votes); i++ {
		if votes[i] > votes[best] {
			best = i
		}
	}
	return uint8(best)
}

func treePath(dir, modelName string, index int) string {
	return fmt.Sprintf("%s/tree_%d.bin", dir, index)
}

func unifiedPath(dir, modelName string) string {
	return fmt.Sprintf("%s/%s_forest.bin", dir, modelName)
}

// ReleaseForest walks all loaded trees, writes the unified file, then
// deletes all per-tree files. Conversion is one-way per session.
func (f *Forest) ReleaseForest(fs platform.FS, dir, modelName string) error {
	path := unifiedPath(dir, modelName)
	file, err := fs.Create(path)
	if err != nil {
		return err
	}

	hdr := make([]byte, 5)
	binary.LittleEndian.PutUint32(hdr[0:4], magicForest)
	hdr[4] = byte(len(f.Trees))
	if _, err := file.Write(hdr); err != nil {
		file.Close()
		fs.Remove(path)
		return err
	}

	for i, t := range f.Trees {
		entry := make([]byte, 1+4)
		entry[0] = byte(i)
		binary.LittleEndian.PutUint32(entry[1:5], uint32(t.CountNodes()))
		if _, err := file.Write(entry); err != nil {
			file.Close()
			fs.Remove(path)
			return err
		}
		for n := 0; n < t.CountNodes(); n++ {
			word := make([]byte, 4)
			binary.LittleEndian.PutUint32(word, t.NodeWord(n))
			if wn, err := file.Write(word); err != nil || wn != 4 {
				file.Close()
				fs.Remove(path)
				if err == nil {
					err = io.ErrShortWrite
				}
				return err
			}
		}
	}
	if err := file.Close(); err != nil {
		fs.Remove(path)
		return err
	}

	for i := range f.Trees {
		p := treePath(dir, modelName, i)
		if fs.Exists(p) {
			if err := fs.Remove(p); err != nil {
				glog.Warningf("forest: release: could not remove %s: %v", p, err)
			}
		}
	}

	f.Unified = true
	return nil
}

// LoadForest loads the unified file when Unified is set, otherwise
// falls back to per-tree loading.
func (f *Forest) LoadForest(fs platform.FS, dir, modelName string, numTrees int) error {
	if f.Unified {
		return f.loadUnified(fs, dir, modelName)
	}
	return f.loadPerTree(fs, dir, modelName, numTrees)
}

func (f *Forest) loadUnified(fs platform.FS, dir, modelName string) error {
	path := unifiedPath(dir, modelName)
	file, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	hdr := make([]byte, 5)
	if _, err := io.ReadFull(file, hdr); err != nil {
		return err
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != magicForest {
		return ErrBadMagic
	}
	count := int(hdr[4])

	f.Trees = f.Trees[:0]
	for i := 0; i < count; i++ {
		entry := make([]byte, 5)
		if _, err := io.ReadFull(file, entry); err != nil {
			return err
		}
		nodeCount := int(binary.LittleEndian.Uint32(entry[1:5]))
		t := tree.New(f.Layout)
		for n := 0; n < nodeCount; n++ {
			word := make([]byte, 4)
			if _, err := io.ReadFull(file, word); err != nil {
				return err
			}
			t.PushRawWord(binary.LittleEndian.Uint32(word))
		}
		f.Trees = append(f.Trees, t)
	}
	return nil
}

func (f *Forest) loadPerTree(fs platform.FS, dir, modelName string, numTrees int) error {
	f.Trees = f.Trees[:0]
	for i := 0; i < numTrees; i++ {
		p := treePath(dir, modelName, i)
		t := tree.New(f.Layout)
		if err := t.Load(fs, p, true); err != nil {
			return err
		}
		f.Trees = append(f.Trees, t)
	}
	return nil
}
