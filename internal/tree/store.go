// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tree

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/shuLhan/rfedge/internal/bitpack"
	"github.com/shuLhan/rfedge/internal/platform"
)

// magicTree is the per-tree file's 4-byte magic, "TREE" as a little
// endian u32 per spec section 6.
const magicTree uint32 = 0x54524545

var (
	// ErrBadMagic is returned when a tree file's magic does not match.
	ErrBadMagic = errors.New("tree: bad magic")
	// ErrNodeCountOutOfRange is returned when a loaded node count
	// falls outside [1, RFMaxNodes].
	ErrNodeCountOutOfRange = errors.New("tree: node count out of range")
)

// Store is one tree's packed node array plus the layout it was built
// under.
type Store struct {
	Layout Layout
	nodes  *bitpack.Vector // Bpv=32 packed node words
}

// New creates an empty tree under the given layout.
func New(layout Layout) *Store {
	return &Store{Layout: layout, nodes: bitpack.NewNodeVector()}
}

// NodeCount returns the number of nodes in the tree.
func (t *Store) NodeCount() int { return t.nodes.Len() }

// NodeWord returns the raw packed word at index i, for serialisation
// by a caller that owns the file format (e.g. the unified forest
// writer).
func (t *Store) NodeWord(i int) uint32 { return t.nodes.Get(i) }

// PushRawWord appends a raw packed node word, for deserialisation by
// a caller that owns the file format.
func (t *Store) PushRawWord(word uint32) { t.nodes.PushBack(word) }

// PushLeaf appends a leaf node with the given label, returning its index.
func (t *Store) PushLeaf(label uint8) int {
	t.nodes.PushBack(encodeLeaf(label, t.Layout))
	return t.nodes.Len() - 1
}

// SetSplit rewrites node index as an internal split node pointing at
// leftChild (right child is implicitly leftChild+1).
func (t *Store) SetSplit(index, feature int, thresholdSlot uint8, leftChild int) {
	t.nodes.Set(index, encodeSplit(feature, thresholdSlot, leftChild, t.Layout))
}

// OverwriteLeaf rewrites node index as a leaf with the given label,
// used both for the root placeholder and for early-termination
// stopping rules that turn a tentative split node back into a leaf.
func (t *Store) OverwriteLeaf(index int, label uint8) {
	t.nodes.Set(index, encodeLeaf(label, t.Layout))
}

// Predict walks the tree from the root, comparing packedFeatures at
// each split node against thresholds[slot], descending left while the
// feature value is <= threshold and right otherwise. Returns
// RFErrorLabel if the walk leaves the node array.
func (t *Store) Predict(packedFeatures []uint8, thresholds []uint8) uint8 {
	idx := 0
	n := t.nodes.Len()
	for {
		if idx < 0 || idx >= n {
			return RFErrorLabel
		}
		word := t.nodes.Get(idx)
		if nodeIsLeaf(word) {
			return nodeLabel(word, t.Layout)
		}

		feature := nodeFeature(word, t.Layout)
		if feature < 0 || feature >= len(packedFeatures) {
			return RFErrorLabel
		}
		slot := nodeThresholdSlot(word)
		if int(slot) >= len(thresholds) {
			return RFErrorLabel
		}
		left := nodeLeftChild(word, t.Layout)

		if packedFeatures[feature] <= thresholds[slot] {
			idx = left
		} else {
			idx = left + 1
		}
	}
}

// CountLeaves returns the number of leaf nodes.
func (t *Store) CountLeaves() int {
	count := 0
	t.nodes.Iterate(func(_ int, w uint32) bool {
		if nodeIsLeaf(w) {
			count++
		}
		return true
	})
	return count
}

// CountNodes returns the total node count.
func (t *Store) CountNodes() int { return t.nodes.Len() }

// Depth computes the tree's depth by walking from root; 0 for a
// single-leaf tree.
func (t *Store) Depth() int {
	var walk func(idx, d int) int
	walk = func(idx, d int) int {
		if idx < 0 || idx >= t.nodes.Len() {
			return d
		}
		word := t.nodes.Get(idx)
		if nodeIsLeaf(word) {
			return d
		}
		left := nodeLeftChild(word, t.Layout)
		dl := walk(left, d+1)
		dr := walk(left+1, d+1)
		if dr > dl {
			return dr
		}
		return dl
	}
	if t.nodes.Len() == 0 {
		return 0
	}
	return walk(0, 0)
}

// Release writes the tree's magic, node count, and packed words to
// path, optionally dropping in-memory storage.
func (t *Store) Release(fs platform.FS, path string, reuse bool) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint32(hdr[0:4], magicTree)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(t.nodes.Len()))
	if _, err := f.Write(hdr); err != nil {
		fs.Remove(path)
		return err
	}

	for i := 0; i < t.nodes.Len(); i++ {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], t.nodes.Get(i))
		if n, err := f.Write(b[:]); err != nil || n != 4 {
			fs.Remove(path)
			if err == nil {
				err = io.ErrShortWrite
			}
			return err
		}
	}

	if !reuse {
		t.nodes = bitpack.NewNodeVector()
	}
	return nil
}

// Load verifies the magic and node count (<=RFMaxNodes) and reads the
// packed words, removing the file after load unless reuse is true.
func (t *Store) Load(fs platform.FS, path string, reuse bool) error {
	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := make([]byte, 8)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return err
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	if magic != magicTree {
		return ErrBadMagic
	}
	count := int(binary.LittleEndian.Uint32(hdr[4:8]))
	if count < 1 || count > RFMaxNodes {
		return ErrNodeCountOutOfRange
	}

	t.nodes = bitpack.NewNodeVector()
	t.nodes.Reserve(count)
	buf := make([]byte, 4)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return err
		}
		t.nodes.PushBack(binary.LittleEndian.Uint32(buf))
	}

	if !reuse {
		if err := fs.Remove(path); err != nil {
			return err
		}
	}
	return nil
}
