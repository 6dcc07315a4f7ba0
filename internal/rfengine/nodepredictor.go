// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rfengine

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/shuLhan/rfedge/internal/platform"
)

const magicNodePred uint32 = 0x4E4F4445 // "NODE"

// ErrBadNodePredMagic is returned when a node-predictor file's magic
// bytes do not match.
var ErrBadNodePredMagic = errors.New("rfengine: bad node predictor magic")

// NodePredictor is the contract for the node-count predictor that
// section 1 names as an external collaborator: a 3-coefficient linear
// model over (min_split, max_depth) estimating a tree's node count
// ahead of a build, used only to size tree.Layout's MaxNodes. Its
// training procedure lives outside this module; only the file
// contract and the predict arithmetic are implemented here.
type NodePredictor struct {
	IsTrained       bool
	AccuracyPercent uint8
	PeakPercent     uint8
	Bias            float32
	MinSplitCoeff   float32
	MaxDepthCoeff   float32
}

// Predict estimates a built tree's node count from its min_split and
// max_depth hyperparameters.
func (p *NodePredictor) Predict(minSplit, maxDepth int) int {
	if p == nil || !p.IsTrained {
		return 0
	}
	v := float64(p.Bias) + float64(p.MinSplitCoeff)*float64(minSplit) + float64(p.MaxDepthCoeff)*float64(maxDepth)
	if v < 1 {
		return 1
	}
	return int(math.Round(v))
}

func loadNodePredictor(fs platform.FS, path string) (*NodePredictor, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr := make([]byte, 4+1+1+1+1)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != magicNodePred {
		return nil, ErrBadNodePredMagic
	}
	p := &NodePredictor{
		IsTrained:       hdr[4] != 0,
		AccuracyPercent: hdr[5],
		PeakPercent:     hdr[6],
	}
	numCoeff := int(hdr[7])

	coeffBuf := make([]byte, 4*numCoeff)
	if _, err := io.ReadFull(f, coeffBuf); err != nil {
		return nil, err
	}
	if numCoeff >= 1 {
		p.Bias = math.Float32frombits(binary.LittleEndian.Uint32(coeffBuf[0:4]))
	}
	if numCoeff >= 2 {
		p.MinSplitCoeff = math.Float32frombits(binary.LittleEndian.Uint32(coeffBuf[4:8]))
	}
	if numCoeff >= 3 {
		p.MaxDepthCoeff = math.Float32frombits(binary.LittleEndian.Uint32(coeffBuf[8:12]))
	}
	return p, nil
}

func saveNodePredictor(fs platform.FS, path string, p *NodePredictor) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := make([]byte, 4+1+1+1+1)
	binary.LittleEndian.PutUint32(hdr[0:4], magicNodePred)
	if p.IsTrained {
		hdr[4] = 1
	}
	hdr[5] = p.AccuracyPercent
	hdr[6] = p.PeakPercent
	hdr[7] = 3
	if _, err := f.Write(hdr); err != nil {
		return err
	}

	coeffs := make([]byte, 12)
	binary.LittleEndian.PutUint32(coeffs[0:4], math.Float32bits(p.Bias))
	binary.LittleEndian.PutUint32(coeffs[4:8], math.Float32bits(p.MinSplitCoeff))
	binary.LittleEndian.PutUint32(coeffs[8:12], math.Float32bits(p.MaxDepthCoeff))
	_, err = f.Write(coeffs)
	return err
}
