// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampledata

// Sample is one labelled, quantised training example: Features holds
// NumFeatures bin indices in [0, 2^Q-1].
type Sample struct {
	Label    uint8
	Features []uint8
}
