// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package scorematrix accumulates a per-label confusion matrix across a
prediction run and reduces it to the precision/recall/F1/accuracy
metrics the training driver and the engine's getters report. The
per-label TP/FP/FN layout generalises the teacher's binary
`classifier.Stat`/`CM` pairing (classifier/stat.go) to the engine's
multi-label setting.
*/
package scorematrix

import "github.com/shuLhan/rfedge/internal/config"

// cell holds one label's confusion counters.
type cell struct {
	TP, FP, FN int
}

// Matrix is a per-label confusion matrix over [0, numLabels).
type Matrix struct {
	cells []cell
	total int
}

// New allocates an empty matrix over numLabels labels.
func New(numLabels int) *Matrix {
	return &Matrix{cells: make([]cell, numLabels)}
}

// Reset clears every counter without reallocating.
func (m *Matrix) Reset() {
	for i := range m.cells {
		m.cells[i] = cell{}
	}
	m.total = 0
}

// Update records one prediction: actual is incremented for TP when it
// matches predicted; otherwise actual gets an FN and predicted gets an
// FP. Labels outside range are ignored.
func (m *Matrix) Update(actual, predicted uint8) {
	m.total++
	if int(actual) >= len(m.cells) {
		return
	}
	if actual == predicted {
		m.cells[actual].TP++
		return
	}
	m.cells[actual].FN++
	if int(predicted) < len(m.cells) {
		m.cells[predicted].FP++
	}
}

// Precision returns tp/(tp+fp) for label, or 0 with no support (no TP
// and no FP recorded for it).
func (m *Matrix) Precision(label uint8) (value float64, hasSupport bool) {
	c := m.cell(label)
	denom := c.TP + c.FP
	if denom == 0 {
		return 0, false
	}
	return float64(c.TP) / float64(denom), true
}

// Recall returns tp/(tp+fn) for label, or 0 with no support.
func (m *Matrix) Recall(label uint8) (value float64, hasSupport bool) {
	c := m.cell(label)
	denom := c.TP + c.FN
	if denom == 0 {
		return 0, false
	}
	return float64(c.TP) / float64(denom), true
}

// F1 returns the harmonic mean of precision and recall for label.
func (m *Matrix) F1(label uint8) (value float64, hasSupport bool) {
	p, pok := m.Precision(label)
	r, rok := m.Recall(label)
	if !pok || !rok || (p+r) == 0 {
		return 0, false
	}
	return 2 * p * r / (p + r), true
}

// Accuracy returns the overall (not per-label) fraction of correct
// predictions across every Update call.
func (m *Matrix) Accuracy() float64 {
	if m.total == 0 {
		return 0
	}
	correct := 0
	for _, c := range m.cells {
		correct += c.TP
	}
	return float64(correct) / float64(m.total)
}

func (m *Matrix) cell(label uint8) cell {
	if int(label) >= len(m.cells) {
		return cell{}
	}
	return m.cells[label]
}

// Combined returns the unweighted mean of the metric selected by
// metric over every label that has support for it; ACCURACY returns
// the single overall accuracy value. Labels with no support are
// excluded from the average rather than counted as zero, per spec
// section 4.10.
func (m *Matrix) Combined(metric config.Metric) float64 {
	if metric == config.MetricAccuracy {
		return m.Accuracy()
	}

	var sum float64
	var n int
	for label := range m.cells {
		var v float64
		var ok bool
		switch metric {
		case config.MetricPrecision:
			v, ok = m.Precision(uint8(label))
		case config.MetricRecall:
			v, ok = m.Recall(uint8(label))
		case config.MetricF1:
			v, ok = m.F1(uint8(label))
		default:
			v, ok = m.Precision(uint8(label))
		}
		if ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
