// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package pending implements the online feedback loop ("Rf_pending_data"):
a bounded FIFO of predictions awaiting their ground-truth label, and the
flush that turns paired (sample, label) entries into new training data
plus an append-only inference log.
*/
package pending

import (
	"github.com/golang/glog"

	"github.com/shuLhan/rfedge/internal/config"
	"github.com/shuLhan/rfedge/internal/sampledata"
)

// SkipSentinel marks an actual-label slot as deliberately skipped
// (timed out) rather than unset.
const SkipSentinel uint8 = 0xFF

// Buffer holds pending predictions and their (possibly still missing)
// ground truth, in strict insertion order.
type Buffer struct {
	MaxPending int
	MaxWaitMs  int64

	samples      []sampledata.Sample
	predicted    []uint8 // original predicted label, kept separate from samples[i].Label once overwritten at flush
	actualLabels []*uint8

	lastLabelAtMs int64
	hasLast       bool
}

// New creates an empty buffer with the given flush threshold and
// feedback timeout.
func New(maxPending int, maxWaitMs int64) *Buffer {
	return &Buffer{MaxPending: maxPending, MaxWaitMs: maxWaitMs}
}

// PendingCount returns the number of predictions currently buffered.
func (b *Buffer) PendingCount() int { return len(b.samples) }

// AddPendingSample appends a sample carrying the model's own
// prediction as its label. It reports whether the buffer has now
// exceeded MaxPending and should be flushed by the caller.
func (b *Buffer) AddPendingSample(sample sampledata.Sample) (shouldFlush bool) {
	b.samples = append(b.samples, sample)
	b.predicted = append(b.predicted, sample.Label)
	return len(b.samples) > b.MaxPending
}

// AddActualLabel records a ground-truth label for the oldest
// unlabelled pending sample, in FIFO order. Before appending, it
// inserts k-1 skip sentinels when k whole MaxWaitMs intervals elapsed
// since the previous call (so samples that went stale while no
// feedback arrived are discarded rather than mislabelled). If every
// pending sample already has an actual-label slot filled, the new
// label is dropped.
func (b *Buffer) AddActualLabel(label uint8, nowMs int64) {
	if b.hasLast && b.MaxWaitMs > 0 {
		elapsed := nowMs - b.lastLabelAtMs
		skips := elapsed/b.MaxWaitMs - 1
		for i := int64(0); i < skips; i++ {
			if len(b.actualLabels) >= len(b.samples) {
				break
			}
			s := SkipSentinel
			b.actualLabels = append(b.actualLabels, &s)
		}
	}
	b.lastLabelAtMs = nowMs
	b.hasLast = true

	if len(b.actualLabels) >= len(b.samples) {
		glog.V(1).Infof("pending: add_actual_label: no open slot, dropping label %d", label)
		return
	}
	v := label
	b.actualLabels = append(b.actualLabels, &v)
}

// Pair is one (predicted, actual) outcome appended to the inference log.
type Pair struct {
	Predicted uint8
	Actual    uint8
}

// Flush pairs every buffered sample that has a non-sentinel actual
// label with its prediction: the cleaned sample (label replaced by the
// ground truth) is appended to store, and the (predicted, actual) pair
// is appended to log. config's samples-per-label statistics in dp are
// updated to reflect additions and any overwritten labels. Both
// buffers are cleared unconditionally on return, matching the spec's
// best-effort flush semantics (log and dataset updates are attempted
// independently; a dataset-append failure does not lose log entries
// already appended).
func (b *Buffer) Flush(store *sampledata.Store, cfg *config.Config, dp *config.DatasetParams, log *InferenceLog) error {
	defer b.clear()

	n := len(b.actualLabels)
	if n > len(b.samples) {
		n = len(b.samples)
	}

	var toAppend []sampledata.Sample
	var pairs []Pair
	for i := 0; i < n; i++ {
		al := b.actualLabels[i]
		if al == nil || *al == SkipSentinel {
			continue
		}
		cleaned := b.samples[i]
		cleaned.Label = *al
		toAppend = append(toAppend, cleaned)
		pairs = append(pairs, Pair{Predicted: b.predicted[i], Actual: *al})
	}

	var firstErr error
	if len(toAppend) > 0 {
		overwritten, err := store.AddNewData(toAppend, cfg.ExtendBaseData)
		if err != nil {
			glog.Warningf("pending: flush: dataset append failed: %v", err)
			firstErr = err
		} else if dp != nil {
			applyDatasetDelta(dp, toAppend, overwritten, cfg.ExtendBaseData)
		}
	}

	if log != nil && len(pairs) > 0 {
		if err := log.Append(pairs); err != nil {
			glog.Warningf("pending: flush: inference log append failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func applyDatasetDelta(dp *config.DatasetParams, added []sampledata.Sample, overwritten []uint8, extended bool) {
	ensureCapacity := func(label uint8) {
		for len(dp.SamplesPerLabel) <= int(label) {
			dp.SamplesPerLabel = append(dp.SamplesPerLabel, 0)
		}
	}
	for _, sm := range added {
		ensureCapacity(sm.Label)
		dp.SamplesPerLabel[sm.Label]++
	}
	for _, lbl := range overwritten {
		ensureCapacity(lbl)
		if dp.SamplesPerLabel[lbl] > 0 {
			dp.SamplesPerLabel[lbl]--
		}
	}
	if extended {
		dp.NumSamples += len(added)
		if dp.NumSamples > sampledata.MaxSamples {
			dp.NumSamples = sampledata.MaxSamples
		}
	}
}

func (b *Buffer) clear() {
	b.samples = nil
	b.predicted = nil
	b.actualLabels = nil
	b.hasLast = false
}
