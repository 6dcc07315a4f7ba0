// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/shuLhan/dsv"

	"github.com/shuLhan/rfedge/internal/platform"
)

// DatasetParams mirrors the *_dp.csv file: a two-column `parameter,value`
// table carrying the dataset statistics AutoConfigure needs and the
// per-label sample counts PendingBuffer.Flush updates as new data
// arrives.
type DatasetParams struct {
	QuantizationCoefficient uint
	MaxFeatureValue         int
	FeaturesPerByte         float64
	NumFeatures             int
	NumSamples              int
	NumLabels               int
	SamplesPerLabel         []int // len == NumLabels
}

// AvgSamplesPerLabel returns the dataset's mean support per label.
func (d DatasetParams) AvgSamplesPerLabel() float64 {
	if d.NumLabels == 0 {
		return 0
	}
	return float64(d.NumSamples) / float64(d.NumLabels)
}

// ImbalanceRatio returns majority_class_count / minority_class_count,
// treating an empty-label dataset as perfectly balanced.
func (d DatasetParams) ImbalanceRatio() float64 {
	if len(d.SamplesPerLabel) == 0 {
		return 1
	}
	maxC, minC := d.SamplesPerLabel[0], d.SamplesPerLabel[0]
	for _, c := range d.SamplesPerLabel[1:] {
		if c > maxC {
			maxC = c
		}
		if c < minC {
			minC = c
		}
	}
	if minC <= 0 {
		minC = 1
	}
	return float64(maxC) / float64(minC)
}

// Imbalance returns a normalised [0,1) imbalance measure: 0 for a
// perfectly balanced dataset, approaching 1 as the minority class
// vanishes.
func (d DatasetParams) Imbalance() float64 {
	ratio := d.ImbalanceRatio()
	return 1 - 1/ratio
}

// dpRowOrder is the exact row order spec section 6 requires, before
// the per-label rows.
var dpRowOrder = []string{
	"quantization_coefficient",
	"max_feature_value",
	"features_per_byte",
	"num_features",
	"num_samples",
	"num_labels",
}

// Save writes the dataset params in the fixed row order via a
// dsv.Writer, matching the teacher's own stats-file writer in
// classifier/runtime.go (OpenOutput/WriteRawRow/Close).
func (d DatasetParams) Save(path string) error {
	w := &dsv.Writer{}
	if err := w.OpenOutput(path); err != nil {
		return err
	}

	if err := w.WriteRawRow([]string{"parameter", "value"}, nil, nil); err != nil {
		_ = w.Close()
		return err
	}

	values := map[string]string{
		"quantization_coefficient": strconv.FormatUint(uint64(d.QuantizationCoefficient), 10),
		"max_feature_value":        strconv.Itoa(d.MaxFeatureValue),
		"features_per_byte":        strconv.FormatFloat(d.FeaturesPerByte, 'g', -1, 64),
		"num_features":             strconv.Itoa(d.NumFeatures),
		"num_samples":              strconv.Itoa(d.NumSamples),
		"num_labels":               strconv.Itoa(d.NumLabels),
	}
	for _, key := range dpRowOrder {
		if err := w.WriteRawRow([]string{key, values[key]}, nil, nil); err != nil {
			_ = w.Close()
			return err
		}
	}
	for i, c := range d.SamplesPerLabel {
		row := []string{fmt.Sprintf("samples_label_%d", i), strconv.Itoa(c)}
		if err := w.WriteRawRow(row, nil, nil); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

// LoadDatasetParams reads back a *_dp.csv file written by Save. The
// file's row order is not assumed; each `parameter,value` pair is
// matched by key, including the variable-length samples_label_<i> run.
func LoadDatasetParams(fs platform.FS, path string) (DatasetParams, error) {
	var d DatasetParams

	f, err := fs.Open(path)
	if err != nil {
		return d, err
	}
	defer f.Close()

	perLabel := map[int]int{}
	maxLabel := -1

	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			if strings.HasPrefix(line, "parameter") {
				continue
			}
		}
		fields := strings.SplitN(line, ",", 2)
		if len(fields) != 2 {
			continue
		}
		key := strings.TrimSpace(fields[0])
		val := strings.TrimSpace(fields[1])

		switch key {
		case "quantization_coefficient":
			n, _ := strconv.ParseUint(val, 10, 8)
			d.QuantizationCoefficient = uint(n)
		case "max_feature_value":
			d.MaxFeatureValue, _ = strconv.Atoi(val)
		case "features_per_byte":
			d.FeaturesPerByte, _ = strconv.ParseFloat(val, 64)
		case "num_features":
			d.NumFeatures, _ = strconv.Atoi(val)
		case "num_samples":
			d.NumSamples, _ = strconv.Atoi(val)
		case "num_labels":
			d.NumLabels, _ = strconv.Atoi(val)
		default:
			if strings.HasPrefix(key, "samples_label_") {
				idxStr := strings.TrimPrefix(key, "samples_label_")
				idx, err := strconv.Atoi(idxStr)
				if err != nil {
					continue
				}
				count, _ := strconv.Atoi(val)
				perLabel[idx] = count
				if idx > maxLabel {
					maxLabel = idx
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return d, err
	}

	n := d.NumLabels
	if maxLabel+1 > n {
		n = maxLabel + 1
	}
	d.SamplesPerLabel = make([]int, n)
	for i, c := range perLabel {
		d.SamplesPerLabel[i] = c
	}
	return d, nil
}
