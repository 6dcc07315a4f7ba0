// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package rfengine is the facade over every other internal package: the
external API surface an embedding application drives (new, build_model,
training, predict, add_actual_label, flush_pending_data,
log_pending_data, getters, and configuration setters), mirroring the
teacher's randomforest.Runtime as the one type a caller constructs and
calls (classifier/randomforest/randomforest.go), generalised from a
single offline Build()/ClassifySet() pair to this package's online
build/train/predict/feedback lifecycle.
*/
package rfengine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/shuLhan/rfedge/internal/config"
	"github.com/shuLhan/rfedge/internal/forest"
	"github.com/shuLhan/rfedge/internal/idvector"
	"github.com/shuLhan/rfedge/internal/pending"
	"github.com/shuLhan/rfedge/internal/platform"
	"github.com/shuLhan/rfedge/internal/resource"
	"github.com/shuLhan/rfedge/internal/rng"
	"github.com/shuLhan/rfedge/internal/sampledata"
	"github.com/shuLhan/rfedge/internal/scorematrix"
	"github.com/shuLhan/rfedge/internal/training"
	"github.com/shuLhan/rfedge/internal/tree"
)

// Quantizer converts a raw floating-point feature vector into packed
// quantised bins. Its file format and algorithm are out of scope
// (spec section 1, `Rf_quantizer`); the engine only needs the
// function contract.
type Quantizer func(features []float64) ([]uint8, error)

var (
	// ErrNoQuantizer is logged by Predict, which then reports
	// Success=false, when no Quantizer was set.
	ErrNoQuantizer = errors.New("rfengine: no quantizer configured")
	// ErrNotAbleToTraining is returned by BuildModel/Training when the
	// resource base lacks a dataset or category file.
	ErrNotAbleToTraining = errors.New("rfengine: model not able to train (missing base data or category file)")
	// ErrNotAbleToInference is logged by Predict, which then reports
	// Success=false, when no forest/category file is present yet.
	ErrNotAbleToInference = errors.New("rfengine: model not able to run inference (missing forest or category file)")
)

// PredictResult is the single-sample inference outcome returned to the
// embedding application (spec section 6).
type PredictResult struct {
	LabelText string
	LabelID   uint8
	LatencyUs int64
	Success   bool
}

// Engine owns one model's full lifecycle: resource state, config,
// dataset, forest, and the online feedback loop.
type Engine struct {
	fs        platform.FS
	base      *resource.Base
	Config    *config.Config
	DataStore *sampledata.Store
	Forest    *forest.Forest
	Pending   *pending.Buffer
	InferLog  *pending.InferenceLog
	NodePred  *NodePredictor

	Quantizer Quantizer

	dp     config.DatasetParams
	cats   *categoryTable
	layout tree.Layout
}

// New initialises an engine bound to rootDir/modelName and scans the
// resource base for existing artifacts.
func New(fs platform.FS, rootDir, modelName string, quantizer Quantizer) (*Engine, error) {
	base := resource.New(fs, rootDir, modelName)
	if err := base.Scan(); err != nil {
		return nil, err
	}

	e := &Engine{
		fs:        fs,
		base:      base,
		Config:    config.Default(),
		DataStore: sampledata.New(fs),
		Pending:   pending.New(100, 30000),
		Quantizer: quantizer,
	}

	if base.Flags&resource.ConfigFileExist != 0 {
		if cfg, err := config.Load(fs, base.ConfigPath()); err == nil {
			e.Config = cfg
		} else {
			glog.Warningf("rfengine: new: could not load config: %v", err)
		}
	}
	if base.Flags&resource.DPFileExist != 0 {
		if dp, err := config.LoadDatasetParams(fs, base.DPPath()); err == nil {
			e.dp = dp
		} else {
			glog.Warningf("rfengine: new: could not load dataset params: %v", err)
		}
	}
	if base.Flags&resource.CTGFileExist != 0 {
		if cats, err := loadCategoryTable(fs, base.CategoryPath()); err == nil {
			e.cats = cats
		} else {
			glog.Warningf("rfengine: new: could not load categories: %v", err)
		}
	}
	if base.Flags&resource.NodePredFileExist != 0 {
		if np, err := loadNodePredictor(fs, base.NodePredPath()); err == nil {
			e.NodePred = np
		} else {
			glog.Warningf("rfengine: new: could not load node predictor: %v", err)
		}
	}

	if err := fs.Mkdir(fmt.Sprintf("%s/%s", rootDir, modelName)); err != nil {
		return nil, err
	}
	log, err := pending.OpenInferenceLog(fs, base.InferLogPath(), inferLogCap(fs))
	if err != nil {
		return nil, err
	}
	e.InferLog = log

	return e, nil
}

// inferLogCap picks the inference log's trim threshold: a tight 2KB
// cap on-flash, a looser 20KB cap when a richer filesystem backs fs
// (spec section 4.11). platform.Posix development hosts get the
// larger cap; constrained FS implementations should return a smaller
// one from their own FreeHeapLowWater profile if needed.
func inferLogCap(fs platform.FS) int {
	if _, ok := fs.(*platform.Posix); ok {
		return 20 * 1024
	}
	return 2 * 1024
}

// NumLabels returns the category count known to the engine.
func (e *Engine) NumLabels() int { return e.cats.NumLabels() }

// BuildModel runs the full pipeline from a CSV or binary base dataset
// to a trained, unified forest file: converting CSV input if needed,
// deriving auto-configuration from dataset statistics, splitting the
// dataset into train/test/valid id sets, and running one epoch of the
// same grid search Training uses.
func (e *Engine) BuildModel() error {
	if err := e.base.Scan(); err != nil {
		return err
	}
	if e.base.Flags&resource.BaseDataExist == 0 || e.base.Flags&resource.CTGFileExist == 0 {
		return ErrNotAbleToTraining
	}

	if e.base.Flags&resource.BaseDataIsCSV != 0 {
		if err := e.DataStore.Init(e.base.DataPath(), e.dp.NumFeatures, e.dp.QuantizationCoefficient, labelBits(e.cats.NumLabels())); err != nil {
			return err
		}
		dropped, err := e.DataStore.ConvertCSVToBinary(e.base.RawCSVPath())
		if err != nil {
			return err
		}
		if dropped > 0 {
			glog.Warningf("rfengine: build_model: dropped %d malformed CSV rows", dropped)
		}
		if err := e.base.Scan(); err != nil {
			return err
		}
		if err := e.DataStore.LoadData(true); err != nil {
			return err
		}
	} else {
		if err := e.DataStore.Init(e.base.DataPath(), e.dp.NumFeatures, e.dp.QuantizationCoefficient, labelBits(e.cats.NumLabels())); err != nil {
			return err
		}
		if err := e.DataStore.LoadData(true); err != nil {
			return err
		}
	}

	e.dp.NumSamples = e.DataStore.NumSamples()
	e.dp.NumLabels = e.cats.NumLabels()
	e.recomputeSamplesPerLabel()

	if e.Config.EnableAutoConfig {
		e.Config.AutoConfigure(e.dp, e.Config.TestRatio > 0, e.Config.Criterion == config.CriterionEntropy)
	}

	thresholds := config.ThresholdCandidates(e.dp.QuantizationCoefficient)
	estimatedNodes := 2*e.Config.MinSplit + 16
	if e.NodePred != nil && e.NodePred.IsTrained {
		if n := e.NodePred.Predict(e.Config.MinSplit, e.Config.MaxDepth); n > 0 {
			estimatedNodes = n
		}
	}
	e.layout = tree.NewLayout(e.dp.NumLabels, e.dp.NumFeatures, estimatedNodes)
	e.Forest = forest.New(e.layout, e.dp.NumLabels)

	result, err := e.train(1, thresholds)
	if err != nil {
		return err
	}
	e.Forest = result.Best

	if err := e.Forest.ReleaseForest(e.fs, fmt.Sprintf("%s/%s", e.base.RootDir, e.base.ModelName), e.base.ModelName); err != nil {
		return err
	}
	if err := e.persistConfigAndParams(); err != nil {
		return err
	}
	return e.base.Scan()
}

// Training runs the grid search for the requested number of epochs,
// keeping the best-scoring forest seen across all epochs.
func (e *Engine) Training(epochs int) error {
	if e.base.Flags&resource.BaseDataExist == 0 || e.base.Flags&resource.CTGFileExist == 0 {
		return ErrNotAbleToTraining
	}
	if !e.DataStore.IsLoaded {
		if err := e.DataStore.LoadData(true); err != nil {
			return err
		}
	}

	thresholds := config.ThresholdCandidates(e.dp.QuantizationCoefficient)
	result, err := e.train(epochs, thresholds)
	if err != nil {
		return err
	}
	e.Forest = result.Best

	if err := e.Forest.ReleaseForest(e.fs, fmt.Sprintf("%s/%s", e.base.RootDir, e.base.ModelName), e.base.ModelName); err != nil {
		return err
	}
	return e.persistConfigAndParams()
}

// train performs `epochs` independent grid searches (each reseeded
// from Config.RandomSeed plus the epoch index) and returns the
// overall best result.
func (e *Engine) train(epochs int, thresholds []uint8) (training.Result, error) {
	var overall training.Result
	overall.BestScore = -1

	saved := *e.Config
	minSplitGrid, minLeafGrid, maxDepthGrid := e.Config.AutoConfigure(e.dp, e.Config.TestRatio > 0, e.Config.Criterion == config.CriterionEntropy)
	if !saved.EnableAutoConfig {
		*e.Config = saved
	}

	trainIDs := e.splitTrainIDs()

	criterion := forest.CriterionGini
	if e.Config.Criterion == config.CriterionEntropy {
		criterion = forest.CriterionEntropy
	}

	for epoch := 0; epoch < epochs; epoch++ {
		seed := e.Config.RandomSeed + uint64(epoch)
		dir := fmt.Sprintf("%s/%s", e.base.RootDir, e.base.ModelName)
		driver := training.NewDriver(e.fs, dir, e.layout, e.Config.NumTrees, e.dp.NumLabels, e.dp.NumFeatures, criterion, thresholds, seed, e.Config.MetricScore)

		maxDepth := e.Config.MaxDepth
		if len(maxDepthGrid) > 0 {
			maxDepth = maxDepthGrid[len(maxDepthGrid)-1]
		}

		result, err := driver.Run(e.DataStore, trainIDs, minSplitGrid, minLeafGrid, e.Config.TrainingScore, maxDepth, e.Config.ImpurityThreshold, e.Config.KFolds)
		if err != nil {
			return overall, err
		}
		if result.BestScore > overall.BestScore {
			overall = result
		}
		glog.V(1).Infof("rfengine: train: epoch %d best_score=%.4f grid=%+v", epoch, result.BestScore, result.Grid)
	}

	e.Config.ResultScore = overall.BestScore
	return overall, nil
}

// splitTrainIDs samples train_ratio of the dataset's ids (without
// replacement, via a PCG32 stream derived from the config seed) for
// the training split; the complement is reserved for test/valid use
// by other operations.
func (e *Engine) splitTrainIDs() *idvector.Vector {
	n := e.DataStore.NumSamples()
	ids := idvector.New(0, maxInt(n-1, 0), 1)
	if n == 0 {
		return ids
	}

	p := rng.NewPCG32(e.Config.RandomSeed, 2)
	want := int(float64(n) * e.Config.TrainRatio)
	if want < 1 {
		want = n
	}
	chosen := make(map[int]bool, want)
	for len(chosen) < want && len(chosen) < n {
		chosen[p.Intn(n)] = true
	}
	for id := range chosen {
		ids.PushBack(id)
	}
	return ids
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func labelBits(numLabels int) uint {
	b := uint(0)
	for (1 << b) < numLabels {
		b++
	}
	if b == 0 {
		b = 1
	}
	return b
}

func (e *Engine) recomputeSamplesPerLabel() {
	counts := make([]int, e.dp.NumLabels)
	for i := 0; i < e.DataStore.NumSamples(); i++ {
		l := e.DataStore.GetLabel(i)
		if int(l) < len(counts) {
			counts[l]++
		}
	}
	e.dp.SamplesPerLabel = counts
}

func (e *Engine) persistConfigAndParams() error {
	if err := e.Config.Save(e.fs, e.base.ConfigPath()); err != nil {
		return err
	}
	e.base.SetConfigExists(true)
	if err := e.dp.Save(e.base.DPPath()); err != nil {
		return err
	}
	e.base.SetDPExists(true)
	return nil
}

// Predict quantises features and runs them through the forest,
// recording the prediction in the pending-feedback buffer.
func (e *Engine) Predict(features []float64) PredictResult {
	start := e.fs.MillisNow()
	fail := func() PredictResult {
		return PredictResult{Success: false, LatencyUs: (e.fs.MillisNow() - start) * 1000}
	}

	if e.base.Flags&resource.UnifiedForestExist == 0 && e.Forest == nil {
		glog.Warningf("rfengine: predict: %v", ErrNotAbleToInference)
		return fail()
	}
	if e.Quantizer == nil {
		glog.Warningf("rfengine: predict: %v", ErrNoQuantizer)
		return fail()
	}

	bins, err := e.Quantizer(features)
	if err != nil {
		glog.Warningf("rfengine: predict: quantizer: %v", err)
		return fail()
	}

	thresholds := config.ThresholdCandidates(e.dp.QuantizationCoefficient)
	label := e.Forest.Predict(bins, thresholds)
	if label == tree.RFErrorLabel {
		return fail()
	}

	shouldFlush := e.Pending.AddPendingSample(sampledata.Sample{Label: label, Features: bins})
	if shouldFlush && e.Config.ExtendBaseData {
		if err := e.FlushPendingData(); err != nil {
			glog.Warningf("rfengine: predict: auto-flush: %v", err)
		}
	}

	elapsedUs := (e.fs.MillisNow() - start) * 1000
	return PredictResult{
		LabelText: e.cats.TextFor(label),
		LabelID:   label,
		LatencyUs: elapsedUs,
		Success:   true,
	}
}

// AddActualLabel records a ground-truth label for the oldest
// unlabelled pending prediction. labelOrID may be a category text
// value or a decimal label id; text is tried first.
func (e *Engine) AddActualLabel(labelOrID string) error {
	id, ok := e.cats.IDFor(labelOrID)
	if !ok {
		n, err := parseUint8(labelOrID)
		if err != nil {
			return fmt.Errorf("rfengine: add_actual_label: unknown label %q", labelOrID)
		}
		id = n
	}
	e.Pending.AddActualLabel(id, e.fs.MillisNow())
	return nil
}

func parseUint8(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	var n uint64
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil || n > 255 {
		return 0, fmt.Errorf("rfengine: not a valid label id: %q", s)
	}
	return uint8(n), nil
}

// FlushPendingData drains the pending buffer into the dataset store
// and the inference log, per pending.Buffer.Flush.
func (e *Engine) FlushPendingData() error {
	err := e.Pending.Flush(e.DataStore, e.Config, &e.dp, e.InferLog)
	if saveErr := e.dp.Save(e.base.DPPath()); saveErr != nil && err == nil {
		err = saveErr
	}
	return err
}

// LogPendingData appends the currently buffered predictions to the
// inference log as (predicted, skip) pairs, without pairing them to a
// dataset label or clearing the pending buffer: a lighter-weight
// telemetry path for predictions that may never receive feedback.
func (e *Engine) LogPendingData() error {
	pairs := make([]pending.Pair, e.Pending.PendingCount())
	for i := range pairs {
		pairs[i] = pending.Pair{Predicted: 0, Actual: pending.SkipSentinel}
	}
	if len(pairs) == 0 {
		return nil
	}
	return e.InferLog.Append(pairs)
}

// Metrics evaluates the current forest over every loaded sample and
// returns the resulting per-label confusion matrix, for callers that
// want precision/recall/F1 beyond the scalar ResultScore kept in
// Config.
func (e *Engine) Metrics() *scorematrix.Matrix {
	m := scorematrix.New(e.dp.NumLabels)
	if e.Forest == nil || !e.DataStore.IsLoaded {
		return m
	}
	thresholds := config.ThresholdCandidates(e.dp.QuantizationCoefficient)
	for i := 0; i < e.DataStore.NumSamples(); i++ {
		feats := make([]uint8, e.dp.NumFeatures)
		for j := range feats {
			feats[j] = e.DataStore.GetFeature(i, j)
		}
		predicted := e.Forest.Predict(feats, thresholds)
		m.Update(e.DataStore.GetLabel(i), predicted)
	}
	return m
}

// RAMLowWaterBytes reports the lowest observed free-heap estimate.
func (e *Engine) RAMLowWaterBytes() uint64 { return e.fs.FreeHeapLowWater() }

// TreeCount returns the number of trees in the current forest.
func (e *Engine) TreeCount() int {
	if e.Forest == nil {
		return 0
	}
	return len(e.Forest.Trees)
}

// NodeCount returns the total node count across all trees in the
// current forest.
func (e *Engine) NodeCount() int {
	if e.Forest == nil {
		return 0
	}
	total := 0
	for _, t := range e.Forest.Trees {
		total += t.NodeCount()
	}
	return total
}

// LastNScore reports the fraction of the last n recorded
// (predicted, actual) pairs in the inference log that agree,
// skip-sentinel entries excluded. It reads the persisted log rather
// than an in-memory window, so the score survives a restart.
func (e *Engine) LastNScore(n int) (float64, error) {
	pairs, err := e.InferLog.ReadAll()
	if err != nil {
		return 0, err
	}
	if len(pairs) > n {
		pairs = pairs[len(pairs)-n:]
	}

	var total, correct int
	for _, p := range pairs {
		if p.Actual == pending.SkipSentinel {
			continue
		}
		total++
		if p.Predicted == p.Actual {
			correct++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(correct) / float64(total), nil
}

// Configuration setters, per spec section 6's API surface.

func (e *Engine) SetMetric(m config.Metric)             { e.Config.MetricScore = m }
func (e *Engine) SetTrainingScore(s config.TrainingScore) { e.Config.TrainingScore = s }
func (e *Engine) SetCriterion(c config.Criterion)        { e.Config.Criterion = c }
func (e *Engine) SetSeed(seed uint64)                    { e.Config.RandomSeed = seed }
func (e *Engine) SetNumTrees(n int)                      { e.Config.NumTrees = n }
func (e *Engine) SetExtendBaseData(extend bool)          { e.Config.ExtendBaseData = extend }
func (e *Engine) SetEnableRetrain(enable bool)           { e.Config.EnableRetrain = enable }
func (e *Engine) SetImpurityThreshold(v float64)         { e.Config.ImpurityThreshold = v }

// SetModelName renames every on-disk artifact via the resource base
// and rescans.
func (e *Engine) SetModelName(newName string) error {
	return e.base.SetModelName(newName)
}

// AbleToInference and AbleToTraining expose the resource base's
// derived ability flags.
func (e *Engine) AbleToInference() bool {
	return e.base.Flags&resource.AbleToInference != 0
}

func (e *Engine) AbleToTraining() bool {
	return e.base.Flags&resource.AbleToTraining != 0
}
