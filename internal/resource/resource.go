// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package resource implements the file-presence state machine over a
model's on-storage artifacts ("Rf_base"): path naming, scanning, and
model rename. It is the only place that knows the fixed suffixes and
per-tree naming convention every other package writes under.
*/
package resource

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/shuLhan/rfedge/internal/platform"
)

// Flags is a bitset over the expected model artifacts.
type Flags uint16

const (
	BaseDataExist Flags = 1 << iota
	BaseDataIsCSV
	DPFileExist
	CTGFileExist
	ConfigFileExist
	InferLogFileExist
	UnifiedForestExist
	NodePredFileExist
	AbleToInference
	AbleToTraining
	Scanned
)

// RFMaxTrees bounds the per-tree file scan during rename.
const RFMaxTrees = 255

// Base owns a model's directory, name, and derived flags.
type Base struct {
	fs        platform.FS
	RootDir   string
	ModelName string
	Flags     Flags
}

// New binds a resource base to a model directory and name, without
// scanning yet.
func New(fs platform.FS, rootDir, modelName string) *Base {
	return &Base{fs: fs, RootDir: rootDir, ModelName: modelName}
}

func (b *Base) modelDir() string {
	return fmt.Sprintf("%s/%s", b.RootDir, b.ModelName)
}

func (b *Base) suffixPath(name, suffix string) string {
	return fmt.Sprintf("%s/%s%s", b.modelDir(), name, suffix)
}

// Suffix path builders, matching spec section 4.8/6 exactly.
//
// CategoryPath ("_ctg.csv") is the label-category definitions file
// (label id -> name mapping): a small artifact required by both
// training and inference, independent of whether the sample data
// itself is still in raw CSV form or has been converted to the
// packed binary ("_nml.bin"). RawCSVPath is that transient raw
// upload, named by the model's own stem with a plain .csv extension;
// it is consumed and removed by ConvertCSVToBinary, unlike
// CategoryPath which persists for the model's lifetime.
func (b *Base) DataPath() string      { return b.suffixPath(b.ModelName, "_nml.bin") }
func (b *Base) RawCSVPath() string    { return fmt.Sprintf("%s/%s.csv", b.modelDir(), b.ModelName) }
func (b *Base) CategoryPath() string  { return b.suffixPath(b.ModelName, "_ctg.csv") }
func (b *Base) DPPath() string        { return b.suffixPath(b.ModelName, "_dp.csv") }
func (b *Base) ConfigPath() string    { return b.suffixPath(b.ModelName, "_config.json") }
func (b *Base) ForestPath() string    { return b.suffixPath(b.ModelName, "_forest.bin") }
func (b *Base) NodePredPath() string  { return b.suffixPath(b.ModelName, "_node_pred.bin") }
func (b *Base) NodeLogPath() string   { return b.suffixPath(b.ModelName, "_node_log.csv") }
func (b *Base) InferLogPath() string  { return b.suffixPath(b.ModelName, "_infer_log.bin") }
func (b *Base) TimeLogPath() string   { return b.suffixPath(b.ModelName, "_time_log.csv") }
func (b *Base) MemoryLogPath() string { return b.suffixPath(b.ModelName, "_memory_log.csv") }
func (b *Base) TreePath(i int) string { return fmt.Sprintf("%s/tree_%d.bin", b.modelDir(), i) }

// allSuffixedPaths returns every non-per-tree path, for rename.
func (b *Base) allSuffixedPaths() []string {
	return []string{
		b.DataPath(), b.RawCSVPath(), b.CategoryPath(), b.DPPath(), b.ConfigPath(),
		b.ForestPath(), b.NodePredPath(), b.NodeLogPath(),
		b.InferLogPath(), b.TimeLogPath(), b.MemoryLogPath(),
	}
}

// Scan recomputes Flags from the filesystem, then derives
// AbleToInference/AbleToTraining. These two flags are never set
// directly outside this routine.
func (b *Base) Scan() error {
	var f Flags

	if b.fs.Exists(b.DataPath()) {
		f |= BaseDataExist
	} else if b.fs.Exists(b.RawCSVPath()) {
		f |= BaseDataExist | BaseDataIsCSV
	}
	if b.fs.Exists(b.DPPath()) {
		f |= DPFileExist
	}
	if b.fs.Exists(b.CategoryPath()) {
		f |= CTGFileExist
	}
	if b.fs.Exists(b.ConfigPath()) {
		f |= ConfigFileExist
	}
	if b.fs.Exists(b.InferLogPath()) {
		f |= InferLogFileExist
	}
	if b.fs.Exists(b.ForestPath()) {
		f |= UnifiedForestExist
	}
	if b.fs.Exists(b.NodePredPath()) {
		f |= NodePredFileExist
	}

	f |= Scanned
	f = deriveAbility(f)

	b.Flags = f
	return nil
}

func deriveAbility(f Flags) Flags {
	if f&UnifiedForestExist != 0 && f&CTGFileExist != 0 {
		f |= AbleToInference
	} else {
		f &^= AbleToInference
	}
	if f&BaseDataExist != 0 && f&BaseDataIsCSV == 0 && f&CTGFileExist != 0 {
		f |= AbleToTraining
	} else {
		f &^= AbleToTraining
	}
	return f
}

// SetConfigExists and SetDPExists are explicit setters used by the
// config/dataset-params writers, the only other place flags may be
// touched outside Scan.
func (b *Base) SetConfigExists(exists bool) {
	if exists {
		b.Flags |= ConfigFileExist
	} else {
		b.Flags &^= ConfigFileExist
	}
	b.Flags = deriveAbility(b.Flags)
}

func (b *Base) SetDPExists(exists bool) {
	if exists {
		b.Flags |= DPFileExist
	} else {
		b.Flags &^= DPFileExist
	}
}

func (b *Base) SetNodePredExists(exists bool) {
	if exists {
		b.Flags |= NodePredFileExist
	} else {
		b.Flags &^= NodePredFileExist
	}
}

// SetModelName renames every existing artifact from the old model
// name to newName: for each suffix and each tree_<i>.bin up to
// RFMaxTrees, a file that exists under the old name is copied to the
// new name and the old one deleted. The scan is re-run afterwards.
func (b *Base) SetModelName(newName string) error {
	old := b.ModelName
	if old == newName {
		return nil
	}

	renamePairs := func(oldPath, newPath string) {
		if b.fs.Exists(oldPath) {
			if err := b.fs.Rename(oldPath, newPath); err != nil {
				glog.Warningf("resource: rename: could not move %s -> %s: %v", oldPath, newPath, err)
			}
		}
	}

	oldBase := *b
	oldBase.ModelName = old

	b.ModelName = newName
	newBase := *b
	b.ModelName = old // restore until rename actually completes below

	if err := b.fs.Mkdir(newBase.modelDir()); err != nil {
		return err
	}
	oldSuffixed := oldBase.allSuffixedPaths()
	newSuffixed := newBase.allSuffixedPaths()
	for i := range oldSuffixed {
		renamePairs(oldSuffixed[i], newSuffixed[i])
	}
	for i := 0; i < RFMaxTrees; i++ {
		renamePairs(oldBase.TreePath(i), newBase.TreePath(i))
	}

	b.ModelName = newName
	return b.Scan()
}
