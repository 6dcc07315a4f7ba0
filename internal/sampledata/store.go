// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package sampledata implements the chunked, file-backed labelled-sample
dataset ("Rf_data" in the embedded engine this module reimplements).
Samples are held in fixed-size chunks and packed on disk at Q bits per
feature value. LoadData materialises every chunk of the file in
memory; LoadSubset and LoadChunk copy only selected ids.
*/
package sampledata

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/shuLhan/rfedge/internal/bitpack"
	"github.com/shuLhan/rfedge/internal/idvector"
	"github.com/shuLhan/rfedge/internal/platform"
)

const (
	// ChunkBytes is the materialisation window size in bytes.
	ChunkBytes = 8192
	// MaxSamples caps a dataset's sample count (fits a u16).
	MaxSamples = 1<<16 - 1
	// batchReadBytes amortises I/O during LoadData.
	batchReadBytes = 2048
)

var (
	// ErrNotInitialized is returned by operations attempted before Init.
	ErrNotInitialized = errors.New("sampledata: store not initialized")
	// ErrHeaderMismatch is returned when a loaded file's declared
	// feature count disagrees with the store's configuration.
	ErrHeaderMismatch = errors.New("sampledata: feature count mismatch with file header")
	// ErrFeatureCountMismatch is returned when an input row's feature
	// count disagrees with the store's configuration.
	ErrFeatureCountMismatch = errors.New("sampledata: feature count mismatch in input row")
	// ErrFileMissing is returned by subset loads when the source file
	// does not exist.
	ErrFileMissing = errors.New("sampledata: source file missing")
)

// chunk holds up to C samples' packed features and labels.
type chunk struct {
	features *bitpack.Vector // Bpv = Q, length = n*NumFeatures
	labels   *bitpack.Vector // Bpv = labelBits, length = n
	n        int
}

// Store is a chunked, file-backed dataset.
type Store struct {
	fs   platform.FS
	path string

	Q           uint // quantisation bits per feature
	NumFeatures int
	LabelBits   uint
	ChunkSize   int // C: samples per chunk

	chunks    []chunk
	numSample int
	IsLoaded  bool

	initialized bool
}

// New constructs an uninitialized store bound to fs.
func New(fs platform.FS) *Store {
	return &Store{fs: fs}
}

// recordSize returns the on-disk byte size of one sample record.
func (s *Store) recordSize() int {
	return 1 + (s.NumFeatures*int(s.Q)+7)/8
}

const headerSize = 4 + 2 // u32 num_samples, u16 num_features

// Init records path and layout and computes the chunk size C, clearing
// any previously loaded memory.
func (s *Store) Init(path string, numFeatures int, q uint, labelBits uint) error {
	if numFeatures <= 0 || q == 0 || q > 8 {
		return fmt.Errorf("sampledata: invalid layout F=%d Q=%d", numFeatures, q)
	}
	s.path = path
	s.NumFeatures = numFeatures
	s.Q = q
	s.LabelBits = labelBits

	c := (ChunkBytes * 8) / (numFeatures * int(q))
	if c < 1 {
		c = 1
	}
	s.ChunkSize = c

	s.chunks = nil
	s.numSample = 0
	s.IsLoaded = false
	s.initialized = true
	return nil
}

// NumSamples returns the number of samples currently tracked (loaded
// in memory or, after a release, as last known from disk).
func (s *Store) NumSamples() int { return s.numSample }

func (s *Store) chunkFor(i int) (int, int) {
	return i / s.ChunkSize, i % s.ChunkSize
}

func (s *Store) ensureChunks(upto int) {
	want := upto/s.ChunkSize + 1
	for len(s.chunks) < want {
		s.chunks = append(s.chunks, chunk{
			features: bitpack.NewVector(8, s.Q),
			labels:   bitpack.NewVector(8, s.LabelBits),
		})
	}
}

// setUnsafe writes sample i's label and feature j=0..F-1 directly into
// its chunk, growing chunk storage as needed. No bounds checking.
func (s *Store) setUnsafe(i int, sample Sample) {
	ci, off := s.chunkFor(i)
	s.ensureChunks(i)
	ch := &s.chunks[ci]

	if off >= ch.labels.Len() {
		ch.labels.Resize(off + 1)
		ch.features.Resize((off + 1) * s.NumFeatures)
	}
	ch.labels.Set(off, uint32(sample.Label))
	for j := 0; j < s.NumFeatures; j++ {
		ch.features.Set(off*s.NumFeatures+j, uint32(sample.Features[j]))
	}
	if off+1 > ch.n {
		ch.n = off + 1
	}
}

// GetLabel is a hot-path accessor assuming IsLoaded.
func (s *Store) GetLabel(i int) uint8 {
	ci, off := s.chunkFor(i)
	return uint8(s.chunks[ci].labels.Get(off))
}

// GetFeature is a hot-path accessor assuming IsLoaded.
func (s *Store) GetFeature(i, j int) uint8 {
	ci, off := s.chunkFor(i)
	return uint8(s.chunks[ci].features.Get(off*s.NumFeatures + j))
}

// GetSample copies sample i out of its chunk by value.
func (s *Store) GetSample(i int) Sample {
	feats := make([]uint8, s.NumFeatures)
	for j := range feats {
		feats[j] = s.GetFeature(i, j)
	}
	return Sample{Label: s.GetLabel(i), Features: feats}
}

// ConvertCSVToBinary parses a one-shot CSV (label,feature...) input,
// builds the dataset in memory, writes the binary form, and removes
// the CSV. Empty lines are skipped; rows with the wrong field count
// are counted and dropped. Returns the number of dropped rows.
func (s *Store) ConvertCSVToBinary(csvPath string) (dropped int, err error) {
	if !s.initialized {
		return 0, ErrNotInitialized
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	s.chunks = nil
	s.numSample = 0

	scanner := bufio.NewScanner(f)
	wantFields := s.NumFeatures + 1
	i := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != wantFields {
			dropped++
			continue
		}
		if i >= MaxSamples {
			break
		}

		label, e := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 8)
		if e != nil {
			dropped++
			continue
		}

		feats := make([]uint8, s.NumFeatures)
		bad := false
		for j := 0; j < s.NumFeatures; j++ {
			v, e := strconv.ParseUint(strings.TrimSpace(fields[j+1]), 10, 8)
			if e != nil {
				bad = true
				break
			}
			feats[j] = uint8(v)
		}
		if bad {
			dropped++
			continue
		}

		s.setUnsafe(i, Sample{Label: uint8(label), Features: feats})
		i++
	}
	if err := scanner.Err(); err != nil {
		return dropped, err
	}
	s.numSample = i
	s.IsLoaded = true

	if err := s.ReleaseData(false); err != nil {
		return dropped, err
	}
	if err := os.Remove(csvPath); err != nil {
		glog.Warningf("sampledata: convert: could not remove source csv %s: %v", csvPath, err)
	}
	return dropped, nil
}

// ReleaseData writes the dataset's binary form to disk (unless
// reuse=true, which assumes the file already reflects memory) and
// drops in-memory chunks.
func (s *Store) ReleaseData(reuse bool) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if !reuse {
		f, err := s.fs.Create(s.path)
		if err != nil {
			return err
		}
		defer f.Close()

		hdr := make([]byte, headerSize)
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(s.numSample))
		binary.LittleEndian.PutUint16(hdr[4:6], uint16(s.NumFeatures))
		if _, err := f.Write(hdr); err != nil {
			return err
		}

		rec := make([]byte, s.recordSize())
		for i := 0; i < s.numSample; i++ {
			s.packRecord(i, rec)
			if _, err := f.Write(rec); err != nil {
				return err
			}
		}
	}

	s.chunks = nil
	s.IsLoaded = false
	return nil
}

func (s *Store) packRecord(i int, rec []byte) {
	rec[0] = s.GetLabel(i)
	feat := bitpack.NewArray(rec[1:], s.Q)
	for j := 0; j < s.NumFeatures; j++ {
		feat.Set(j, s.GetFeature(i, j))
	}
}

func (s *Store) unpackRecord(i int, rec []byte) {
	feat := bitpack.NewArray(rec[1:], s.Q)
	feats := make([]uint8, s.NumFeatures)
	for j := 0; j < s.NumFeatures; j++ {
		feats[j] = feat.Get(j)
	}
	s.setUnsafe(i, Sample{Label: rec[0], Features: feats})
}

func readHeader(f platform.File) (numSamples int, numFeatures int, err error) {
	hdr := make([]byte, headerSize)
	if _, err = io.ReadFull(f, hdr); err != nil {
		return 0, 0, err
	}
	numSamples = int(binary.LittleEndian.Uint32(hdr[0:4]))
	numFeatures = int(binary.LittleEndian.Uint16(hdr[4:6]))
	return numSamples, numFeatures, nil
}

// LoadData reads the whole dataset file into memory in batches of up
// to 2048 bytes, falling back to per-sample reads for the remaining
// records if a batch read fails. If reuse=false the file is removed
// after load.
func (s *Store) LoadData(reuse bool) error {
	if !s.initialized {
		return ErrNotInitialized
	}

	f, err := s.fs.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, fileFeatures, err := readHeader(f)
	if err != nil {
		return err
	}
	if fileFeatures != s.NumFeatures {
		return ErrHeaderMismatch
	}

	s.chunks = nil
	s.numSample = n
	if n > 0 {
		s.ensureChunks(n - 1)
	}

	recSize := s.recordSize()
	batchSamples := batchReadBytes / recSize
	if batchSamples < 1 {
		batchSamples = 1
	}

	buf := make([]byte, batchSamples*recSize)
	i := 0
	for i < n {
		take := batchSamples
		if i+take > n {
			take = n - i
		}
		chunkBuf := buf[:take*recSize]
		if _, err := io.ReadFull(f, chunkBuf); err != nil {
			return s.loadPerSampleFallback(f, i, n, recSize)
		}
		for k := 0; k < take; k++ {
			s.unpackRecord(i+k, chunkBuf[k*recSize:(k+1)*recSize])
		}
		i += take
	}

	s.IsLoaded = true
	if !reuse {
		if err := s.fs.Remove(s.path); err != nil {
			glog.Warningf("sampledata: load: could not remove %s after load: %v", s.path, err)
		}
	}
	return nil
}

func (s *Store) loadPerSampleFallback(f platform.File, from, n, recSize int) error {
	rec := make([]byte, recSize)
	for i := from; i < n; i++ {
		if _, err := io.ReadFull(f, rec); err != nil {
			return err
		}
		s.unpackRecord(i, rec)
	}
	s.IsLoaded = true
	return nil
}

// LoadSubset copies only the ids in ids from source into s, in
// ascending order (guaranteed by idvector.Vector.Iterate), yielding
// forward-only seeks. Ids beyond source's sample count are skipped.
// If source is currently loaded and saveRAM is true, source is
// released before copying and reloaded after.
func (s *Store) LoadSubset(source *Store, ids *idvector.Vector, saveRAM bool) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if !source.fs.Exists(source.path) && !source.IsLoaded {
		return ErrFileMissing
	}

	wasLoaded := source.IsLoaded
	if wasLoaded && saveRAM {
		if err := source.ReleaseData(true); err != nil {
			return err
		}
	}

	f, err := source.fs.Open(source.path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, fileFeatures, err := readHeader(f)
	if err != nil {
		return err
	}
	if fileFeatures != source.NumFeatures {
		return ErrHeaderMismatch
	}

	s.chunks = nil
	s.numSample = 0
	recSize := source.recordSize()
	rec := make([]byte, recSize)

	out := 0
	ids.Iterate(func(id int) {
		if err != nil || id >= n {
			return
		}
		offset := int64(headerSize) + int64(id)*int64(recSize)
		if _, serr := f.Seek(offset, io.SeekStart); serr != nil {
			err = serr
			return
		}
		if _, rerr := io.ReadFull(f, rec); rerr != nil {
			err = rerr
			return
		}
		s.unpackRecord(out, rec)
		out++
	})
	if err != nil {
		return err
	}
	s.numSample = out
	s.IsLoaded = true

	if wasLoaded && saveRAM {
		return source.LoadData(true)
	}
	return nil
}

// LoadChunk is a convenience wrapper around LoadSubset for the id
// range [chunkIndex*C, min((chunkIndex+1)*C, N)).
func (s *Store) LoadChunk(source *Store, chunkIndex int, saveRAM bool) error {
	lo := chunkIndex * source.ChunkSize
	hi := (chunkIndex + 1) * source.ChunkSize
	if hi > source.numSample {
		hi = source.numSample
	}
	if lo >= hi {
		s.numSample = 0
		s.IsLoaded = true
		return nil
	}

	ids := idvector.New(lo, hi-1, 1)
	for id := lo; id < hi; id++ {
		ids.PushBack(id)
	}
	return s.LoadSubset(source, ids, saveRAM)
}

// AddNewData streams an append (extend=true) or in-place overwrite
// (extend=false) of samples directly on disk, returning the labels
// that were overwritten (empty when extending).
func (s *Store) AddNewData(samples []Sample, extend bool) ([]uint8, error) {
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	for _, sm := range samples {
		if len(sm.Features) != s.NumFeatures {
			return nil, ErrFeatureCountMismatch
		}
	}

	f, err := s.fs.OpenReadWrite(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n, fileFeatures, err := readHeader(f)
	if err != nil {
		return nil, err
	}
	if fileFeatures != s.NumFeatures {
		return nil, ErrHeaderMismatch
	}

	recSize := s.recordSize()

	if extend {
		budget := MaxSamples - n
		take := len(samples)
		if take > budget {
			take = budget
		}
		if take <= 0 {
			return nil, nil
		}

		if _, err := f.Seek(int64(headerSize)+int64(n)*int64(recSize), io.SeekStart); err != nil {
			return nil, err
		}
		for i := 0; i < take; i++ {
			rec := packSample(samples[i], s.Q, recSize)
			if _, err := f.Write(rec); err != nil {
				return nil, err
			}
		}

		if err := writeHeader(f, n+take, s.NumFeatures); err != nil {
			return nil, err
		}
		s.numSample = n + take
		return nil, nil
	}

	take := len(samples)
	if take > n {
		take = n
	}
	overwritten := make([]uint8, take)

	if _, err := f.Seek(int64(headerSize), io.SeekStart); err != nil {
		return nil, err
	}
	oldRec := make([]byte, recSize)
	for i := 0; i < take; i++ {
		if _, err := io.ReadFull(f, oldRec); err != nil {
			return nil, err
		}
		overwritten[i] = oldRec[0]
	}

	if _, err := f.Seek(int64(headerSize), io.SeekStart); err != nil {
		return nil, err
	}
	for i := 0; i < take; i++ {
		rec := packSample(samples[i], s.Q, recSize)
		if _, err := f.Write(rec); err != nil {
			return nil, err
		}
	}

	s.numSample = n
	return overwritten, nil
}

func packSample(sm Sample, q uint, recSize int) []byte {
	rec := make([]byte, recSize)
	rec[0] = sm.Label
	arr := bitpack.NewArray(rec[1:], q)
	for j, v := range sm.Features {
		arr.Set(j, v)
	}
	return rec
}

func writeHeader(f platform.File, numSamples, numFeatures int) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(numSamples))
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(numFeatures))
	_, err := f.Write(hdr)
	return err
}
