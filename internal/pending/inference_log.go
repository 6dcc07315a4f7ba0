// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pending

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/shuLhan/rfedge/internal/platform"
)

var magicInferLog = [4]byte{'I', 'N', 'F', 'L'}

const inferHeaderSize = 4 + 4 // magic + u32 count

// ErrBadInferLogMagic is returned when an inference log's magic bytes
// do not match "INFL".
var ErrBadInferLogMagic = errors.New("pending: bad inference log magic")

// InferenceLog is the append-only (predicted, actual) pair log written
// by Flush, trimmed to a size cap appropriate for the deployment
// target (2KB on-flash, 20KB on SD per spec section 4.11).
type InferenceLog struct {
	fs       platform.FS
	path     string
	capBytes int
}

// OpenInferenceLog binds to path, creating an empty header if the file
// does not yet exist.
func OpenInferenceLog(fs platform.FS, path string, capBytes int) (*InferenceLog, error) {
	l := &InferenceLog{fs: fs, path: path, capBytes: capBytes}
	if !fs.Exists(path) {
		if err := l.writeAll(0, nil); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Count returns the number of pairs currently recorded.
func (l *InferenceLog) Count() (int, error) {
	count, _, err := l.readAll()
	return count, err
}

// Append adds pairs to the end of the log, rewrites the header count
// only after the pairs are durably written, and trims the log if it
// now exceeds capBytes.
func (l *InferenceLog) Append(pairs []Pair) error {
	f, err := l.fs.OpenReadWrite(l.path)
	if err != nil {
		return err
	}

	hdr := make([]byte, inferHeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return err
	}
	if hdr[0] != magicInferLog[0] || hdr[1] != magicInferLog[1] || hdr[2] != magicInferLog[2] || hdr[3] != magicInferLog[3] {
		f.Close()
		return ErrBadInferLogMagic
	}
	count := int(binary.LittleEndian.Uint32(hdr[4:8]))

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return err
	}
	for _, p := range pairs {
		if _, err := f.Write([]byte{p.Predicted, p.Actual}); err != nil {
			f.Close()
			return err
		}
	}

	count += len(pairs)
	if err := writeCountAt(f, count); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return l.maybeTrim()
}

// ReadAll returns every (predicted, actual) pair in insertion order.
func (l *InferenceLog) ReadAll() ([]Pair, error) {
	_, pairs, err := l.readAll()
	return pairs, err
}

func (l *InferenceLog) readAll() (count int, pairs []Pair, err error) {
	f, err := l.fs.Open(l.path)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()

	hdr := make([]byte, inferHeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return 0, nil, err
	}
	if hdr[0] != magicInferLog[0] || hdr[1] != magicInferLog[1] || hdr[2] != magicInferLog[2] || hdr[3] != magicInferLog[3] {
		return 0, nil, ErrBadInferLogMagic
	}
	count = int(binary.LittleEndian.Uint32(hdr[4:8]))

	pairs = make([]Pair, 0, count)
	buf := make([]byte, 2)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return count, pairs, err
		}
		pairs = append(pairs, Pair{Predicted: buf[0], Actual: buf[1]})
	}
	return count, pairs, nil
}

// maybeTrim drops the oldest half of the pairs and rewrites the file
// when its total size exceeds capBytes. The oldest-half choice is the
// spec's own arbitrary policy (see spec.md section 9), preserved here
// as-is rather than redesigned.
func (l *InferenceLog) maybeTrim() error {
	f, err := l.fs.Open(l.path)
	if err != nil {
		return err
	}
	size, err := f.Seek(0, io.SeekEnd)
	f.Close()
	if err != nil {
		return err
	}
	if int(size) <= l.capBytes {
		return nil
	}

	_, pairs, err := l.readAll()
	if err != nil {
		return err
	}
	keep := pairs[len(pairs)/2:]
	return l.writeAll(len(keep), keep)
}

func (l *InferenceLog) writeAll(count int, pairs []Pair) error {
	f, err := l.fs.Create(l.path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := make([]byte, inferHeaderSize)
	copy(hdr[0:4], magicInferLog[:])
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(count))
	if _, err := f.Write(hdr); err != nil {
		return err
	}
	for _, p := range pairs {
		if _, err := f.Write([]byte{p.Predicted, p.Actual}); err != nil {
			return err
		}
	}
	return nil
}

func writeCountAt(f platform.File, count int) error {
	if _, err := f.Seek(4, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(count))
	_, err := f.Write(buf)
	return err
}
