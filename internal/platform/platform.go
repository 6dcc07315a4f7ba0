// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package platform is the engine's seam onto the host: filesystem, time,
and resource diagnostics. On the target hardware this would be
SPIFFS/SD and a cycle counter; on a development host it is backed by
os and time. Every other package takes a FS as a constructor argument
instead of calling os.* directly, so the origin of these capabilities
is never a hidden global.
*/
package platform

import (
	"io"
	"os"
	"runtime"
	"time"
)

// File is the minimal handle every store needs: random access reads
// and writes plus seeking and size.
type File interface {
	io.ReadWriteSeeker
	io.Closer
	Truncate(size int64) error
}

// FS is the capability set consumed by the rest of the engine in
// place of direct filesystem calls.
type FS interface {
	Open(path string) (File, error)
	Create(path string) (File, error)
	OpenReadWrite(path string) (File, error)
	Exists(path string) bool
	Remove(path string) error
	Rename(oldpath, newpath string) error
	Mkdir(path string) error
	MillisNow() int64
	FreeHeapLowWater() uint64
	CyclesNow() uint64
}

// Posix implements FS over the host's os/time packages.
type Posix struct {
	heapLowWater uint64
}

// NewPosix creates a host-backed FS.
func NewPosix() *Posix {
	return &Posix{heapLowWater: ^uint64(0)}
}

func (p *Posix) Open(path string) (File, error) {
	return os.Open(path)
}

func (p *Posix) Create(path string) (File, error) {
	return os.Create(path)
}

func (p *Posix) OpenReadWrite(path string) (File, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
}

func (p *Posix) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (p *Posix) Remove(path string) error {
	return os.Remove(path)
}

func (p *Posix) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (p *Posix) Mkdir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (p *Posix) MillisNow() int64 {
	return time.Now().UnixMilli()
}

// FreeHeapLowWater reports the lowest observed free-heap estimate in
// bytes, tracked across calls for diagnostics the way the embedded
// target tracks its watermark.
func (p *Posix) FreeHeapLowWater() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	free := m.Sys - m.HeapInuse
	if free < p.heapLowWater {
		p.heapLowWater = free
	}
	return p.heapLowWater
}

func (p *Posix) CyclesNow() uint64 {
	return uint64(time.Now().UnixNano())
}
