// Copyright 2026 Mhd Sulhan <ms@kilabit.info>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rfengine

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/shuLhan/rfedge/internal/platform"
)

// categoryTable is the label id <-> text mapping loaded from a
// model's `_ctg.csv` file: two columns, `label_id,label_text`, one
// row per label, no header.
type categoryTable struct {
	names []string // indexed by label id
}

func loadCategoryTable(fs platform.FS, path string) (*categoryTable, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t := &categoryTable{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, ",", 2)
		if len(fields) != 2 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil || id < 0 {
			continue
		}
		for len(t.names) <= id {
			t.names = append(t.names, "")
		}
		t.names[id] = strings.TrimSpace(fields[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func saveCategoryTable(fs platform.FS, path string, names []string) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for i, name := range names {
		if _, err := fmt.Fprintf(f, "%d,%s\n", i, name); err != nil {
			return err
		}
	}
	return nil
}

func (t *categoryTable) TextFor(id uint8) string {
	if t == nil || int(id) >= len(t.names) {
		return ""
	}
	return t.names[id]
}

func (t *categoryTable) IDFor(text string) (uint8, bool) {
	if t == nil {
		return 0, false
	}
	for i, name := range t.names {
		if name == text {
			return uint8(i), true
		}
	}
	return 0, false
}

func (t *categoryTable) NumLabels() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}
