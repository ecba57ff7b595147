// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package repro

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/Meinersbur/isl/pkg/osutil"
	dmp "github.com/sergi/go-diff/diffmatchpatch"
	"github.com/ulikunitz/xz"
)

// history stores every accepted reduction as reduced-<n>.c and a patch
// against the previous one as reduced-<n>.patch.
type history struct {
	dir      string
	compress bool
	step     int
	prev     string
}

func newHistory(dir string, compress bool, initial []byte) (*history, error) {
	if err := osutil.MkdirAll(dir); err != nil {
		return nil, err
	}
	h := &history{
		dir:      dir,
		compress: compress,
	}
	if err := h.writeSource(initial); err != nil {
		return nil, err
	}
	h.prev = string(initial)
	return h, nil
}

func (h *history) add(src []byte) error {
	h.step++
	if err := h.writeSource(src); err != nil {
		return err
	}
	diffs := dmp.New()
	patches := diffs.PatchMake(h.prev, string(src))
	h.prev = string(src)
	return osutil.WriteFile(h.path(".patch"), []byte(diffs.PatchToText(patches)))
}

func (h *history) writeSource(src []byte) error {
	if !h.compress {
		return osutil.WriteFile(h.path(".c"), src)
	}
	buf := new(bytes.Buffer)
	w, err := xz.NewWriter(buf)
	if err != nil {
		return err
	}
	if _, err := w.Write(src); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return osutil.WriteFile(h.path(".c.xz"), buf.Bytes())
}

func (h *history) path(ext string) string {
	return filepath.Join(h.dir, fmt.Sprintf("reduced-%v%v", h.step, ext))
}
