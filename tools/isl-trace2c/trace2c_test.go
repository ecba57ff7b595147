// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Meinersbur/isl/pkg/csource"
	"github.com/Meinersbur/isl/pkg/reduceconfig"
	"github.com/Meinersbur/isl/prog"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	m := prog.ParseTest(t, prog.ChainTrace)
	output := filepath.Join(t.TempDir(), "chain.c")
	require.NoError(t, convert(m, csource.DefaultOptions(), output))
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	want, err := csource.Write(m, nil, csource.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, string(want), string(data))
}

func TestSetupWorkdir(t *testing.T) {
	cfg := reduceconfig.Default()
	cfg.Workdir = t.TempDir()
	cfg.IncludeDirs = []string{"/isl/include"}
	cfg.ExpectedStderr = "isl_ctx.c:307: isl_ctx not freed"
	cfg.Procs = 3
	require.NoError(t, setupWorkdir(cfg))
	assert.FileExists(t, filepath.Join(cfg.Workdir, "CMakeLists.txt"))
	saved, err := reduceconfig.LoadFile(filepath.Join(cfg.Workdir, effectiveConfig))
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, saved); diff != "" {
		t.Fatal(diff)
	}
}

func TestHTTPSource(t *testing.T) {
	output := filepath.Join(t.TempDir(), "reduced.c")
	rec := httptest.NewRecorder()
	httpSource(rec, httptest.NewRequest("GET", "/source", nil), output)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, os.WriteFile(output, []byte("int main() {}\n"), 0644))
	rec = httptest.NewRecorder()
	httpSource(rec, httptest.NewRequest("GET", "/source", nil), output)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "int main() {}\n", rec.Body.String())
}

func TestHTTPSummary(t *testing.T) {
	rec := httptest.NewRecorder()
	httpSummary(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "isl-trace2c")

	rec = httptest.NewRecorder()
	httpSummary(rec, httptest.NewRequest("GET", "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
