// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package oracle

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/Meinersbur/isl/pkg/csource"
	"github.com/Meinersbur/isl/pkg/osutil"
	"github.com/Meinersbur/isl/pkg/reduceconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		out    osutil.Output
		stdout string
		want   Verdict
	}{
		{
			out:  osutil.Output{Stderr: []byte("assert failed\n"), ExitCode: 134},
			want: Interesting,
		},
		{
			out:    osutil.Output{Stdout: []byte("v1"), Stderr: []byte("assert failed\n"), ExitCode: 134},
			stdout: "v1",
			want:   Interesting,
		},
		{
			out:    osutil.Output{Stdout: []byte("v2"), Stderr: []byte("assert failed\n"), ExitCode: 134},
			stdout: "v1",
			want:   Skip,
		},
		{
			out:  osutil.Output{Stderr: []byte("assert failed\n"), ExitCode: 0},
			want: Skip,
		},
		{
			out:  osutil.Output{Stderr: []byte("other assert\n"), ExitCode: 134},
			want: Boring,
		},
		{
			out:  osutil.Output{Stderr: []byte("assert failed\n"), ExitCode: 134, Timedout: true},
			want: Malformed,
		},
	}
	for i, test := range tests {
		got := classify(&test.out, 134, test.stdout, "assert failed\n")
		assert.Equal(t, test.want, got, "#%v", i)
	}
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "interesting", Interesting.String())
	assert.Equal(t, "skip", Skip.String())
}

func testConfig(t *testing.T) *reduceconfig.Config {
	cfg := reduceconfig.Default()
	cfg.Workdir = t.TempDir()
	cfg.Libs = nil
	cfg.ExitCode = 3
	cfg.ExpectedStderr = "boom"
	return cfg
}

const (
	srcInteresting = `#include <stdio.h>
int main() { printf("banner"); fprintf(stderr, "boom"); return 3; }
`
	srcOtherBanner = `#include <stdio.h>
int main() { printf("other"); fprintf(stderr, "boom"); return 3; }
`
	srcBoring = `#include <stdio.h>
int main() { printf("banner"); fprintf(stderr, "bang"); return 3; }
`
)

func TestOracle(t *testing.T) {
	compiler, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler")
	}
	cfg := testConfig(t)
	cfg.Compiler = compiler
	o := New(cfg)
	ctx := context.Background()

	res := o.Test(ctx, []byte(srcBoring))
	require.Equal(t, Boring, res.Verdict, "err: %v", res.Err)
	assert.Empty(t, res.Dir)
	assert.Empty(t, o.ExpectedStdout())

	res = o.Test(ctx, []byte(srcInteresting))
	require.Equal(t, Interesting, res.Verdict, "err: %v", res.Err)
	assert.DirExists(t, res.Dir)
	assert.Equal(t, "banner", string(res.Stdout))
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "banner", o.ExpectedStdout())

	res = o.Test(ctx, []byte(srcOtherBanner))
	assert.Equal(t, Skip, res.Verdict)

	res = o.Test(ctx, []byte("int main() { return undeclared; }"))
	assert.Equal(t, Malformed, res.Verdict)
	assert.Error(t, res.Err)
	assert.Empty(t, res.Dir)
}

func TestOracleConfiguredStdout(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExpectedStdout = "banner"
	o := New(cfg)
	assert.Equal(t, "banner", o.ExpectedStdout())
}

func TestOracleCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeepArtifacts = true
	o := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := o.Test(ctx, []byte(srcInteresting))
	assert.Equal(t, Malformed, res.Verdict)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.NotEmpty(t, res.Dir)
}

func TestOracleNoCompiler(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compiler = "no-such-compiler-for-isltrace"
	res := New(cfg).Test(context.Background(), []byte(srcInteresting))
	assert.Equal(t, Malformed, res.Verdict)
	assert.True(t, errors.Is(res.Err, csource.ErrNoCompiler), "err: %v", res.Err)
}

func TestBuildOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Libs = []string{"isl"}
	cfg.LibDirs = []string{"/isl/.libs"}
	opts := BuildOptions(cfg)
	assert.Equal(t, "gcc", opts.Compiler)
	assert.Equal(t, []string{"isl"}, opts.Libs)
	assert.Equal(t, []string{"/isl/.libs"}, opts.LibDirs)
	assert.Equal(t, cfg.BuildTimeoutDuration(), opts.Timeout)
}
