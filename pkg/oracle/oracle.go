// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package oracle decides whether a generated program still reproduces the failure.
// Every test builds and runs the program in its own scratch directory,
// so an Oracle can be used from several goroutines at once.
package oracle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Meinersbur/isl/pkg/csource"
	"github.com/Meinersbur/isl/pkg/log"
	"github.com/Meinersbur/isl/pkg/osutil"
	"github.com/Meinersbur/isl/pkg/reduceconfig"
	"github.com/Meinersbur/isl/pkg/stat"
	"github.com/google/uuid"
)

type Verdict int

const (
	// Interesting programs exit with the expected failure signature.
	Interesting Verdict = iota
	// Boring programs ran as expected, but failed differently (or not at all).
	Boring
	// Malformed programs did not build or did not run to completion.
	Malformed
	// Skip programs ran, but the exit status or stdout differs from the expected one.
	Skip
)

var verdictNames = [...]string{
	Interesting: "interesting",
	Boring:      "boring",
	Malformed:   "malformed",
	Skip:        "skip",
}

func (v Verdict) String() string {
	return verdictNames[v]
}

type Result struct {
	Verdict Verdict
	// Scratch directory of the test; removed unless the result is
	// interesting or artifacts are kept.
	Dir      string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	// Err explains Malformed results.
	Err error
}

type Oracle struct {
	cfg     *reduceconfig.Config
	build   csource.BuildOptions
	scratch string
	// stdout is the expected stdout, set from the config or pinned by the
	// first interesting run.
	stdout atomic.Pointer[string]
}

var (
	statBuildTime = stat.New("build time", "Time to build a candidate (ms)",
		stat.Distribution{}, stat.Prometheus("isl_reduce_build_ms"))
	statRunTime = stat.New("run time", "Time to run a candidate (ms)",
		stat.Distribution{}, stat.Prometheus("isl_reduce_run_ms"))
)

func New(cfg *reduceconfig.Config) *Oracle {
	workdir := cfg.Workdir
	if workdir == "" {
		workdir = os.TempDir()
	}
	o := &Oracle{
		cfg:     cfg,
		build:   BuildOptions(cfg),
		scratch: filepath.Join(workdir, "scratch"),
	}
	if cfg.ExpectedStdout != "" {
		stdout := cfg.ExpectedStdout
		o.stdout.Store(&stdout)
	}
	return o
}

// BuildOptions returns how cfg builds candidates.
func BuildOptions(cfg *reduceconfig.Config) csource.BuildOptions {
	return csource.BuildOptions{
		Compiler:    cfg.Compiler,
		CFlags:      cfg.CFlags,
		IncludeDirs: cfg.IncludeDirs,
		LibDirs:     cfg.LibDirs,
		Libs:        cfg.Libs,
		CMake:       cfg.CMake,
		Timeout:     cfg.BuildTimeoutDuration(),
	}
}

// ExpectedStdout returns the stdout interesting runs must produce, empty if not known yet.
func (o *Oracle) ExpectedStdout() string {
	if stdout := o.stdout.Load(); stdout != nil {
		return *stdout
	}
	return ""
}

// Test builds and runs src and classifies the outcome.
// Cancellation is only checked between the build and the run;
// a started process runs to completion or to its timeout.
func (o *Oracle) Test(ctx context.Context, src []byte) *Result {
	res := &Result{
		Dir: filepath.Join(o.scratch, "trial-"+uuid.NewString()),
	}
	defer o.cleanup(res)
	if err := ctx.Err(); err != nil {
		return malformed(res, err)
	}
	if err := osutil.MkdirAll(res.Dir); err != nil {
		return malformed(res, err)
	}
	start := time.Now()
	bin, err := csource.Build(res.Dir, src, o.build)
	statBuildTime.Add(int(time.Since(start).Milliseconds()))
	if err != nil {
		return malformed(res, err)
	}
	if err := ctx.Err(); err != nil {
		return malformed(res, err)
	}
	cmd := osutil.Command(bin)
	cmd.Dir = res.Dir
	out, err := osutil.RunSplit(o.cfg.RunTimeoutDuration(), cmd)
	if err != nil {
		return malformed(res, err)
	}
	statRunTime.Add(int(out.Duration.Milliseconds()))
	res.Stdout, res.Stderr = out.Stdout, out.Stderr
	res.ExitCode, res.Duration = out.ExitCode, out.Duration
	res.Verdict = classify(out, o.cfg.ExitCode, o.ExpectedStdout(), o.cfg.ExpectedStderr)
	if out.Timedout {
		res.Err = fmt.Errorf("timedout after %v", o.cfg.RunTimeoutDuration())
	}
	if res.Verdict == Interesting && o.ExpectedStdout() == "" {
		stdout := string(out.Stdout)
		if o.stdout.CompareAndSwap(nil, &stdout) {
			log.Logf(0, "pinned expected stdout: %q", stdout)
		}
	}
	log.Logf(2, "%v: %v (exit %v, %v)", filepath.Base(res.Dir), res.Verdict, res.ExitCode, res.Duration)
	return res
}

func malformed(res *Result, err error) *Result {
	res.Verdict = Malformed
	res.Err = err
	log.Logf(2, "%v: malformed: %v", filepath.Base(res.Dir), err)
	return res
}

func (o *Oracle) cleanup(res *Result) {
	if res.Verdict == Interesting || o.cfg.KeepArtifacts {
		return
	}
	os.RemoveAll(res.Dir)
	res.Dir = ""
}

// classify judges a finished run. An empty stdout matches any output.
func classify(out *osutil.Output, exitCode int, stdout, stderr string) Verdict {
	switch {
	case out.Timedout:
		return Malformed
	case out.ExitCode != exitCode:
		return Skip
	case stdout != "" && string(out.Stdout) != stdout:
		return Skip
	case string(out.Stderr) == stderr:
		return Interesting
	default:
		return Boring
	}
}
