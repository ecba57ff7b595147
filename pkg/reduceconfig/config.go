// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package reduceconfig describes how candidate reductions are built, run and judged.
package reduceconfig

import (
	"time"
)

type Config struct {
	// Directory for scratch builds and reduction history.
	// A fresh temp directory is used if empty.
	Workdir string `json:"workdir,omitempty" yaml:"workdir,omitempty"`

	// C compiler used to build candidates (default "gcc").
	Compiler string `json:"compiler,omitempty" yaml:"compiler,omitempty"`
	// Extra compiler flags.
	CFlags []string `json:"cflags,omitempty" yaml:"cflags,omitempty"`
	// Location of the isl headers (-I).
	IncludeDirs []string `json:"include_dirs,omitempty" yaml:"include_dirs,omitempty"`
	// Location of the isl library (-L), also used as the runtime library path.
	LibDirs []string `json:"lib_dirs,omitempty" yaml:"lib_dirs,omitempty"`
	// Libraries to link (default "isl", "gmp").
	Libs []string `json:"libs,omitempty" yaml:"libs,omitempty"`
	// Additionally configure and build the generated CMakeLists.txt with cmake.
	CMake bool `json:"cmake,omitempty" yaml:"cmake,omitempty"`
	// Run clang-format over the final output.
	Format bool `json:"format,omitempty" yaml:"format,omitempty"`

	// Exact stdout of a reproducing run (the version banner).
	// If empty, the stdout of the first interesting run is required from then on.
	ExpectedStdout string `json:"expected_stdout,omitempty" yaml:"expected_stdout,omitempty"`
	// Exact stderr of a reproducing run, e.g. the assertion message.
	ExpectedStderr string `json:"expected_stderr,omitempty" yaml:"expected_stderr,omitempty"`
	// Exit status of a reproducing run.
	ExitCode int `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`

	// Timeouts in seconds (defaults 60 and 10).
	BuildTimeout int `json:"build_timeout,omitempty" yaml:"build_timeout,omitempty"`
	RunTimeout   int `json:"run_timeout,omitempty" yaml:"run_timeout,omitempty"`

	// Number of candidates tested in parallel (default number of CPUs).
	Procs int `json:"procs,omitempty" yaml:"procs,omitempty"`
	// Seed for the shuffled passes, 0 means time based.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Keep every accepted reduction and a patch against its predecessor in workdir/history.
	History bool `json:"history,omitempty" yaml:"history,omitempty"`
	// Compress history snapshots with xz.
	CompressHistory bool `json:"compress_history,omitempty" yaml:"compress_history,omitempty"`
	// Keep scratch directories of candidates that did not reproduce.
	KeepArtifacts bool `json:"keep_artifacts,omitempty" yaml:"keep_artifacts,omitempty"`

	// Address of the status page (e.g. "localhost:56741"), disabled if empty.
	HTTP string `json:"http,omitempty" yaml:"http,omitempty"`
}

func (cfg *Config) BuildTimeoutDuration() time.Duration {
	return time.Duration(cfg.BuildTimeout) * time.Second
}

func (cfg *Config) RunTimeoutDuration() time.Duration {
	return time.Duration(cfg.RunTimeout) * time.Second
}
