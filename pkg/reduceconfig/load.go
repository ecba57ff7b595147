// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package reduceconfig

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/Meinersbur/isl/pkg/config"
)

func LoadData(data []byte) (*Config, error) {
	cfg := defaultValues()
	if err := config.LoadData(data, cfg); err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFile(filename string) (*Config, error) {
	cfg := defaultValues()
	if err := config.LoadFile(filename, cfg); err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := defaultValues()
	if err := Complete(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func defaultValues() *Config {
	return &Config{
		Compiler:     "gcc",
		Libs:         []string{"isl", "gmp"},
		BuildTimeout: 60,
		RunTimeout:   10,
		Procs:        runtime.NumCPU(),
	}
}

func Complete(cfg *Config) error {
	if cfg.Compiler == "" {
		return fmt.Errorf("config param compiler is empty")
	}
	if cfg.BuildTimeout <= 0 || cfg.RunTimeout <= 0 {
		return fmt.Errorf("bad config timeouts: build %v, run %v", cfg.BuildTimeout, cfg.RunTimeout)
	}
	if cfg.Procs < 1 {
		return fmt.Errorf("bad config param procs: '%v', want >= 1", cfg.Procs)
	}
	if cfg.CompressHistory && !cfg.History {
		return fmt.Errorf("compress_history is set, but history is not")
	}
	if cfg.Workdir != "" {
		var err error
		if cfg.Workdir, err = filepath.Abs(cfg.Workdir); err != nil {
			return err
		}
	}
	for i, dir := range cfg.IncludeDirs {
		cfg.IncludeDirs[i] = absPath(dir)
	}
	for i, dir := range cfg.LibDirs {
		cfg.LibDirs[i] = absPath(dir)
	}
	return nil
}

// CheckReduce verifies that the config can judge candidate reductions.
func (cfg *Config) CheckReduce() error {
	if cfg.ExpectedStderr == "" {
		return errors.New("config param expected_stderr is empty, nothing to reproduce")
	}
	return nil
}

// Scratch builds happen in other directories, so relative paths are resolved now.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
