// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// isl-trace2c converts an isl call trace into a standalone C program and
// optionally reduces it to a minimal program that still reproduces the failure:
//
//	isl-trace2c -o bug.c isl.trace
//	isl-trace2c -reduce -config=reduce.cfg -http=localhost:56741 isl.trace.xz
//
// During reduction the best program so far is always available in the output file.
package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/Meinersbur/isl/pkg/config"
	"github.com/Meinersbur/isl/pkg/csource"
	"github.com/Meinersbur/isl/pkg/log"
	"github.com/Meinersbur/isl/pkg/oracle"
	"github.com/Meinersbur/isl/pkg/osutil"
	"github.com/Meinersbur/isl/pkg/reduceconfig"
	"github.com/Meinersbur/isl/pkg/repro"
	"github.com/Meinersbur/isl/pkg/tool"
	"github.com/Meinersbur/isl/prog"
)

const effectiveConfig = "reduce.cfg"

var (
	flagConfig = flag.String("config", "", "reduction config file (JSON or YAML)")
	flagOutput = flag.String("o", "", "output file (default: the trace file with .c extension)")
	flagReduce = flag.Bool("reduce", false, "reduce the program instead of plain conversion")
	flagProcs  = flag.Int("procs", 0, "number of parallel trials (overrides config)")
	flagSeed   = flag.Int64("seed", 0, "seed of the shuffled passes (overrides config)")
	flagHTTP   = flag.String("http", "", "status page address (overrides config)")
)

func main() {
	defer tool.Init("isl-trace2c [flags] trace.log")()
	if flag.NArg() != 1 {
		flag.Usage()
		tool.Failf("want exactly one trace file")
	}
	trace := flag.Arg(0)
	output := *flagOutput
	if output == "" {
		output = osutil.ReplaceExt(trace, ".c")
	}
	cfg := reduceconfig.Default()
	if *flagConfig != "" {
		var err error
		if cfg, err = reduceconfig.LoadFile(*flagConfig); err != nil {
			tool.Fail(err)
		}
	}
	if *flagProcs > 0 {
		cfg.Procs = *flagProcs
	}
	if *flagSeed != 0 {
		cfg.Seed = *flagSeed
	}
	if *flagHTTP != "" {
		cfg.HTTP = *flagHTTP
	}
	m, err := prog.ParseFile(trace)
	if err != nil {
		tool.Failf("failed to parse %v: %v", trace, err)
	}
	calls, objects, callbackers := m.Stats()
	log.Logf(0, "parsed %v: %v calls, %v objects, %v callbacks", trace, calls, objects, callbackers)
	opts := csource.DefaultOptions()
	opts.Format = cfg.Format
	if !*flagReduce {
		if err := convert(m, opts, output); err != nil {
			tool.Fail(err)
		}
		return
	}
	if err := reduce(m, cfg, opts, output); err != nil {
		tool.Fail(err)
	}
}

func convert(m *prog.Model, opts csource.Options, output string) error {
	src, err := csource.Write(m, nil, opts)
	if err != nil {
		if src == nil {
			return err
		}
		log.Logf(0, "%v", err)
	}
	if err := osutil.WriteFile(output, src); err != nil {
		return err
	}
	log.Logf(0, "written %v calls to %v", m.Analyze(nil).NumCalls(), output)
	return nil
}

func reduce(m *prog.Model, cfg *reduceconfig.Config, opts csource.Options, output string) error {
	if err := cfg.CheckReduce(); err != nil {
		return err
	}
	if err := setupWorkdir(cfg); err != nil {
		return err
	}
	log.Logf(0, "workdir %v, %v procs", cfg.Workdir, cfg.Procs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdown := make(chan struct{})
	osutil.HandleInterrupts(shutdown)
	go func() {
		select {
		case <-shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()
	if cfg.HTTP != "" {
		log.EnableLogCaching(1000, 1<<20)
		serveHTTP(cfg.HTTP, output)
	}

	ropts := repro.Options{
		Procs:  cfg.Procs,
		Seed:   cfg.Seed,
		Source: opts,
		Output: output,
	}
	if cfg.History {
		ropts.HistoryDir = filepath.Join(cfg.Workdir, "history")
		ropts.Compress = cfg.CompressHistory
	}
	res, err := repro.Run(ctx, m, oracle.New(cfg), ropts)
	if err != nil {
		return err
	}
	state := "done"
	if res.Interrupted {
		state = "interrupted"
	}
	fmt.Printf("%v: %v calls left after %v accepted mutations, %v trials, %v\n",
		state, res.Calls, len(res.Accepted), res.Trials, res.Duration)
	fmt.Printf("result: %v\n", output)
	return nil
}

// setupWorkdir creates the workdir if needed and stores the build descriptor
// and the effective config there, so the reduction can be rerun by hand.
func setupWorkdir(cfg *reduceconfig.Config) error {
	if cfg.Workdir == "" {
		dir, err := osutil.TempDir("", "isl-reduce-")
		if err != nil {
			return err
		}
		cfg.Workdir = dir
	}
	descriptor := filepath.Join(cfg.Workdir, "CMakeLists.txt")
	if err := osutil.WriteFile(descriptor, csource.BuildDescriptor(oracle.BuildOptions(cfg))); err != nil {
		return err
	}
	return config.SaveFile(filepath.Join(cfg.Workdir, effectiveConfig), cfg)
}
