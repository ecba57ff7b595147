// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tool contains various helper utilitites useful for implementation of command line tools.
package tool

import (
	"flag"
	"fmt"
	"os"
)

var (
	flagCPUProfile = flag.String("cpuprofile", "", "write CPU profile to this file")
	flagMEMProfile = flag.String("memprofile", "", "write memory profile to this file")
)

// Init parses the command line and starts profiling if requested.
// The returned function must be called before the tool exits.
func Init(usage string) func() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %v\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	return installProfiling(*flagCPUProfile, *flagMEMProfile)
}

func Failf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}

func Fail(err error) {
	Failf("%v", err)
}
