// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package csource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Meinersbur/isl/pkg/log"
	"github.com/Meinersbur/isl/pkg/osutil"
)

const (
	SourceFile = "isltrace.c"
	BinaryName = "isltrace"
	cmakeFile  = "CMakeLists.txt"
)

type BuildOptions struct {
	Compiler    string
	CFlags      []string
	IncludeDirs []string
	LibDirs     []string
	Libs        []string
	// CMake additionally builds the generated CMakeLists.txt with cmake.
	CMake   bool
	Timeout time.Duration
}

var ErrNoCompiler = errors.New("no C compiler")

// Build writes src together with a build descriptor into dir and compiles it.
// Returns the path of the resulting binary.
func Build(dir string, src []byte, opts BuildOptions) (string, error) {
	if _, err := exec.LookPath(opts.Compiler); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCompiler, opts.Compiler)
	}
	if err := osutil.WriteFile(filepath.Join(dir, SourceFile), src); err != nil {
		return "", err
	}
	if err := osutil.WriteFile(filepath.Join(dir, cmakeFile), BuildDescriptor(opts)); err != nil {
		return "", err
	}
	bin := filepath.Join(dir, BinaryName)
	if _, err := osutil.RunCmd(opts.Timeout, dir, opts.Compiler, compilerArgs(opts, bin)...); err != nil {
		return "", osutil.PrependContext("failed to build program", err)
	}
	if !opts.CMake {
		return bin, nil
	}
	buildDir := filepath.Join(dir, "build")
	if _, err := osutil.RunCmd(opts.Timeout, dir, "cmake", "-S", dir, "-B", buildDir,
		"-DCMAKE_C_COMPILER="+opts.Compiler, "-DCMAKE_BUILD_TYPE=Debug"); err != nil {
		return "", osutil.PrependContext("cmake configure failed", err)
	}
	if _, err := osutil.RunCmd(opts.Timeout, dir, "cmake", "--build", buildDir); err != nil {
		return "", osutil.PrependContext("cmake build failed", err)
	}
	return filepath.Join(buildDir, BinaryName), nil
}

func compilerArgs(opts BuildOptions, bin string) []string {
	var args []string
	if strings.Contains(filepath.Base(opts.Compiler), "gcc") {
		args = append(args, "-fmax-errors=1")
	}
	args = append(args, "-g", "-Werror=incompatible-pointer-types")
	args = append(args, opts.CFlags...)
	for _, dir := range opts.IncludeDirs {
		args = append(args, "-I", dir)
	}
	args = append(args, SourceFile)
	for _, dir := range opts.LibDirs {
		args = append(args, "-L", dir, "-Wl,-rpath,"+dir)
	}
	for _, lib := range opts.Libs {
		args = append(args, "-l"+lib)
	}
	return append(args, "-o", bin)
}

// BuildDescriptor returns a CMakeLists.txt that builds the generated source.
func BuildDescriptor(opts BuildOptions) []byte {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "cmake_minimum_required(VERSION 3.13)\n")
	fmt.Fprintf(buf, "project(%v C)\n\n", BinaryName)
	fmt.Fprintf(buf, "add_executable(%v %v)\n", BinaryName, SourceFile)
	if len(opts.CFlags) != 0 {
		fmt.Fprintf(buf, "target_compile_options(%v PRIVATE %v)\n", BinaryName, cmakeList(opts.CFlags))
	}
	if len(opts.IncludeDirs) != 0 {
		fmt.Fprintf(buf, "target_include_directories(%v PRIVATE %v)\n", BinaryName, cmakeList(opts.IncludeDirs))
	}
	if len(opts.LibDirs) != 0 {
		fmt.Fprintf(buf, "target_link_directories(%v PRIVATE %v)\n", BinaryName, cmakeList(opts.LibDirs))
		fmt.Fprintf(buf, "set_target_properties(%v PROPERTIES BUILD_RPATH %v)\n",
			BinaryName, cmakeQuote(strings.Join(opts.LibDirs, ";")))
	}
	if len(opts.Libs) != 0 {
		fmt.Fprintf(buf, "target_link_libraries(%v PRIVATE %v)\n", BinaryName, cmakeList(opts.Libs))
	}
	return buf.Bytes()
}

func cmakeList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = cmakeQuote(item)
	}
	return strings.Join(quoted, " ")
}

func cmakeQuote(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`).Replace(s)
	return `"` + s + `"`
}

// Format reformats C source using clang-format.
// Diagnostics of clang-format go to the log at verbosity 1.
func Format(src []byte) ([]byte, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd := osutil.Command("clang-format", "-assume-filename=/src.c", "-style", style)
	cmd.Stdin = bytes.NewReader(src)
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, log.VerboseWriter(1))
	if err := cmd.Run(); err != nil {
		return src, fmt.Errorf("failed to format source: %w\n%v", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Keeps one statement per line regardless of its length.
var style = `{
BasedOnStyle: LLVM,
ColumnLimit: 0,
AllowShortBlocksOnASingleLine: false,
AllowShortCaseLabelsOnASingleLine: false,
AllowShortFunctionsOnASingleLine: false,
}`
