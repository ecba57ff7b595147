// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

const (
	DefaultDirPerm  = 0755
	DefaultFilePerm = 0644
	DefaultExecPerm = 0755
)

// RunCmd runs "bin args..." in dir with timeout and returns its output.
func RunCmd(timeout time.Duration, dir, bin string, args ...string) ([]byte, error) {
	cmd := Command(bin, args...)
	cmd.Dir = dir
	return Run(timeout, cmd)
}

// Run runs cmd with the specified timeout.
// Returns combined output. If the command fails, err includes output.
func Run(timeout time.Duration, cmd *exec.Cmd) ([]byte, error) {
	output := new(bytes.Buffer)
	if cmd.Stdout == nil {
		cmd.Stdout = output
	}
	if cmd.Stderr == nil {
		cmd.Stderr = output
	}
	timedout, err := wait(timeout, cmd)
	if err != nil {
		text := fmt.Sprintf("failed to run %q: %v", cmd.Args, err)
		if timedout {
			text = fmt.Sprintf("timedout after %v %q", timeout, cmd.Args)
		}
		return output.Bytes(), &VerboseError{
			Title:    text,
			Output:   output.Bytes(),
			ExitCode: exitCode(err),
			Timedout: timedout,
		}
	}
	return output.Bytes(), nil
}

// Output is the outcome of a process that was started successfully.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Timedout bool
	Duration time.Duration
}

// RunSplit runs cmd with the specified timeout capturing stdout and stderr separately.
// A non-zero exit status is not an error, it is reported in Output.ExitCode.
func RunSplit(timeout time.Duration, cmd *exec.Cmd) (*Output, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	start := time.Now()
	timedout, err := wait(timeout, cmd)
	var exitErr *exec.ExitError
	if err != nil && !timedout && !errors.As(err, &exitErr) {
		return nil, err
	}
	return &Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(err),
		Timedout: timedout,
		Duration: time.Since(start),
	}, nil
}

func wait(timeout time.Duration, cmd *exec.Cmd) (bool, error) {
	setPdeathsig(cmd)
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("failed to start %v %+v: %w", cmd.Path, cmd.Args, err)
	}
	done := make(chan bool)
	timedout := make(chan bool, 1)
	timer := time.NewTimer(timeout)
	go func() {
		select {
		case <-timer.C:
			timedout <- true
			killPgroup(cmd)
			cmd.Process.Kill()
		case <-done:
			timedout <- false
			timer.Stop()
		}
	}()
	err := cmd.Wait()
	close(done)
	return <-timedout, err
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return 0
}

// Command is similar to os/exec.Command, but also sets PDEATHSIG on linux.
func Command(bin string, args ...string) *exec.Cmd {
	cmd := exec.Command(bin, args...)
	setPdeathsig(cmd)
	return cmd
}

type VerboseError struct {
	Title    string
	Output   []byte
	ExitCode int
	Timedout bool
}

func (err *VerboseError) Error() string {
	if len(err.Output) == 0 {
		return err.Title
	}
	return fmt.Sprintf("%v\n%s", err.Title, err.Output)
}

func PrependContext(ctx string, err error) error {
	var verbose *VerboseError
	if errors.As(err, &verbose) {
		verbose.Title = fmt.Sprintf("%v: %v", ctx, verbose.Title)
		return verbose
	}
	return fmt.Errorf("%v: %w", ctx, err)
}

// IsExist returns true if the file name exists.
func IsExist(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func MkdirAll(dir string) error {
	return os.MkdirAll(dir, DefaultDirPerm)
}

func WriteFile(filename string, data []byte) error {
	return os.WriteFile(filename, data, DefaultFilePerm)
}

// WriteFileAtomically replaces filename so that readers never observe a partial file.
func WriteFileAtomically(filename string, data []byte) error {
	tmp := filename + ".tmp"
	if err := WriteFile(tmp, data); err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}

// TempDir creates a fresh directory inside of dir.
func TempDir(dir, prefix string) (string, error) {
	if dir != "" {
		if err := MkdirAll(dir); err != nil {
			return "", err
		}
	}
	name, err := os.MkdirTemp(dir, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	return name, nil
}

// ReplaceExt returns name with its extension replaced by ext.
// A trailing compression suffix is dropped first: foo.trace.xz -> foo.c.
func ReplaceExt(name, ext string) string {
	for _, suffix := range []string{".xz", ".gz"} {
		if filepath.Ext(name) == suffix {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return name[:len(name)-len(filepath.Ext(name))] + ext
}

// HandleInterrupts closes shutdown chan on first SIGINT
// (expecting that the program will gracefully shutdown and exit)
// and terminates the process on third SIGINT.
func HandleInterrupts(shutdown chan struct{}) {
	go func() {
		c := make(chan os.Signal, 3)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		close(shutdown)
		fmt.Fprint(os.Stderr, "SIGINT: shutting down...\n")
		<-c
		fmt.Fprint(os.Stderr, "SIGINT: shutting down harder...\n")
		<-c
		fmt.Fprint(os.Stderr, "SIGINT: terminating\n")
		os.Exit(int(syscall.SIGINT))
	}()
}
