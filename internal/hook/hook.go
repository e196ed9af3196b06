// Package hook runs the optional operator scripts attached to session and
// era lifecycle points.
//
// A hook whose script file is absent is simply skipped. A script that exits
// non-zero yields an *ExitError; a script that cannot be started at all
// yields the underlying I/O error.
package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

// Logical hook names, used in log lines and to resolve configured paths.
const (
	NewSession      = "Hook New Session"
	ActiveNextEra   = "Hook Active Next Era"
	InactiveNextEra = "Hook Inactive Next Era"
)

// Names lists the recognized hooks in lifecycle order.
var Names = []string{NewSession, ActiveNextEra, InactiveNextEra}

// Descriptor names one hook invocation.
type Descriptor struct {
	Name string
	Path string
	Args []string
}

// ExitError reports a hook script that ran and exited non-zero.
type ExitError struct {
	Name string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("Hook script %s executed with error", e.Name)
}

// Observer is told about every hook that actually ran.
type Observer func(name string, err error)

// Runner verifies and invokes hook scripts. Invocations are synchronous; the
// caller is blocked until the script exits.
type Runner struct {
	log     *log.Entry
	observe Observer
}

func NewRunner(logger *log.Entry) *Runner {
	return &Runner{log: logger}
}

// WithObserver returns a copy of r that reports each launched script to fn.
func (r *Runner) WithObserver(fn Observer) *Runner {
	cp := *r
	cp.observe = fn
	return &cp
}

// Verify warns when the script for name is not present. It never fails.
func (r *Runner) Verify(name, path string) {
	if !exists(path) {
		r.log.Warnf("Hook script file * %s * not defined", name)
	}
}

// Invoke runs the script at path with args. A missing script is a no-op.
func (r *Runner) Invoke(ctx context.Context, name, path string, args ...string) error {
	if !exists(path) {
		return nil
	}
	err := r.run(ctx, Descriptor{Name: name, Path: path, Args: args})
	if r.observe != nil {
		r.observe(name, err)
	}
	return err
}

func (r *Runner) run(ctx context.Context, d Descriptor) error {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.Path, d.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debugf("Running %s: %s %v", d.Name, d.Path, d.Args)
	runErr := cmd.Run()

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return fmt.Errorf("launching hook script %s: %w", d.Name, runErr)
	}

	if exitErr != nil {
		logLines(stdout.Bytes(), r.log.Info)
		logLines(stderr.Bytes(), r.log.Warn)
		return &ExitError{Name: d.Name, Code: exitErr.ExitCode()}
	}

	if !utf8.Valid(stdout.Bytes()) {
		return fmt.Errorf("hook script %s: output is not valid UTF-8", d.Name)
	}
	logLines(stdout.Bytes(), r.log.Info)
	return nil
}

// logLines logs every line of data in order, however long.
func logLines(data []byte, logf func(args ...interface{})) {
	text := strings.TrimSuffix(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		logf("> " + line)
	}
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
