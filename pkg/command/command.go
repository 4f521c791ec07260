// Package command runs external toolchains (git, npm, pip, mvn) for the
// scan runner and the dependency fetchers.
//
// Callers depend on [Executor] so tests can substitute a fake and never
// spawn processes.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Spec describes one command invocation.
type Spec struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the sanitized process environment

	// Log, when set, receives a "$ cmd args" line plus combined output.
	Log io.Writer

	// Redact is applied to the echoed command line and to error text.
	Redact func(string) string
}

// Executor runs commands. Implementations must honour ctx cancellation by
// killing the process.
type Executor interface {
	Run(ctx context.Context, spec Spec) ([]byte, error)
}

// Error describes a failed command.
type Error struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// OS runs commands with os/exec.
type OS struct{}

// Run executes spec and returns stdout.
func (OS) Run(ctx context.Context, spec Spec) ([]byte, error) {
	redact := spec.Redact
	if redact == nil {
		redact = func(s string) string { return s }
	}
	line := redact(strings.TrimSpace(spec.Name + " " + strings.Join(spec.Args, " ")))

	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(sanitizedEnv(), spec.Env...)

	var stdout, stderr bytes.Buffer
	if spec.Log != nil {
		fmt.Fprintf(spec.Log, "$ %s\n", line)
		cmd.Stdout = io.MultiWriter(&stdout, redactWriter{spec.Log, redact})
		cmd.Stderr = io.MultiWriter(&stderr, redactWriter{spec.Log, redact})
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return stdout.Bytes(), &Error{
			Command:  line,
			ExitCode: code,
			Stderr:   redact(stderr.String()),
			Err:      err,
		}
	}
	return stdout.Bytes(), nil
}

// LookPath reports whether name is on PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

type redactWriter struct {
	w      io.Writer
	redact func(string) string
}

func (r redactWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(r.w, r.redact(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// sanitizedEnv drops git variables that would redirect commands to another
// repository, and disables interactive credential prompts.
func sanitizedEnv() []string {
	env := make([]string, 0, len(os.Environ())+1)
	for _, e := range os.Environ() {
		key, _, _ := strings.Cut(e, "=")
		switch strings.ToUpper(key) {
		case "GIT_DIR", "GIT_INDEX_FILE", "GIT_WORK_TREE",
			"GIT_OBJECT_DIRECTORY", "GIT_ALTERNATE_OBJECT_DIRECTORIES":
			continue
		}
		env = append(env, e)
	}
	return append(env, "GIT_TERMINAL_PROMPT=0")
}
