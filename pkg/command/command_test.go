package command

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestOSRunCapturesOutput(t *testing.T) {
	if !LookPath("sh") {
		t.Skip("sh not available")
	}
	var log bytes.Buffer
	out, err := OS{}.Run(context.Background(), Spec{
		Name: "sh",
		Args: []string{"-c", "echo hello-secret"},
		Log:  &log,
		Redact: func(s string) string {
			return strings.ReplaceAll(s, "secret", "***")
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello-secret" {
		t.Errorf("stdout = %q", out)
	}
	if strings.Contains(log.String(), "secret") {
		t.Errorf("log not redacted: %q", log.String())
	}
	if !strings.Contains(log.String(), "$ sh -c") {
		t.Errorf("log missing command line: %q", log.String())
	}
}

func TestOSRunFailure(t *testing.T) {
	if !LookPath("sh") {
		t.Skip("sh not available")
	}
	_, err := OS{}.Run(context.Background(), Spec{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
	var cmdErr *Error
	if !errors.As(err, &cmdErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d", cmdErr.ExitCode)
	}
	if !strings.Contains(cmdErr.Error(), "boom") {
		t.Errorf("Error() = %q", cmdErr.Error())
	}
}

func TestOSRunContextDeadline(t *testing.T) {
	if !LookPath("sleep") {
		t.Skip("sleep not available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := OS{}.Run(ctx, Spec{Name: "sleep", Args: []string{"5"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestSanitizedEnv(t *testing.T) {
	t.Setenv("GIT_DIR", "/elsewhere")
	for _, e := range sanitizedEnv() {
		if strings.HasPrefix(e, "GIT_DIR=") {
			t.Error("GIT_DIR should be removed")
		}
	}
}

func TestFakeRecordsCalls(t *testing.T) {
	f := &Fake{RunFunc: func(_ context.Context, s Spec) ([]byte, error) {
		return []byte(s.Name), nil
	}}
	out, _ := f.Run(context.Background(), Spec{Name: "git", Args: []string{"ls-remote", "x"}})
	if string(out) != "git" {
		t.Errorf("out = %q", out)
	}
	if lines := f.CommandLines(); len(lines) != 1 || lines[0] != "git ls-remote x" {
		t.Errorf("CommandLines = %v", lines)
	}
}
