package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNewLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, log.InfoLevel).Info("scan queued", "project", 7, "branch", "main")

	out := buf.String()
	for _, want := range []string{"scan queued", "project=7", "branch=main"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestCLILogLevel(t *testing.T) {
	tests := []struct {
		name    string
		initial log.Level
		set     *log.Level
		debug   bool
	}{
		{name: "info hides debug", initial: LogInfo},
		{name: "debug shows debug", initial: LogDebug, debug: true},
		{name: "verbose raises level", initial: LogInfo, set: ptr(LogDebug), debug: true},
		{name: "quiet lowers level", initial: LogDebug, set: ptr(LogInfo)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			c := New(&buf, tt.initial)
			if tt.set != nil {
				c.SetLogLevel(*tt.set)
			}
			c.Logger.Debug("loaded config", "path", "barista.toml")

			if got := buf.Len() > 0; got != tt.debug {
				t.Errorf("debug logged = %v, want %v (output %q)", got, tt.debug, buf.String())
			}
		})
	}
}

func TestProgressDone(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, log.InfoLevel))
	prog.start = time.Now().Add(-1500 * time.Millisecond)

	prog.done("Scan completed")

	out := buf.String()
	if !strings.Contains(out, "Scan completed (1.5") {
		t.Errorf("output = %q, want message with elapsed time", out)
	}
}

func ptr[T any](v T) *T { return &v }
