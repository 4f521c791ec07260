package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := New(io.Discard, log.InfoLevel).RootCommand()

	want := []string{"serve", "project", "scan", "status", "bom", "stats", "cache", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	for _, path := range [][]string{
		{"project", "create"}, {"project", "update"}, {"project", "list"}, {"project", "show"},
		{"project", "branches"}, {"project", "validate"},
		{"scan", "start"}, {"scan", "list"}, {"scan", "show"}, {"scan", "logs"},
		{"stats", "index"}, {"stats", "top"}, {"stats", "trend"}, {"stats", "summary"}, {"stats", "badge"},
		{"cache", "clear"}, {"cache", "path"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[1] {
			t.Errorf("subcommand %v not registered", path)
		}
	}
}

func TestRootCommandConfigFlag(t *testing.T) {
	root := New(io.Discard, log.InfoLevel).RootCommand()
	f := root.PersistentFlags().Lookup("config")
	if f == nil || f.Shorthand != "c" {
		t.Fatalf("config flag = %+v", f)
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, LogInfo)
	c.Logger.Debug("hidden")
	c.SetLogLevel(LogDebug)
	c.Logger.Debug("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("log output = %q", out)
	}
}

func TestCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		root := New(io.Discard, LogInfo).RootCommand()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"completion", shell})
		if err := root.Execute(); err != nil {
			t.Fatalf("%s: %v", shell, err)
		}
		if !strings.Contains(out.String(), "barista") {
			t.Errorf("%s completion does not mention barista", shell)
		}
	}

	root := New(io.Discard, LogInfo).RootCommand()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"completion", "tcsh"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for unsupported shell")
	}
}
