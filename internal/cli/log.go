// Package cli implements the barista command-line interface.
//
// Commands open the configured store, caches and scan runner through one
// shared wiring step, so the CLI and the HTTP server started by "serve"
// behave identically against the same database.
//
// # Commands
//
// The main commands are:
//   - serve: Run the HTTP API
//   - project: Register and inspect projects
//   - scan: Start scans and read their state and logs
//   - status, bom: Per-project rollups and bill of materials
//   - stats: Fleet indices, top lists and monthly trends
//   - cache: Manage the registry response cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Logs go to
// stderr; command results go to stdout.
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger writing to w at level, with timestamps
// formatted as "HH:MM:SS.ms".
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress logs completion of an operation with its elapsed time.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with the elapsed time, e.g. "Scan completed (1.234s)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}
