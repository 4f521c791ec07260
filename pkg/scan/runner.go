// Package scan runs license and security scans of tracked projects.
//
// A scan moves through pending, running and then completed or failed:
//
//	pending ──MarkRunning──▶ running ──CompleteScan──▶ completed
//	   │                        │
//	   └────────FailScan────────┴──────────────────▶ failed
//
// A project has at most one pending or running scan; the store enforces it
// atomically. Scans wait for a worker slot in the pending state. The result
// sets and the completed state are written in one transaction, so readers
// never observe a partially published scan.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/Tim-sandbox/barista/pkg/deps"
	"github.com/Tim-sandbox/barista/pkg/deps/fetchers"
	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/license"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/observability"
	"github.com/Tim-sandbox/barista/pkg/repo"
	"github.com/Tim-sandbox/barista/pkg/scanlog"
	"github.com/Tim-sandbox/barista/pkg/store"
	"github.com/Tim-sandbox/barista/pkg/vuln"
)

const (
	DefaultTimeout       = 30 * time.Minute
	DefaultMaxConcurrent = 4
)

// Per-scan directory layout below Options.WorkDir/<scan id>.
const (
	sourceDir = "src"
	logsDir   = "logs"
)

// FetcherLookup resolves the fetcher of a package manager.
type FetcherLookup func(model.PackageManager) (deps.Fetcher, error)

// Options configures a Runner. Zero fields get defaults in New.
type Options struct {
	WorkDir       string        // parent of per-scan directories
	Timeout       time.Duration // wall-clock budget of one scan
	MaxConcurrent int           // scans running at once
	KeepWorkDir   bool          // keep per-scan directories for debugging

	Repo     repo.Accessor
	Fetchers FetcherLookup // default: fetchers.Find
	Policy   *license.Policy
	Vulns    vuln.Source
	Logs     scanlog.Store // default: the SQLite backend of the store
	Fetch    deps.Options  // passed to every fetcher

	Logger *log.Logger
}

// Runner executes scans. Safe for concurrent use.
type Runner struct {
	store *store.Store
	opts  Options
	sem   *semaphore.Weighted

	// base is the parent of asynchronous scans; Close cancels it.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a runner over db.
func New(db *store.Store, opts Options) *Runner {
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "barista", "work")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Repo == nil {
		opts.Repo = repo.NewGit(nil, nil, opts.Logger)
	}
	if opts.Fetchers == nil {
		opts.Fetchers = fetchers.Find
	}
	if opts.Policy == nil {
		opts.Policy = license.MustDefault()
	}
	if opts.Vulns == nil {
		opts.Vulns = vuln.None{}
	}
	if opts.Logs == nil {
		opts.Logs = scanlog.NewSQLite(db)
	}
	if opts.Fetch.Logger == nil {
		opts.Fetch.Logger = opts.Logger
	}
	opts.Fetch = opts.Fetch.WithDefaults()

	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:  db,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		base:   base,
		cancel: cancel,
	}
}

// Start creates a pending scan of projectID at branch and runs it in the
// background. It returns the pending scan, or SCAN_IN_PROGRESS when the
// project already has an active scan.
func (r *Runner) Start(ctx context.Context, projectID int64, branch string) (*model.Scan, error) {
	p, scan, err := r.create(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(r.base, p, scan)
	}()
	return scan, nil
}

// Run is Start without the goroutine: it returns once the scan is terminal.
// The returned error covers only scan creation; a failed scan is reported
// through its state.
func (r *Runner) Run(ctx context.Context, projectID int64, branch string) (*model.Scan, error) {
	p, scan, err := r.create(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}
	r.execute(ctx, p, scan)
	return r.store.GetScan(context.WithoutCancel(ctx), scan.ID)
}

func (r *Runner) create(ctx context.Context, projectID int64, branch string) (*model.Project, *model.Scan, error) {
	if branch != "" {
		if err := bErrors.ValidateBranch(branch); err != nil {
			return nil, nil, err
		}
	}
	p, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	scan, err := r.store.CreateScan(ctx, projectID, branch)
	if err != nil {
		return nil, nil, err
	}
	observability.Scan().OnScanQueued(ctx, p.ID, string(p.PackageManager))
	r.opts.Logger.Info("scan queued", "scan", scan.ID, "project", p.ID, "branch", branch)
	return p, scan, nil
}

// RecoverStale fails scans left pending or running by a dead process. A
// scan older than the scan timeout cannot still be alive; younger ones may
// run in another process and are kept. Call it once at startup.
func (r *Runner) RecoverStale(ctx context.Context) (int, error) {
	n, err := r.store.RecoverStale(ctx, r.opts.Timeout)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.opts.Logger.Warn("recovered interrupted scans", "count", n)
	}
	return n, nil
}

// Refs lists the branches and tags of a project's repository.
func (r *Runner) Refs(ctx context.Context, projectID int64) ([]repo.Ref, error) {
	p, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return r.opts.Repo.ListRefs(ctx, p.GitURL)
}

// Wait blocks until every background scan has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels background scans and waits for them. Cancelled scans are
// marked failed with INTERRUPTED.
func (r *Runner) Close() error {
	r.cancel()
	r.wg.Wait()
	return nil
}

// execute drives one scan from pending to a terminal state. It never
// returns an error: failures are recorded on the scan.
func (r *Runner) execute(ctx context.Context, p *model.Project, scan *model.Scan) {
	logger := r.opts.Logger.With("scan", scan.ID, "project", p.ID)
	pm := string(p.PackageManager)
	// Terminal writes must land even when ctx is already cancelled.
	persistCtx := context.WithoutCancel(ctx)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.fail(persistCtx, logger, scan, pm, bErrors.ErrCodeInterrupted, "scan cancelled before it started", 0)
		return
	}
	defer r.sem.Release(1)

	started, err := r.store.MarkRunning(ctx, scan.ID)
	if err != nil {
		r.fail(persistCtx, logger, scan, pm, codeOf(err), err.Error(), 0)
		return
	}
	observability.Scan().OnScanStart(ctx, p.ID, pm)
	logger.Info("scan running", "package_manager", pm)

	dir := filepath.Join(r.opts.WorkDir, scan.ID)
	if !r.opts.KeepWorkDir {
		defer os.RemoveAll(dir)
	}
	logDir := filepath.Join(dir, logsDir)

	scanCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	err = r.attempt(scanCtx, logger, p, scan, dir, logDir, started)
	r.saveLog(persistCtx, logger, scan.ID, logDir)
	duration := time.Since(started)

	if err == nil {
		observability.Scan().OnScanComplete(ctx, p.ID, pm, string(model.ScanCompleted), duration, nil)
		logger.Info("scan completed", "duration", duration)
		return
	}

	code, reason := r.classify(ctx, scanCtx, err)
	r.fail(persistCtx, logger, scan, pm, code, reason, duration)
}

// attempt checks out the repository, fetches dependencies, extracts
// findings and publishes them. Nothing is persisted unless it succeeds.
func (r *Runner) attempt(ctx context.Context, logger *log.Logger, p *model.Project, scan *model.Scan, dir, logDir string, started time.Time) error {
	logw, err := deps.OpenLog(logDir)
	if err != nil {
		return bErrors.Wrap(bErrors.ErrCodeInternal, err, "open scan log")
	}
	defer logw.Close()

	fetcher, err := r.opts.Fetchers(p.PackageManager)
	if err != nil {
		return err
	}

	src := filepath.Join(dir, sourceDir)
	fmt.Fprintf(logw, "==> checkout %s branch=%q\n", repo.Redact(p.GitURL), scan.Branch)
	if err := r.opts.Repo.Checkout(ctx, p.GitURL, scan.Branch, src, logw); err != nil {
		return err
	}

	fmt.Fprintf(logw, "==> fetch dependencies (%s)\n", p.PackageManager)
	fetchStart := time.Now()
	res, err := fetcher.FetchDependencies(ctx, src, r.opts.Fetch, logDir)
	if err == nil && res == nil {
		err = deps.ErrNoResult
	}
	if err != nil {
		fmt.Fprintf(logw, "fetch failed: %s\n", repo.Redact(err.Error()))
		return deps.Failed(err, "%s fetch failed", p.PackageManager)
	}
	logger.Debug("dependencies fetched", "count", len(res.Dependencies), "manifest", res.Manifest,
		"duration", time.Since(fetchStart))
	fmt.Fprintf(logw, "resolved %d dependencies from %s\n", len(res.Dependencies), res.Manifest)

	findings, err := r.extract(ctx, p.PackageManager, res, started)
	if err != nil {
		return err
	}
	fmt.Fprintf(logw, "==> publish %d license and %d security findings\n",
		len(findings.License.Items), len(findings.Security.Items))

	if err := r.store.CompleteScan(ctx, scan.ID, findings); err != nil {
		return bErrors.Wrap(bErrors.ErrCodeInternal, err, "publish results")
	}
	return nil
}

// extract classifies licenses and looks up advisories.
func (r *Runner) extract(ctx context.Context, pm model.PackageManager, res *deps.Result, started time.Time) (*model.Findings, error) {
	f := &model.Findings{
		License:  model.LicenseScanResult{StartedAt: started},
		Security: model.SecurityScanResult{StartedAt: started},
	}
	f.License.Items = make([]model.LicenseItem, 0, len(res.Dependencies))
	for _, d := range res.Dependencies {
		f.License.Items = append(f.License.Items, model.LicenseItem{
			DisplayIdentifier: d.DisplayIdentifier(),
			License:           d.License,
			Status:            r.opts.Policy.Classify(d.License),
		})
	}

	items, err := r.opts.Vulns.Lookup(ctx, pm, res.Dependencies)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, bErrors.Wrap(bErrors.ErrCodeFetchFailed, err, "advisory lookup")
	}
	f.Security.Items = items
	return f, nil
}

// classify maps an attempt error to the code and reason stored on the scan.
func (r *Runner) classify(parent, scanCtx context.Context, err error) (bErrors.Code, string) {
	switch {
	case parent.Err() != nil:
		return bErrors.ErrCodeInterrupted, "scan interrupted by shutdown"
	case errors.Is(scanCtx.Err(), context.DeadlineExceeded):
		return bErrors.ErrCodeTimeout, fmt.Sprintf("scan exceeded its %s budget", r.opts.Timeout)
	}
	return codeOf(err), repo.Redact(err.Error())
}

func codeOf(err error) bErrors.Code {
	if code := bErrors.GetCode(err); code != "" {
		return code
	}
	return bErrors.ErrCodeInternal
}

func (r *Runner) fail(ctx context.Context, logger *log.Logger, scan *model.Scan, pm string, code bErrors.Code, reason string, d time.Duration) {
	if err := r.store.FailScan(ctx, scan.ID, code, reason); err != nil {
		logger.Error("record scan failure", "error", err)
	}
	failure := bErrors.New(code, "%s", reason)
	observability.Scan().OnScanComplete(ctx, scan.ProjectID, pm, string(model.ScanFailed), d, failure)
	logger.Warn("scan failed", "code", code, "reason", reason, "duration", d)
}

// saveLog persists <logDir>/fetch.log. A missing log is not an error.
func (r *Runner) saveLog(ctx context.Context, logger *log.Logger, scanID, logDir string) {
	data, err := os.ReadFile(filepath.Join(logDir, deps.FetchLogFile))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("read scan log", "error", err)
		}
		return
	}
	if err := r.opts.Logs.Put(ctx, scanID, repo.Redact(string(data))); err != nil {
		logger.Warn("store scan log", "error", err)
	}
}
