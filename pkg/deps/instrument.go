package deps

import (
	"context"
	"errors"
	"time"

	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/observability"
)

// ErrNoResult reports a fetcher that returned neither a result nor an error.
var ErrNoResult = errors.New("fetcher returned no result")

// Instrumented wraps f so every invocation reports to the fetch hooks and
// every error carries the FETCH_FAILED code.
func Instrumented(pm model.PackageManager, f Fetcher) Fetcher {
	return FetcherFunc(func(ctx context.Context, workDir string, opts Options, logDir string) (*Result, error) {
		start := time.Now()
		res, err := f.FetchDependencies(ctx, workDir, opts, logDir)
		n := 0
		if err == nil && res == nil {
			err = ErrNoResult
		}
		if err != nil {
			res = nil
			err = Failed(err, "%s fetch failed", pm)
		} else {
			n = len(res.Dependencies)
		}
		observability.Scan().OnFetchComplete(ctx, string(pm), n, time.Since(start), err)
		return res, err
	})
}
