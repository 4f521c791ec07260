package deps

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// LicenseLookup returns the declared license of one package version.
type LicenseLookup func(ctx context.Context, name, version string) (string, error)

// FillLicenses looks up the license of every dependency that has none,
// querying each distinct name@version once with up to opts.Concurrency
// lookups in flight. Lookup failures leave the license empty and are
// logged; only context cancellation aborts.
func FillLicenses(ctx context.Context, list []Dependency, opts Options, lookup LicenseLookup) error {
	type key struct{ name, version string }
	pending := make(map[key]string)
	for _, d := range list {
		if d.License == "" {
			pending[key{d.Name, d.Version}] = ""
		}
	}
	if len(pending) == 0 {
		return nil
	}

	keys := make([]key, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	found := make([]string, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, k := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lic, err := lookup(gctx, k.name, k.version)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				opts.Logger.Warn("license lookup failed", "package", k.name, "version", k.version, "error", err)
				return nil
			}
			found[i] = lic
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, k := range keys {
		pending[k] = found[i]
	}
	for i := range list {
		if list[i].License == "" {
			list[i].License = pending[key{list[i].Name, list[i].Version}]
		}
	}
	return nil
}
