// Package maven resolves the declared dependencies of Maven projects.
//
// Direct dependencies are read from pom.xml with ${property} substitution.
// Properties and dependencyManagement versions are inherited from parent
// POMs fetched from the configured repository. Test, provided, system and
// optional dependencies are excluded.
package maven

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Tim-sandbox/barista/pkg/deps"
	mavenrepo "github.com/Tim-sandbox/barista/pkg/integrations/maven"
	"github.com/Tim-sandbox/barista/pkg/model"
)

const (
	manifestFile   = "pom.xml"
	maxParentDepth = 4
)

// Fetcher implements deps.Fetcher for Maven projects.
type Fetcher struct{}

// New returns the maven fetcher.
func New() *Fetcher { return &Fetcher{} }

// FetchDependencies implements deps.Fetcher.
func (f *Fetcher) FetchDependencies(ctx context.Context, workDir string, opts deps.Options, logDir string) (*deps.Result, error) {
	opts = opts.WithDefaults()

	data, err := os.ReadFile(filepath.Join(workDir, manifestFile))
	if err != nil {
		return nil, deps.Failed(err, "read %s", manifestFile)
	}
	pom, err := mavenrepo.ParsePOM(data)
	if err != nil {
		return nil, deps.Failed(err, "parse %s", manifestFile)
	}

	repo := mavenrepo.NewClient(opts.HTTPCache, opts.MavenRepository, opts.CacheTTL)
	inheritParents(ctx, repo, pom, opts)

	g := deps.NewGraph()
	for _, d := range pom.Dependencies {
		if excluded(d) {
			continue
		}
		groupID, artifactID := pom.Resolve(d.GroupID), pom.Resolve(d.ArtifactID)
		version := pom.Resolve(d.Version)
		if version == "" {
			version = pom.ManagedVersion(groupID, artifactID)
		}
		name := groupID + ":" + artifactID
		if _, ok := g.Nodes[name]; ok {
			continue
		}
		g.Add(name, &deps.Node{Name: name, Version: version})
		g.Roots = append(g.Roots, name)
	}
	list := g.Dependencies()

	err = deps.FillLicenses(ctx, list, opts, func(ctx context.Context, name, version string) (string, error) {
		groupID, artifactID, _ := strings.Cut(name, ":")
		return repo.FetchLicense(ctx, groupID, artifactID, version)
	})
	if err != nil {
		return nil, deps.Failed(err, "license lookup")
	}

	res := &deps.Result{
		PackageManager: model.PackageManagerMaven,
		Manifest:       manifestFile,
		Dependencies:   list,
		FetchedAt:      time.Now().UTC(),
	}
	if err := deps.WriteResult(workDir, res); err != nil {
		return nil, deps.Failed(err, "write dependency manifest")
	}
	return res, nil
}

// inheritParents copies properties and managed dependencies that pom does
// not define itself from its parent chain. Unreachable parents are logged
// and skipped.
func inheritParents(ctx context.Context, repo *mavenrepo.Client, pom *mavenrepo.POM, opts deps.Options) {
	parent := pom.Parent
	for depth := 0; parent != nil && depth < maxParentDepth; depth++ {
		p, err := repo.FetchPOM(ctx, parent.GroupID, parent.ArtifactID, parent.Version)
		if err != nil {
			opts.Logger.Warn("parent pom unavailable", "parent", parent.GroupID+":"+parent.ArtifactID, "error", err)
			return
		}
		for k, v := range p.Props {
			if _, ok := pom.Props[k]; !ok {
				pom.Props[k] = v
			}
		}
		for _, m := range p.Managed {
			m.GroupID, m.ArtifactID, m.Version = p.Resolve(m.GroupID), p.Resolve(m.ArtifactID), p.Resolve(m.Version)
			pom.Managed = append(pom.Managed, m)
		}
		parent = p.Parent
	}
}

func excluded(d mavenrepo.Dependency) bool {
	switch strings.TrimSpace(d.Scope) {
	case "test", "provided", "system", "import":
		return true
	}
	return strings.TrimSpace(d.Optional) == "true"
}
