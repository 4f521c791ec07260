package npm

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/Tim-sandbox/barista/pkg/deps"
)

type packageLock struct {
	LockfileVersion int                     `json:"lockfileVersion"`
	Packages        map[string]lockPackage  `json:"packages"`
	Dependencies    map[string]v1Dependency `json:"dependencies"`
}

type lockPackage struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	License              json.RawMessage   `json:"license"`
	Resolved             string            `json:"resolved"`
	Dev                  bool              `json:"dev"`
	Link                 bool              `json:"link"`
	Dependencies         map[string]string `json:"dependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
}

type v1Dependency struct {
	Version      string                  `json:"version"`
	Dev          bool                    `json:"dev"`
	Requires     map[string]string       `json:"requires"`
	Dependencies map[string]v1Dependency `json:"dependencies"`
}

// packageJSON is the subset of package.json needed to find root dependencies.
type packageJSON struct {
	Name                 string            `json:"name"`
	Dependencies         map[string]string `json:"dependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func readPackageJSON(dir string) (*packageJSON, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, err
	}
	var p packageJSON
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// productionDeps returns the names and ranges of non-dev root dependencies.
func (p *packageJSON) productionDeps() map[string]string {
	out := make(map[string]string, len(p.Dependencies)+len(p.OptionalDependencies))
	for name, r := range p.Dependencies {
		out[name] = r
	}
	for name, r := range p.OptionalDependencies {
		out[name] = r
	}
	return out
}

// parsePackageLock reads lockfile v1, v2 or v3. The v2+ "packages" map is
// preferred; v1 nested "dependencies" are flattened into the same
// install-location form.
func parsePackageLock(path, dir string) (*deps.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock packageLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, err
	}

	packages := lock.Packages
	var roots []string
	if len(packages) > 0 {
		if root, ok := packages[""]; ok {
			roots = keys(root.Dependencies, root.OptionalDependencies)
		}
	} else {
		packages = make(map[string]lockPackage)
		flattenV1("", lock.Dependencies, packages)
		if pj, err := readPackageJSON(dir); err == nil {
			roots = keys(pj.productionDeps())
		}
	}
	if roots == nil {
		for loc, p := range packages {
			if loc != "" && !p.Dev && !strings.Contains(loc, "/node_modules/") {
				roots = append(roots, nameFromLocation(loc))
			}
		}
	}

	g := deps.NewGraph()
	for loc, p := range packages {
		if loc == "" || p.Link || p.Dev {
			continue
		}
		name := p.Name
		if name == "" {
			name = nameFromLocation(loc)
		}
		n := &deps.Node{Name: name, Version: p.Version, License: licenseString(p.License)}
		for _, dep := range keys(p.Dependencies, p.OptionalDependencies, p.PeerDependencies) {
			if child, ok := resolveLocation(packages, loc, dep); ok {
				n.Children = append(n.Children, child)
			}
		}
		g.Add(loc, n)
	}
	for _, name := range roots {
		if loc, ok := resolveLocation(packages, "", name); ok {
			g.Roots = append(g.Roots, loc)
		}
	}
	return g, nil
}

func flattenV1(parent string, in map[string]v1Dependency, out map[string]lockPackage) {
	for name, d := range in {
		loc := childLocation(parent, name)
		out[loc] = lockPackage{Version: d.Version, Dev: d.Dev, Dependencies: d.Requires}
		flattenV1(loc, d.Dependencies, out)
	}
}

// resolveLocation applies node module resolution: the nearest
// node_modules/<name> walking up from the requiring package. Workspace
// links resolve to their target.
func resolveLocation(packages map[string]lockPackage, from, name string) (string, bool) {
	base := from
	for {
		cand := childLocation(base, name)
		if p, ok := packages[cand]; ok {
			if p.Link && p.Resolved != "" {
				if _, ok := packages[p.Resolved]; ok {
					return p.Resolved, true
				}
				return "", false
			}
			return cand, true
		}
		if base == "" {
			return "", false
		}
		base = parentLocation(base)
	}
}

func childLocation(parent, name string) string {
	if parent == "" {
		return "node_modules/" + name
	}
	return parent + "/node_modules/" + name
}

func parentLocation(loc string) string {
	if i := strings.LastIndex(loc, "/node_modules/"); i >= 0 {
		return loc[:i]
	}
	return ""
}

func nameFromLocation(loc string) string {
	if i := strings.LastIndex(loc, "node_modules/"); i >= 0 {
		return loc[i+len("node_modules/"):]
	}
	return loc
}

// licenseString accepts the "MIT", {"type":"MIT"} and [{"type":"MIT"}]
// forms found in older packages.
func licenseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Type != "" {
		return obj.Type
	}
	var list []struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(raw, &list) == nil {
		var types []string
		for _, l := range list {
			if l.Type != "" {
				types = append(types, l.Type)
			}
		}
		if len(types) > 1 {
			return "(" + strings.Join(types, " OR ") + ")"
		}
		return strings.Join(types, "")
	}
	return ""
}

func keys(maps ...map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
