package npm

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Tim-sandbox/barista/pkg/deps"
)

type pnpmLock struct {
	LockfileVersion      any                    `yaml:"lockfileVersion"`
	Importers            map[string]pnpmProject `yaml:"importers"`
	Dependencies         map[string]any         `yaml:"dependencies"`
	OptionalDependencies map[string]any         `yaml:"optionalDependencies"`
	Packages             map[string]pnpmPackage `yaml:"packages"`
	Snapshots            map[string]pnpmPackage `yaml:"snapshots"`
}

type pnpmProject struct {
	Dependencies         map[string]any `yaml:"dependencies"`
	OptionalDependencies map[string]any `yaml:"optionalDependencies"`
}

type pnpmPackage struct {
	Name                 string            `yaml:"name"`
	Version              string            `yaml:"version"`
	Dev                  bool              `yaml:"dev"`
	Dependencies         map[string]string `yaml:"dependencies"`
	OptionalDependencies map[string]string `yaml:"optionalDependencies"`
}

// parsePnpmLock reads pnpm lockfile formats 5.x, 6.x and 9.x.
func parsePnpmLock(path string) (*deps.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock pnpmLock
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return nil, err
	}
	legacy := lockMajor(lock.LockfileVersion) < 6

	g := deps.NewGraph()
	addAll := func(src map[string]pnpmPackage) {
		for key, p := range src {
			if p.Dev {
				continue
			}
			name, version := parsePnpmKey(key, legacy)
			if name == "" {
				continue
			}
			id := name + "@" + version
			n, ok := g.Nodes[id]
			if !ok {
				n = &deps.Node{Name: name, Version: displayVersion(version)}
				g.Add(id, n)
			}
			for dep, ref := range p.Dependencies {
				n.Children = append(n.Children, pnpmRef(dep, ref, legacy))
			}
			for dep, ref := range p.OptionalDependencies {
				n.Children = append(n.Children, pnpmRef(dep, ref, legacy))
			}
		}
	}
	addAll(lock.Packages)
	addAll(lock.Snapshots)

	root := pnpmProject{Dependencies: lock.Dependencies, OptionalDependencies: lock.OptionalDependencies}
	if p, ok := lock.Importers["."]; ok {
		root = p
	}
	for _, m := range []map[string]any{root.Dependencies, root.OptionalDependencies} {
		for name, v := range m {
			if ref := importerVersion(v); ref != "" {
				g.Roots = append(g.Roots, pnpmRef(name, ref, legacy))
			}
		}
	}
	return g, nil
}

func lockMajor(v any) int {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return x
	default:
		return 0
	}
	major, _, _ := strings.Cut(s, ".")
	n, _ := strconv.Atoi(major)
	return n
}

// parsePnpmKey splits a packages/snapshots key into name and version.
// Formats: "/name/1.0.0_peer" (5.x), "/name@1.0.0(peer)" (6.x),
// "name@1.0.0(peer)" (9.x).
func parsePnpmKey(key string, legacy bool) (string, string) {
	key = strings.TrimPrefix(key, "/")
	if legacy {
		i := strings.LastIndex(key, "/")
		if i <= 0 {
			return "", ""
		}
		return key[:i], key[i+1:]
	}
	base := key
	if i := strings.Index(base, "("); i >= 0 {
		base = base[:i]
	}
	i := strings.LastIndex(base, "@")
	if i <= 0 {
		return "", ""
	}
	return key[:i], key[i+1:]
}

// pnpmRef converts a dependency reference into a node ID. A reference is a
// version or, for aliased packages, a full key.
func pnpmRef(name, ref string, legacy bool) string {
	if strings.HasPrefix(ref, "/") || (!legacy && strings.Contains(strings.SplitN(ref, "(", 2)[0], "@")) {
		n, v := parsePnpmKey(ref, legacy)
		return n + "@" + v
	}
	return name + "@" + ref
}

func importerVersion(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]any:
		if v, ok := x["version"]; ok && v != nil {
			return fmt.Sprint(v)
		}
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
	return ""
}

// displayVersion strips peer-dependency suffixes.
func displayVersion(v string) string {
	if i := strings.IndexAny(v, "(_"); i > 0 {
		return v[:i]
	}
	return v
}
