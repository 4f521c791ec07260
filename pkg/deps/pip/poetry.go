package pip

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/Tim-sandbox/barista/pkg/deps"
)

type poetryLock struct {
	Packages []poetryPackage `toml:"package"`
}

type poetryPackage struct {
	Name         string         `toml:"name"`
	Version      string         `toml:"version"`
	Category     string         `toml:"category"`
	Groups       []string       `toml:"groups"`
	Dependencies map[string]any `toml:"dependencies"`
}

// dev reports whether the package only belongs to development groups.
// Lock files before Poetry 1.5 use category, later ones use groups.
func (p poetryPackage) dev() bool {
	if len(p.Groups) > 0 {
		return !slices.Contains(p.Groups, "main")
	}
	return p.Category == "dev"
}

type pyproject struct {
	Tool struct {
		Poetry *struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
	Project struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
}

func readPyproject(dir string) (*pyproject, error) {
	var p pyproject
	if _, err := toml.DecodeFile(filepath.Join(dir, "pyproject.toml"), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func isPoetryProject(dir string) bool {
	p, err := readPyproject(dir)
	return err == nil && p.Tool.Poetry != nil
}

// rootNames returns the normalized direct dependency names declared in
// pyproject.toml, or nil when there is none.
func (p *pyproject) rootNames() []string {
	var out []string
	if p.Tool.Poetry != nil {
		for name := range p.Tool.Poetry.Dependencies {
			if normalize(name) != "python" {
				out = append(out, normalize(name))
			}
		}
	}
	for _, req := range p.Project.Dependencies {
		if m := requirementRE.FindStringSubmatch(req); m != nil {
			out = append(out, normalize(m[1]))
		}
	}
	return out
}

func parsePoetryLock(dir string) (*deps.Graph, error) {
	data, err := os.ReadFile(filepath.Join(dir, "poetry.lock"))
	if err != nil {
		return nil, err
	}
	var lock poetryLock
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, err
	}

	g := deps.NewGraph()
	incoming := make(map[string]bool)
	for _, p := range lock.Packages {
		if p.dev() {
			continue
		}
		n := &deps.Node{Name: normalize(p.Name), Version: p.Version}
		for dep := range p.Dependencies {
			n.Children = append(n.Children, normalize(dep))
			incoming[normalize(dep)] = true
		}
		g.Add(n.Name, n)
	}

	if pp, err := readPyproject(dir); err == nil {
		g.Roots = pp.rootNames()
	}
	if len(g.Roots) == 0 {
		for id := range g.Nodes {
			if !incoming[id] {
				g.Roots = append(g.Roots, id)
			}
		}
	}
	return g, nil
}
