package pip

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Tim-sandbox/barista/pkg/deps"
)

var (
	requirementRE = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(\[[^\]]*\])?\s*(.*)$`)
	pinRE         = regexp.MustCompile(`^===?\s*([^\s,;]+)$`)
)

// maxIncludeDepth bounds nested -r includes.
const maxIncludeDepth = 8

// parseRequirements reads requirements.txt and its -r includes. Pinned
// entries (name==1.2.3) carry their version; others are looked up at the
// latest release.
func parseRequirements(dir string) (*deps.Graph, error) {
	g := deps.NewGraph()
	seen := make(map[string]bool)
	if err := readRequirements(filepath.Join(dir, "requirements.txt"), dir, g, seen, 0); err != nil {
		return nil, err
	}
	return g, nil
}

func readRequirements(path, root string, g *deps.Graph, seen map[string]bool, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("requirements includes nested deeper than %d", maxIncludeDepth)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if seen[abs] {
		return nil
	}
	seen[abs] = true
	if rel, err := filepath.Rel(root, abs); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("requirements include %s escapes the repository", path)
	}

	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "-r ") || strings.HasPrefix(line, "--requirement "):
			_, inc, _ := strings.Cut(line, " ")
			if err := readRequirements(filepath.Join(filepath.Dir(abs), strings.TrimSpace(inc)), root, g, seen, depth+1); err != nil {
				return err
			}
			continue
		case strings.HasPrefix(line, "-"), strings.Contains(line, "://"), strings.HasPrefix(line, "git+"):
			continue
		}

		m := requirementRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := normalize(m[1])
		spec, _, _ := strings.Cut(m[3], ";")
		version := ""
		if p := pinRE.FindStringSubmatch(strings.TrimSpace(spec)); p != nil {
			version = p[1]
		}
		if _, ok := g.Nodes[name]; !ok {
			g.Add(name, &deps.Node{Name: name, Version: version})
			g.Roots = append(g.Roots, name)
		}
	}
	return sc.Err()
}
