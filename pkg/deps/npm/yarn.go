package npm

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Tim-sandbox/barista/pkg/deps"
)

type yarnEntry struct {
	name     string
	version  string
	children map[string]string // name -> range
}

// parseYarnLock reads classic (v1) and berry yarn.lock files. Root
// dependencies come from package.json.
func parseYarnLock(path, dir string) (*deps.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pj, err := readPackageJSON(dir)
	if err != nil {
		return nil, fmt.Errorf("yarn.lock requires package.json: %w", err)
	}

	var entries map[string]*yarnEntry
	if bytes.Contains(data, []byte("__metadata:")) {
		entries, err = parseYarnBerry(data)
	} else {
		entries, err = parseYarnClassic(data)
	}
	if err != nil {
		return nil, err
	}

	g := deps.NewGraph()
	for _, e := range entries {
		id := e.name + "@" + e.version
		if _, ok := g.Nodes[id]; ok {
			continue
		}
		n := &deps.Node{Name: e.name, Version: e.version}
		for name, r := range e.children {
			if child, ok := entries[name+"@"+r]; ok {
				n.Children = append(n.Children, child.name+"@"+child.version)
			}
		}
		g.Add(id, n)
	}
	for name, r := range pj.productionDeps() {
		if e, ok := entries[name+"@"+r]; ok {
			g.Roots = append(g.Roots, e.name+"@"+e.version)
		}
	}
	return g, nil
}

// parseYarnClassic returns entries keyed by every descriptor (name@range).
func parseYarnClassic(data []byte) (map[string]*yarnEntry, error) {
	entries := make(map[string]*yarnEntry)
	var cur *yarnEntry
	inDeps := false

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " "))

		switch {
		case indent == 0:
			cur = &yarnEntry{children: make(map[string]string)}
			inDeps = false
			for _, desc := range strings.Split(strings.TrimSuffix(trimmed, ":"), ",") {
				desc = unquote(strings.TrimSpace(desc))
				name, _ := splitDescriptor(desc)
				cur.name = name
				entries[desc] = cur
			}
		case cur == nil:
			return nil, fmt.Errorf("yarn.lock: unexpected indented line %q", trimmed)
		case indent == 2:
			inDeps = trimmed == "dependencies:" || trimmed == "optionalDependencies:"
			if k, v, ok := strings.Cut(trimmed, " "); ok && k == "version" {
				cur.version = unquote(v)
			}
		case indent >= 4 && inDeps:
			k, v, ok := strings.Cut(trimmed, " ")
			if ok {
				cur.children[unquote(k)] = unquote(strings.TrimSpace(v))
			}
		}
	}
	return entries, sc.Err()
}

type berryEntry struct {
	Version              string            `yaml:"version"`
	Resolution           string            `yaml:"resolution"`
	Dependencies         map[string]string `yaml:"dependencies"`
	OptionalDependencies map[string]string `yaml:"optionalDependencies"`
}

func parseYarnBerry(data []byte) (map[string]*yarnEntry, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	entries := make(map[string]*yarnEntry)
	for key, node := range raw {
		if key == "__metadata" {
			continue
		}
		var b berryEntry
		if err := node.Decode(&b); err != nil {
			return nil, fmt.Errorf("yarn.lock entry %s: %w", key, err)
		}
		if strings.Contains(b.Resolution, "@workspace:") {
			continue
		}
		e := &yarnEntry{version: b.Version, children: make(map[string]string)}
		for name, r := range b.Dependencies {
			e.children[name] = strings.TrimPrefix(r, "npm:")
		}
		for name, r := range b.OptionalDependencies {
			e.children[name] = strings.TrimPrefix(r, "npm:")
		}
		for _, desc := range strings.Split(key, ",") {
			desc = strings.Replace(strings.TrimSpace(desc), "@npm:", "@", 1)
			name, _ := splitDescriptor(desc)
			e.name = name
			entries[desc] = e
		}
	}
	return entries, nil
}

// splitDescriptor splits "name@range", keeping the scope of "@scope/name".
func splitDescriptor(desc string) (name, rng string) {
	i := strings.LastIndex(desc, "@")
	if i <= 0 {
		return desc, ""
	}
	return desc[:i], desc[i+1:]
}

func unquote(s string) string {
	return strings.Trim(s, `"`)
}
