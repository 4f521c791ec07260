package pip

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/Tim-sandbox/barista/pkg/deps"
)

type pipfileLock struct {
	Default map[string]struct {
		Version string `json:"version"`
	} `json:"default"`
}

// parsePipfileLock reads the "default" section. Pipfile.lock is flat, so
// every package is reported as direct.
func parsePipfileLock(dir string) (*deps.Graph, error) {
	data, err := os.ReadFile(filepath.Join(dir, "Pipfile.lock"))
	if err != nil {
		return nil, err
	}
	var lock pipfileLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, err
	}
	g := deps.NewGraph()
	for name, p := range lock.Default {
		id := normalize(name)
		g.Add(id, &deps.Node{Name: id, Version: strings.TrimPrefix(p.Version, "==")})
		g.Roots = append(g.Roots, id)
	}
	return g, nil
}
