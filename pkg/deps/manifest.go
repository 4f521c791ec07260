package deps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Tim-sandbox/barista/pkg/errors"
)

// Locations inside a work directory.
const (
	OutputDir    = ".barista"
	OutputFile   = "dependencies.json"
	FetchLogFile = "fetch.log"
)

// OutputPath returns the manifest location for workDir.
func OutputPath(workDir string) string {
	return filepath.Join(workDir, OutputDir, OutputFile)
}

// WriteResult sorts r and writes it to OutputPath(workDir), replacing any
// earlier manifest atomically.
func WriteResult(workDir string, r *Result) error {
	Sort(r.Dependencies)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	path := OutputPath(workDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), OutputFile+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ReadResult loads the manifest written by WriteResult.
func ReadResult(workDir string) (*Result, error) {
	data, err := os.ReadFile(OutputPath(workDir))
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", OutputFile, err)
	}
	return &r, nil
}

// Sort orders dependencies by name, version, then path.
func Sort(list []Dependency) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Path < b.Path
	})
}

// Failed wraps err as a FETCH_FAILED error.
func Failed(err error, format string, args ...any) error {
	if errors.Is(err, errors.ErrCodeFetchFailed) {
		return err
	}
	return errors.Wrap(errors.ErrCodeFetchFailed, err, format, args...)
}

// EnsureCacheDir creates <cacheDir>/<ecosystem> when cacheDir is set and
// returns its path. Existing content is never removed.
func EnsureCacheDir(cacheDir, ecosystem string) (string, error) {
	if cacheDir == "" {
		return "", nil
	}
	dir := filepath.Join(cacheDir, ecosystem)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", Failed(err, "create package cache %s", dir)
	}
	return dir, nil
}

// OpenLog opens <logDir>/fetch.log for appending. With an empty logDir the
// returned file discards output.
func OpenLog(logDir string) (*os.File, error) {
	if logDir == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(logDir, FetchLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Exists reports whether workDir contains a regular file named name.
func Exists(workDir, name string) bool {
	info, err := os.Stat(filepath.Join(workDir, name))
	return err == nil && info.Mode().IsRegular()
}

// JoinPath builds a dependency chain.
func JoinPath(segments ...string) string {
	return strings.Join(segments, PathSeparator)
}
